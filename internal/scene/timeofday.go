package scene

import (
	"strings"
	"time"
)

// Bucket is a coarse time-of-day band used to tint the window scene.
type Bucket string

const (
	BucketUnknown   Bucket = "unknown"
	BucketDeepNight Bucket = "deep-night"
	BucketLateNight Bucket = "late-night"
	BucketMorning   Bucket = "morning"
	BucketAfternoon Bucket = "afternoon"
	BucketEvening   Bucket = "evening"
)

var bucketTints = map[Bucket]string{
	BucketUnknown:   "#6b7a8f",
	BucketDeepNight: "#10141f",
	BucketLateNight: "#1b2233",
	BucketMorning:   "#dceaf7",
	BucketAfternoon: "#9cc3e8",
	BucketEvening:   "#403a66",
}

// Contrast is the text styling laid over a tint.
type Contrast struct {
	Text      string `json:"text"`
	TextMuted string `json:"text_muted"`
}

var (
	darkOnLight = Contrast{Text: "#1f2430", TextMuted: "rgba(31,36,48,0.66)"}
	lightOnDark = Contrast{Text: "#f4f6fb", TextMuted: "rgba(244,246,251,0.72)"}
)

// ParseHour extracts the hour (0-23) from a 12-hour clock string such as
// "03:12 PM". ok is false for anything unparseable, including the
// placeholder shown when a city's timezone is unknown.
func ParseHour(localTime string) (int, bool) {
	t, err := time.Parse("3:04 PM", strings.TrimSpace(localTime))
	if err != nil {
		return 0, false
	}
	return t.Hour(), true
}

// BucketFor maps an hour to its band. The day is cut into deep night
// (23:00-02:59), late night (03:00-05:59), morning (06:00-11:59),
// afternoon (12:00-17:59) and evening (18:00-22:59).
func BucketFor(hour int) Bucket {
	switch {
	case hour == 23 || hour < 3:
		return BucketDeepNight
	case hour < 6:
		return BucketLateNight
	case hour < 12:
		return BucketMorning
	case hour < 18:
		return BucketAfternoon
	default:
		return BucketEvening
	}
}

// ResolveTint returns the bucket and background tint for a local time
// string. Unparseable input gets the neutral tint.
func ResolveTint(localTime string) (Bucket, string) {
	hour, ok := ParseHour(localTime)
	if !ok {
		return BucketUnknown, bucketTints[BucketUnknown]
	}
	bucket := BucketFor(hour)
	return bucket, bucketTints[bucket]
}

// ResolveContrast picks the text style for the detail view: dark text
// between 06:00 and 17:59 local, light text otherwise. Unparseable input
// reads as daytime so the neutral tint keeps dark text.
func ResolveContrast(localTime string) Contrast {
	hour, ok := ParseHour(localTime)
	if !ok {
		return darkOnLight
	}
	if hour >= 6 && hour < 18 {
		return darkOnLight
	}
	return lightOnDark
}

// GridContrast is fixed: the compact multi-city cells always render light
// text whatever the local time is.
func GridContrast() Contrast {
	return lightOnDark
}
