package weather

// ConditionClass groups the WMO weather codes into the three families the
// illustration set ships folders for.
type ConditionClass int

const (
	ClassClear ConditionClass = iota
	ClassRain
	ClassSnow
)

func (c ConditionClass) String() string {
	switch c {
	case ClassRain:
		return "rain"
	case ClassSnow:
		return "snow"
	default:
		return "clear"
	}
}

// Category pairs a condition class with day or night. Key names the remote
// illustration folder, e.g. "snow-night".
type Category struct {
	Class ConditionClass
	Night bool
}

func (c Category) Key() string {
	if c.Night {
		return c.Class.String() + "-night"
	}
	return c.Class.String() + "-day"
}

// Describe maps a WMO weather interpretation code to the label shown next
// to the temperature.
func Describe(code int) string {
	switch code {
	case 0:
		return "Clear sky"
	case 1:
		return "Mainly clear"
	case 2:
		return "Partly cloudy"
	case 3:
		return "Overcast"
	case 45, 48:
		return "Fog"
	case 51, 53, 55:
		return "Drizzle"
	case 56, 57:
		return "Freezing drizzle"
	case 61, 63, 65:
		return "Rain"
	case 66, 67:
		return "Freezing rain"
	case 71, 73, 75:
		return "Snowfall"
	case 77:
		return "Snow grains"
	case 80, 81, 82:
		return "Rain showers"
	case 85, 86:
		return "Snow showers"
	case 95:
		return "Thunderstorm"
	case 96, 99:
		return "Thunderstorm with hail"
	default:
		return "Unknown"
	}
}

// ClassifyCode decides which illustration family a code belongs to.
// Thunderstorms render as rain, fog as clear; there are no folders for
// either on the image host.
func ClassifyCode(code int) ConditionClass {
	switch code {
	case 71, 73, 75, 77, 85, 86:
		return ClassSnow
	case 51, 53, 55, 56, 57, 61, 63, 65, 66, 67, 80, 81, 82, 95, 96, 99:
		return ClassRain
	default:
		return ClassClear
	}
}
