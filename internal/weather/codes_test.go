package weather

import "testing"

func TestDescribe(t *testing.T) {
	cases := []struct {
		code int
		want string
	}{
		{0, "Clear sky"},
		{2, "Partly cloudy"},
		{3, "Overcast"},
		{45, "Fog"},
		{55, "Drizzle"},
		{57, "Freezing drizzle"},
		{61, "Rain"},
		{67, "Freezing rain"},
		{75, "Snowfall"},
		{77, "Snow grains"},
		{82, "Rain showers"},
		{86, "Snow showers"},
		{95, "Thunderstorm"},
		{99, "Thunderstorm with hail"},
		{42, "Unknown"},
		{-1, "Unknown"},
	}

	for _, tc := range cases {
		if got := Describe(tc.code); got != tc.want {
			t.Errorf("Describe(%d) = %q, want %q", tc.code, got, tc.want)
		}
	}
}

func TestClassifyCode(t *testing.T) {
	cases := []struct {
		code int
		want ConditionClass
	}{
		{0, ClassClear},
		{3, ClassClear},
		{45, ClassClear},
		{48, ClassClear},
		{51, ClassRain},
		{65, ClassRain},
		{67, ClassRain},
		{80, ClassRain},
		{95, ClassRain},
		{99, ClassRain},
		{71, ClassSnow},
		{77, ClassSnow},
		{85, ClassSnow},
		{86, ClassSnow},
		{1234, ClassClear},
	}

	for _, tc := range cases {
		if got := ClassifyCode(tc.code); got != tc.want {
			t.Errorf("ClassifyCode(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestSnapshotCategory(t *testing.T) {
	cases := []struct {
		name string
		snap Snapshot
		want string
	}{
		{"snowy night", Snapshot{Code: 73, IsDay: false}, "snow-night"},
		{"clear day", Snapshot{Code: 0, IsDay: true}, "clear-day"},
		{"thunderstorm day", Snapshot{Code: 95, IsDay: true}, "rain-day"},
		{"fog night", Snapshot{Code: 45, IsDay: false}, "clear-night"},
	}

	for _, tc := range cases {
		if got := tc.snap.Category().Key(); got != tc.want {
			t.Errorf("%s: category key = %q, want %q", tc.name, got, tc.want)
		}
	}
}
