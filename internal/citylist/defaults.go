package citylist

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

var defaultCities = mustParseDefaults()

// DefaultCities returns a copy of the built-in starter list.
func DefaultCities() []City {
	return append([]City(nil), defaultCities...)
}

func mustParseDefaults() []City {
	var cities []City
	if err := yaml.Unmarshal(defaultsYAML, &cities); err != nil {
		panic(fmt.Sprintf("parse embedded default cities: %v", err))
	}
	return cities
}
