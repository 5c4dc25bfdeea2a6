package scene

import (
	"github.com/Shellwecode/window-to-the-world-app/internal/weather"
)

// pickIndex hashes the seed the same way every session so a city keeps its
// illustration across reloads: h = h*31 + c over the seed's characters,
// wrapped to signed 32 bits, absolute value, modulo length.
func pickIndex(seed string, length int) int {
	if length <= 0 {
		return 0
	}
	var h int32
	for _, r := range seed {
		h = h*31 + int32(r)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return int(v % int64(length))
}

// SelectImage picks the illustration URL for a category. The bool reports
// whether the manifest had anything to offer; a scene without an image
// still renders on its background tint.
func SelectImage(baseURL string, category weather.Category, manifest []string, seed string) (string, bool) {
	if len(manifest) == 0 {
		return "", false
	}
	file := manifest[pickIndex(seed, len(manifest))]
	return baseURL + "/" + category.Key() + "/" + file, true
}
