package devicemodel

import "math"

// namedPalette maps a display palette RGB integer (packed 0xRRGGBB) to a
// canonical, sometimes primary-purified, RGB integer. Order matters: state
// reporting scans it top to bottom and reports the first key whose
// canonical triple lies within distance 20 of the device's current color.
// Ported verbatim from original_source/capability.cpp's Color constructor.
var namedPalette = []struct {
	key, canonical int
}{
	{16714250, 16711680}, // Red
	{16729907, 16729907}, // Coral
	{16727040, 16727040}, // Orange
	{16740362, 16740362}, // Yellow
	{13303562, 13303562}, // Lime
	{720711, 65280},      // Green
	{720813, 720813},     // Emerald
	{720883, 720883},     // Turquoise
	{710399, 65535},      // Cyan
	{673791, 255},        // Blue
	{15067647, 15067647}, // Moonlight
	{8719103, 8719103},   // Lavender
	{11340543, 11340543}, // Violet
	{16714471, 16714471}, // Purple
	{16714393, 16714393}, // Orchid
	{16722742, 16722742}, // Mauve
	{16711765, 16711765}, // Raspberry
}

// colorTemperatureLadder is the fixed set of Kelvin steps a reported
// color-temperature range snaps out to.
var colorTemperatureLadder = []int{1500, 2700, 3400, 4500, 5600, 6500, 7500, 9000}

type rgb struct{ r, g, b int }

func parseRGB(value int) rgb {
	return rgb{r: (value >> 16) & 0xFF, g: (value >> 8) & 0xFF, b: value & 0xFF}
}

func rgbDistance(a, b rgb) float64 {
	dr := float64(a.r - b.r)
	dg := float64(a.g - b.g)
	db := float64(a.b - b.b)
	return math.Abs(math.Sqrt(dr*dr + dg*dg + db*db))
}

// snapToPalette returns the first palette key within distance 20 of value,
// or value unchanged if no entry matches.
func snapToPalette(value int) int {
	target := parseRGB(value)

	for _, entry := range namedPalette {
		if rgbDistance(parseRGB(entry.canonical), target) < 20 {
			return entry.key
		}
	}

	return value
}

// resolvePaletteKey maps a palette key back to its canonical RGB integer,
// or returns value unchanged if it is not a declared palette key.
func resolvePaletteKey(value int) int {
	for _, entry := range namedPalette {
		if entry.key == value {
			return entry.canonical
		}
	}
	return value
}

// colorTemperatureRange snaps the Kelvin range implied by a hub's mireds
// min/max to the next ladder step out on both ends.
func colorTemperatureRange(minKelvin, maxKelvin float64) (min, max int) {
	for i := 0; i < len(colorTemperatureLadder)-1; i++ {
		lo, hi := colorTemperatureLadder[i], colorTemperatureLadder[i+1]

		if float64(lo) <= minKelvin && float64(hi) > minKelvin {
			min = lo
		}
		if float64(lo) < maxKelvin && float64(hi) >= maxKelvin {
			max = hi
		}
	}

	return min, max
}
