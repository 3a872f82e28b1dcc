package clock

import "unicode/utf16"

// SeedHash folds s into a 32-bit signed hash with h = h*31 + c over UTF-16 code units.
// The value is stable across processes and restarts.
func SeedHash(s string) int32 {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = (h << 5) - h + int32(c)
	}
	return h
}

// SeededOffset maps seed onto [min, max) as abs(hash) mod (max-min) + min.
// If max <= min it returns min.
func SeededOffset(seed string, min, max int) int {
	size := int64(max - min)
	if size <= 0 {
		return min
	}
	h := int64(SeedHash(seed))
	if h < 0 {
		h = -h
	}
	return int(h%size) + min
}
