package prayer

import (
	"fmt"
	"strconv"
	"strings"
)

// Normalize converts an ambiguous 12h source time into 24h "HH:MM".
//
// Rules:
//   - asr, maghrib, isha: always PM (add 12 when hour < 12)
//   - dhuhr: PM unless the raw hour is >= 11
//   - fajr, sunrise: AM ("12" becomes 00)
func Normalize(raw string, field string) (string, error) {
	hs, ms, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return "", fmt.Errorf("%s: invalid time %q", field, raw)
	}
	h, err := strconv.Atoi(strings.TrimSpace(hs))
	if err != nil || h < 0 || h > 23 {
		return "", fmt.Errorf("%s: invalid hour in %q", field, raw)
	}
	m, err := strconv.Atoi(strings.TrimSpace(ms))
	if err != nil || m < 0 || m > 59 {
		return "", fmt.Errorf("%s: invalid minute in %q", field, raw)
	}

	switch field {
	case "asr", "maghrib", "isha":
		if h < 12 {
			h += 12
		}
	case "dhuhr":
		if h < 11 {
			h += 12
		}
	case "fajr", "sunrise":
		if h == 12 {
			h = 0
		}
	}
	return fmt.Sprintf("%02d:%02d", h, m), nil
}

func normalizeDay(d DailyPrayerTimes) (DailyPrayerTimes, error) {
	var err error
	fields := []struct {
		name string
		v    *string
	}{
		{"fajr", &d.Fajr},
		{"sunrise", &d.Sunrise},
		{"dhuhr", &d.Dhuhr},
		{"asr", &d.Asr},
		{"maghrib", &d.Maghrib},
		{"isha", &d.Isha},
	}
	for _, f := range fields {
		if *f.v, err = Normalize(*f.v, f.name); err != nil {
			return d, fmt.Errorf("%s: %w", d.Date, err)
		}
	}
	// "HH:MM" compares lexically
	prev := All[0]
	for _, p := range All[1:] {
		if d.Time(p) < d.Time(prev) {
			return d, fmt.Errorf("%s: %s %s is before %s %s", d.Date, p, d.Time(p), prev, d.Time(prev))
		}
		prev = p
	}
	return d, nil
}
