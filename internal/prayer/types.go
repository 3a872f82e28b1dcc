package prayer

import "strings"

// Prayer is one of the five daily prayers.
type Prayer string

const (
	Fajr    Prayer = "fajr"
	Dhuhr   Prayer = "dhuhr"
	Asr     Prayer = "asr"
	Maghrib Prayer = "maghrib"
	Isha    Prayer = "isha"
)

// All lists the prayers in daily order.
var All = []Prayer{Fajr, Dhuhr, Asr, Maghrib, Isha}

// Label is the human name used in reminder texts, e.g. "Fajr (Dawn)".
func (p Prayer) Label() string {
	switch p {
	case Fajr:
		return "Fajr (Dawn)"
	case Dhuhr:
		return "Dhuhr (Noon)"
	case Asr:
		return "Asr (Afternoon)"
	case Maghrib:
		return "Maghrib (Sunset)"
	case Isha:
		return "Isha (Night)"
	default:
		return string(p)
	}
}

// Title is the capitalized prayer name ("Fajr").
func (p Prayer) Title() string {
	s := string(p)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// ParsePrayer accepts a prayer name in any case.
func ParsePrayer(s string) (Prayer, bool) {
	p := Prayer(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range All {
		if v == p {
			return p, true
		}
	}
	return "", false
}

// Location is a place with its own prayer table.
type Location struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	District string `json:"district,omitempty"`
}

// District groups locations in the lookup index.
type District struct {
	ID        int        `json:"id"`
	Name      string     `json:"name"`
	Locations []Location `json:"locations"`
}

// DailyPrayerTimes holds one day of a perpetual calendar. Times are "HH:MM" 24h
// once normalized.
type DailyPrayerTimes struct {
	Date    string `json:"date"`
	Fajr    string `json:"fajr"`
	Sunrise string `json:"sunrise"`
	Dhuhr   string `json:"dhuhr"`
	Asr     string `json:"asr"`
	Maghrib string `json:"maghrib"`
	Isha    string `json:"isha"`
}

// Time returns the time of p, or "" for an unknown prayer.
func (d DailyPrayerTimes) Time(p Prayer) string {
	switch p {
	case Fajr:
		return d.Fajr
	case Dhuhr:
		return d.Dhuhr
	case Asr:
		return d.Asr
	case Maghrib:
		return d.Maghrib
	case Isha:
		return d.Isha
	default:
		return ""
	}
}

// Next is the result of Engine.NextPrayer.
type Next struct {
	Prayer   Prayer
	Time     string
	Tomorrow bool
}
