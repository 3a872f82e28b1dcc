// Package clock is the single source of civil time for azanbot.
//
// All prayer matching happens on "HH:MM" strings in Indian Standard Time,
// independent of the host's TZ setting.
package clock

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// IST is Asia/Kolkata. When tzdata is unavailable it falls back to a fixed +05:30 zone
// (India has no DST, so both are equivalent).
var IST = loadIST()

func loadIST() *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return time.FixedZone("IST", 5*60*60+30*60)
	}
	return loc
}

// Clock returns the current instant.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System is the wall clock.
var System Clock = systemClock{}

// Manual is a settable clock for tests and replays.
type Manual struct {
	mu sync.Mutex
	t  time.Time
}

func NewManual(t time.Time) *Manual { return &Manual{t: t} }

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t
}

func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.t = t
	m.mu.Unlock()
}

func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.t = m.t.Add(d)
	m.mu.Unlock()
}

// Service formats the current instant in IST.
type Service struct {
	c Clock
}

func New(c Clock) *Service {
	if c == nil {
		c = System
	}
	return &Service{c: c}
}

// Now returns the current instant in IST.
func (s *Service) Now() time.Time { return s.c.Now().In(IST) }

// Today returns the perpetual-calendar key "MM-DD".
func (s *Service) Today() string { return s.Now().Format("01-02") }

// DateKey returns "YYYY-MM-DD"; used where keys must not repeat across years.
func (s *Service) DateKey() string { return s.Now().Format("2006-01-02") }

// HHMM returns the current minute as "HH:MM" (24h).
func (s *Service) HHMM() string { return s.Now().Format("15:04") }

// MonthDay formats t (in IST) as "MM-DD".
func MonthDay(t time.Time) string { return t.In(IST).Format("01-02") }

// FormatDate renders t as "02 Jan 2006" in IST.
func FormatDate(t time.Time) string { return t.In(IST).Format("02 Jan 2006") }

// ParseHHMM parses a 24h "HH:MM" string.
func ParseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	hs, ms, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(ms)
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}

// AddMinutes shifts an "HH:MM" time by n minutes, wrapping at midnight.
// An unparsable input is returned unchanged so it can never match a real minute.
func AddMinutes(hhmm string, n int) string {
	h, m, err := ParseHHMM(hhmm)
	if err != nil {
		return hhmm
	}
	total := (h*60 + m + n) % (24 * 60)
	if total < 0 {
		total += 24 * 60
	}
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// FormatDisplay renders "HH:MM" as a 12h "h:mm AM" string.
func FormatDisplay(hhmm string) string {
	h, m, err := ParseHHMM(hhmm)
	if err != nil {
		return hhmm
	}
	suffix := "AM"
	if h >= 12 {
		suffix = "PM"
	}
	h12 := h % 12
	if h12 == 0 {
		h12 = 12
	}
	return fmt.Sprintf("%d:%02d %s", h12, m, suffix)
}
