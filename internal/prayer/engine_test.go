package prayer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"azanbot/internal/clock"
	logx "azanbot/pkg/logx"
)

type memSource struct {
	tables map[int][]DailyPrayerTimes
	index  []District
	loads  map[int]int
}

func (m *memSource) LoadYearTable(_ context.Context, id int) ([]DailyPrayerTimes, error) {
	if m.loads == nil {
		m.loads = map[int]int{}
	}
	m.loads[id]++
	t, ok := m.tables[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

func (m *memSource) LoadIndex(context.Context) ([]District, error) { return m.index, nil }

// kochiRaw uses the ambiguous 12h source format.
var kochiRaw = []DailyPrayerTimes{
	{Date: "05-17", Fajr: "5:30", Sunrise: "6:02", Dhuhr: "12:15", Asr: "3:45", Maghrib: "6:30", Isha: "7:45"},
	{Date: "05-18", Fajr: "5:29", Sunrise: "6:01", Dhuhr: "12:15", Asr: "3:45", Maghrib: "6:31", Isha: "7:46"},
}

func istAt(month time.Month, day, h, m int) time.Time {
	return time.Date(2025, month, day, h, m, 0, 0, clock.IST)
}

func newTestEngine(t *testing.T, now time.Time) (*Engine, *memSource) {
	t.Helper()
	src := &memSource{
		tables: map[int][]DailyPrayerTimes{807: kochiRaw},
		index: []District{
			{ID: 8, Name: "Ernakulam", Locations: []Location{{ID: 801, Name: "Aluva"}, {ID: 807, Name: "Kochi"}}},
			{ID: 2, Name: "Kannur", Locations: []Location{{ID: 211, Name: "Thalassery"}}},
		},
	}
	e := NewEngine(src, clock.New(clock.NewManual(now)), logx.Nop())
	if err := e.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return e, src
}

func TestResolveForDateNormalizesAndCaches(t *testing.T) {
	t.Parallel()
	e, src := newTestEngine(t, istAt(time.May, 17, 4, 0))
	ctx := context.Background()

	got, err := e.ResolveForDate(ctx, 807, "05-17")
	if err != nil {
		t.Fatalf("ResolveForDate: %v", err)
	}
	want := DailyPrayerTimes{Date: "05-17", Fajr: "05:30", Sunrise: "06:02", Dhuhr: "12:15", Asr: "15:45", Maghrib: "18:30", Isha: "19:45"}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	prev := ""
	for _, p := range All {
		if got.Time(p) < prev {
			t.Fatalf("%s %s before previous %s", p, got.Time(p), prev)
		}
		prev = got.Time(p)
	}

	if _, err := e.ResolveToday(ctx, 807); err != nil {
		t.Fatalf("ResolveToday: %v", err)
	}
	if src.loads[807] != 1 {
		t.Fatalf("expected one load, got %d", src.loads[807])
	}
}

func TestResolveMissingIsNotFound(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t, istAt(time.May, 17, 4, 0))
	ctx := context.Background()
	if _, err := e.ResolveForDate(ctx, 999, "05-17"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing location err = %v", err)
	}
	if _, err := e.ResolveForDate(ctx, 807, "12-31"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing day err = %v", err)
	}
}

func TestNextPrayer(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t, istAt(time.May, 17, 12, 0))
	ctx := context.Background()

	tests := []struct {
		now      string
		prayer   Prayer
		time     string
		tomorrow bool
	}{
		{now: "04:00", prayer: Fajr, time: "05:30"},
		{now: "05:30", prayer: Dhuhr, time: "12:15"},
		{now: "15:44", prayer: Asr, time: "15:45"},
		{now: "19:44", prayer: Isha, time: "19:45"},
		{now: "19:45", prayer: Fajr, time: "05:29", tomorrow: true},
		{now: "23:59", prayer: Fajr, time: "05:29", tomorrow: true},
	}
	for _, tt := range tests {
		got, err := e.NextPrayer(ctx, 807, tt.now)
		if err != nil {
			t.Fatalf("NextPrayer(%s): %v", tt.now, err)
		}
		if got.Prayer != tt.prayer || got.Time != tt.time || got.Tomorrow != tt.tomorrow {
			t.Fatalf("NextPrayer(%s) = %+v, want %s %s tomorrow=%v", tt.now, got, tt.prayer, tt.time, tt.tomorrow)
		}
	}
}

func TestNextPrayerFallsBackToTodaysFajr(t *testing.T) {
	t.Parallel()
	// 05-18 is the last day in the table, so tomorrow is missing.
	e, _ := newTestEngine(t, istAt(time.May, 18, 21, 0))
	got, err := e.NextPrayer(context.Background(), 807, "21:00")
	if err != nil {
		t.Fatalf("NextPrayer: %v", err)
	}
	if got.Prayer != Fajr || got.Time != "05:29" || !got.Tomorrow {
		t.Fatalf("got %+v", got)
	}
}

func TestFindLocationByName(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t, istAt(time.May, 17, 4, 0))
	tests := []struct {
		q      string
		id     int
		distr  string
		notFnd bool
	}{
		{q: "KOCHI", id: 807, distr: "Ernakulam"},
		{q: "malap", id: 508, distr: "Malappuram"},
		{q: "trivandrum", id: 1408, distr: "Trivandrum"},
		{q: "wayanad", id: 303, distr: "Wayanad"},
		{q: "aluva", id: 801, distr: "Ernakulam"},
		{q: "thalas", id: 211, distr: "Kannur"},
		{q: "nowhere", notFnd: true},
		{q: " ", notFnd: true},
	}
	for _, tt := range tests {
		got, err := e.FindLocationByName(tt.q)
		if tt.notFnd {
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("FindLocationByName(%q) err = %v, want ErrNotFound", tt.q, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("FindLocationByName(%q): %v", tt.q, err)
		}
		if got.ID != tt.id || got.District != tt.distr {
			t.Fatalf("FindLocationByName(%q) = %+v", tt.q, got)
		}
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw, field, want string
	}{
		{"12:05", "fajr", "00:05"},
		{"5:07", "fajr", "05:07"},
		{"12:40", "sunrise", "00:40"},
		{"11:58", "dhuhr", "11:58"},
		{"12:20", "dhuhr", "12:20"},
		{"1:02", "dhuhr", "13:02"},
		{"3:45", "asr", "15:45"},
		{"15:45", "asr", "15:45"},
		{"6:30", "maghrib", "18:30"},
		{"7:45", "isha", "19:45"},
	}
	for _, tt := range tests {
		got, err := Normalize(tt.raw, tt.field)
		if err != nil {
			t.Fatalf("Normalize(%q,%s): %v", tt.raw, tt.field, err)
		}
		if got != tt.want {
			t.Fatalf("Normalize(%q,%s) = %q, want %q", tt.raw, tt.field, got, tt.want)
		}
	}
	if _, err := Normalize("7.45", "isha"); err == nil {
		t.Fatal("expected error for malformed time")
	}
}

// yearFixture covers the ambiguous hours: dhuhr at 11 and 12, fajr at 12,
// and late isha.
const yearFixture = `{"data":[
{"date":"01-01","fajr":"5:22","sunrise":"6:41","dhuhr":"12:27","asr":"3:41","maghrib":"6:13","isha":"7:26"},
{"date":"03-21","fajr":"5:05","sunrise":"6:21","dhuhr":"12:25","asr":"3:46","maghrib":"6:29","isha":"7:37"},
{"date":"06-21","fajr":"4:31","sunrise":"5:59","dhuhr":"12:25","asr":"3:51","maghrib":"6:51","isha":"8:10"},
{"date":"09-22","fajr":"4:53","sunrise":"6:08","dhuhr":"12:11","asr":"3:21","maghrib":"6:14","isha":"7:24"},
{"date":"11-03","fajr":"4:50","sunrise":"6:05","dhuhr":"11:58","asr":"3:15","maghrib":"5:51","isha":"7:03"},
{"date":"12-31","fajr":"12:59","sunrise":"6:41","dhuhr":"1:05","asr":"3:40","maghrib":"6:12","isha":"11:50"}
]}`

func TestLoadedDaysAreOrdered(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "807.json"), []byte(yearFixture), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	src := NewFileSource(dir)
	ctx := context.Background()
	raw, err := src.LoadYearTable(ctx, 807)
	if err != nil {
		t.Fatalf("LoadYearTable: %v", err)
	}

	e := NewEngine(src, clock.New(clock.NewManual(istAt(time.May, 17, 4, 0))), logx.Nop())
	for _, r := range raw {
		d, err := e.ResolveForDate(ctx, 807, r.Date)
		if err != nil {
			t.Fatalf("%s: %v", r.Date, err)
		}
		for i := 1; i < len(All); i++ {
			if d.Time(All[i]) < d.Time(All[i-1]) {
				t.Fatalf("%s: %s %s before %s %s", d.Date, All[i], d.Time(All[i]), All[i-1], d.Time(All[i-1]))
			}
		}
	}
}

func TestOutOfOrderDayIsDataFormatError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		day  DailyPrayerTimes
	}{
		{"isha before maghrib", DailyPrayerTimes{Date: "05-17", Fajr: "5:30", Sunrise: "6:02", Dhuhr: "12:15", Asr: "3:45", Maghrib: "6:30", Isha: "6:10"}},
		{"asr before dhuhr", DailyPrayerTimes{Date: "05-17", Fajr: "5:30", Sunrise: "6:02", Dhuhr: "1:15", Asr: "1:05", Maghrib: "6:30", Isha: "7:45"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			src := &memSource{tables: map[int][]DailyPrayerTimes{807: {tt.day}}}
			e := NewEngine(src, clock.New(clock.NewManual(istAt(time.May, 17, 4, 0))), logx.Nop())
			var dfe *DataFormatError
			if _, err := e.ResolveForDate(context.Background(), 807, "05-17"); !errors.As(err, &dfe) || dfe.LocationID != 807 {
				t.Fatalf("err = %v, want DataFormatError", err)
			}
		})
	}
}

func TestFileSourceFormats(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	write := func(name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("index.json", `[{"id":8,"name":"Ernakulam","locations":[{"id":807,"name":"Kochi"}]}]`)
	write("807.json", `{"data":[{"date":"05-17","fajr":"5:30","sunrise":"6:02","dhuhr":"12:15","asr":"3:45","maghrib":"6:30","isha":"7:45"}]}`)
	write("808.json", `[{"date":"05-17","fajr":"5:31","sunrise":"6:03","dhuhr":"12:16","asr":"3:46","maghrib":"6:31","isha":"7:46"}]`)
	write("809.json", `{"prayer_times":[{"date":"05-17","fajr":"5:32","sunrise":"6:03","dhuhr":"12:16","asr":"3:46","maghrib":"6:31","isha":"7:46"}]}`)
	write("810.json", `{"rows":[]}`)
	write("811.json", `[{"date":"05-17","fajr":"nope","sunrise":"6:03","dhuhr":"12:16","asr":"3:46","maghrib":"6:31","isha":"7:46"}]`)

	src := NewFileSource(dir)
	ctx := context.Background()
	idx, err := src.LoadIndex(ctx)
	if err != nil || len(idx) != 1 || idx[0].Locations[0].ID != 807 {
		t.Fatalf("LoadIndex = %+v, %v", idx, err)
	}

	e := NewEngine(src, clock.New(clock.NewManual(istAt(time.May, 17, 4, 0))), logx.Nop())
	for id, fajr := range map[int]string{807: "05:30", 808: "05:31", 809: "05:32"} {
		d, err := e.ResolveForDate(ctx, id, "05-17")
		if err != nil {
			t.Fatalf("location %d: %v", id, err)
		}
		if d.Fajr != fajr {
			t.Fatalf("location %d fajr = %s, want %s", id, d.Fajr, fajr)
		}
	}

	var dfe *DataFormatError
	if _, err := e.ResolveForDate(ctx, 810, "05-17"); !errors.As(err, &dfe) {
		t.Fatalf("810 err = %v, want DataFormatError", err)
	}
	if _, err := e.ResolveForDate(ctx, 811, "05-17"); !errors.As(err, &dfe) || dfe.LocationID != 811 {
		t.Fatalf("811 err = %v, want DataFormatError", err)
	}
	if _, err := e.ResolveForDate(ctx, 812, "05-17"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("812 err = %v, want ErrNotFound", err)
	}
}
