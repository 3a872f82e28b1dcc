package prayer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"azanbot/internal/clock"
	logx "azanbot/pkg/logx"
)

// Engine resolves prayer times per location and day.
//
// Notes:
//   - tables are loaded lazily and cached for the process lifetime
//   - failed loads are not cached; the next call retries
//   - a missing location or day is ErrNotFound, never fatal
type Engine struct {
	src Source
	clk *clock.Service
	log logx.Logger

	mu     sync.Mutex
	tables map[int]map[string]DailyPrayerTimes

	imu   sync.RWMutex
	index []District
}

func NewEngine(src Source, clk *clock.Service, log logx.Logger) *Engine {
	if clk == nil {
		clk = clock.New(nil)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		src:    src,
		clk:    clk,
		log:    log,
		tables: make(map[int]map[string]DailyPrayerTimes),
	}
}

// Init loads the lookup index and warms the curated locations.
// A bad curated table is logged and skipped; only a failing index is returned.
func (e *Engine) Init(ctx context.Context) error {
	idx, err := e.src.LoadIndex(ctx)
	if err != nil {
		return fmt.Errorf("load index: %w", err)
	}
	e.imu.Lock()
	e.index = idx
	e.imu.Unlock()
	e.log.Info("prayer.index_loaded", logx.Int("districts", len(idx)))

	loaded := 0
	for _, loc := range Curated {
		if _, err := e.table(ctx, loc.ID); err != nil {
			e.log.Warn("prayer.preload_failed", logx.Int("location", loc.ID), logx.String("name", loc.Name), logx.Err(err))
			continue
		}
		loaded++
	}
	e.log.Info("prayer.preloaded", logx.Int("locations", loaded), logx.Int("curated", len(Curated)))
	return nil
}

func (e *Engine) table(ctx context.Context, locationID int) (map[string]DailyPrayerTimes, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.tables[locationID]; ok {
		return t, nil
	}
	days, err := e.src.LoadYearTable(ctx, locationID)
	if err != nil {
		return nil, err
	}
	t := make(map[string]DailyPrayerTimes, len(days))
	for _, d := range days {
		nd, err := normalizeDay(d)
		if err != nil {
			return nil, &DataFormatError{LocationID: locationID, Err: err}
		}
		t[nd.Date] = nd
	}
	e.tables[locationID] = t
	e.log.Debug("prayer.table_loaded", logx.Int("location", locationID), logx.Int("days", len(t)))
	return t, nil
}

// ResolveForDate returns the times for locationID on monthDay ("MM-DD").
func (e *Engine) ResolveForDate(ctx context.Context, locationID int, monthDay string) (DailyPrayerTimes, error) {
	t, err := e.table(ctx, locationID)
	if err != nil {
		return DailyPrayerTimes{}, err
	}
	d, ok := t[monthDay]
	if !ok {
		return DailyPrayerTimes{}, fmt.Errorf("location %d day %s: %w", locationID, monthDay, ErrNotFound)
	}
	return d, nil
}

// ResolveToday resolves the current IST day.
func (e *Engine) ResolveToday(ctx context.Context, locationID int) (DailyPrayerTimes, error) {
	return e.ResolveForDate(ctx, locationID, e.clk.Today())
}

// NextPrayer returns the first prayer today strictly after now ("HH:MM").
// After isha it returns fajr with Tomorrow set, using tomorrow's table entry
// when present.
func (e *Engine) NextPrayer(ctx context.Context, locationID int, now string) (Next, error) {
	today := e.clk.Now()
	d, err := e.ResolveForDate(ctx, locationID, clock.MonthDay(today))
	if err != nil {
		return Next{}, err
	}
	for _, p := range All {
		if d.Time(p) > now {
			return Next{Prayer: p, Time: d.Time(p)}, nil
		}
	}
	fajr := d.Fajr
	tomorrow, err := e.ResolveForDate(ctx, locationID, clock.MonthDay(today.AddDate(0, 0, 1)))
	if err == nil {
		fajr = tomorrow.Fajr
	} else if !errors.Is(err, ErrNotFound) {
		return Next{}, err
	}
	return Next{Prayer: Fajr, Time: fajr, Tomorrow: true}, nil
}

// FindLocationByName matches query (case-insensitive substring) against the
// curated list by name or district, then against every location name in the
// index. The first hit wins.
func (e *Engine) FindLocationByName(query string) (Location, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return Location{}, fmt.Errorf("empty query: %w", ErrNotFound)
	}
	for _, loc := range Curated {
		if strings.Contains(strings.ToLower(loc.Name), q) || strings.Contains(strings.ToLower(loc.District), q) {
			return loc, nil
		}
	}

	e.imu.RLock()
	defer e.imu.RUnlock()
	for _, d := range e.index {
		for _, loc := range d.Locations {
			if strings.Contains(strings.ToLower(loc.Name), q) {
				return Location{ID: loc.ID, Name: loc.Name, District: d.Name}, nil
			}
		}
	}
	return Location{}, fmt.Errorf("location %q: %w", query, ErrNotFound)
}

// Locations returns the curated catalog.
func (e *Engine) Locations() []Location {
	out := make([]Location, len(Curated))
	copy(out, Curated)
	return out
}

// Lookup returns a location by id from the curated list or the index.
func (e *Engine) Lookup(id int) (Location, bool) {
	for _, loc := range Curated {
		if loc.ID == id {
			return loc, true
		}
	}
	e.imu.RLock()
	defer e.imu.RUnlock()
	for _, d := range e.index {
		for _, loc := range d.Locations {
			if loc.ID == id {
				return Location{ID: loc.ID, Name: loc.Name, District: d.Name}, true
			}
		}
	}
	return Location{}, false
}

// Now exposes the engine clock, used by callers that format replies.
func (e *Engine) Now() time.Time { return e.clk.Now() }
