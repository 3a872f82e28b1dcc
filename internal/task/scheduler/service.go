package scheduler

import (
	"context"
	"errors"
	"time"

	"azanbot/internal/clock"
	"azanbot/internal/eventbus"
	"azanbot/internal/task/engine"
	"azanbot/pkg/logx"

	"github.com/robfig/cron/v3"
)

const enqueueWarnThrottle = 5 * time.Second

func New(cfg Config, eng *engine.Service, log logx.Logger, bus eventbus.Bus) *Service {
	return &Service{
		cfg:    cfg,
		log:    log,
		bus:    bus,
		engine: eng,
		// SecondOptional accepts both 5 and 6 field specs.
		parser:      cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		once:        map[string]*onceDef{},
		lastEnqWarn: map[string]time.Time{},
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

func (s *Service) location() *time.Location {
	if s.cfg.Location != nil {
		return s.cfg.Location
	}
	return clock.IST
}

// Apply swaps the config. A location change rebuilds cron.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.location()
	s.cfg = cfg
	if s.c != nil && prev.String() != s.location().String() {
		<-s.c.Stop().Done()
		s.startCronLocked()
	}
}

// Start begins cron triggering and re-arms pending one-shots.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil || !s.cfg.Enabled {
		return
	}
	s.startCronLocked()
	s.rearmOnce()
	s.log.Info("scheduler.started", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.defs)))
}

func (s *Service) startCronLocked() {
	s.loc = s.location()
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	for i := range s.defs {
		if err := s.addCronLocked(&s.defs[i]); err != nil {
			s.log.Error("scheduler.register_failed", logx.String("name", s.defs[i].name), logx.Err(err))
		}
	}
	s.c.Start()
}

// Stop halts triggering. Pending one-shot definitions are kept.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}

	s.tmu.Lock()
	s.running = false
	for _, d := range s.once {
		if d.timer != nil {
			d.timer.Stop()
			d.timer = nil
		}
	}
	s.tmu.Unlock()
	s.log.Info("scheduler.stopped")
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{Enabled: s.cfg.Enabled, Timezone: s.location().String()}
	for _, d := range s.defs {
		it := ScheduleInfo{Name: d.name, Spec: d.spec, Timeout: d.timeout}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			it.Next, it.Prev = e.Next, e.Prev
		}
		snap.Schedules = append(snap.Schedules, it)
	}
	eng := s.engine
	s.mu.Unlock()

	s.tmu.Lock()
	snap.PendingOnce = len(s.once)
	s.tmu.Unlock()
	if eng != nil {
		snap.Engine = eng.Snapshot()
	}
	return snap
}

func (s *Service) submit(t engine.Task) {
	if s.engine == nil {
		return
	}
	if err := s.engine.Enqueue(t); err != nil {
		s.reportEnqueueError(t.Name, err)
	}
}

func (s *Service) reportEnqueueError(name string, err error) {
	if errors.Is(err, engine.ErrOverlapSkip) {
		s.log.Debug("scheduler.trigger_skipped", logx.String("schedule", name))
		return
	}
	now := time.Now()
	s.enqMu.Lock()
	last := s.lastEnqWarn[name]
	if !last.IsZero() && now.Sub(last) < enqueueWarnThrottle {
		s.enqMu.Unlock()
		return
	}
	s.lastEnqWarn[name] = now
	s.enqMu.Unlock()
	s.log.Warn("scheduler.enqueue_failed", logx.String("schedule", name), logx.Err(err))
}
