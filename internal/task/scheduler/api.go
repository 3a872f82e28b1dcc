package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"azanbot/internal/clock"
	"azanbot/internal/task/engine"
	"azanbot/pkg/logx"

	"github.com/robfig/cron/v3"
)

// AddCron registers a recurring job that is skipped while a previous run is
// queued or running.
func (s *Service) AddCron(name, spec string, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	return s.AddCronOpt(name, spec, timeout, TaskOptions{Overlap: OverlapSkipIfRunning}, job)
}

// AddCronOpt upserts by name, so re-registering on config reload never
// duplicates a job.
func (s *Service) AddCronOpt(name, spec string, timeout time.Duration, opt TaskOptions, job func(ctx context.Context) error) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("name required")
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return "", fmt.Errorf("schedule %s: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeScheduleLocked(name)
	s.defs = append(s.defs, scheduleDef{
		name:    name,
		spec:    spec,
		timeout: timeout,
		job:     job,
		opt:     opt,
		state:   &engine.RunState{},
	})
	if s.c == nil {
		return name, nil
	}
	d := &s.defs[len(s.defs)-1]
	if err := s.addCronLocked(d); err != nil {
		return name, err
	}
	s.log.Debug("scheduler.registered",
		logx.String("name", name),
		logx.String("spec", spec),
		logx.Time("next", s.c.Entry(d.entryID).Next),
	)
	return name, nil
}

// AddDaily runs job every day at HH:MM in the scheduler location.
func (s *Service) AddDaily(name, atHHMM string, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	h, m, err := clock.ParseHHMM(atHHMM)
	if err != nil {
		return "", err
	}
	return s.AddCron(name, fmt.Sprintf("0 %d %d * * *", m, h), timeout, job)
}

// AddOnce runs job once at at. An existing one-shot with the same name is
// replaced.
func (s *Service) AddOnce(name string, at time.Time, timeout time.Duration, opt TaskOptions, job func(ctx context.Context) error) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("name required")
	}
	if at.IsZero() {
		return "", errors.New("at required")
	}
	if job == nil {
		return "", errors.New("job required")
	}

	s.tmu.Lock()
	defer s.tmu.Unlock()
	if old := s.once[name]; old != nil && old.timer != nil {
		old.timer.Stop()
	}
	s.onceSeq++
	d := &onceDef{at: at, timeout: timeout, opt: opt, job: job, ver: s.onceSeq}
	s.once[name] = d
	if s.running {
		s.armLocked(name, d)
	}
	return name, nil
}

// armLocked starts the timer for d. Call with s.tmu held.
func (s *Service) armLocked(name string, d *onceDef) {
	ver := d.ver
	d.timer = time.AfterFunc(max(time.Until(d.at), 0), func() {
		s.tmu.Lock()
		cur := s.once[name]
		if cur == nil || cur.ver != ver {
			s.tmu.Unlock()
			return
		}
		delete(s.once, name)
		s.tmu.Unlock()

		s.submit(engine.Task{Name: name, Timeout: cur.timeout, Run: cur.job, Opt: cur.opt, State: &engine.RunState{}})
	})
}

// rearmOnce arms every pending one-shot after Start.
func (s *Service) rearmOnce() {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	s.running = true
	for name, d := range s.once {
		if d.timer == nil {
			s.armLocked(name, d)
		}
	}
}

// Remove unschedules the cron job and the one-shot named name.
func (s *Service) Remove(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	s.mu.Lock()
	removed := s.removeScheduleLocked(name)
	s.mu.Unlock()

	s.tmu.Lock()
	if d := s.once[name]; d != nil {
		if d.timer != nil {
			d.timer.Stop()
		}
		delete(s.once, name)
		removed = true
	}
	s.tmu.Unlock()
	return removed
}

// RemovePrefix cancels every pending one-shot whose name starts with prefix
// and returns how many were cancelled.
func (s *Service) RemovePrefix(prefix string) int {
	if prefix == "" {
		return 0
	}
	s.tmu.Lock()
	defer s.tmu.Unlock()
	n := 0
	for name, d := range s.once {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if d.timer != nil {
			d.timer.Stop()
		}
		delete(s.once, name)
		n++
	}
	if n > 0 {
		s.log.Debug("scheduler.once_cancelled", logx.String("prefix", prefix), logx.Int("count", n))
	}
	return n
}

// Pending counts one-shots whose name starts with prefix.
func (s *Service) Pending(prefix string) int {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	n := 0
	for name := range s.once {
		if strings.HasPrefix(name, prefix) {
			n++
		}
	}
	return n
}

// removeScheduleLocked drops every def named name. Call with s.mu held.
func (s *Service) removeScheduleLocked(name string) bool {
	removed := false
	n := 0
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

func (s *Service) addCronLocked(d *scheduleDef) error {
	name, timeout, job, opt, state := d.name, d.timeout, d.job, d.opt, d.state
	eid, err := s.c.AddJob(d.spec, cron.FuncJob(func() {
		s.submit(engine.Task{Name: name, Timeout: timeout, Run: job, Opt: opt, State: state})
	}))
	if err != nil {
		return err
	}
	d.entryID = eid
	return nil
}
