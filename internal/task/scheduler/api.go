package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"postbot/internal/eventbus"
	logx "postbot/pkg/logx"
)

var (
	ErrInvalidTime = errors.New("invalid time")
	ErrNoName      = errors.New("schedule name is required")
	ErrNilJob      = errors.New("job is nil")
)

// ParseHHMM parses a 24-hour "HH:MM" wall-clock time.
func ParseHHMM(s string) (hour, minute int, err error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	hour, errH := strconv.Atoi(strings.TrimSpace(h))
	minute, errM := strconv.Atoi(strings.TrimSpace(m))
	if errH != nil || errM != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return hour, minute, nil
}

// DailySpec is the cron spec firing every day at hour:minute.
func DailySpec(hour, minute int) string {
	return fmt.Sprintf("%d %d * * *", minute, hour)
}

// AddDaily registers job to run every day at hour:minute in the service
// timezone. A schedule with the same name is replaced.
func (s *Service) AddDaily(name string, hour, minute int, timeout time.Duration, job Job) error {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return fmt.Errorf("%w: %02d:%02d", ErrInvalidTime, hour, minute)
	}
	return s.AddCron(name, DailySpec(hour, minute), timeout, job)
}

// AddCron registers job under an arbitrary cron spec, replacing any schedule
// with the same name.
func (s *Service) AddCron(name, spec string, timeout time.Duration, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrNoName
	}
	if job == nil {
		return ErrNilJob
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("parse %q: %w", spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old := s.defs[name]; old != nil && s.c != nil && old.entryID != 0 {
		s.c.Remove(old.entryID)
	}
	d := &scheduleDef{name: name, spec: spec, timeout: timeout, job: job}
	s.defs[name] = d
	if s.c != nil {
		if err := s.addCronLocked(d); err != nil {
			delete(s.defs, name)
			return err
		}
	}
	s.log.Debug("schedule registered", logx.String("name", name), logx.String("spec", spec))
	return nil
}

// Remove drops the schedule and reports whether it existed. A run already
// in progress is not interrupted.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.defs[name]
	if !ok {
		return false
	}
	if s.c != nil && d.entryID != 0 {
		s.c.Remove(d.entryID)
	}
	delete(s.defs, name)
	return true
}

func (s *Service) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.defs[name]
	return ok
}

func (s *Service) addCronLocked(d *scheduleDef) error {
	name := d.name
	id, err := s.c.AddFunc(d.spec, func() { s.fire(name) })
	if err != nil {
		return err
	}
	d.entryID = id
	return nil
}

// fire looks the definition up again so a replaced job never runs stale.
func (s *Service) fire(name string) {
	s.mu.Lock()
	d := s.defs[name]
	base := s.base
	defTimeout := s.cfg.JobTimeout
	s.mu.Unlock()
	if d == nil || base == nil {
		return
	}
	timeout := d.timeout
	if timeout <= 0 {
		timeout = defTimeout
	}
	s.Run(base, name, d.job, timeout)
}

// Run executes job once under the run bookkeeping used by triggered fires.
func (s *Service) Run(parent context.Context, name string, job Job, timeout time.Duration) error {
	ctx := parent
	cancel := func() {}
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, timeout)
	}
	defer cancel()

	start := time.Now()
	err := job(ctx)
	took := time.Since(start)

	s.record(name, start, took, err)
	if err != nil {
		s.log.Warn("schedule run failed", logx.String("name", name), logx.Duration("took", took), logx.Err(err))
	} else {
		s.log.Info("schedule run done", logx.String("name", name), logx.Duration("took", took))
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{
			Type: eventbus.TopicScheduleRun,
			Data: eventbus.ScheduleRun{ID: name, Duration: took, Err: err},
		})
	}
	return err
}

func (s *Service) record(name string, start time.Time, took time.Duration, err error) {
	item := HistoryItem{Name: name, StartedAt: start, Duration: took}
	if err != nil {
		item.Err = err.Error()
	}

	s.mu.Lock()
	if d := s.defs[name]; d != nil {
		d.runs++
		d.lastErr = item.Err
	}
	limit := s.cfg.HistorySize
	s.mu.Unlock()
	if limit <= 0 {
		limit = defaultHistorySize
	}

	s.hmu.Lock()
	s.history = append(s.history, item)
	if over := len(s.history) - limit; over > 0 {
		s.history = append(s.history[:0:0], s.history[over:]...)
	}
	s.hmu.Unlock()
}
