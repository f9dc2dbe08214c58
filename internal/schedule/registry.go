// Package schedule keeps each user's daily repeating posts and binds them to
// the trigger service. Every entry carries its own copy of the draft; the
// channel list is read when the entry fires.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"postbot/internal/broadcast"
	"postbot/internal/eventbus"
	"postbot/internal/post"
	"postbot/internal/storage"
	"postbot/internal/task/scheduler"
	logx "postbot/pkg/logx"
)

var (
	ErrNotFound   = errors.New("schedule not found")
	ErrIncomplete = errors.New("draft is incomplete")
)

// Trigger is the subset of the trigger service the registry drives.
type Trigger interface {
	AddDaily(name string, hour, minute int, timeout time.Duration, job scheduler.Job) error
	Remove(name string) bool
	Location() *time.Location
}

type Broadcaster interface {
	BroadcastFor(ctx context.Context, user int64, draft *post.Draft, trigger broadcast.Trigger) post.Outcome
}

// FiredFunc receives the outcome of every scheduled run.
type FiredFunc func(ctx context.Context, e post.ScheduleEntry, out post.Outcome)

type Registry struct {
	store   storage.ScheduleStore
	trigger Trigger
	engine  Broadcaster
	locks   *post.UserLocks

	log     logx.Logger
	bus     eventbus.Bus
	onFired FiredFunc
	timeout time.Duration
	now     func() time.Time
}

type Option func(*Registry)

func WithLogger(log logx.Logger) Option      { return func(r *Registry) { r.log = log } }
func WithBus(bus eventbus.Bus) Option        { return func(r *Registry) { r.bus = bus } }
func WithOnFired(fn FiredFunc) Option        { return func(r *Registry) { r.onFired = fn } }
func WithJobTimeout(d time.Duration) Option  { return func(r *Registry) { r.timeout = d } }
func WithLocks(locks *post.UserLocks) Option { return func(r *Registry) { r.locks = locks } }

func New(store storage.ScheduleStore, trigger Trigger, engine Broadcaster, opts ...Option) *Registry {
	r := &Registry{
		store:   store,
		trigger: trigger,
		engine:  engine,
		log:     logx.Nop(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	if r.locks == nil {
		r.locks = post.NewUserLocks()
	}
	r.log = r.log.With(logx.String("comp", "schedule"))
	return r
}

// SetOnFired replaces the fire notifier; the bot registers itself after
// the registry is built.
func (r *Registry) SetOnFired(fn FiredFunc) { r.onFired = fn }

func newID(user int64) string {
	return fmt.Sprintf("post_%d_%s", user, strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

// Schedule stores a copy of draft and arms a daily trigger at hour:minute.
// The entry is persisted before it is armed and rolled back if arming fails.
func (r *Registry) Schedule(ctx context.Context, user int64, draft *post.Draft, hour, minute int) (post.ScheduleEntry, error) {
	if !draft.Complete() {
		return post.ScheduleEntry{}, fmt.Errorf("%w: missing %s", ErrIncomplete, draft.Missing())
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return post.ScheduleEntry{}, fmt.Errorf("%w: %02d:%02d", scheduler.ErrInvalidTime, hour, minute)
	}
	e := post.ScheduleEntry{
		ID:        newID(user),
		Owner:     user,
		Hour:      hour,
		Minute:    minute,
		Timezone:  r.zone(),
		Draft:     *draft.Clone(),
		CreatedAt: r.now().UTC(),
	}
	if err := r.store.PutSchedule(ctx, e); err != nil {
		return post.ScheduleEntry{}, fmt.Errorf("save schedule: %w", err)
	}
	if err := r.arm(e); err != nil {
		if _, derr := r.store.DeleteSchedule(context.WithoutCancel(ctx), e.ID); derr != nil {
			r.log.Warn("rollback schedule failed", logx.String("id", e.ID), logx.Err(derr))
		}
		return post.ScheduleEntry{}, fmt.Errorf("arm schedule: %w", err)
	}
	r.log.Info("schedule added",
		logx.String("id", e.ID),
		logx.Int64("user", user),
		logx.String("at", e.Clock()),
		logx.String("tz", e.Timezone),
	)
	r.changed(ctx, user)
	return e, nil
}

// Unschedule cancels one of user's entries. Entries of other users are
// reported as not found.
func (r *Registry) Unschedule(ctx context.Context, user int64, id string) error {
	id = strings.TrimSpace(id)
	entries, err := r.store.ListSchedules(ctx, user)
	if err != nil {
		return fmt.Errorf("list schedules: %w", err)
	}
	owned := false
	for _, e := range entries {
		if e.ID == id {
			owned = true
			break
		}
	}
	if !owned {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	r.trigger.Remove(id)
	if _, err := r.store.DeleteSchedule(ctx, id); err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	r.log.Info("schedule removed", logx.String("id", id), logx.Int64("user", user))
	r.changed(ctx, user)
	return nil
}

// List returns user's entries oldest first. Timezone reports the zone the
// trigger runs in now, which may differ from the one at creation.
func (r *Registry) List(ctx context.Context, user int64) ([]post.ScheduleEntry, error) {
	entries, err := r.store.ListSchedules(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	tz := r.zone()
	for i := range entries {
		entries[i].Timezone = tz
	}
	return entries, nil
}

func (r *Registry) zone() string { return r.trigger.Location().String() }

// Restore re-arms every stored entry. Entries that fail to arm are logged
// and skipped; the count of armed entries is returned.
func (r *Registry) Restore(ctx context.Context) (int, error) {
	entries, err := r.store.ListSchedules(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("list schedules: %w", err)
	}
	n := 0
	for _, e := range entries {
		if err := r.arm(e); err != nil {
			r.log.Warn("restore schedule failed", logx.String("id", e.ID), logx.Err(err))
			continue
		}
		n++
	}
	if n > 0 {
		r.log.Info("schedules restored", logx.Int("count", n))
	}
	return n, nil
}

func (r *Registry) arm(e post.ScheduleEntry) error {
	return r.trigger.AddDaily(e.ID, e.Hour, e.Minute, r.timeout, func(ctx context.Context) error {
		return r.Fire(ctx, e)
	})
}

// Fire runs one scheduled broadcast of e under the owner's lock.
func (r *Registry) Fire(ctx context.Context, e post.ScheduleEntry) error {
	unlock := r.locks.Lock(e.Owner)
	draft := e.Draft
	out := r.engine.BroadcastFor(ctx, e.Owner, &draft, broadcast.TriggerSchedule)
	unlock()

	if r.onFired != nil {
		e.Timezone = r.zone()
		r.onFired(ctx, e, out)
	}
	if out.Succeeded == 0 && len(out.Failures) > 0 {
		return fmt.Errorf("scheduled post %s: %d failed, first: %s", e.ID, len(out.Failures), out.Failures[0].Reason)
	}
	return nil
}

func (r *Registry) changed(ctx context.Context, user int64) {
	if r.bus == nil {
		return
	}
	entries, err := r.store.ListSchedules(ctx, user)
	if err != nil {
		return
	}
	r.bus.Publish(eventbus.Event{
		Type: eventbus.TopicScheduleChanged,
		Data: eventbus.Counted{Owner: user, Total: len(entries)},
	})
}
