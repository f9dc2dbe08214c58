// Package wizard runs the per-user post assembly conversation:
// thumbnail, link, title, then immediate or daily delivery.
//
// The machine is transport-agnostic. Callers feed it Inputs and render the
// Replies it returns; progress lives in a storage.DraftStore so a restart
// with a persistent store resumes where the user left off.
package wizard

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"postbot/internal/broadcast"
	"postbot/internal/post"
	"postbot/internal/storage"
	"postbot/internal/task/scheduler"
	logx "postbot/pkg/logx"
)

const MaxTitleRunes = 100

type Step string

const (
	StepIdle                   Step = ""
	StepAwaitingThumbnail      Step = "awaiting_thumbnail"
	StepAwaitingLink           Step = "awaiting_link"
	StepAwaitingTitle          Step = "awaiting_title"
	StepAwaitingDeliveryChoice Step = "awaiting_delivery"
	StepAwaitingScheduleTime   Step = "awaiting_schedule_time"
)

func (s Step) Active() bool {
	switch s {
	case StepAwaitingThumbnail, StepAwaitingLink, StepAwaitingTitle, StepAwaitingDeliveryChoice, StepAwaitingScheduleTime:
		return true
	default:
		return false
	}
}

type Choice string

const (
	ChoiceNow      Choice = "now"
	ChoiceSchedule Choice = "schedule"
)

// Input is one user action. Media is set only for a supported attachment;
// HasAttachment marks any attachment so unsupported files can be told apart
// from plain text.
type Input struct {
	Text          string
	Media         *post.Media
	HasAttachment bool
	Choice        Choice
}

type Kind string

const (
	KindNeedChannels    Kind = "need_channels"
	KindAskThumbnail    Kind = "ask_thumbnail"
	KindAskLink         Kind = "ask_link"
	KindAskTitle        Kind = "ask_title"
	KindAskDelivery     Kind = "ask_delivery"
	KindAskTime         Kind = "ask_time"
	KindPosted          Kind = "posted"
	KindScheduled       Kind = "scheduled"
	KindCanceled        Kind = "canceled"
	KindNothingToCancel Kind = "nothing_to_cancel"
	KindIdle            Kind = "idle"
)

// Problem explains why the current step is being asked again.
type Problem string

const (
	ProblemNone         Problem = ""
	ProblemInvalidMedia Problem = "invalid_media"
	ProblemInvalidLink  Problem = "invalid_link"
	ProblemTitleEmpty   Problem = "title_empty"
	ProblemTitleTooLong Problem = "title_too_long"
	ProblemInvalidTime  Problem = "invalid_time"
	ProblemInvalidInput Problem = "invalid_choice"
	ProblemInternal     Problem = "internal"
)

// Reply tells the caller what to show. Step is the state after the input.
type Reply struct {
	Kind    Kind
	Step    Step
	Problem Problem
	Draft   post.Draft
	Outcome post.Outcome
	Entry   post.ScheduleEntry
	// Channels is the owner's channel count when scheduling succeeded.
	Channels int
}

type ChannelSource interface {
	Channels(ctx context.Context, user int64) ([]post.ChannelID, error)
}

type Broadcaster interface {
	BroadcastFor(ctx context.Context, user int64, draft *post.Draft, trigger broadcast.Trigger) post.Outcome
}

type Scheduler interface {
	Schedule(ctx context.Context, user int64, draft *post.Draft, hour, minute int) (post.ScheduleEntry, error)
}

// TransitionFunc observes every step change.
type TransitionFunc func(from, to Step)

type Machine struct {
	sessions storage.DraftStore
	channels ChannelSource
	engine   Broadcaster
	sched    Scheduler
	locks    *post.UserLocks

	log          logx.Logger
	onTransition TransitionFunc
	now          func() time.Time
}

type Option func(*Machine)

func WithLogger(log logx.Logger) Option        { return func(m *Machine) { m.log = log } }
func WithLocks(locks *post.UserLocks) Option   { return func(m *Machine) { m.locks = locks } }
func WithTransitions(fn TransitionFunc) Option { return func(m *Machine) { m.onTransition = fn } }
func WithClock(now func() time.Time) Option    { return func(m *Machine) { m.now = now } }

func New(sessions storage.DraftStore, channels ChannelSource, engine Broadcaster, sched Scheduler, opts ...Option) *Machine {
	m := &Machine{
		sessions: sessions,
		channels: channels,
		engine:   engine,
		sched:    sched,
		log:      logx.Nop(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	if m.locks == nil {
		m.locks = post.NewUserLocks()
	}
	m.log = m.log.With(logx.String("comp", "wizard"))
	return m
}

// Active reports the user's current step.
func (m *Machine) Active(ctx context.Context, user int64) (Step, error) {
	s, ok, err := m.sessions.Session(ctx, user)
	if err != nil || !ok {
		return StepIdle, err
	}
	return Step(s.Step), nil
}

// Start begins a new post, discarding any draft in progress. A user without
// channels is told to add one and no session is created.
func (m *Machine) Start(ctx context.Context, user int64) (Reply, error) {
	unlock := m.locks.Lock(user)
	defer unlock()

	chans, err := m.channels.Channels(ctx, user)
	if err != nil {
		return Reply{}, err
	}
	if len(chans) == 0 {
		return Reply{Kind: KindNeedChannels}, nil
	}
	prev, _ := m.Active(ctx, user)
	if err := m.save(ctx, user, StepAwaitingThumbnail, post.Draft{}); err != nil {
		return Reply{}, err
	}
	m.transition(prev, StepAwaitingThumbnail)
	return Reply{Kind: KindAskThumbnail, Step: StepAwaitingThumbnail}, nil
}

// Cancel discards the user's draft from any step.
func (m *Machine) Cancel(ctx context.Context, user int64) (Reply, error) {
	unlock := m.locks.Lock(user)
	defer unlock()

	prev, err := m.Active(ctx, user)
	if err != nil {
		return Reply{}, err
	}
	if !prev.Active() {
		return Reply{Kind: KindNothingToCancel}, nil
	}
	if err := m.sessions.DeleteSession(ctx, user); err != nil {
		return Reply{}, err
	}
	m.transition(prev, StepIdle)
	return Reply{Kind: KindCanceled}, nil
}

// Handle advances the user's session by one input. Invalid input re-asks
// the same step with a Problem set; the session is never lost to it.
func (m *Machine) Handle(ctx context.Context, user int64, in Input) (Reply, error) {
	unlock := m.locks.Lock(user)
	defer unlock()

	sess, ok, err := m.sessions.Session(ctx, user)
	if err != nil {
		return Reply{}, err
	}
	step := Step(sess.Step)
	if !ok || !step.Active() {
		return Reply{Kind: KindIdle}, nil
	}
	d := sess.Draft

	switch step {
	case StepAwaitingThumbnail:
		if !in.Media.Valid() {
			return again(step, d, ProblemInvalidMedia), nil
		}
		media := *in.Media
		d.Thumbnail = &media
		return m.advance(ctx, user, step, StepAwaitingLink, d, KindAskLink)

	case StepAwaitingLink:
		link := strings.TrimSpace(in.Text)
		if in.HasAttachment || !validLink(link) {
			return again(step, d, ProblemInvalidLink), nil
		}
		d.Link = link
		return m.advance(ctx, user, step, StepAwaitingTitle, d, KindAskTitle)

	case StepAwaitingTitle:
		title := strings.TrimSpace(in.Text)
		switch {
		case in.HasAttachment || title == "":
			return again(step, d, ProblemTitleEmpty), nil
		case utf8.RuneCountInString(title) > MaxTitleRunes:
			return again(step, d, ProblemTitleTooLong), nil
		}
		d.Title = title
		return m.advance(ctx, user, step, StepAwaitingDeliveryChoice, d, KindAskDelivery)

	case StepAwaitingDeliveryChoice:
		switch in.Choice {
		case ChoiceNow:
			return m.postNow(ctx, user, d)
		case ChoiceSchedule:
			return m.advance(ctx, user, step, StepAwaitingScheduleTime, d, KindAskTime)
		default:
			return again(step, d, ProblemInvalidInput), nil
		}

	case StepAwaitingScheduleTime:
		hour, minute, err := scheduler.ParseHHMM(in.Text)
		if err != nil || in.HasAttachment {
			return again(step, d, ProblemInvalidTime), nil
		}
		return m.schedule(ctx, user, d, hour, minute)
	}
	return Reply{Kind: KindIdle}, nil
}

// postNow broadcasts synchronously and always ends the session, even
// when no channel received the post.
func (m *Machine) postNow(ctx context.Context, user int64, d post.Draft) (Reply, error) {
	if !d.Complete() {
		m.log.Warn("delivery with incomplete draft", logx.Int64("user", user), logx.String("missing", d.Missing()))
	}
	out := m.engine.BroadcastFor(ctx, user, &d, broadcast.TriggerNow)
	if err := m.sessions.DeleteSession(ctx, user); err != nil {
		m.log.Warn("drop session failed", logx.Int64("user", user), logx.Err(err))
	}
	m.transition(StepAwaitingDeliveryChoice, StepIdle)
	return Reply{Kind: KindPosted, Step: StepIdle, Draft: d, Outcome: out}, nil
}

func (m *Machine) schedule(ctx context.Context, user int64, d post.Draft, hour, minute int) (Reply, error) {
	e, err := m.sched.Schedule(ctx, user, &d, hour, minute)
	if err != nil {
		m.log.Warn("schedule failed", logx.Int64("user", user), logx.Err(err))
		p := ProblemInternal
		if errors.Is(err, scheduler.ErrInvalidTime) {
			p = ProblemInvalidTime
		}
		return again(StepAwaitingScheduleTime, d, p), nil
	}
	if err := m.sessions.DeleteSession(ctx, user); err != nil {
		m.log.Warn("drop session failed", logx.Int64("user", user), logx.Err(err))
	}
	m.transition(StepAwaitingScheduleTime, StepIdle)

	r := Reply{Kind: KindScheduled, Step: StepIdle, Draft: d, Entry: e}
	if chans, err := m.channels.Channels(ctx, user); err == nil {
		r.Channels = len(chans)
	}
	return r, nil
}

func (m *Machine) advance(ctx context.Context, user int64, from, to Step, d post.Draft, kind Kind) (Reply, error) {
	if err := m.save(ctx, user, to, d); err != nil {
		m.log.Warn("save session failed", logx.Int64("user", user), logx.String("step", string(from)), logx.Err(err))
		return again(from, d, ProblemInternal), nil
	}
	m.transition(from, to)
	return Reply{Kind: kind, Step: to, Draft: d}, nil
}

func (m *Machine) save(ctx context.Context, user int64, step Step, d post.Draft) error {
	return m.sessions.PutSession(ctx, user, storage.Session{Step: string(step), Draft: d, UpdatedAt: m.now().UTC()})
}

func (m *Machine) transition(from, to Step) {
	if m.onTransition != nil && from != to {
		m.onTransition(from, to)
	}
}

func again(step Step, d post.Draft, p Problem) Reply {
	return Reply{Kind: askKind(step), Step: step, Problem: p, Draft: d}
}

func askKind(s Step) Kind {
	switch s {
	case StepAwaitingThumbnail:
		return KindAskThumbnail
	case StepAwaitingLink:
		return KindAskLink
	case StepAwaitingTitle:
		return KindAskTitle
	case StepAwaitingDeliveryChoice:
		return KindAskDelivery
	case StepAwaitingScheduleTime:
		return KindAskTime
	default:
		return KindIdle
	}
}

func validLink(s string) bool {
	if strings.ContainsAny(s, " \t\n") {
		return false
	}
	for _, p := range []string{"http://", "https://"} {
		if strings.HasPrefix(s, p) && len(s) > len(p) {
			return true
		}
	}
	return false
}
