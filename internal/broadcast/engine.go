// Package broadcast delivers one post to a list of channels, one channel at
// a time, and reports every per-channel failure instead of stopping.
package broadcast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"postbot/internal/classify"
	"postbot/internal/eventbus"
	"postbot/internal/post"
	"postbot/internal/storage"
	kit "postbot/internal/transport"
	logx "postbot/pkg/logx"
	"postbot/pkg/tgui"
)

const DefaultDelay = 500 * time.Millisecond

// Precondition failure reasons.
const (
	ReasonNoDraft    = "no post data"
	ReasonNoChannels = "no channels configured"
)

type Config struct {
	// Delay follows every successful send. Zero disables it.
	Delay        time.Duration
	FooterHandle string
}

func (c Config) withDefaults() Config {
	if c.Delay < 0 {
		c.Delay = 0
	}
	if c.FooterHandle == "" {
		c.FooterHandle = DefaultFooterHandle
	}
	return c
}

type Verifier interface {
	VerifyAdmin(ctx context.Context, ch post.ChannelID) post.Verification
}

type Sender interface {
	SendMedia(ctx context.Context, chat post.ChannelID, media post.Media, caption string, opt *kit.SendOptions) error
}

type ChannelSource interface {
	Channels(ctx context.Context, user int64) ([]post.ChannelID, error)
}

// Trigger says what started a broadcast.
type Trigger string

const (
	TriggerNow      Trigger = "now"
	TriggerSchedule Trigger = "schedule"
)

type Engine struct {
	verifier Verifier
	sender   Sender
	channels ChannelSource

	log   logx.Logger
	bus   eventbus.Bus
	audit storage.AuditStore

	mu  sync.RWMutex
	cfg Config

	sleep func(ctx context.Context, d time.Duration) error
}

type Option func(*Engine)

func WithLogger(log logx.Logger) Option         { return func(e *Engine) { e.log = log } }
func WithBus(bus eventbus.Bus) Option           { return func(e *Engine) { e.bus = bus } }
func WithAudit(audit storage.AuditStore) Option { return func(e *Engine) { e.audit = audit } }
func WithChannels(src ChannelSource) Option     { return func(e *Engine) { e.channels = src } }

func New(cfg Config, verifier Verifier, sender Sender, opts ...Option) *Engine {
	e := &Engine{
		verifier: verifier,
		sender:   sender,
		cfg:      cfg.withDefaults(),
		log:      logx.Nop(),
		sleep:    sleepCtx,
	}
	for _, o := range opts {
		o(e)
	}
	e.log = e.log.With(logx.String("comp", "broadcast"))
	return e
}

// Apply swaps delay and footer for subsequent broadcasts.
func (e *Engine) Apply(cfg Config) {
	e.mu.Lock()
	e.cfg = cfg.withDefaults()
	e.mu.Unlock()
}

func (e *Engine) config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// Broadcast sends draft to chans in order. It never fails as a whole: every
// problem lands in the outcome, with a synthetic channel-less failure when a
// precondition does not hold.
func (e *Engine) Broadcast(ctx context.Context, draft *post.Draft, chans []post.ChannelID) (out post.Outcome) {
	defer func() {
		if p := recover(); p != nil {
			e.log.Error("broadcast panicked", logx.Any("panic", p))
			r := classify.Panic(p)
			out.Fail(post.ChannelID{}, r.Category, r.Reason)
		}
	}()

	switch {
	case draft == nil:
		out.Fail(post.ChannelID{}, post.Unknown, ReasonNoDraft)
		return out
	case !draft.Complete():
		out.Fail(post.ChannelID{}, post.Unknown, fmt.Sprintf("%s: missing %s", ReasonNoDraft, draft.Missing()))
		return out
	case len(chans) == 0:
		out.Fail(post.ChannelID{}, post.Unknown, ReasonNoChannels)
		return out
	}

	cfg := e.config()
	caption := Caption(*draft, cfg.FooterHandle)
	media := *draft.Thumbnail
	opt := &kit.SendOptions{ParseMode: tgui.ModeMarkdownV2}

	for _, ch := range chans {
		if err := ctx.Err(); err != nil {
			r := classify.Classify(err)
			out.Fail(ch, r.Category, r.Reason)
			continue
		}
		if f, ok := e.deliver(ctx, ch, media, caption, opt); !ok {
			out.Failures = append(out.Failures, f)
			continue
		}
		out.Succeeded++
		if cfg.Delay > 0 {
			_ = e.sleep(ctx, cfg.Delay)
		}
	}
	return out
}

// deliver verifies and sends to one channel. A panic is confined to ch.
func (e *Engine) deliver(ctx context.Context, ch post.ChannelID, media post.Media, caption string, opt *kit.SendOptions) (f post.Failure, ok bool) {
	log := e.log.With(logx.String("channel", ch.String()))
	defer func() {
		if p := recover(); p != nil {
			log.Error("send panicked", logx.Any("panic", p))
			r := classify.Panic(p)
			f, ok = post.Failure{Channel: ch, Category: r.Category, Reason: r.Reason}, false
		}
	}()

	if v := e.verifier.VerifyAdmin(ctx, ch); !v.IsAdmin {
		log.Warn("channel not verified", logx.String("reason", v.Reason))
		return post.Failure{Channel: ch, Category: post.PermissionDenied, Reason: v.Reason}, false
	}
	if err := e.sender.SendMedia(ctx, ch, media, caption, opt); err != nil {
		r := classify.Classify(err)
		log.Warn("send failed", logx.String("category", string(r.Category)), logx.Err(err))
		return post.Failure{Channel: ch, Category: r.Category, Reason: r.Reason}, false
	}
	log.Debug("posted")
	return post.Failure{}, true
}

// BroadcastFor reads user's channels at call time and broadcasts draft to
// them. The caller holds user's lock. The result is published on the bus
// and written to the audit trail.
func (e *Engine) BroadcastFor(ctx context.Context, user int64, draft *post.Draft, trigger Trigger) post.Outcome {
	started := time.Now()
	var out post.Outcome
	if e.channels == nil {
		out.Fail(post.ChannelID{}, post.Unknown, ReasonNoChannels)
	} else if chans, err := e.channels.Channels(ctx, user); err != nil {
		e.log.Error("load channels failed", logx.Int64("user", user), logx.Err(err))
		r := classify.Classify(err)
		out.Fail(post.ChannelID{}, r.Category, r.Reason)
	} else {
		out = e.Broadcast(ctx, draft, chans)
	}
	took := time.Since(started)

	e.log.Info("broadcast finished",
		logx.Int64("user", user),
		logx.String("trigger", string(trigger)),
		logx.Int("ok", out.Succeeded),
		logx.Int("failed", len(out.Failures)),
		logx.Duration("took", took),
	)
	e.record(ctx, user, trigger, out, took)
	return out
}

func (e *Engine) record(ctx context.Context, user int64, trigger Trigger, out post.Outcome, took time.Duration) {
	if e.bus != nil {
		failed := map[string]int{}
		for _, f := range out.Failures {
			failed[string(f.Category)]++
		}
		e.bus.Publish(eventbus.Event{Type: eventbus.TopicBroadcastCompleted, Data: eventbus.BroadcastCompleted{
			Owner:     user,
			Trigger:   string(trigger),
			Succeeded: out.Succeeded,
			Failed:    failed,
			Duration:  took,
		}})
	}
	if e.audit != nil {
		entry := storage.AuditEntry{
			Actor:  user,
			Action: "broadcast." + string(trigger),
			OK:     out.Succeeded,
			Fail:   len(out.Failures),
			TookMS: took.Milliseconds(),
		}
		if len(out.Failures) > 0 {
			entry.Error = out.Failures[0].Label() + ": " + out.Failures[0].Reason
		}
		if err := e.audit.AppendAudit(context.WithoutCancel(ctx), entry); err != nil {
			e.log.Warn("audit append failed", logx.Err(err))
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
