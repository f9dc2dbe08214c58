// Package bot is the Telegram-facing surface: commands, the delivery
// buttons, free-form wizard input and the replies rendered for each outcome.
package bot

import (
	"context"
	"time"

	"postbot/internal/channels"
	"postbot/internal/post"
	"postbot/internal/task/scheduler"
	kit "postbot/internal/transport"
	"postbot/internal/transport/telegram/router"
	"postbot/internal/wizard"
	logx "postbot/pkg/logx"
)

type Wizard interface {
	Active(ctx context.Context, user int64) (wizard.Step, error)
	Start(ctx context.Context, user int64) (wizard.Reply, error)
	Cancel(ctx context.Context, user int64) (wizard.Reply, error)
	Handle(ctx context.Context, user int64, in wizard.Input) (wizard.Reply, error)
}

type Channels interface {
	Add(ctx context.Context, user int64, identifier string) (channels.AddResult, error)
	AddResolved(ctx context.Context, user int64, ch post.ChannelID, title string) (channels.AddResult, error)
	Remove(ctx context.Context, user int64, identifier string) (bool, error)
	List(ctx context.Context, user int64) ([]channels.Entry, error)
	Test(ctx context.Context, identifier string) (channels.Entry, error)
}

type Schedules interface {
	List(ctx context.Context, user int64) ([]post.ScheduleEntry, error)
	Unschedule(ctx context.Context, user int64, id string) error
}

// Clock is the trigger service view used for prompts and /status.
type Clock interface {
	Location() *time.Location
	Snapshot() scheduler.Snapshot
}

type Bot struct {
	log       logx.Logger
	adapter   kit.Adapter
	wizard    Wizard
	channels  Channels
	schedules Schedules
	clock     Clock
	// status adds extra owner-only sections to /status.
	status func() []StatusSection
}

// StatusSection is one titled block of key/value rows in /status.
type StatusSection struct {
	Title string
	Rows  [][2]string
}

type Option func(*Bot)

func WithLogger(log logx.Logger) Option           { return func(b *Bot) { b.log = log } }
func WithStatus(fn func() []StatusSection) Option { return func(b *Bot) { b.status = fn } }

func New(adapter kit.Adapter, wiz Wizard, chans Channels, scheds Schedules, clock Clock, opts ...Option) *Bot {
	b := &Bot{
		log:       logx.Nop(),
		adapter:   adapter,
		wizard:    wiz,
		channels:  chans,
		schedules: scheds,
		clock:     clock,
	}
	for _, o := range opts {
		o(b)
	}
	b.log = b.log.With(logx.String("comp", "bot"))
	return b
}

func (b *Bot) timezone() string {
	if b.clock == nil {
		return scheduler.DefaultTimezone
	}
	return b.clock.Location().String()
}

// Commands lists every slash command in /help order.
func (b *Bot) Commands() []router.Command {
	return []router.Command{
		{Name: "start", Description: "welcome and quick guide", Handle: b.handleStart},
		{Name: "newpost", Description: "create a new post", Handle: b.handleNewPost},
		{Name: "cancel", Description: "cancel the current post", Handle: b.handleCancel},
		{Name: "channels", Description: "list your channels with their status", Handle: b.handleChannels},
		{Name: "addchannel", Description: "add a channel", Usage: "/addchannel @username | -100xxxxxxxxxx | t.me/name", Handle: b.handleAddChannel},
		{Name: "removechannel", Description: "remove a channel", Usage: "/removechannel <channel id>", Handle: b.handleRemoveChannel},
		{Name: "testchannel", Description: "check the bot's permissions in a channel", Usage: "/testchannel <channel id>", Handle: b.handleTestChannel},
		{Name: "schedules", Description: "list your daily posts", Handle: b.handleSchedules},
		{Name: "unschedule", Description: "stop a daily post", Usage: "/unschedule <schedule id>", Handle: b.handleUnschedule},
		{Name: "status", Description: "scheduler and runtime status", Access: router.AccessOwnerOnly, Handle: b.handleStatus},
	}
}

// Callbacks routes the delivery choice buttons.
func (b *Bot) Callbacks() []router.CallbackRoute {
	return []router.CallbackRoute{
		{Scope: cbScope, Action: cbNow, Handle: b.handlePostNow},
		{Scope: cbScope, Action: cbSchedule, Handle: b.handleSchedule},
	}
}

// Fallback receives every non-command message. An active wizard consumes
// it; otherwise a forwarded channel post registers its channel.
func (b *Bot) Fallback(ctx context.Context, req *router.Request) error {
	msg := req.Update.Message
	if msg == nil {
		return nil
	}
	step, err := b.wizard.Active(ctx, req.FromID)
	if err != nil {
		return err
	}
	if step.Active() {
		reply, err := b.wizard.Handle(ctx, req.FromID, wizard.Input{
			Text:          msg.Text,
			Media:         msg.Media,
			HasAttachment: msg.HasAttachment,
		})
		if err != nil {
			return err
		}
		return req.Reply(ctx, b.renderReply(reply))
	}
	if msg.ForwardedFrom != nil {
		return b.addForwarded(ctx, req, msg.ForwardedFrom)
	}
	return req.Reply(ctx, b.renderReply(wizard.Reply{Kind: wizard.KindIdle}))
}

// NotifyFired reports a scheduled run to the schedule's owner.
func (b *Bot) NotifyFired(ctx context.Context, e post.ScheduleEntry, out post.Outcome) {
	msg := renderFired(e, out)
	if _, err := msg.Send(ctx, b.adapter, kit.ChatTarget{ChatID: e.Owner}); err != nil {
		b.log.Warn("fired notice not delivered", logx.String("schedule", e.ID), logx.Int64("owner", e.Owner), logx.Err(err))
	}
}

// ErrorReply tells the user a handler failed, phrased by failure category.
func (b *Bot) ErrorReply(ctx context.Context, req *router.Request, err error) {
	if _, sendErr := renderError(err).Send(ctx, b.adapter, req.Chat); sendErr != nil {
		req.Logger.Warn("error reply not delivered", logx.Err(sendErr))
	}
}
