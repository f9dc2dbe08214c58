package bot

import (
	"context"
	"errors"

	"postbot/internal/channels"
	"postbot/internal/post"
	"postbot/internal/schedule"
	kit "postbot/internal/transport"
	"postbot/internal/transport/telegram/router"
	"postbot/internal/wizard"
	logx "postbot/pkg/logx"
)

const (
	cbScope    = "post"
	cbNow      = "now"
	cbSchedule = "schedule"
)

func (b *Bot) handleStart(ctx context.Context, req *router.Request) error {
	req.Logger.Info("user started the bot")
	return req.Reply(ctx, renderWelcome())
}

func (b *Bot) handleNewPost(ctx context.Context, req *router.Request) error {
	reply, err := b.wizard.Start(ctx, req.FromID)
	if err != nil {
		return err
	}
	return req.Reply(ctx, b.renderReply(reply))
}

func (b *Bot) handleCancel(ctx context.Context, req *router.Request) error {
	reply, err := b.wizard.Cancel(ctx, req.FromID)
	if err != nil {
		return err
	}
	return req.Reply(ctx, b.renderReply(reply))
}

func (b *Bot) handleChannels(ctx context.Context, req *router.Request) error {
	entries, err := b.channels.List(ctx, req.FromID)
	if err != nil {
		return err
	}
	return req.Reply(ctx, renderChannels(entries))
}

func (b *Bot) handleAddChannel(ctx context.Context, req *router.Request) error {
	if req.ArgText == "" {
		return req.Reply(ctx, renderAddUsage())
	}
	res, err := b.channels.Add(ctx, req.FromID, req.ArgText)
	switch {
	case errors.Is(err, channels.ErrInviteLink):
		return req.Reply(ctx, renderPlain("⚠️ Private invite links can't be resolved. Forward a message from the channel instead, or use its @username or -100 id."))
	case errors.Is(err, post.ErrInvalidChannel):
		return req.Reply(ctx, renderPlain("❌ Invalid channel ID format"))
	case err != nil:
		return err
	}
	return req.Reply(ctx, renderAdded(res, false))
}

func (b *Bot) addForwarded(ctx context.Context, req *router.Request, origin *kit.ForwardOrigin) error {
	req.Logger.Info("channel forwarded", logx.String("channel", origin.Chat.String()))
	res, err := b.channels.AddResolved(ctx, req.FromID, origin.Chat, origin.Title)
	if err != nil {
		return err
	}
	return req.Reply(ctx, renderAdded(res, true))
}

func (b *Bot) handleRemoveChannel(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return req.Reply(ctx, renderUsage("/removechannel [channel_id]", "Use /channels to see your channel IDs"))
	}
	removed, err := b.channels.Remove(ctx, req.FromID, req.Args[0])
	if errors.Is(err, post.ErrInvalidChannel) || errors.Is(err, channels.ErrInviteLink) {
		removed, err = false, nil
	}
	if err != nil {
		return err
	}
	if !removed {
		return req.Reply(ctx, renderPlain("⚠️ Channel not found in your list\n\nUse /channels to see your channels"))
	}
	return req.Reply(ctx, renderRemoved(req.Args[0]))
}

func (b *Bot) handleTestChannel(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return req.Reply(ctx, renderUsage("/testchannel [channel_id]", "Example: /testchannel -1001234567890"))
	}
	entry, err := b.channels.Test(ctx, req.Args[0])
	switch {
	case errors.Is(err, channels.ErrInviteLink), errors.Is(err, post.ErrInvalidChannel):
		return req.Reply(ctx, renderPlain("❌ Invalid channel ID format"))
	case err != nil:
		return err
	}
	return req.Reply(ctx, renderTest(entry))
}

func (b *Bot) handleSchedules(ctx context.Context, req *router.Request) error {
	entries, err := b.schedules.List(ctx, req.FromID)
	if err != nil {
		return err
	}
	return req.Reply(ctx, renderSchedules(entries))
}

func (b *Bot) handleUnschedule(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return req.Reply(ctx, renderUsage("/unschedule [schedule_id]", "Use /schedules to see your schedule IDs"))
	}
	err := b.schedules.Unschedule(ctx, req.FromID, req.Args[0])
	if errors.Is(err, schedule.ErrNotFound) {
		return req.Reply(ctx, renderPlain("⚠️ Schedule not found\n\nUse /schedules to see your daily posts"))
	}
	if err != nil {
		return err
	}
	return req.Reply(ctx, renderPlain("✅ Daily post stopped: "+req.Args[0]))
}

func (b *Bot) handleStatus(ctx context.Context, req *router.Request) error {
	var extra []StatusSection
	if b.status != nil {
		extra = b.status()
	}
	return req.Reply(ctx, renderStatus(b.clock.Snapshot(), extra))
}

func (b *Bot) handlePostNow(ctx context.Context, req *router.Request, _ string) error {
	if cb := req.Update.Callback; cb != nil && cb.MessageID != 0 {
		ref := kit.MessageRef{ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID}
		if err := renderPlain("📤 Posting to channels...").Edit(ctx, req.Adapter, ref); err != nil {
			req.Logger.Debug("progress edit failed", logx.Err(err))
		}
	}
	return b.choose(ctx, req, wizard.ChoiceNow)
}

func (b *Bot) handleSchedule(ctx context.Context, req *router.Request, _ string) error {
	return b.choose(ctx, req, wizard.ChoiceSchedule)
}

func (b *Bot) choose(ctx context.Context, req *router.Request, c wizard.Choice) error {
	reply, err := b.wizard.Handle(ctx, req.FromID, wizard.Input{Choice: c})
	if err != nil {
		return err
	}
	return req.Reply(ctx, b.renderReply(reply))
}
