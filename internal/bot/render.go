package bot

import (
	"fmt"
	"strconv"
	"time"

	"postbot/internal/channels"
	"postbot/internal/classify"
	"postbot/internal/post"
	"postbot/internal/task/scheduler"
	"postbot/internal/wizard"
	"postbot/pkg/tgui"
)

// linkPreviewRunes is how much of the link the post summary shows.
const linkPreviewRunes = 50

func renderPlain(text string) tgui.Message {
	return tgui.New().Line(text).Build()
}

func renderUsage(usage, hint string) tgui.Message {
	return tgui.New().Title("📝", "Usage:").Code(usage).Blank().Line(hint).Build()
}

func howToAdd(b *tgui.Builder) *tgui.Builder {
	return b.Section("How to add channels:").
		Line("1️⃣ Forward any message from your channel").
		Line("2️⃣ /addchannel @username").
		Line("3️⃣ /addchannel -100xxxxxxxxx")
}

func renderWelcome() tgui.Message {
	important := "⚠️ " + tgui.B("Important:").String() + " " +
		tgui.Esc("Make sure to add the bot as admin in your channel with 'Post Messages' permission!").String()
	b := tgui.New().
		Title("🌟", "Welcome to Auto-Post Bot! 🌟").
		Blank().
		Line("This bot helps you create beautiful posts and schedule them to multiple Telegram channels.").
		Blank().
		Section("Commands:").
		Line("/newpost - Create a new post").
		Line("/channels - Manage your channels").
		Line("/addchannel - Add a channel").
		Line("/testchannel - Test channel permissions").
		Line("/schedules - Your daily posts").
		Line("/cancel - Cancel current operation").
		Blank()
	howToAdd(b).
		Blank().
		RawLine(important).
		Blank().
		Line("Let's get started! Use /newpost to create your first post.")
	return b.Build()
}

func renderAddUsage() tgui.Message {
	return tgui.New().
		Title("📝", "How to add channels:").
		Blank().
		Line("1️⃣ Forward any message from the channel to me").
		Line("2️⃣ Use: /addchannel @username").
		Line("3️⃣ Use: /addchannel -100xxxxxxxx").
		Line("4️⃣ Send the channel's public link (t.me/name)").
		Blank().
		Section("Examples:").
		Code("/addchannel @mychannel").
		Code("/addchannel -1001234567890").
		Blank().
		Line("Private invite links (t.me/+..., joinchat) can't be resolved; forward a post instead.").
		Build()
}

func idLine(ch post.ChannelID) string {
	return "🆔 " + tgui.Code(ch.String()).String()
}

func renderAdded(res channels.AddResult, forwarded bool) tgui.Message {
	v := res.Verification
	if !res.Added {
		status := "❌ No permissions"
		if v.IsAdmin {
			status = "✅ Ready"
		}
		return tgui.New().
			Line("⚠️ Channel already exists!").
			Blank().
			Line("📢 " + res.Title).
			Line("Status: " + status).
			Build()
	}
	if v.IsAdmin {
		return tgui.New().
			Title("✅", "Channel Added Successfully!").
			Blank().
			Line("📢 " + res.Title).
			RawLine(idLine(res.Channel)).
			Line("✓ Bot has admin permissions").
			Blank().
			Line("Ready to post!").
			Build()
	}
	b := tgui.New().
		Title("⚠️", "Channel Added with Warning!").
		Blank().
		Line("📢 " + res.Title).
		RawLine(idLine(res.Channel)).
		Blank().
		RawLine("❌ " + tgui.B("Problem:").String() + " " + tgui.Esc(v.Reason).String()).
		Blank().
		Section("Action Required:").
		Line("1. Go to your channel settings").
		Line("2. Add this bot as administrator").
		Line("3. Enable 'Post Messages' permission").
		RawLine("4. Use /testchannel " + tgui.Code(res.Channel.String()).String() + " to verify")
	if !forwarded {
		b.Blank().Line("💡 Tip: You can also forward a message from the channel to add it automatically.")
	}
	return b.Build()
}

func renderRemoved(id string) tgui.Message {
	return tgui.New().
		Title("✅", "Channel Removed!").
		Blank().
		RawLine("🆔 " + tgui.Code(id).String()).
		Build()
}

func renderTest(e channels.Entry) tgui.Message {
	b := tgui.New().
		Title("🔍", "Channel Test Results").
		Blank().
		Line("📢 Name: " + e.Title).
		RawLine("🆔 ID: " + tgui.Code(e.Channel.String()).String()).
		Blank()
	if e.Verification.IsAdmin {
		return b.Title("✅", "Status: Ready to post!").
			Line("• Bot is admin").
			Line("• Has post permissions").
			Build()
	}
	return b.Title("❌", "Status: Cannot post!").
		Line("• Problem: " + e.Verification.Reason).
		Blank().
		Section("Fix:").
		Line("1. Add bot to channel").
		Line("2. Make bot admin").
		Line("3. Enable 'Post Messages'").
		Build()
}

func renderChannels(entries []channels.Entry) tgui.Message {
	b := tgui.New()
	if len(entries) == 0 {
		b.Line("❌ No channels configured").Blank()
	} else {
		b.Section("Your Channels:").Blank()
		for i, e := range entries {
			status := "❌"
			if e.Verification.IsAdmin {
				status = "✅"
			}
			b.RawLine(fmt.Sprintf("%d. %s %s", i+1, status, tgui.Code(e.Channel.String())))
			b.Line("   📢 " + e.Title)
			if !e.Verification.IsAdmin {
				b.Line("   ⚠️ " + e.Verification.Reason)
			}
			b.Blank()
		}
	}
	return howToAdd(b).
		Blank().
		Section("Other commands:").
		Line("/removechannel [id] - Remove a channel").
		Line("/testchannel [id] - Test permissions").
		Build()
}

func renderSchedules(entries []post.ScheduleEntry) tgui.Message {
	if len(entries) == 0 {
		return renderPlain("📅 No daily posts yet.\n\nCreate one with /newpost and choose ⏰ Schedule Post.")
	}
	b := tgui.New().Title("📅", "Your Daily Posts").Blank()
	for _, e := range entries {
		b.RawLine(tgui.Code(e.ID).String())
		b.Line(fmt.Sprintf("   ⏰ %s %s · 📝 %s", e.Clock(), e.Timezone, tgui.TruncRunes(e.Draft.Title, 40)))
	}
	return b.Blank().Line("Stop one with /unschedule <id>").Build()
}

func linkPreview(link string) string {
	rs := []rune(link)
	if len(rs) > linkPreviewRunes {
		rs = rs[:linkPreviewRunes]
	}
	return string(rs) + "..."
}

func deliveryButtons() *tgui.Inline {
	return tgui.Stacked(
		tgui.Btn("📤 Post Now", tgui.Data(cbScope, cbNow, "")),
		tgui.Btn("⏰ Schedule Post", tgui.Data(cbScope, cbSchedule, "")),
	)
}

func postSummary(b *tgui.Builder, d post.Draft) *tgui.Builder {
	return b.Line("📸 Thumbnail: Uploaded").
		Line("🔗 Link: " + linkPreview(d.Link)).
		Line("📝 Title: " + d.Title)
}

func outcomeLines(b *tgui.Builder, out post.Outcome) *tgui.Builder {
	b.Line(fmt.Sprintf("✓ Successfully posted to %d channel(s)", out.Succeeded))
	if len(out.Failures) == 0 {
		return b
	}
	b.Line(fmt.Sprintf("✗ Failed: %d channel(s)", len(out.Failures))).
		Blank().
		Section("Failed Channels:")
	for _, f := range out.Failures {
		b.RawLine("• " + tgui.Code(f.Label()).String() + ": " + tgui.Esc(f.Reason).String())
	}
	return b
}

// renderReply renders the wizard's answer for the current step.
func (b *Bot) renderReply(r wizard.Reply) tgui.Message {
	if r.Problem == wizard.ProblemInternal {
		return renderPlain("❌ Something went wrong saving your post. Please try again.")
	}
	switch r.Kind {
	case wizard.KindNeedChannels:
		return tgui.New().
			Title("⚠️", "No channels configured!").
			Blank().
			Line("Please add at least one channel first:").
			Line("• Forward a message from your channel").
			Line("• Use /addchannel @channelname").
			Line("• Use /addchannel -100xxxxxxxxx").
			Build()

	case wizard.KindAskThumbnail:
		if r.Problem == wizard.ProblemInvalidMedia {
			return renderPlain("❌ Please send a valid photo, video, or GIF!")
		}
		return tgui.New().
			Title("📸", "Step 1: Thumbnail").
			Blank().
			Line("Please send your thumbnail (photo, video, or GIF):").
			Build()

	case wizard.KindAskLink:
		if r.Problem == wizard.ProblemInvalidLink {
			return renderPlain("⚠️ Please send a valid URL starting with http:// or https://")
		}
		return tgui.New().
			Line("✅ Thumbnail received!").
			Blank().
			Title("🔗", "Step 2: Video Link").
			Blank().
			Line("Please send the video link (YouTube, etc.):").
			Build()

	case wizard.KindAskTitle:
		switch r.Problem {
		case wizard.ProblemTitleTooLong:
			return renderPlain(fmt.Sprintf("⚠️ Title is too long! Please keep it under %d characters.", wizard.MaxTitleRunes))
		case wizard.ProblemTitleEmpty:
			return renderPlain("⚠️ Please send the post title as text.")
		}
		return tgui.New().
			Line("✅ Video link saved!").
			Blank().
			Title("📝", "Step 3: Title").
			Blank().
			Line("Please send the post title:").
			Build()

	case wizard.KindAskDelivery:
		bl := tgui.New()
		if r.Problem == wizard.ProblemInvalidInput {
			bl.Line("👇 Please choose one of the buttons below.").Blank()
		}
		bl.Title("✅", "Post Ready!").Blank()
		return postSummary(bl, r.Draft).
			Blank().
			Line("What would you like to do?").
			Inline(deliveryButtons()).
			Build()

	case wizard.KindAskTime:
		if r.Problem == wizard.ProblemInvalidTime {
			return renderPlain("❌ Invalid time format!\n\nPlease use HH:MM format:\n• 14:30 (2:30 PM)\n• 09:00 (9:00 AM)\n• 23:45 (11:45 PM)")
		}
		return tgui.New().
			Title("⏰", "Schedule Post").
			Blank().
			Line(fmt.Sprintf("Send the time in %s (HH:MM)", b.timezone())).
			Line("Example: 14:30 for 2:30 PM").
			Line("Example: 09:00 for 9:00 AM").
			Build()

	case wizard.KindPosted:
		bl := tgui.New().Title("✅", "Post Complete!").Blank()
		outcomeLines(bl, r.Outcome)
		if r.Outcome.Succeeded == 0 {
			bl.Blank().Line("Nothing was posted. Fix the channels and use /newpost to try again.")
		}
		return bl.Build()

	case wizard.KindScheduled:
		return tgui.New().
			Title("✅", "Post Scheduled Successfully!").
			Blank().
			Line(fmt.Sprintf("⏰ Time: %s %s", r.Entry.Clock(), r.Entry.Timezone)).
			Line("📅 Frequency: Daily").
			Line("📢 Channels: " + strconv.Itoa(r.Channels)).
			RawLine("🆔 " + tgui.Code(r.Entry.ID).String()).
			Blank().
			Line("Your post will be published every day at this time.").
			Build()

	case wizard.KindCanceled:
		return renderPlain("❌ Operation cancelled.\n\nUse /newpost to start again.")

	case wizard.KindNothingToCancel:
		return renderPlain("Nothing to cancel.\n\nUse /newpost to create a post.")
	}
	return renderPlain("Use /newpost to create a post, or /help to see every command.")
}

func renderFired(e post.ScheduleEntry, out post.Outcome) tgui.Message {
	b := tgui.New().
		Title("⏰", "Daily post sent").
		Line(fmt.Sprintf("%s %s · %s", e.Clock(), e.Timezone, tgui.TruncRunes(e.Draft.Title, 40))).
		Blank()
	return outcomeLines(b, out).Build()
}

// renderError phrases a handler failure by classifier category.
func renderError(err error) tgui.Message {
	b := tgui.New().Title("❌", "An error occurred!").Blank()
	switch classify.Classify(err).Category {
	case post.PermissionDenied:
		b.Line("The bot doesn't have permission. Make sure:").
			Bullets("Bot is added to the channel", "Bot is an admin", "Bot has post messages permission")
	case post.InvalidRequest, post.NotFound:
		b.Line("Invalid request. Please check:").
			Bullets("Channel ID/username is correct", "Channel exists and is accessible")
	case post.ChatMigrated:
		b.Line("Channel has been migrated. Please add it again.")
	default:
		b.Line("Something went wrong. Please try again.")
	}
	return b.Build()
}

func renderStatus(s scheduler.Snapshot, extra []StatusSection) tgui.Message {
	state := "stopped"
	switch {
	case !s.Enabled:
		state = "disabled"
	case s.Running:
		state = "running"
	}
	b := tgui.New().Title("📊", "Status").Blank().
		Section("Scheduler").
		KV("state", state).
		KV("timezone", s.Timezone).
		KV("schedules", strconv.Itoa(len(s.Schedules)))
	if len(s.Schedules) > 0 {
		next := s.Schedules[0]
		b.KV("next", next.Name+" at "+formatTime(next.Next))
	}
	if len(s.History) > 0 {
		b.Blank().Section("Recent runs")
		for i, h := range s.History {
			if i == 5 {
				break
			}
			res := "ok"
			if h.Err != "" {
				res = tgui.TruncRunes(h.Err, 60)
			}
			b.Line(fmt.Sprintf("• %s %s (%s): %s", formatTime(h.StartedAt), h.Name, h.Duration.Round(time.Millisecond), res))
		}
	}
	for _, sec := range extra {
		b.Blank().Section(sec.Title)
		for _, row := range sec.Rows {
			b.KV(row[0], row[1])
		}
	}
	return b.Build()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04")
}
