package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postbot/internal/channels"
	"postbot/internal/post"
	"postbot/internal/schedule"
	"postbot/internal/task/scheduler"
	kit "postbot/internal/transport"
	"postbot/internal/transport/telegram/router"
	"postbot/internal/wizard"
	"postbot/pkg/tgui"
)

type sent struct {
	chat int64
	text string
}

type fakeAdapter struct {
	mu    sync.Mutex
	sent  []sent
	edits []string
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{chat: to.ChatID, text: text})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) EditText(_ context.Context, _ kit.MessageRef, text string, _ *kit.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeAdapter) AnswerCallback(context.Context, string, string) error { return nil }

func (f *fakeAdapter) last() sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sent{}
	}
	return f.sent[len(f.sent)-1]
}

type fakeWizard struct {
	step   wizard.Step
	inputs []wizard.Input
	reply  wizard.Reply
}

func (w *fakeWizard) Active(context.Context, int64) (wizard.Step, error) { return w.step, nil }

func (w *fakeWizard) Start(context.Context, int64) (wizard.Reply, error) {
	return wizard.Reply{Kind: wizard.KindAskThumbnail, Step: wizard.StepAwaitingThumbnail}, nil
}

func (w *fakeWizard) Cancel(context.Context, int64) (wizard.Reply, error) {
	return wizard.Reply{Kind: wizard.KindCanceled}, nil
}

func (w *fakeWizard) Handle(_ context.Context, _ int64, in wizard.Input) (wizard.Reply, error) {
	w.inputs = append(w.inputs, in)
	return w.reply, nil
}

type fakeChannels struct {
	added  []post.ChannelID
	exists bool
	admin  bool
}

func (c *fakeChannels) result(ch post.ChannelID, title string) channels.AddResult {
	v := post.NotVerified("not a member")
	if c.admin {
		v = post.Verified()
	}
	return channels.AddResult{Entry: channels.Entry{Channel: ch, Title: title, Verification: v}, Added: !c.exists}
}

func (c *fakeChannels) Add(_ context.Context, _ int64, identifier string) (channels.AddResult, error) {
	ch, err := channels.Normalize(identifier)
	if err != nil {
		return channels.AddResult{}, err
	}
	c.added = append(c.added, ch)
	return c.result(ch, ch.String()), nil
}

func (c *fakeChannels) AddResolved(_ context.Context, _ int64, ch post.ChannelID, title string) (channels.AddResult, error) {
	c.added = append(c.added, ch)
	return c.result(ch, title), nil
}

func (c *fakeChannels) Remove(context.Context, int64, string) (bool, error) { return false, nil }

func (c *fakeChannels) List(context.Context, int64) ([]channels.Entry, error) {
	return []channels.Entry{
		{Channel: post.NumericChannel(-100), Title: "Main", Verification: post.Verified()},
		{Channel: post.HandleChannel("@pub"), Title: "@pub", Verification: post.NotVerified("missing post permission")},
	}, nil
}

func (c *fakeChannels) Test(_ context.Context, identifier string) (channels.Entry, error) {
	ch, err := channels.Normalize(identifier)
	return channels.Entry{Channel: ch, Title: "T", Verification: post.Verified()}, err
}

type fakeSchedules struct{ removed []string }

func (s *fakeSchedules) List(context.Context, int64) ([]post.ScheduleEntry, error) { return nil, nil }

func (s *fakeSchedules) Unschedule(_ context.Context, _ int64, id string) error {
	if id != "post_1_abc" {
		return schedule.ErrNotFound
	}
	s.removed = append(s.removed, id)
	return nil
}

type fakeClock struct{}

func (fakeClock) Location() *time.Location {
	return time.FixedZone("Asia/Kolkata", 5*3600+1800)
}

func (fakeClock) Snapshot() scheduler.Snapshot {
	return scheduler.Snapshot{Enabled: true, Running: true, Timezone: "Asia/Kolkata"}
}

type harness struct {
	ad    *fakeAdapter
	wiz   *fakeWizard
	chans *fakeChannels
	sch   *fakeSchedules
	bot   *Bot
	r     *router.Router
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{ad: &fakeAdapter{}, wiz: &fakeWizard{}, chans: &fakeChannels{}, sch: &fakeSchedules{}}
	h.bot = New(h.ad, h.wiz, h.chans, h.sch, fakeClock{})
	h.r = router.New(h.ad,
		router.WithOwners([]int64{1}),
		router.WithFallback(h.bot.Fallback),
		router.WithErrorReply(h.bot.ErrorReply),
	)
	h.r.Register(h.bot.Commands(), h.bot.Callbacks())
	return h
}

func (h *harness) send(from int64, msg kit.Message) {
	msg.ChatID, msg.FromID = from, from
	h.r.Route(context.Background(), kit.Update{Kind: kit.UpdateMessage, Message: &msg})
}

func (h *harness) press(from int64, action string) {
	h.r.Route(context.Background(), kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{
		ID: "cb", FromID: from, ChatID: from, MessageID: 9, Data: tgui.Data(cbScope, action, ""),
	}})
}

func TestFallbackFeedsActiveWizard(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.wiz.step = wizard.StepAwaitingThumbnail
	h.wiz.reply = wizard.Reply{Kind: wizard.KindAskThumbnail, Step: wizard.StepAwaitingThumbnail, Problem: wizard.ProblemInvalidMedia}

	h.send(5, kit.Message{Text: "not a photo"})

	require.Len(t, h.wiz.inputs, 1)
	assert.Equal(t, "not a photo", h.wiz.inputs[0].Text)
	assert.Equal(t, "❌ Please send a valid photo, video, or GIF!", h.ad.last().text)
	assert.Empty(t, h.chans.added)
}

func TestForwardedPostAddsChannel(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.chans.admin = true

	h.send(5, kit.Message{Text: "hi", ForwardedFrom: &kit.ForwardOrigin{Chat: post.NumericChannel(-1001), Title: "News"}})
	assert.Equal(t, []post.ChannelID{post.NumericChannel(-1001)}, h.chans.added)
	assert.Contains(t, h.ad.last().text, "Channel Added Successfully!")
	assert.Contains(t, h.ad.last().text, "📢 News")

	h.chans.exists = true
	h.send(5, kit.Message{Text: "hi", ForwardedFrom: &kit.ForwardOrigin{Chat: post.NumericChannel(-1001), Title: "News"}})
	assert.Contains(t, h.ad.last().text, "⚠️ Channel already exists!")
	assert.Contains(t, h.ad.last().text, "Status: ✅ Ready")
}

func TestIdleTextGetsHint(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.send(5, kit.Message{Text: "hello"})
	assert.Contains(t, h.ad.last().text, "/newpost")
	assert.Empty(t, h.wiz.inputs)
}

func TestAddChannelReplies(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "usage", text: "/addchannel", want: "How to add channels:"},
		{name: "usage warns about invite links", text: "/addchannel", want: "joinchat"},
		{name: "invite link", text: "/addchannel https://t.me/+AbCdEf", want: "Private invite links"},
		{name: "bad id", text: "/addchannel -100abc", want: "Invalid channel ID format"},
		{name: "warning", text: "/addchannel @news", want: "Channel Added with Warning!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)
			h.send(5, kit.Message{Text: tt.text})
			assert.Contains(t, h.ad.last().text, tt.want)
		})
	}
}

func TestChannelsListing(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.send(5, kit.Message{Text: "/channels"})
	out := h.ad.last().text
	assert.Contains(t, out, "1. ✅ <code>-100</code>")
	assert.Contains(t, out, "2. ❌ <code>@pub</code>")
	assert.Contains(t, out, "⚠️ missing post permission")
}

func TestUnschedule(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.send(1, kit.Message{Text: "/unschedule post_1_abc"})
	assert.Equal(t, []string{"post_1_abc"}, h.sch.removed)
	assert.Contains(t, h.ad.last().text, "Daily post stopped")

	h.send(1, kit.Message{Text: "/unschedule nope"})
	assert.Contains(t, h.ad.last().text, "Schedule not found")
}

func TestStatusIsOwnerOnly(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.send(2, kit.Message{Text: "/status"})
	assert.Equal(t, "This command is only available to the bot owner.", h.ad.last().text)

	h.send(1, kit.Message{Text: "/status"})
	assert.Contains(t, h.ad.last().text, "Asia/Kolkata")
	assert.Contains(t, h.ad.last().text, "running")
}

func TestPostNowButton(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.wiz.step = wizard.StepAwaitingDeliveryChoice
	h.wiz.reply = wizard.Reply{Kind: wizard.KindPosted, Outcome: post.Outcome{
		Succeeded: 1,
		Failures:  []post.Failure{{Channel: post.NumericChannel(100), Category: post.PermissionDenied, Reason: "not a member"}},
	}}

	h.press(5, cbNow)

	require.Len(t, h.wiz.inputs, 1)
	assert.Equal(t, wizard.ChoiceNow, h.wiz.inputs[0].Choice)
	assert.Equal(t, []string{"📤 Posting to channels..."}, h.ad.edits)
	out := h.ad.last().text
	assert.Contains(t, out, "✓ Successfully posted to 1 channel(s)")
	assert.Contains(t, out, "✗ Failed: 1 channel(s)")
	assert.Contains(t, out, "• <code>100</code>: not a member")
}

func TestRenderPostedWithoutSuccess(t *testing.T) {
	t.Parallel()
	b := New(&fakeAdapter{}, &fakeWizard{}, &fakeChannels{}, &fakeSchedules{}, fakeClock{})
	out := b.renderReply(wizard.Reply{Kind: wizard.KindPosted, Step: wizard.StepIdle, Outcome: post.Outcome{
		Failures: []post.Failure{{Channel: post.NumericChannel(100), Category: post.PermissionDenied, Reason: "not a member"}},
	}})
	assert.Contains(t, out.Text, "Nothing was posted.")
	assert.Contains(t, out.Text, "/newpost")
	require.NotNil(t, out.Opt)
	assert.Nil(t, out.Opt.ReplyMarkupAdapter)
}

func TestRenderReplySummaryAndConfirmation(t *testing.T) {
	t.Parallel()
	b := New(&fakeAdapter{}, &fakeWizard{}, &fakeChannels{}, &fakeSchedules{}, fakeClock{})
	long := "https://example.com/" + strings.Repeat("v", 80)

	ready := b.renderReply(wizard.Reply{Kind: wizard.KindAskDelivery, Draft: post.Draft{Link: long, Title: "Hello"}})
	assert.Contains(t, ready.Text, "🔗 Link: "+long[:50]+"...")
	assert.Contains(t, ready.Text, "📝 Title: Hello")
	assert.NotNil(t, ready.Opt.ReplyMarkupAdapter)

	done := b.renderReply(wizard.Reply{
		Kind:     wizard.KindScheduled,
		Entry:    post.ScheduleEntry{ID: "post_1_x", Hour: 9, Minute: 5, Timezone: "Asia/Kolkata"},
		Channels: 3,
	})
	assert.Contains(t, done.Text, "⏰ Time: 09:05 Asia/Kolkata")
	assert.Contains(t, done.Text, "📅 Frequency: Daily")
	assert.Contains(t, done.Text, "📢 Channels: 3")

	ask := b.renderReply(wizard.Reply{Kind: wizard.KindAskTime})
	assert.Contains(t, ask.Text, "Send the time in Asia/Kolkata (HH:MM)")
}

func TestRenderErrorByCategory(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "permission", err: &kit.PlatformError{Kind: kit.ErrKindForbidden, Code: 403}, want: "doesn't have permission"},
		{name: "bad request", err: &kit.PlatformError{Kind: kit.ErrKindBadRequest, Code: 400}, want: "Invalid request"},
		{name: "migrated", err: &kit.PlatformError{Kind: kit.ErrKindMigrated, MigratedTo: -1}, want: "migrated"},
		{name: "other", err: errors.New("disk full"), want: "Something went wrong"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Contains(t, renderError(tt.err).Text, tt.want)
		})
	}
}

func TestNotifyFiredGoesToOwner(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	b := New(ad, &fakeWizard{}, &fakeChannels{}, &fakeSchedules{}, fakeClock{})
	b.NotifyFired(context.Background(), post.ScheduleEntry{ID: "s", Owner: 77, Hour: 8, Timezone: "UTC", Draft: post.Draft{Title: "T"}}, post.Outcome{Succeeded: 2})

	got := ad.last()
	assert.Equal(t, int64(77), got.chat)
	assert.Contains(t, got.text, "08:00 UTC")
	assert.Contains(t, got.text, "posted to 2 channel(s)")
}
