package channels

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postbot/internal/eventbus"
	"postbot/internal/post"
	"postbot/internal/storage"
	kit "postbot/internal/transport"
)

type fakeLookup struct {
	members map[string]post.Membership
	errs    map[string]error
	titles  map[string]string
	panicOn string
}

func (f *fakeLookup) Membership(_ context.Context, ch post.ChannelID) (post.Membership, error) {
	if ch.String() == f.panicOn {
		panic("lookup exploded")
	}
	if err := f.errs[ch.String()]; err != nil {
		return post.Membership{}, err
	}
	return f.members[ch.String()], nil
}

func (f *fakeLookup) ChatTitle(_ context.Context, ch post.ChannelID) (string, error) {
	if t, ok := f.titles[ch.String()]; ok {
		return t, nil
	}
	return "", errors.New("no title")
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want post.ChannelID
		err  error
	}{
		{in: "@chan", want: post.HandleChannel("chan")},
		{in: "chan", want: post.HandleChannel("chan")},
		{in: "  @chan  ", want: post.HandleChannel("chan")},
		{in: "-1001234567890", want: post.NumericChannel(-1001234567890)},
		{in: "12345", want: post.NumericChannel(12345)},
		{in: "https://t.me/mychannel", want: post.HandleChannel("mychannel")},
		{in: "t.me/mychannel/", want: post.HandleChannel("mychannel")},
		{in: "https://telegram.me/other?start=1", want: post.HandleChannel("other")},
		{in: "-100abc", err: post.ErrInvalidChannel},
		{in: "--5", err: post.ErrInvalidChannel},
		{in: "", err: post.ErrInvalidChannel},
		{in: "@", err: post.ErrInvalidChannel},
		{in: "two words", err: post.ErrInvalidChannel},
		{in: "https://t.me/+AbCdEf", err: ErrInviteLink},
		{in: "https://t.me/joinchat/AbCdEf", err: ErrInviteLink},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := Normalize(tt.in)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVerdict(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		m      post.Membership
		admin  bool
		reason string
	}{
		{"owner", post.Membership{Status: post.StatusOwner}, true, ""},
		{"admin can post", post.Membership{Status: post.StatusAdministrator, CanPost: post.PostGranted}, true, ""},
		{"admin flag not applicable", post.Membership{Status: post.StatusAdministrator}, true, ""},
		{"admin cannot post", post.Membership{Status: post.StatusAdministrator, CanPost: post.PostDenied}, false, "missing post permission"},
		{"member", post.Membership{Status: post.StatusMember}, false, "not an admin (status: member)"},
		{"restricted", post.Membership{Status: post.StatusRestricted}, false, "not an admin (status: restricted)"},
		{"left", post.Membership{Status: post.StatusLeft}, false, "not a member"},
		{"absent", post.Membership{}, false, "not a member"},
	}
	for _, tt := range tests {
		got := Verdict(tt.m)
		assert.Equal(t, tt.admin, got.IsAdmin, tt.name)
		assert.Equal(t, tt.reason, got.Reason, tt.name)
	}
}

func TestVerifyAdminErrors(t *testing.T) {
	t.Parallel()
	lk := &fakeLookup{errs: map[string]error{
		"@forbidden": &kit.PlatformError{Kind: kit.ErrKindForbidden, Code: 403, Description: "Forbidden: bot is not a member"},
		"@gone":      &kit.PlatformError{Kind: kit.ErrKindNotFound, Code: 400, Description: "Bad Request: chat not found"},
		"@bad":       &kit.PlatformError{Kind: kit.ErrKindBadRequest, Code: 400, Description: "Bad Request: member list is inaccessible"},
		"@net":       errors.New("dial tcp: timeout"),
	}}
	r := New(storage.NewMemory(), lk)
	ctx := context.Background()

	assert.Equal(t, "not a member", r.VerifyAdmin(ctx, post.HandleChannel("forbidden")).Reason)
	assert.Equal(t, "channel not found or bot removed", r.VerifyAdmin(ctx, post.HandleChannel("gone")).Reason)
	assert.Equal(t, "cannot access channel: Bad Request: member list is inaccessible (400)", r.VerifyAdmin(ctx, post.HandleChannel("bad")).Reason)
	assert.Equal(t, "cannot access channel: dial tcp: timeout", r.VerifyAdmin(ctx, post.HandleChannel("net")).Reason)
}

func TestAddIsIdempotent(t *testing.T) {
	t.Parallel()
	lk := &fakeLookup{
		members: map[string]post.Membership{"@chan": {Status: post.StatusAdministrator, CanPost: post.PostGranted}},
		titles:  map[string]string{"@chan": "My Channel"},
	}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()
	r := New(storage.NewMemory(), lk, WithBus(bus))
	ctx := context.Background()

	first, err := r.Add(ctx, 1, "@chan")
	require.NoError(t, err)
	assert.True(t, first.Added)
	assert.Equal(t, "My Channel", first.Title)
	assert.True(t, first.Verification.IsAdmin)

	second, err := r.Add(ctx, 1, "chan")
	require.NoError(t, err)
	assert.False(t, second.Added)
	assert.True(t, second.Verification.IsAdmin)

	list, err := r.Channels(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []post.ChannelID{post.HandleChannel("chan")}, list)

	ev := <-events
	assert.Equal(t, eventbus.TopicChannelChanged, ev.Type)
	assert.Equal(t, eventbus.Counted{Owner: 1, Total: 1}, ev.Data)
	assert.Len(t, events, 0)
}

func TestAddRejectsMalformed(t *testing.T) {
	t.Parallel()
	r := New(storage.NewMemory(), &fakeLookup{})
	_, err := r.Add(context.Background(), 1, "-100xyz")
	assert.ErrorIs(t, err, post.ErrInvalidChannel)
}

func TestAddResolvedKeepsForwardTitle(t *testing.T) {
	t.Parallel()
	r := New(storage.NewMemory(), &fakeLookup{})
	res, err := r.AddResolved(context.Background(), 3, post.NumericChannel(-100777), "Forwarded Title")
	require.NoError(t, err)
	assert.True(t, res.Added)
	assert.Equal(t, "Forwarded Title", res.Title)
	assert.Equal(t, "not a member", res.Verification.Reason)
}

func TestRemove(t *testing.T) {
	t.Parallel()
	r := New(storage.NewMemory(), &fakeLookup{})
	ctx := context.Background()
	_, err := r.Add(ctx, 1, "-1001")
	require.NoError(t, err)

	ok, err := r.Remove(ctx, 1, "-1001")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.Remove(ctx, 1, "-1001")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListIsolatesFailures(t *testing.T) {
	t.Parallel()
	lk := &fakeLookup{
		members: map[string]post.Membership{"@ok": {Status: post.StatusOwner}},
		titles:  map[string]string{"@ok": "OK"},
		panicOn: "@boom",
		errs:    map[string]error{"-100": &kit.PlatformError{Kind: kit.ErrKindForbidden, Code: 403}},
	}
	store := storage.NewMemory()
	ctx := context.Background()
	for _, ch := range []post.ChannelID{post.NumericChannel(-100), post.HandleChannel("boom"), post.HandleChannel("ok")} {
		_, err := store.AddChannel(ctx, 1, ch)
		require.NoError(t, err)
	}
	r := New(store, lk)

	list, err := r.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 3)

	assert.Equal(t, "-100", list[0].Title)
	assert.Equal(t, "not a member", list[0].Verification.Reason)
	assert.False(t, list[1].Verification.IsAdmin)
	assert.Contains(t, list[1].Verification.Reason, "lookup exploded")
	assert.Equal(t, "OK", list[2].Title)
	assert.True(t, list[2].Verification.IsAdmin)
}

func TestTestDoesNotRegister(t *testing.T) {
	t.Parallel()
	store := storage.NewMemory()
	r := New(store, &fakeLookup{members: map[string]post.Membership{"@x": {Status: post.StatusOwner}}})
	e, err := r.Test(context.Background(), "t.me/x")
	require.NoError(t, err)
	assert.True(t, e.Verification.IsAdmin)

	list, err := store.Channels(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}
