// Package channels manages each user's broadcast targets and checks, on
// demand, whether the bot can post to them.
package channels

import (
	"context"
	"fmt"
	"strings"

	"postbot/internal/eventbus"
	"postbot/internal/post"
	"postbot/internal/storage"
	kit "postbot/internal/transport"
	logx "postbot/pkg/logx"
	"postbot/pkg/tgui"
)

const reasonDetailLimit = 120

// Lookup is the part of the platform the registry needs.
type Lookup interface {
	Membership(ctx context.Context, chat post.ChannelID) (post.Membership, error)
	ChatTitle(ctx context.Context, chat post.ChannelID) (string, error)
}

type Registry struct {
	store  storage.ChannelStore
	lookup Lookup
	bus    eventbus.Bus
	log    logx.Logger
}

type Option func(*Registry)

func WithLogger(log logx.Logger) Option { return func(r *Registry) { r.log = log } }
func WithBus(bus eventbus.Bus) Option   { return func(r *Registry) { r.bus = bus } }

func New(store storage.ChannelStore, lookup Lookup, opts ...Option) *Registry {
	r := &Registry{store: store, lookup: lookup, log: logx.Nop()}
	for _, o := range opts {
		o(r)
	}
	r.log = r.log.With(logx.String("comp", "channels"))
	return r
}

// Entry describes one channel with its freshly computed verification.
type Entry struct {
	Channel      post.ChannelID
	Title        string
	Verification post.Verification
}

// AddResult reports whether the channel was new for the user.
type AddResult struct {
	Entry
	Added bool
}

// Add normalizes identifier, verifies it and registers it for user.
// A channel already present is not an error: Added is false.
func (r *Registry) Add(ctx context.Context, user int64, identifier string) (AddResult, error) {
	ch, err := Normalize(identifier)
	if err != nil {
		return AddResult{}, err
	}
	return r.AddResolved(ctx, user, ch, "")
}

// AddResolved registers an already resolved channel, e.g. the origin of a
// forwarded post. An empty title is looked up.
func (r *Registry) AddResolved(ctx context.Context, user int64, ch post.ChannelID, title string) (AddResult, error) {
	if ch.IsZero() {
		return AddResult{}, post.ErrInvalidChannel
	}
	entry := r.describe(ctx, ch)
	if strings.TrimSpace(title) != "" {
		entry.Title = title
	}
	added, err := r.store.AddChannel(ctx, user, ch)
	if err != nil {
		return AddResult{}, fmt.Errorf("add channel: %w", err)
	}
	if added {
		r.log.Info("channel added", logx.Int64("user", user), logx.String("channel", ch.String()), logx.Bool("admin", entry.Verification.IsAdmin))
		r.publishCount(ctx, user)
	}
	return AddResult{Entry: entry, Added: added}, nil
}

// Remove reports false when the channel was not registered.
func (r *Registry) Remove(ctx context.Context, user int64, identifier string) (bool, error) {
	ch, err := Normalize(identifier)
	if err != nil {
		return false, err
	}
	removed, err := r.store.RemoveChannel(ctx, user, ch)
	if err != nil {
		return false, fmt.Errorf("remove channel: %w", err)
	}
	if removed {
		r.log.Info("channel removed", logx.Int64("user", user), logx.String("channel", ch.String()))
		r.publishCount(ctx, user)
	}
	return removed, nil
}

// Channels returns the stored list in insertion order without platform calls.
func (r *Registry) Channels(ctx context.Context, user int64) ([]post.ChannelID, error) {
	return r.store.Channels(ctx, user)
}

// List describes every channel of user. A failing lookup is reported on its
// own entry and never hides the others.
func (r *Registry) List(ctx context.Context, user int64) ([]Entry, error) {
	chans, err := r.store.Channels(ctx, user)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(chans))
	for _, ch := range chans {
		out = append(out, r.describe(ctx, ch))
	}
	return out, nil
}

// Test verifies identifier without registering it.
func (r *Registry) Test(ctx context.Context, identifier string) (Entry, error) {
	ch, err := Normalize(identifier)
	if err != nil {
		return Entry{}, err
	}
	return r.describe(ctx, ch), nil
}

// describe isolates panics from the platform client to the one channel.
func (r *Registry) describe(ctx context.Context, ch post.ChannelID) (e Entry) {
	e = Entry{Channel: ch, Title: ch.String()}
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("channel lookup panicked", logx.String("channel", ch.String()), logx.Any("panic", p))
			e.Verification = post.NotVerified(fmt.Sprintf("error checking permissions: %v", p))
		}
	}()
	if title, err := r.lookup.ChatTitle(ctx, ch); err == nil && strings.TrimSpace(title) != "" {
		e.Title = title
	}
	e.Verification = r.VerifyAdmin(ctx, ch)
	return e
}

// VerifyAdmin asks the platform for the bot's membership in ch and reduces
// it to a verdict. It is never cached.
func (r *Registry) VerifyAdmin(ctx context.Context, ch post.ChannelID) post.Verification {
	m, err := r.lookup.Membership(ctx, ch)
	if err != nil {
		return verdictFromError(err)
	}
	return Verdict(m)
}

// Verdict applies the membership decision table.
func Verdict(m post.Membership) post.Verification {
	switch m.Status {
	case post.StatusOwner:
		return post.Verified()
	case post.StatusAdministrator:
		if m.CanPost == post.PostDenied {
			return post.NotVerified("missing post permission")
		}
		return post.Verified()
	case "", post.StatusLeft, post.StatusKicked:
		return post.NotVerified("not a member")
	default:
		return post.NotVerified(fmt.Sprintf("not an admin (status: %s)", m.Status))
	}
}

func verdictFromError(err error) post.Verification {
	if pe, ok := kit.AsPlatformError(err); ok {
		switch pe.Kind {
		case kit.ErrKindForbidden:
			return post.NotVerified("not a member")
		case kit.ErrKindNotFound:
			return post.NotVerified("channel not found or bot removed")
		}
		return post.NotVerified("cannot access channel: " + tgui.TruncRunes(pe.Error(), reasonDetailLimit))
	}
	return post.NotVerified("cannot access channel: " + tgui.TruncRunes(err.Error(), reasonDetailLimit))
}

func (r *Registry) publishCount(ctx context.Context, user int64) {
	if r.bus == nil {
		return
	}
	chans, err := r.store.Channels(ctx, user)
	if err != nil {
		return
	}
	r.bus.Publish(eventbus.Event{Type: eventbus.TopicChannelChanged, Data: eventbus.Counted{Owner: user, Total: len(chans)}})
}
