package transport

import (
	"context"

	"postbot/internal/post"
)

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool

	// Media is set for photo/video/animation messages (and image documents).
	Media *post.Media
	// HasAttachment is true for any non-text payload, including unsupported ones.
	HasAttachment bool
	// ForwardedFrom is set when the message was forwarded from a channel.
	ForwardedFrom *ForwardOrigin
}

// ForwardOrigin is the channel a forwarded message came from.
type ForwardOrigin struct {
	Chat  post.ChannelID
	Title string
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	ThreadID  int
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// Platform is the channel-facing capability set used by the registry and the
// broadcast engine.
type Platform interface {
	// Membership returns the bot's own membership in chat.
	Membership(ctx context.Context, chat post.ChannelID) (post.Membership, error)
	// ChatTitle returns the display title of chat.
	ChatTitle(ctx context.Context, chat post.ChannelID) (string, error)
	// SendMedia posts media with caption to chat.
	SendMedia(ctx context.Context, chat post.ChannelID, media post.Media, caption string, opt *SendOptions) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
