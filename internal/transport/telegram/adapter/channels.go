package adapter

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v4"

	"postbot/internal/post"
	kit "postbot/internal/transport"
)

// chatRef addresses a chat by "@handle" or numeric id string.
type chatRef string

func (c chatRef) Recipient() string { return string(c) }

func (a *Adapter) chat(ctx context.Context, ch post.ChannelID) (*tele.Chat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		c   *tele.Chat
		err error
	)
	if ch.IsNumeric() {
		c, err = a.bot.ChatByID(ch.ID)
	} else {
		c, err = a.bot.ChatByUsername(ch.String())
	}
	if err != nil {
		return nil, toPlatformError(err)
	}
	return c, nil
}

func (a *Adapter) ChatTitle(ctx context.Context, ch post.ChannelID) (string, error) {
	c, err := a.chat(ctx, ch)
	if err != nil {
		return "", err
	}
	return c.Title, nil
}

// Membership looks up the bot itself in ch. The post permission is only
// reported for channels.
func (a *Adapter) Membership(ctx context.Context, ch post.ChannelID) (post.Membership, error) {
	c, err := a.chat(ctx, ch)
	if err != nil {
		return post.Membership{}, err
	}
	if a.bot.Me == nil {
		return post.Membership{}, fmt.Errorf("telegram: bot identity unknown")
	}
	m, err := a.bot.ChatMemberOf(c, a.bot.Me)
	if err != nil {
		return post.Membership{}, toPlatformError(err)
	}
	return membership(c.Type, m), nil
}

func membership(chatType tele.ChatType, m *tele.ChatMember) post.Membership {
	if m == nil {
		return post.Membership{Status: post.StatusLeft}
	}
	out := post.Membership{Status: post.MemberStatus(m.Role)}
	if chatType != tele.ChatChannel && chatType != tele.ChatChannelPrivate {
		return out
	}
	switch m.Role {
	case tele.Creator:
		out.CanPost = post.PostGranted
	case tele.Administrator:
		if m.CanPostMessages {
			out.CanPost = post.PostGranted
		} else {
			out.CanPost = post.PostDenied
		}
	default:
		out.CanPost = post.PostDenied
	}
	return out
}

// SendMedia posts media by its Telegram file id.
func (a *Adapter) SendMedia(ctx context.Context, ch post.ChannelID, media post.Media, caption string, opt *kit.SendOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	what, err := mediaPayload(media, caption)
	if err != nil {
		return err
	}
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	_, err = a.bot.Send(chatRef(ch.String()), what, sendOptions(opt, 0, true))
	return toPlatformError(err)
}

func mediaPayload(media post.Media, caption string) (tele.Sendable, error) {
	file := tele.File{FileID: media.Handle}
	switch media.Kind {
	case post.MediaImage:
		return &tele.Photo{File: file, Caption: caption}, nil
	case post.MediaVideo:
		return &tele.Video{File: file, Caption: caption}, nil
	case post.MediaAnimation:
		return &tele.Animation{File: file, Caption: caption}, nil
	}
	return nil, fmt.Errorf("telegram: unsupported media kind %q", media.Kind)
}
