package adapter

import (
	"strings"

	tele "gopkg.in/telebot.v4"

	"postbot/internal/post"
	kit "postbot/internal/transport"
)

// toMessage flattens a telebot message. The caption stands in for the text
// of media messages.
func toMessage(m *tele.Message) *kit.Message {
	if m == nil || m.Chat == nil {
		return nil
	}
	out := &kit.Message{
		ID:       m.ID,
		ChatID:   m.Chat.ID,
		ThreadID: m.ThreadID,
		Text:     m.Text,
		IsGroup:  m.Chat.Type == tele.ChatGroup || m.Chat.Type == tele.ChatSuperGroup,
	}
	if m.Sender != nil {
		out.FromID = m.Sender.ID
		out.FromUsername = m.Sender.Username
	}
	if out.Text == "" {
		out.Text = m.Caption
	}
	out.Media = mediaOf(m)
	out.HasAttachment = out.Media != nil || m.Document != nil || m.Sticker != nil ||
		m.Audio != nil || m.Voice != nil || m.VideoNote != nil
	out.ForwardedFrom = forwardOrigin(m)
	return out
}

func mediaOf(m *tele.Message) *post.Media {
	switch {
	case m.Photo != nil:
		return &post.Media{Kind: post.MediaImage, Handle: m.Photo.FileID}
	case m.Animation != nil:
		return &post.Media{Kind: post.MediaAnimation, Handle: m.Animation.FileID}
	case m.Video != nil:
		return &post.Media{Kind: post.MediaVideo, Handle: m.Video.FileID}
	case m.Document != nil && strings.HasPrefix(strings.ToLower(m.Document.MIME), "image/"):
		// Images sent "as file" are posted as photos by file id.
		return &post.Media{Kind: post.MediaImage, Handle: m.Document.FileID}
	}
	return nil
}

func forwardOrigin(m *tele.Message) *kit.ForwardOrigin {
	if m.Origin == nil || m.Origin.Chat == nil {
		return nil
	}
	c := m.Origin.Chat
	if c.Type != tele.ChatChannel && c.Type != tele.ChatChannelPrivate {
		return nil
	}
	return &kit.ForwardOrigin{Chat: post.NumericChannel(c.ID), Title: c.Title}
}
