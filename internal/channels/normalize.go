package channels

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"postbot/internal/post"
)

// ErrInviteLink rejects private invite links, which carry no resolvable handle.
var ErrInviteLink = errors.New("invite links cannot be resolved; forward a post from the channel instead")

// Normalize turns user input into a ChannelID:
//   - "t.me/name", "https://telegram.me/name" -> @name
//   - "-1001234", "1234"                     -> numeric id
//   - "@name", "name"                        -> @name
func Normalize(input string) (post.ChannelID, error) {
	s := strings.TrimSpace(input)
	if s == "" || strings.ContainsAny(s, " \t\n") {
		return post.ChannelID{}, post.ErrInvalidChannel
	}

	if i := linkHost(s); i >= 0 {
		path := strings.Trim(s[i:], "/")
		if q := strings.IndexAny(path, "?#"); q >= 0 {
			path = path[:q]
		}
		seg := path[strings.LastIndex(path, "/")+1:]
		if strings.HasPrefix(path, "+") || strings.HasPrefix(path, "joinchat") {
			return post.ChannelID{}, ErrInviteLink
		}
		if seg == "" || seg == "@" {
			return post.ChannelID{}, post.ErrInvalidChannel
		}
		return post.HandleChannel(strings.TrimPrefix(seg, "@")), nil
	}

	if strings.HasPrefix(s, "-100") || isDigits(strings.TrimLeft(s, "-")) {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id == 0 {
			return post.ChannelID{}, fmt.Errorf("%w: %q", post.ErrInvalidChannel, s)
		}
		return post.NumericChannel(id), nil
	}

	if s == "@" {
		return post.ChannelID{}, post.ErrInvalidChannel
	}
	return post.HandleChannel(s), nil
}

// linkHost returns the index just past "t.me/" or "telegram.me/", or -1.
func linkHost(s string) int {
	for _, host := range []string{"telegram.me/", "t.me/"} {
		if i := strings.Index(s, host); i >= 0 {
			return i + len(host)
		}
	}
	return -1
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
