package post

import (
	"errors"
	"strconv"
	"strings"
)

var ErrInvalidChannel = errors.New("invalid channel id format")

// ChannelID identifies a broadcast target either by numeric chat id or by
// public handle ("@name"). Exactly one of the fields is set.
type ChannelID struct {
	ID       int64
	Username string
}

func NumericChannel(id int64) ChannelID { return ChannelID{ID: id} }

// HandleChannel returns a handle-based id, adding the leading "@" when missing.
func HandleChannel(name string) ChannelID {
	name = strings.TrimSpace(name)
	if name != "" && !strings.HasPrefix(name, "@") {
		name = "@" + name
	}
	return ChannelID{Username: name}
}

func (c ChannelID) IsZero() bool { return c.ID == 0 && c.Username == "" }

func (c ChannelID) IsNumeric() bool { return c.Username == "" && c.ID != 0 }

// String renders the id the way the platform expects it as a chat recipient.
func (c ChannelID) String() string {
	if c.Username != "" {
		return c.Username
	}
	if c.ID == 0 {
		return ""
	}
	return strconv.FormatInt(c.ID, 10)
}

// ParseChannelKey is the inverse of String. It is used by stores.
func ParseChannelKey(s string) (ChannelID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ChannelID{}, ErrInvalidChannel
	}
	if strings.HasPrefix(s, "@") {
		if len(s) == 1 {
			return ChannelID{}, ErrInvalidChannel
		}
		return ChannelID{Username: s}, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id == 0 {
		return ChannelID{}, ErrInvalidChannel
	}
	return ChannelID{ID: id}, nil
}

func (c ChannelID) MarshalText() ([]byte, error) {
	if c.IsZero() {
		return nil, ErrInvalidChannel
	}
	return []byte(c.String()), nil
}

func (c *ChannelID) UnmarshalText(b []byte) error {
	v, err := ParseChannelKey(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}
