package router

import (
	"strings"

	"github.com/google/uuid"
)

// newReqID returns a short id correlating the log lines of one update.
func newReqID() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")[:12]
}

// tokenizeCommandLine splits arguments on whitespace, honoring single and
// double quotes and backslash escapes:
//
//	/addchannel "@my channel" -100123
func tokenizeCommandLine(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var (
		out    []string
		buf    strings.Builder
		quote  byte
		esc    bool
		inWord bool
	)
	flush := func() {
		if inWord {
			out = append(out, buf.String())
			buf.Reset()
			inWord = false
		}
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case esc:
			buf.WriteByte(ch)
			esc = false
		case ch == '\\':
			esc, inWord = true, true
		case quote != 0:
			if ch == quote {
				quote = 0
			} else {
				buf.WriteByte(ch)
			}
		case ch == '"' || ch == '\'':
			quote, inWord = ch, true
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			flush()
		default:
			buf.WriteByte(ch)
			inWord = true
		}
	}
	flush()
	return out
}
