package tgui

import "strings"

// ModeMarkdownV2 is Telegram's MarkdownV2 parse mode name.
const ModeMarkdownV2 = "MarkdownV2"

// md2Reserved is the MarkdownV2 reserved set escaped by EscMD2.
// Backslash is deliberately absent: callers never pass pre-escaped text.
const md2Reserved = "_*[]()~`>#+-=|{}.!"

// EscMD2 escapes text for MarkdownV2 in a single pass: every reserved
// character gets one backslash in front. Applying it twice escapes twice.
func EscMD2(s string) string {
	if !strings.ContainsAny(s, md2Reserved) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + len(s)/4)
	for _, r := range s {
		if r < 0x80 && strings.IndexByte(md2Reserved, byte(r)) >= 0 {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
