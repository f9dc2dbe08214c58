package router

import (
	"strings"

	kit "postbot/internal/transport"
)

const (
	maxMenuCommands = 100
	maxMenuDesc     = 256
	maxCommandLen   = 32
)

// sanitizeCommand maps s onto Telegram's command charset [a-z0-9_]{1,32}.
// Separators become one underscore; other characters are dropped.
func sanitizeCommand(s string) string {
	var b strings.Builder
	under := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			under = false
		case r == '_' || r == '-' || r == ' ' || r == '/':
			if b.Len() > 0 && !under {
				b.WriteByte('_')
				under = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if len(out) > maxCommandLen {
		out = strings.TrimRight(out[:maxCommandLen], "_")
	}
	return out
}

// MenuCommands lists visible everyone-access commands for the client's
// command menu. Owner-only commands stay out so regular users don't see them.
func (r *Router) MenuCommands() []kit.BotCommand {
	out := make([]kit.BotCommand, 0, 16)
	seen := map[string]bool{}
	for _, c := range r.Commands() {
		if c.Hidden || c.Access == AccessOwnerOnly {
			continue
		}
		name := sanitizeCommand(c.Name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		desc := strings.ReplaceAll(strings.TrimSpace(c.Description), "\n", " ")
		if desc == "" {
			desc = name
		}
		if len(desc) > maxMenuDesc {
			desc = desc[:maxMenuDesc]
		}
		out = append(out, kit.BotCommand{Command: name, Description: desc})
		if len(out) == maxMenuCommands {
			break
		}
	}
	return out
}
