package router

import (
	"strings"

	"postbot/pkg/tgui"
)

// HelpText renders HTML help. With an argument it describes that command;
// owner-only commands are listed only for owners.
func (r *Router) HelpText(args []string, owner bool) string {
	if len(args) > 0 {
		name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(args[0]), "/"))
		r.mu.RLock()
		c := r.cmds[name]
		r.mu.RUnlock()
		if c == nil || (c.Access == AccessOwnerOnly && !owner) {
			return tgui.New().Title("❓", "Unknown command").Line("Send /help to see every command.").Build().Text
		}
		b := tgui.New().Title("ℹ️", "/"+c.Name)
		if c.Description != "" {
			b.Line(c.Description)
		}
		if c.Usage != "" {
			b.Blank().RawLine("Usage: " + tgui.Code(c.Usage).String())
		}
		if len(c.Aliases) > 0 {
			b.KV("Aliases", "/"+strings.Join(c.Aliases, ", /"))
		}
		return b.Build().Text
	}

	b := tgui.New().Title("📚", "Commands").Line("Send /help <command> for details.").Blank()
	var locked []Command
	for _, c := range r.Commands() {
		if c.Hidden {
			continue
		}
		if c.Access == AccessOwnerOnly {
			locked = append(locked, c)
			continue
		}
		b.RawLine(helpRow(c))
	}
	if owner && len(locked) > 0 {
		b.Blank().Section("Owner")
		for _, c := range locked {
			b.RawLine("🔒 " + helpRow(c))
		}
	}
	return b.Build().Text
}

func helpRow(c Command) string {
	row := "/" + tgui.Esc(c.Name).String()
	if c.Description != "" {
		row += " - " + tgui.Esc(c.Description).String()
	}
	return row
}
