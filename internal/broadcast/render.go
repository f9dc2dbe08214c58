package broadcast

import (
	"strings"

	"postbot/internal/post"
	"postbot/pkg/tgui"
)

const DefaultFooterHandle = "@NeonGhost_Network"

const (
	frameTop    = "╔══════════════════════╗"
	frameBottom = "╚══════════════════════╝"
	rule        = "━━━━━━━━━━━━━━━━━━━━"
)

// Caption renders the MarkdownV2 body for d. Title, link and footer are
// escaped; the framing is literal.
func Caption(d post.Draft, footer string) string {
	footer = strings.TrimSpace(footer)
	if footer == "" {
		footer = DefaultFooterHandle
	}
	var b strings.Builder
	b.WriteString(frameTop + "\n")
	b.WriteString("   🌟 *" + tgui.EscMD2(d.Title) + "* 🌟\n")
	b.WriteString(frameBottom + "\n\n")
	b.WriteString("🔗 *Watch Now:*\n")
	b.WriteString(tgui.EscMD2(d.Link) + "\n\n")
	b.WriteString(rule + "\n")
	b.WriteString("📢 Join: " + tgui.EscMD2(footer) + "\n")
	b.WriteString(rule)
	return strings.TrimSpace(b.String())
}
