// Package tgui holds the Telegram UI helpers the bot replies with: an HTML
// message builder, inline keyboards, "scope:action:payload" callback data
// and escapers for the HTML and MarkdownV2 parse modes.
package tgui
