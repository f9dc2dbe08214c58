package tgui

import tele "gopkg.in/telebot.v4"

// Stacked builds a keyboard with one button per row.
func Stacked(btns ...tele.Btn) *Inline {
	kb := NewInline()
	for _, b := range btns {
		kb.Row(b)
	}
	return kb
}
