// Package render interprets the backend's declarative action list into an
// ordered sequence of Telegram message directives: validate, map keyboards,
// chunk oversized text, emit. Delivery itself stays outside.
package render

import (
	"strings"

	"github.com/ProkopovichN/SkillTrainerBot/internal/backend"
	"github.com/ProkopovichN/SkillTrainerBot/internal/telegram"
)

const ParseModeHTML = "HTML"

// OutboundMessage is one sendMessage call to make. Keyboard is non-nil only
// on the final chunk of its action.
type OutboundMessage struct {
	ChatID    int64
	Text      string
	ParseMode string
	Keyboard  *telegram.InlineKeyboardMarkup
}

// Render turns a normalized action list into outbound messages. Actions of
// unrecognized type, without a chat id, or with empty text produce nothing.
// Output order follows action order, then chunk order within an action.
func Render(actions []backend.Action, limit int) []OutboundMessage {
	var out []OutboundMessage
	for _, action := range actions {
		if action.Type != backend.ActionSendMessage {
			continue
		}
		if action.ChatID == 0 {
			continue
		}
		text := strings.TrimSpace(action.Text)
		if text == "" {
			continue
		}
		parseMode := action.ParseMode
		if parseMode == "" {
			parseMode = ParseModeHTML
		}
		keyboard := Markup(action.Keyboard)

		parts := Chunks(text, limit)
		for i, part := range parts {
			msg := OutboundMessage{
				ChatID:    action.ChatID,
				Text:      part,
				ParseMode: parseMode,
			}
			if i == len(parts)-1 {
				msg.Keyboard = keyboard
			}
			out = append(out, msg)
		}
	}
	return out
}

// Markup maps a backend keyboard onto Telegram inline markup, preserving row
// and button order. Buttons without a label and rows left empty are dropped;
// a keyboard with no usable rows yields nil.
func Markup(kb *backend.Keyboard) *telegram.InlineKeyboardMarkup {
	if kb == nil {
		return nil
	}
	var rows [][]telegram.InlineKeyboardButton
	for _, row := range kb.Inline {
		var buttons []telegram.InlineKeyboardButton
		for _, b := range row {
			label := strings.TrimSpace(b.Text)
			if label == "" {
				continue
			}
			buttons = append(buttons, telegram.InlineKeyboardButton{
				Text:         label,
				CallbackData: b.CallbackPayload(),
			})
		}
		if len(buttons) > 0 {
			rows = append(rows, buttons)
		}
	}
	if len(rows) == 0 {
		return nil
	}
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}
