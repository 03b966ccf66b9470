package backend

import (
	"encoding/json"
	"fmt"
)

// ActionSendMessage is the only action type the gateway interprets; anything
// else is skipped without error so backends can roll out new types first.
const ActionSendMessage = "send_message"

type Button struct {
	Text         string `json:"text"`
	Data         string `json:"data,omitempty"`
	CallbackData string `json:"callback_data,omitempty"`
}

// CallbackPayload prefers the explicit callback_data key, falling back to
// the short data alias older backends emit.
func (b Button) CallbackPayload() string {
	if b.CallbackData != "" {
		return b.CallbackData
	}
	return b.Data
}

// Keyboard accepts both {"inline": [[...]]} and the bare [[...]] array the
// legacy shape used.
type Keyboard struct {
	Inline [][]Button `json:"inline"`
}

func (k *Keyboard) UnmarshalJSON(data []byte) error {
	var obj struct {
		Inline [][]Button `json:"inline"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		k.Inline = obj.Inline
		return nil
	}
	var rows [][]Button
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("keyboard is neither object nor row array: %w", err)
	}
	k.Inline = rows
	return nil
}

type Action struct {
	Type      string    `json:"type"`
	ChatID    int64     `json:"chat_id"`
	Text      string    `json:"text"`
	ParseMode string    `json:"parse_mode,omitempty"`
	Keyboard  *Keyboard `json:"keyboard,omitempty"`
}

// Response is the backend's reply to an ingest call, or the body of an
// inbound push. Two shapes are accepted: the modern {"actions":[...]} list
// and the legacy top-level {"text","keyboard"} pair.
type Response struct {
	Actions  []Action
	Text     string
	Keyboard *Keyboard

	hasActions bool
}

func (r *Response) UnmarshalJSON(data []byte) error {
	var wire struct {
		Actions  json.RawMessage `json:"actions"`
		Text     string          `json:"text"`
		Keyboard *Keyboard       `json:"keyboard"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	r.Text = wire.Text
	r.Keyboard = wire.Keyboard
	if len(wire.Actions) > 0 && string(wire.Actions) != "null" {
		r.hasActions = true
		return json.Unmarshal(wire.Actions, &r.Actions)
	}
	return nil
}

// HasActions reports whether the response arrived in the modern shape (an
// actions key was present, even if empty).
func (r *Response) HasActions() bool {
	return r != nil && r.hasActions
}

// Normalize reduces either shape to the canonical action list. The legacy
// shape has no chat id of its own, so defaultChatID (the originating chat)
// fills it in; all downstream logic operates on the returned list only.
func (r *Response) Normalize(defaultChatID int64) []Action {
	if r == nil {
		return nil
	}
	if r.hasActions {
		return r.Actions
	}
	return []Action{{
		Type:     ActionSendMessage,
		ChatID:   defaultChatID,
		Text:     r.Text,
		Keyboard: r.Keyboard,
	}}
}
