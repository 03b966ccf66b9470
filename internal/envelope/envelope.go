// Package envelope defines the canonical backend-request payload and the
// pure builders that map classified Telegram events onto it. Builders do no
// I/O; two calls with identical inputs differ only in the generated event id.
package envelope

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	SourceTelegram = "telegram"
	SourceVoice    = "voice"

	EventTypeText     = "text"
	EventTypeCallback = "callback"
)

// Identity names the sender of an inbound update.
type Identity struct {
	UserID   int64
	ChatID   int64
	Username string
}

type User struct {
	UserID   int64  `json:"user_id"`
	ChatID   int64  `json:"chat_id"`
	Username string `json:"username,omitempty"`
}

type Event struct {
	Type   string          `json:"type"`
	Text   string          `json:"text,omitempty"`
	Source string          `json:"source,omitempty"`
	Data   string          `json:"data,omitempty"`
	Raw    json.RawMessage `json:"raw,omitempty"`
}

type ASR struct {
	Confidence *float64 `json:"confidence,omitempty"`
}

type Meta struct {
	Source        string `json:"source"`
	ClientTS      string `json:"client_ts"`
	ASR           *ASR   `json:"asr,omitempty"`
	VoiceSeconds  int    `json:"voice_seconds,omitempty"`
	ASRDurationMS int64  `json:"asr_duration_ms,omitempty"`
}

// Envelope is the body of POST {backend}/ingest. EventID is freshly
// generated per envelope; TelegramUpdateID echoes the platform update id so
// the backend can deduplicate on its side.
type Envelope struct {
	EventID          string `json:"event_id"`
	TelegramUpdateID int64  `json:"telegram_update_id"`
	User             User   `json:"user"`
	Event            Event  `json:"event"`
	Meta             Meta   `json:"meta"`
}

func base(updateID int64, id Identity, event Event, clientTS time.Time) Envelope {
	return Envelope{
		EventID:          uuid.NewString(),
		TelegramUpdateID: updateID,
		User: User{
			UserID:   id.UserID,
			ChatID:   id.ChatID,
			Username: id.Username,
		},
		Event: event,
		Meta: Meta{
			Source:   SourceTelegram,
			ClientTS: clientTS.UTC().Format(time.RFC3339),
		},
	}
}

// Text builds an envelope for a plain text message.
func Text(updateID int64, id Identity, text string, raw json.RawMessage, clientTS time.Time) Envelope {
	return base(updateID, id, Event{
		Type: EventTypeText,
		Text: text,
		Raw:  raw,
	}, clientTS)
}

// Voice builds an envelope for voice-derived text. confidence may be nil
// when the transcription provider reported none (or was skipped).
func Voice(updateID int64, id Identity, transcript string, confidence *float64, voiceSeconds int, asrDuration time.Duration, raw json.RawMessage, clientTS time.Time) Envelope {
	env := base(updateID, id, Event{
		Type:   EventTypeText,
		Text:   transcript,
		Source: SourceVoice,
		Raw:    raw,
	}, clientTS)
	env.Meta.ASR = &ASR{Confidence: confidence}
	env.Meta.VoiceSeconds = voiceSeconds
	env.Meta.ASRDurationMS = asrDuration.Milliseconds()
	return env
}

// Callback builds an envelope for an inline keyboard button press.
func Callback(updateID int64, id Identity, data string, raw json.RawMessage, clientTS time.Time) Envelope {
	return base(updateID, id, Event{
		Type: EventTypeCallback,
		Data: data,
		Raw:  raw,
	}, clientTS)
}
