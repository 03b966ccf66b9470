package envelope

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testIdentity = Identity{UserID: 7, ChatID: 42, Username: "petrov"}

func testTS() time.Time {
	return time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
}

func TestTextEnvelope(t *testing.T) {
	t.Parallel()

	env := Text(1001, testIdentity, "привет", nil, testTS())
	assert.Equal(t, int64(1001), env.TelegramUpdateID)
	assert.Equal(t, EventTypeText, env.Event.Type)
	assert.Equal(t, "привет", env.Event.Text)
	assert.Empty(t, env.Event.Source)
	assert.Empty(t, env.Event.Data)
	assert.Equal(t, SourceTelegram, env.Meta.Source)
	assert.Equal(t, "2026-03-14T10:30:00Z", env.Meta.ClientTS)
	assert.Equal(t, User{UserID: 7, ChatID: 42, Username: "petrov"}, env.User)
	assert.NotEmpty(t, env.EventID)
}

func TestDeterministicUpToEventID(t *testing.T) {
	t.Parallel()

	a := Text(1001, testIdentity, "same input", nil, testTS())
	b := Text(1001, testIdentity, "same input", nil, testTS())
	require.NotEqual(t, a.EventID, b.EventID)
	a.EventID = ""
	b.EventID = ""
	assert.Equal(t, a, b)
}

func TestVoiceEnvelope(t *testing.T) {
	t.Parallel()

	conf := 0.86
	env := Voice(2002, testIdentity, "расшифровка", &conf, 13, 1500*time.Millisecond, nil, testTS())
	assert.Equal(t, EventTypeText, env.Event.Type)
	assert.Equal(t, SourceVoice, env.Event.Source)
	assert.Equal(t, "расшифровка", env.Event.Text)
	require.NotNil(t, env.Meta.ASR)
	require.NotNil(t, env.Meta.ASR.Confidence)
	assert.Equal(t, 0.86, *env.Meta.ASR.Confidence)
	assert.Equal(t, 13, env.Meta.VoiceSeconds)
	assert.Equal(t, int64(1500), env.Meta.ASRDurationMS)
}

func TestVoiceEnvelopeWithoutConfidence(t *testing.T) {
	t.Parallel()

	env := Voice(2003, testIdentity, "[voice message]", nil, 5, 0, nil, testTS())
	require.NotNil(t, env.Meta.ASR)
	assert.Nil(t, env.Meta.ASR.Confidence)

	// A nil confidence must not serialize as confidence:null noise.
	b, err := json.Marshal(env)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "confidence")
}

func TestCallbackEnvelope(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{"id":"cb1","data":"action:experience:newbie"}`)
	env := Callback(3003, testIdentity, "action:experience:newbie", raw, testTS())
	assert.Equal(t, EventTypeCallback, env.Event.Type)
	assert.Equal(t, "action:experience:newbie", env.Event.Data)
	assert.Empty(t, env.Event.Text)
	assert.Equal(t, raw, env.Event.Raw)
}

func TestEnvelopeJSONShape(t *testing.T) {
	t.Parallel()

	env := Text(1001, testIdentity, "hi", json.RawMessage(`{"message_id":5}`), testTS())
	b, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Contains(t, decoded, "event_id")
	assert.Contains(t, decoded, "telegram_update_id")
	assert.Contains(t, decoded, "user")
	assert.Contains(t, decoded, "event")
	assert.Contains(t, decoded, "meta")
}
