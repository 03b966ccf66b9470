package backend

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseModernShape(t *testing.T) {
	t.Parallel()

	body := `{"actions":[{"type":"send_message","chat_id":42,"text":"hi","parse_mode":"HTML",
		"keyboard":{"inline":[[{"text":"Да","data":"yes"}]]}}]}`
	var resp Response
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	require.True(t, resp.HasActions())

	actions := resp.Normalize(0)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionSendMessage, actions[0].Type)
	assert.Equal(t, int64(42), actions[0].ChatID)
	assert.Equal(t, "hi", actions[0].Text)
	require.NotNil(t, actions[0].Keyboard)
	assert.Equal(t, "yes", actions[0].Keyboard.Inline[0][0].CallbackPayload())
}

func TestResponseLegacyShape(t *testing.T) {
	t.Parallel()

	body := `{"text":"привет","keyboard":[[{"text":"Ок","callback_data":"ok"}]]}`
	var resp Response
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	require.False(t, resp.HasActions())

	actions := resp.Normalize(42)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionSendMessage, actions[0].Type)
	assert.Equal(t, int64(42), actions[0].ChatID)
	assert.Equal(t, "привет", actions[0].Text)
	require.NotNil(t, actions[0].Keyboard)
	assert.Equal(t, "ok", actions[0].Keyboard.Inline[0][0].CallbackPayload())
}

func TestResponseEmptyActionsStaysModern(t *testing.T) {
	t.Parallel()

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(`{"actions":[]}`), &resp))
	assert.True(t, resp.HasActions())
	assert.Empty(t, resp.Normalize(42))
}

func TestKeyboardAcceptsObjectAndArray(t *testing.T) {
	t.Parallel()

	var obj Keyboard
	require.NoError(t, json.Unmarshal([]byte(`{"inline":[[{"text":"A","data":"a"}]]}`), &obj))
	require.Len(t, obj.Inline, 1)

	var arr Keyboard
	require.NoError(t, json.Unmarshal([]byte(`[[{"text":"A","data":"a"}]]`), &arr))
	assert.Equal(t, obj.Inline, arr.Inline)

	var bad Keyboard
	assert.Error(t, json.Unmarshal([]byte(`"nope"`), &bad))
}

func TestButtonCallbackPayloadPrefersCallbackData(t *testing.T) {
	t.Parallel()

	b := Button{Text: "x", Data: "short", CallbackData: "full"}
	assert.Equal(t, "full", b.CallbackPayload())
	assert.Equal(t, "short", Button{Text: "x", Data: "short"}.CallbackPayload())
}

func TestLegacyAndModernNormalizeIdentically(t *testing.T) {
	t.Parallel()

	var legacy Response
	require.NoError(t, json.Unmarshal([]byte(`{"text":"T","keyboard":[[{"text":"B","data":"d"}]]}`), &legacy))

	var modern Response
	require.NoError(t, json.Unmarshal([]byte(
		`{"actions":[{"type":"send_message","chat_id":42,"text":"T","keyboard":[[{"text":"B","data":"d"}]]}]}`), &modern))

	assert.Equal(t, modern.Normalize(42), legacy.Normalize(42))
}
