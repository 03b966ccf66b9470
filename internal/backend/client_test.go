package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ProkopovichN/SkillTrainerBot/internal/envelope"
)

func testEnvelope() envelope.Envelope {
	return envelope.Text(1001, envelope.Identity{UserID: 7, ChatID: 42}, "hi", nil, time.Now())
}

func TestClientSendSuccess(t *testing.T) {
	t.Parallel()

	var gotAuth string
	var gotBody envelope.Envelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/ingest", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"actions":[{"type":"send_message","chat_id":42,"text":"ok"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, "secret", 5*time.Second)
	resp, err := c.Send(context.Background(), testEnvelope())
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "hi", gotBody.Event.Text)
	require.True(t, resp.HasActions())
	assert.Equal(t, "ok", resp.Actions[0].Text)
}

func TestClientSendNoTokenNoAuthHeader(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"text":"legacy"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, "", 5*time.Second)
	resp, err := c.Send(context.Background(), testEnvelope())
	require.NoError(t, err)
	assert.False(t, resp.HasActions())
	assert.Equal(t, "legacy", resp.Text)
}

func TestClientSendRejected(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad event", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, "", 5*time.Second)
	_, err := c.Send(context.Background(), testEnvelope())
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusUnprocessableEntity, rejected.Status)
	assert.Contains(t, rejected.Body, "bad event")
}

func TestClientSendMalformedBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json at all`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, "", 5*time.Second)
	_, err := c.Send(context.Background(), testEnvelope())
	assert.True(t, errors.Is(err, ErrMalformedResponse), "got %v", err)
}

func TestClientSendTimeoutIsUnreachable(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := NewClient(srv.Client(), srv.URL, "", 50*time.Millisecond)
	_, err := c.Send(context.Background(), testEnvelope())
	assert.True(t, errors.Is(err, ErrUnreachable), "got %v", err)
}

func TestClientSendConnectionRefusedIsUnreachable(t *testing.T) {
	t.Parallel()

	c := NewClient(nil, "http://127.0.0.1:1", "", time.Second)
	_, err := c.Send(context.Background(), testEnvelope())
	assert.True(t, errors.Is(err, ErrUnreachable), "got %v", err)
}
