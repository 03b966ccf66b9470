package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ProkopovichN/SkillTrainerBot/internal/backend"
	"github.com/ProkopovichN/SkillTrainerBot/internal/telegram"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCheckAuth(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		header string
		token  string
		want   bool
	}{
		{"valid", "Bearer secret", "secret", true},
		{"padded", "  Bearer secret  ", "secret", true},
		{"wrong token", "Bearer nope", "secret", false},
		{"missing header", "", "secret", false},
		{"wrong scheme", "Token secret", "secret", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/push", nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			if got := checkAuth(r, tc.token); got != tc.want {
				t.Fatalf("checkAuth mismatch: got %v want %v", got, tc.want)
			}
		})
	}
}

func TestPushHandlerRejectsWithoutSending(t *testing.T) {
	t.Parallel()

	called := false
	h := pushHandler("secret", func(context.Context, *backend.Response) error {
		called = true
		return nil
	})

	r := httptest.NewRequest(http.MethodPost, "/push", strings.NewReader(`{"text":"hi"}`))
	w := httptest.NewRecorder()
	h(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status mismatch: got %d want %d", w.Code, http.StatusUnauthorized)
	}
	if called {
		t.Fatalf("handler must not run for unauthorized requests")
	}
}

func TestPushHandlerForwardsPayload(t *testing.T) {
	t.Parallel()

	var got *backend.Response
	h := pushHandler("secret", func(_ context.Context, push *backend.Response) error {
		got = push
		return nil
	})

	body := `{"actions": [{"type": "send_message", "chat_id": 42, "text": "напоминание"}]}`
	r := httptest.NewRequest(http.MethodPost, "/push", strings.NewReader(body))
	r.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	h(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status mismatch: got %d want %d", w.Code, http.StatusOK)
	}
	if got == nil || !got.HasActions() {
		t.Fatalf("expected an actions payload, got %+v", got)
	}
}

func TestPushHandlerBadJSON(t *testing.T) {
	t.Parallel()

	h := pushHandler("secret", func(context.Context, *backend.Response) error { return nil })
	r := httptest.NewRequest(http.MethodPost, "/push", strings.NewReader(`{`))
	r.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	h(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status mismatch: got %d want %d", w.Code, http.StatusBadRequest)
	}
}

func TestPushHandlerSendFailure(t *testing.T) {
	t.Parallel()

	h := pushHandler("secret", func(context.Context, *backend.Response) error {
		return errors.New("telegram http 403: bot was blocked")
	})
	r := httptest.NewRequest(http.MethodPost, "/push", strings.NewReader(`{"text":"hi"}`))
	r.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	h(w, r)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status mismatch: got %d want %d", w.Code, http.StatusBadGateway)
	}
}

func TestWebhookHandlerSecretCheck(t *testing.T) {
	t.Parallel()

	delivered := 0
	h := webhookHandler("s3cret", discardLogger(), func(telegram.Update) { delivered++ })

	r := httptest.NewRequest(http.MethodPost, "/tg/webhook", strings.NewReader(`{"update_id":1}`))
	w := httptest.NewRecorder()
	h(w, r)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status mismatch: got %d want %d", w.Code, http.StatusForbidden)
	}

	r = httptest.NewRequest(http.MethodPost, "/tg/webhook", strings.NewReader(`{"update_id":1}`))
	r.Header.Set(telegramSecretHeader, "s3cret")
	w = httptest.NewRecorder()
	h(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status mismatch: got %d want %d", w.Code, http.StatusOK)
	}
	if delivered != 1 {
		t.Fatalf("delivered mismatch: got %d want 1", delivered)
	}
}

func TestWebhookHandlerNoSecretConfigured(t *testing.T) {
	t.Parallel()

	var got telegram.Update
	h := webhookHandler("", discardLogger(), func(u telegram.Update) { got = u })

	r := httptest.NewRequest(http.MethodPost, "/tg/webhook", strings.NewReader(`{"update_id":7,"message":{"message_id":1,"chat":{"id":100},"text":"привет"}}`))
	w := httptest.NewRecorder()
	h(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status mismatch: got %d want %d", w.Code, http.StatusOK)
	}
	if got.UpdateID != 7 || got.Message == nil || got.Message.Text != "привет" {
		t.Fatalf("update mismatch: got %+v", got)
	}
}
