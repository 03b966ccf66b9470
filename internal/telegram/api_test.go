package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestGetUpdatesAdvancesOffset(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/getUpdates") {
			t.Fatalf("path mismatch: got %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":[{"update_id":10},{"update_id":12}]}`))
	}))
	defer srv.Close()

	api := NewAPI(srv.Client(), srv.URL, "tok")
	updates, next, err := api.GetUpdates(context.Background(), 0, time.Second)
	if err != nil {
		t.Fatalf("GetUpdates: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("updates mismatch: got %d want 2", len(updates))
	}
	if next != 13 {
		t.Fatalf("offset mismatch: got %d want 13", next)
	}
}

func TestSendMessageRejectsEmptyText(t *testing.T) {
	t.Parallel()

	api := NewAPI(nil, "", "tok")
	if _, err := api.SendMessage(context.Background(), SendMessageRequest{ChatID: 1, Text: "   "}); err == nil {
		t.Fatalf("expected an error for empty text")
	}
}

func TestCallSurfacesOKFalse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	api := NewAPI(srv.Client(), srv.URL, "tok")
	_, err := api.SendMessage(context.Background(), SendMessageRequest{ChatID: 1, Text: "hi"})
	if err == nil {
		t.Fatalf("expected an error for ok=false")
	}
	if !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("error should carry the description, got: %v", err)
	}
}

func TestCallSurfacesHTTPStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	api := NewAPI(srv.Client(), srv.URL, "tok")
	err := api.EditMessageText(context.Background(), EditMessageTextRequest{ChatID: 1, MessageID: 2, Text: "x"})
	if err == nil {
		t.Fatalf("expected an error for http 429")
	}
	if !strings.Contains(err.Error(), "telegram http 429") {
		t.Fatalf("error should carry the status, got: %v", err)
	}
}

func TestDownloadVoiceUsesFilePath(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getFile"):
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["file_id"] != "f1" {
				t.Fatalf("file_id mismatch: got %v", body["file_id"])
			}
			_, _ = w.Write([]byte(`{"ok":true,"result":{"file_id":"f1","file_path":"voice/file_0.oga"}}`))
		case strings.Contains(r.URL.Path, "/file/bottok/voice/file_0.oga"):
			_, _ = w.Write([]byte("audio-bytes"))
		default:
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	api := NewAPI(srv.Client(), srv.URL, "tok")
	data, name, err := api.DownloadVoice(context.Background(), "f1")
	if err != nil {
		t.Fatalf("DownloadVoice: %v", err)
	}
	if string(data) != "audio-bytes" {
		t.Fatalf("data mismatch: got %q", data)
	}
	if name != "file_0.oga" {
		t.Fatalf("name mismatch: got %q want file_0.oga", name)
	}
}
