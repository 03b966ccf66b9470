// demo-backend is a stand-in decision service for local runs. It accepts
// the gateway's envelopes on POST /ingest and echoes the event back, either
// as the flat legacy shape or as an action list, so both render paths can
// be exercised without a real backend.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type inboundEvent struct {
	EventID string `json:"event_id"`
	User    struct {
		ChatID int64 `json:"chat_id"`
	} `json:"user"`
	Event struct {
		Type   string `json:"type"`
		Text   string `json:"text"`
		Source string `json:"source"`
		Data   string `json:"data"`
	} `json:"event"`
}

func main() {
	addr := flag.String("addr", "127.0.0.1:8000", "listen address")
	legacy := flag.Bool("legacy", false, "answer with the flat text shape instead of actions")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})

	r.Post("/ingest", func(w http.ResponseWriter, req *http.Request) {
		var in inboundEvent
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		logger.Info("event_received",
			"event_id", in.EventID,
			"type", in.Event.Type,
			"source", in.Event.Source,
			"chat_id", in.User.ChatID,
		)

		reply := in.Event.Text
		if in.Event.Type == "callback" {
			reply = "Выбрано: " + in.Event.Data
		}
		if reply == "" {
			reply = "Получено."
		}

		w.Header().Set("Content-Type", "application/json")
		if *legacy {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"text": "Эхо: " + reply,
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"actions": []map[string]any{
				{
					"type":    "send_message",
					"chat_id": in.User.ChatID,
					"text":    "Эхо: " + reply,
					"keyboard": map[string]any{
						"inline": [][]map[string]any{
							{{"text": "Ещё раз", "callback_data": "action:repeat"}},
						},
					},
				},
			},
		})
	})

	logger.Info("demo_backend_start", "addr", *addr, "legacy", *legacy)
	srv := &http.Server{
		Addr:              *addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
