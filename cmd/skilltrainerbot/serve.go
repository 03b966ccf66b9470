package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ProkopovichN/SkillTrainerBot/internal/asr"
	"github.com/ProkopovichN/SkillTrainerBot/internal/backend"
	"github.com/ProkopovichN/SkillTrainerBot/internal/dedup"
	"github.com/ProkopovichN/SkillTrainerBot/internal/gateway"
	"github.com/ProkopovichN/SkillTrainerBot/internal/telegram"
)

const telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway (long polling or webhook, plus the push endpoint)",
		RunE: func(cmd *cobra.Command, args []string) error {
			token := strings.TrimSpace(flagOrViperString(cmd, "telegram-bot-token", "telegram.bot_token"))
			if token == "" {
				return fmt.Errorf("missing telegram.bot_token (set via --telegram-bot-token or %s_TELEGRAM_BOT_TOKEN)", envPrefix)
			}
			backendURL := strings.TrimSpace(flagOrViperString(cmd, "backend-url", "backend.url"))
			if backendURL == "" {
				return fmt.Errorf("missing backend.url (set via --backend-url or %s_BACKEND_URL)", envPrefix)
			}

			logger, err := loggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			api := telegram.NewAPI(nil, viper.GetString("telegram.base_url"), token)

			me, err := api.GetMe(cmd.Context())
			if err != nil {
				return fmt.Errorf("telegram token check: %w", err)
			}

			window, closeWindow := dedupWindowFromViper(logger)
			defer closeWindow()

			client := backend.NewClient(nil, backendURL, viper.GetString("backend.token"), viper.GetDuration("backend.timeout"))

			resolver := asr.NewResolver(asr.Config{
				TranscribeURL:   viper.GetString("transcribe.url"),
				TranscribeToken: viper.GetString("transcribe.token"),
				APIKey:          viper.GetString("asr.api_key"),
				Model:           viper.GetString("asr.model"),
				URL:             viper.GetString("asr.url"),
				Language:        viper.GetString("asr.language"),
				Timeout:         viper.GetDuration("asr.timeout"),
				FFmpegBinary:    viper.GetString("ffmpeg.binary"),
			}, nil, logger)

			controller, err := gateway.New(gateway.Options{
				Dedup:        window,
				Backend:      client,
				Resolver:     resolver,
				Sender:       api,
				Voice:        api,
				MessageLimit: viper.GetInt("telegram.max_message_length"),
				Logger:       logger,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := api.SetMyCommands(ctx, []telegram.BotCommand{
				{Command: "start", Description: "Начать тренировку"},
			}); err != nil {
				logger.Warn("set_my_commands_error", "error", err.Error())
			}

			webhookEnabled := flagOrViperBool(cmd, "webhook-enabled", "webhook.enabled")
			webhookPath := strings.TrimSpace(viper.GetString("webhook.path"))
			if webhookPath == "" {
				webhookPath = "/tg/webhook"
			}
			webhookSecret := viper.GetString("webhook.secret")

			r := chi.NewRouter()
			r.Use(middleware.RequestID)
			r.Use(middleware.RealIP)
			r.Use(middleware.Recoverer)

			r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(map[string]any{
					"ok":   true,
					"time": time.Now().Format(time.RFC3339Nano),
				})
			})

			pushToken := strings.TrimSpace(viper.GetString("push.token"))
			if pushToken != "" {
				r.Post("/push", pushHandler(pushToken, controller.HandlePush))
			} else {
				logger.Warn("push_disabled", "reason", "push.token not set")
			}

			if webhookEnabled {
				r.Post(webhookPath, webhookHandler(webhookSecret, logger, func(u telegram.Update) {
					go controller.HandleUpdate(context.WithoutCancel(ctx), u)
				}))

				webhookURL := strings.TrimRight(strings.TrimSpace(viper.GetString("webhook.url")), "/")
				if webhookURL == "" {
					return fmt.Errorf("webhook.enabled is true but webhook.url is empty")
				}
				if err := api.SetWebhook(ctx, webhookURL+webhookPath, webhookSecret, true); err != nil {
					return fmt.Errorf("set webhook: %w", err)
				}
			} else {
				// Stale webhooks block getUpdates.
				if err := api.DeleteWebhook(ctx, false); err != nil {
					logger.Warn("delete_webhook_error", "error", err.Error())
				}
				pollTimeout := flagOrViperDuration(cmd, "telegram-poll-timeout", "telegram.poll_timeout")
				go pollUpdates(ctx, api, logger, pollTimeout, controller.HandleUpdate)
			}

			addr := viper.GetString("listen.host") + ":" + strconv.Itoa(viper.GetInt("listen.port"))
			srv := &http.Server{
				Addr:              addr,
				Handler:           r,
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.ListenAndServe()
			}()

			logger.Info("gateway_start",
				"addr", addr,
				"bot_username", me.Username,
				"backend_url", backendURL,
				"webhook_enabled", webhookEnabled,
				"asr_configured", resolver.Configured(),
			)

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("gateway_stop")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().String("telegram-bot-token", "", "Telegram bot token.")
	cmd.Flags().String("backend-url", "", "Base URL of the decision backend.")
	cmd.Flags().Bool("webhook-enabled", false, "Receive updates over a webhook instead of long polling.")
	cmd.Flags().Duration("telegram-poll-timeout", 30*time.Second, "Long polling timeout for getUpdates.")

	return cmd
}

// pollUpdates drives getUpdates until ctx is canceled. Each update runs in
// its own goroutine; ordering across chats does not matter and the dedup
// window absorbs redeliveries.
func pollUpdates(ctx context.Context, api *telegram.API, logger *slog.Logger, timeout time.Duration, handle func(context.Context, telegram.Update)) {
	var offset int64
	for {
		if ctx.Err() != nil {
			return
		}
		updates, nextOffset, err := api.GetUpdates(ctx, offset, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("get_updates_error", "error", err.Error())
			time.Sleep(1 * time.Second)
			continue
		}
		offset = nextOffset

		for _, u := range updates {
			go handle(context.WithoutCancel(ctx), u)
		}
	}
}

// webhookHandler validates the platform secret header, acknowledges the
// delivery immediately and hands the update off to the pipeline. Telegram
// retries non-2xx deliveries, so only a malformed body is worth a 400.
func webhookHandler(secret string, logger *slog.Logger, handle func(telegram.Update)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if secret != "" {
			got := r.Header.Get(telegramSecretHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
		}
		var u telegram.Update
		if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
			logger.Warn("webhook_bad_body", "error", err.Error())
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		handle(u)
		w.WriteHeader(http.StatusOK)
	}
}

// pushHandler lets the backend send messages on its own schedule. Every
// action must carry an explicit chat_id; there is no inbound update to
// default from.
func pushHandler(token string, handle func(context.Context, *backend.Response) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !checkAuth(r, token) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var push backend.Response
		if err := json.NewDecoder(r.Body).Decode(&push); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if err := handle(r.Context(), &push); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}
}

func checkAuth(r *http.Request, token string) bool {
	got := strings.TrimSpace(r.Header.Get("Authorization"))
	want := "Bearer " + strings.TrimSpace(token)
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func dedupWindowFromViper(logger *slog.Logger) (dedup.Window, func()) {
	addr := strings.TrimSpace(viper.GetString("dedup.redis_addr"))
	if addr == "" {
		return dedup.NewMemoryWindow(viper.GetInt("dedup.window")), func() {}
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: viper.GetString("dedup.redis_password"),
	})
	logger.Info("dedup_redis", "addr", addr)
	return dedup.NewRedisWindow(rdb, viper.GetDuration("dedup.ttl"), logger), func() { _ = rdb.Close() }
}
