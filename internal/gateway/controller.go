// Package gateway drives the per-update pipeline: dedup check, event
// classification, voice resolution, envelope building, the backend round
// trip and response delivery, plus the backend-initiated push path. No
// failure in here is fatal to the process: every update ends in a silent
// discard, a delivered reply, or a single soft-failure message.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/ProkopovichN/SkillTrainerBot/internal/asr"
	"github.com/ProkopovichN/SkillTrainerBot/internal/backend"
	"github.com/ProkopovichN/SkillTrainerBot/internal/dedup"
	"github.com/ProkopovichN/SkillTrainerBot/internal/envelope"
	"github.com/ProkopovichN/SkillTrainerBot/internal/render"
	"github.com/ProkopovichN/SkillTrainerBot/internal/telegram"
)

// User-visible copy. Technical detail stays in logs only.
const (
	softFailureText = "Техническая ошибка при обращении к бэкенду. Попробуйте позже."
	voiceRetryText  = "Не удалось распознать голос. Повторите голосом или отправьте текст."
	emptyReplyText  = "Ответ пустой. Попробуйте ещё раз."
	pendingText     = "Уже готовлю ответ на предыдущий запрос. Подожди пару секунд."
)

var loadingTexts = []string{
	"Думаю над ответом...",
	"Сверяюсь с тренажёром, секундочку.",
	"Перебираю лучшие подсказки для тебя.",
	"Считаю баллы, не переключайся!",
}

const pendingWarnCooldown = 5 * time.Second

// Sender is the outbound Telegram capability the controller drives.
type Sender interface {
	SendMessage(ctx context.Context, req telegram.SendMessageRequest) (*telegram.Message, error)
	EditMessageText(ctx context.Context, req telegram.EditMessageTextRequest) error
	AnswerCallbackQuery(ctx context.Context, callbackID, text string) error
}

// VoiceDownloader fetches a voice attachment's bytes by file id.
type VoiceDownloader interface {
	DownloadVoice(ctx context.Context, fileID string) ([]byte, string, error)
}

// VoiceResolver turns a voice attachment into text (see internal/asr).
type VoiceResolver interface {
	Resolve(ctx context.Context, download asr.DownloadFunc, durationSeconds int) (asr.Result, error)
}

// BackendClient delivers one envelope and returns the structured response.
type BackendClient interface {
	Send(ctx context.Context, env envelope.Envelope) (*backend.Response, error)
}

type Options struct {
	Dedup        dedup.Window
	Backend      BackendClient
	Resolver     VoiceResolver
	Sender       Sender
	Voice        VoiceDownloader
	MessageLimit int
	Logger       *slog.Logger
	Now          func() time.Time
}

type Controller struct {
	dedup    dedup.Window
	backend  BackendClient
	resolver VoiceResolver
	sender   Sender
	voice    VoiceDownloader
	limit    int
	logger   *slog.Logger
	now      func() time.Time

	mu              sync.Mutex
	pending         map[int64]struct{}
	pendingNoticeAt map[int64]time.Time
}

func New(opts Options) (*Controller, error) {
	if opts.Dedup == nil {
		return nil, fmt.Errorf("dedup window is required")
	}
	if opts.Backend == nil {
		return nil, fmt.Errorf("backend client is required")
	}
	if opts.Resolver == nil {
		return nil, fmt.Errorf("voice resolver is required")
	}
	if opts.Sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	if opts.Voice == nil {
		return nil, fmt.Errorf("voice downloader is required")
	}
	limit := opts.MessageLimit
	if limit <= 0 {
		limit = render.DefaultMessageLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{
		dedup:           opts.Dedup,
		backend:         opts.Backend,
		resolver:        opts.Resolver,
		sender:          opts.Sender,
		voice:           opts.Voice,
		limit:           limit,
		logger:          logger,
		now:             now,
		pending:         make(map[int64]struct{}),
		pendingNoticeAt: make(map[int64]time.Time),
	}, nil
}

// HandleUpdate runs the full pipeline for one inbound update. Safe to call
// concurrently for different updates; the dedup window is the only state
// shared across pipelines.
func (c *Controller) HandleUpdate(ctx context.Context, u telegram.Update) {
	if c.dedup.Seen(ctx, u.UpdateID) {
		c.logger.Info("update_duplicate", "update_id", u.UpdateID)
		return
	}
	c.dedup.Remember(ctx, u.UpdateID)

	switch {
	case u.CallbackQuery != nil:
		c.handleCallback(ctx, u.UpdateID, u.CallbackQuery)
	case u.Message != nil && u.Message.Chat == nil:
		c.logger.Debug("update_ignored", "update_id", u.UpdateID)
	case u.Message != nil && u.Message.Voice != nil:
		c.handleVoice(ctx, u.UpdateID, u.Message)
	case u.Message != nil && strings.TrimSpace(u.Message.Text) != "":
		c.handleText(ctx, u.UpdateID, u.Message)
	default:
		c.logger.Debug("update_ignored", "update_id", u.UpdateID)
	}
}

func (c *Controller) handleText(ctx context.Context, updateID int64, msg *telegram.Message) {
	text := strings.TrimSpace(msg.Text)
	chatID := msg.Chat.ID
	if text == "/start" {
		c.handleStart(ctx, updateID, msg)
		return
	}
	if strings.HasPrefix(text, "/") {
		c.logger.Debug("command_ignored", "chat_id", chatID, "command", text)
		return
	}

	if !c.acquirePending(chatID) {
		c.warnPending(ctx, chatID)
		return
	}
	defer c.releasePending(chatID)

	loading := c.sendLoading(ctx, chatID)
	env := envelope.Text(updateID, identityFromMessage(msg), text, minimalRaw(msg), msg.SentAt())
	resp, err := c.backend.Send(ctx, env)
	if err != nil {
		c.logger.Error("backend_error", "chat_id", chatID, "event_id", env.EventID, "error", err.Error())
		c.replyOrEdit(ctx, chatID, loading, softFailureText)
		return
	}
	c.deliver(ctx, chatID, resp, loading)
}

func (c *Controller) handleVoice(ctx context.Context, updateID int64, msg *telegram.Message) {
	chatID := msg.Chat.ID
	if !c.acquirePending(chatID) {
		c.warnPending(ctx, chatID)
		return
	}
	defer c.releasePending(chatID)

	started := c.now()
	fileID := msg.Voice.FileID
	result, err := c.resolver.Resolve(ctx, func(ctx context.Context) ([]byte, string, error) {
		return c.voice.DownloadVoice(ctx, fileID)
	}, msg.Voice.Duration)
	if err != nil {
		c.logger.Warn("asr_failed", "chat_id", chatID, "error", err.Error())
		c.sendText(ctx, chatID, voiceRetryText)
		return
	}

	env := envelope.Voice(
		updateID,
		identityFromMessage(msg),
		result.Text,
		result.Confidence,
		msg.Voice.Duration,
		c.now().Sub(started),
		minimalRaw(msg),
		msg.SentAt(),
	)
	resp, err := c.backend.Send(ctx, env)
	if err != nil {
		c.logger.Error("backend_error", "chat_id", chatID, "event_id", env.EventID, "error", err.Error())
		c.sendText(ctx, chatID, softFailureText)
		return
	}
	c.deliver(ctx, chatID, resp, nil)
}

func (c *Controller) handleCallback(ctx context.Context, updateID int64, cb *telegram.CallbackQuery) {
	if cb.Message == nil || cb.Message.Chat == nil {
		c.logger.Debug("callback_without_chat", "callback_id", cb.ID)
		return
	}
	chatID := cb.Message.Chat.ID
	if !c.acquirePending(chatID) {
		if c.shouldWarnPending(chatID) {
			_ = c.sender.AnswerCallbackQuery(ctx, cb.ID, pendingText)
		}
		return
	}
	defer c.releasePending(chatID)

	loading := c.sendLoading(ctx, chatID)
	identity := envelope.Identity{ChatID: chatID}
	if cb.From != nil {
		identity.UserID = cb.From.ID
		identity.Username = cb.From.Username
	}
	raw, _ := json.Marshal(map[string]string{"id": cb.ID, "data": cb.Data})
	env := envelope.Callback(updateID, identity, cb.Data, raw, c.now().UTC())

	resp, err := c.backend.Send(ctx, env)
	// Acknowledge the press regardless of the backend outcome so the
	// client stops showing its progress spinner.
	_ = c.sender.AnswerCallbackQuery(ctx, cb.ID, "")
	if err != nil {
		c.logger.Error("backend_error", "chat_id", chatID, "event_id", env.EventID, "error", err.Error())
		c.replyOrEdit(ctx, chatID, loading, softFailureText)
		return
	}
	c.deliver(ctx, chatID, resp, loading)
}

// handleStart greets locally and fires the start event to the backend
// without waiting for its verdict: onboarding must not feel slow because
// the decision service does.
func (c *Controller) handleStart(ctx context.Context, updateID int64, msg *telegram.Message) {
	chatID := msg.Chat.ID
	intro := []string{
		"Привет! 👋 Я помогу тебе подготовиться к встречам с сотрудниками после performance и talent review 💼",
		"Мы разберём сложные сценарии, потренируем фразы и структуру встреч, чтобы ты чувствовал себя увереннее 💪",
	}
	for _, text := range intro {
		c.sendText(ctx, chatID, text)
	}
	if _, err := c.sender.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID:      chatID,
		Text:        "Сколько у тебя опыта руководства?",
		ReplyMarkup: experienceKeyboard(),
	}); err != nil {
		c.logger.Warn("send_error", "chat_id", chatID, "error", err.Error())
	}

	env := envelope.Text(updateID, identityFromMessage(msg), "/start", minimalRaw(msg), msg.SentAt())
	go func() {
		if _, err := c.backend.Send(context.WithoutCancel(ctx), env); err != nil {
			c.logger.Warn("start_event_failed", "chat_id", chatID, "error", err.Error())
		}
	}()
}

// HandlePush renders a backend-initiated payload with no dedup and no
// backend round trip. Authorization happens at the HTTP boundary before
// this is called.
func (c *Controller) HandlePush(ctx context.Context, push *backend.Response) error {
	msgs := render.Render(push.Normalize(0), c.limit)
	var firstErr error
	for _, m := range msgs {
		if _, err := c.sender.SendMessage(ctx, telegram.SendMessageRequest{
			ChatID:      m.ChatID,
			Text:        m.Text,
			ParseMode:   m.ParseMode,
			ReplyMarkup: m.Keyboard,
		}); err != nil {
			c.logger.Warn("push_send_error", "chat_id", m.ChatID, "error", err.Error())
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// deliver renders the backend response and sends the chunks in order. When
// a loading message exists, the first chunk replaces it in place; an edit
// failure falls back to a plain send.
func (c *Controller) deliver(ctx context.Context, chatID int64, resp *backend.Response, loading *telegram.Message) {
	msgs := render.Render(resp.Normalize(chatID), c.limit)
	if len(msgs) == 0 {
		if !resp.HasActions() {
			// Legacy shape with nothing to say still owes the user a reply.
			c.replyOrEdit(ctx, chatID, loading, emptyReplyText)
		}
		return
	}
	for i, m := range msgs {
		if i == 0 && loading != nil && m.ChatID == chatID {
			err := c.sender.EditMessageText(ctx, telegram.EditMessageTextRequest{
				ChatID:      chatID,
				MessageID:   loading.MessageID,
				Text:        m.Text,
				ParseMode:   m.ParseMode,
				ReplyMarkup: m.Keyboard,
			})
			if err == nil {
				continue
			}
			c.logger.Warn("edit_error", "chat_id", chatID, "error", err.Error())
		}
		if _, err := c.sender.SendMessage(ctx, telegram.SendMessageRequest{
			ChatID:      m.ChatID,
			Text:        m.Text,
			ParseMode:   m.ParseMode,
			ReplyMarkup: m.Keyboard,
		}); err != nil {
			c.logger.Warn("send_error", "chat_id", m.ChatID, "error", err.Error())
		}
	}
}

func (c *Controller) sendLoading(ctx context.Context, chatID int64) *telegram.Message {
	sent, err := c.sender.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID: chatID,
		Text:   loadingTexts[rand.Intn(len(loadingTexts))],
	})
	if err != nil {
		c.logger.Debug("loading_send_error", "chat_id", chatID, "error", err.Error())
		return nil
	}
	return sent
}

func (c *Controller) replyOrEdit(ctx context.Context, chatID int64, loading *telegram.Message, text string) {
	if loading != nil {
		err := c.sender.EditMessageText(ctx, telegram.EditMessageTextRequest{
			ChatID:    chatID,
			MessageID: loading.MessageID,
			Text:      text,
		})
		if err == nil {
			return
		}
	}
	c.sendText(ctx, chatID, text)
}

func (c *Controller) sendText(ctx context.Context, chatID int64, text string) {
	if _, err := c.sender.SendMessage(ctx, telegram.SendMessageRequest{ChatID: chatID, Text: text}); err != nil {
		c.logger.Warn("send_error", "chat_id", chatID, "error", err.Error())
	}
}

// acquirePending marks a chat as busy; one in-flight pipeline per chat.
func (c *Controller) acquirePending(chatID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.pending[chatID]; busy {
		return false
	}
	c.pending[chatID] = struct{}{}
	return true
}

func (c *Controller) releasePending(chatID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, chatID)
}

func (c *Controller) shouldWarnPending(chatID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if last, ok := c.pendingNoticeAt[chatID]; ok && now.Sub(last) < pendingWarnCooldown {
		return false
	}
	c.pendingNoticeAt[chatID] = now
	return true
}

func (c *Controller) warnPending(ctx context.Context, chatID int64) {
	if !c.shouldWarnPending(chatID) {
		return
	}
	c.sendText(ctx, chatID, pendingText)
}

func identityFromMessage(msg *telegram.Message) envelope.Identity {
	id := envelope.Identity{}
	if msg.Chat != nil {
		id.ChatID = msg.Chat.ID
	}
	if msg.From != nil {
		id.UserID = msg.From.ID
		id.Username = msg.From.Username
	}
	return id
}

// minimalRaw echoes just enough of the platform message for backend-side
// diagnostics, mirroring what the envelope contract allows in event.raw.
func minimalRaw(msg *telegram.Message) json.RawMessage {
	type rawVoice struct {
		FileID   string `json:"file_id"`
		Duration int    `json:"duration"`
	}
	payload := struct {
		MessageID int64     `json:"message_id"`
		Date      string    `json:"date"`
		Text      string    `json:"text,omitempty"`
		Voice     *rawVoice `json:"voice,omitempty"`
	}{
		MessageID: msg.MessageID,
		Date:      msg.SentAt().Format(time.RFC3339),
		Text:      msg.Text,
	}
	if msg.Voice != nil {
		payload.Voice = &rawVoice{FileID: msg.Voice.FileID, Duration: msg.Voice.Duration}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return b
}

func experienceKeyboard() *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{
			{
				{Text: "Новичок (до года)", CallbackData: "action:experience:newbie"},
			},
			{
				{Text: "1-3 года", CallbackData: "action:experience:1-3"},
				{Text: "3+ лет", CallbackData: "action:experience:3plus"},
			},
		},
	}
}
