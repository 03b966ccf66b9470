package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"
)

// API is a thin Bot API client. It covers only the methods the gateway
// actually calls; errors carry the HTTP status and a trimmed body preview.
type API struct {
	http    *http.Client
	baseURL string
	token   string
}

func NewAPI(httpClient *http.Client, baseURL, token string) *API {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &API{
		http:    httpClient,
		baseURL: baseURL,
		token:   token,
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	Description string          `json:"description,omitempty"`
}

// call POSTs a JSON body to a Bot API method and unmarshals result into out
// (out may be nil when only the ok flag matters).
func (api *API) call(ctx context.Context, method string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	endpoint := fmt.Sprintf("%s/bot%s/%s", api.baseURL, api.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := api.http.Do(req)
	if err != nil {
		return err
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var wrapped apiResponse
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return fmt.Errorf("telegram %s: invalid response: %w", method, err)
	}
	if !wrapped.OK {
		return fmt.Errorf("telegram %s: ok=false: %s", method, wrapped.Description)
	}
	if out != nil && len(wrapped.Result) > 0 {
		if err := json.Unmarshal(wrapped.Result, out); err != nil {
			return fmt.Errorf("telegram %s: invalid result: %w", method, err)
		}
	}
	return nil
}

func (api *API) GetMe(ctx context.Context) (*User, error) {
	var me User
	if err := api.call(ctx, "getMe", nil, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

// GetUpdates long-polls for updates and returns the next offset to request.
func (api *API) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, int64, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	secs := int(timeout.Seconds())
	if secs < 1 {
		secs = 1
	}
	body := map[string]any{"timeout": secs}
	if offset > 0 {
		body["offset"] = offset
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout+5*time.Second)
	defer cancel()

	var updates []Update
	if err := api.call(reqCtx, "getUpdates", body, &updates); err != nil {
		return nil, offset, err
	}
	next := offset
	for _, u := range updates {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}
	return updates, next, nil
}

type SendMessageRequest struct {
	ChatID                int64                 `json:"chat_id"`
	Text                  string                `json:"text"`
	ParseMode             string                `json:"parse_mode,omitempty"`
	ReplyMarkup           *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
	DisableWebPagePreview bool                  `json:"disable_web_page_preview,omitempty"`
}

func (api *API) SendMessage(ctx context.Context, req SendMessageRequest) (*Message, error) {
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return nil, fmt.Errorf("telegram sendMessage: empty text")
	}
	var sent Message
	if err := api.call(ctx, "sendMessage", req, &sent); err != nil {
		return nil, err
	}
	return &sent, nil
}

type EditMessageTextRequest struct {
	ChatID      int64                 `json:"chat_id"`
	MessageID   int64                 `json:"message_id"`
	Text        string                `json:"text"`
	ParseMode   string                `json:"parse_mode,omitempty"`
	ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

func (api *API) EditMessageText(ctx context.Context, req EditMessageTextRequest) error {
	return api.call(ctx, "editMessageText", req, nil)
}

func (api *API) AnswerCallbackQuery(ctx context.Context, callbackID, text string) error {
	body := map[string]any{"callback_query_id": callbackID}
	if text != "" {
		body["text"] = text
	}
	return api.call(ctx, "answerCallbackQuery", body, nil)
}

func (api *API) GetFile(ctx context.Context, fileID string) (*File, error) {
	var f File
	if err := api.call(ctx, "getFile", map[string]any{"file_id": fileID}, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// DownloadVoice fetches the raw bytes of a voice attachment and reports a
// filename whose suffix reflects the container format (".oga" by default).
func (api *API) DownloadVoice(ctx context.Context, fileID string) ([]byte, string, error) {
	f, err := api.GetFile(ctx, fileID)
	if err != nil {
		return nil, "", err
	}
	filePath := strings.TrimSpace(f.FilePath)
	if filePath == "" {
		return nil, "", fmt.Errorf("telegram getFile: empty file_path")
	}
	endpoint := fmt.Sprintf("%s/file/bot%s/%s", api.baseURL, api.token, filePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := api.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("telegram file download http %d", resp.StatusCode)
	}
	if err != nil {
		return nil, "", err
	}
	name := path.Base(filePath)
	if path.Ext(name) == "" {
		name += ".oga"
	}
	return data, name, nil
}

func (api *API) SetMyCommands(ctx context.Context, commands []BotCommand) error {
	return api.call(ctx, "setMyCommands", map[string]any{"commands": commands}, nil)
}

func (api *API) SetWebhook(ctx context.Context, webhookURL, secret string, dropPending bool) error {
	body := map[string]any{
		"url":                  webhookURL,
		"drop_pending_updates": dropPending,
	}
	if secret != "" {
		body["secret_token"] = secret
	}
	return api.call(ctx, "setWebhook", body, nil)
}

func (api *API) DeleteWebhook(ctx context.Context, dropPending bool) error {
	return api.call(ctx, "deleteWebhook", map[string]any{"drop_pending_updates": dropPending}, nil)
}
