package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
)

// httpProvider posts the audio as a multipart upload to an external
// transcription endpoint and expects {"text": ..., "confidence": ...} back.
type httpProvider struct {
	http  *http.Client
	url   string
	token string
}

func (p *httpProvider) name() string { return "http" }

func (p *httpProvider) transcribe(ctx context.Context, audio audioPayload) (string, *float64, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, audio.filename))
	header.Set("Content-Type", contentTypeForAudio(audio.filename))
	part, err := form.CreatePart(header)
	if err != nil {
		return "", nil, err
	}
	if _, err := part.Write(audio.data); err != nil {
		return "", nil, err
	}
	if err := form.Close(); err != nil {
		return "", nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, &body)
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return "", nil, err
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", nil, fmt.Errorf("transcribe http %d: %s", resp.StatusCode, truncate(strings.TrimSpace(string(raw)), 500))
	}

	var out struct {
		Text       string   `json:"text"`
		Confidence *float64 `json:"confidence"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", nil, fmt.Errorf("invalid transcribe response: %w", err)
	}
	text := strings.TrimSpace(out.Text)
	if text == "" {
		return "", nil, fmt.Errorf("transcriber returned empty text")
	}
	return text, out.Confidence, nil
}

func contentTypeForAudio(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".wav", ".wave":
		return "audio/wav"
	case ".ogg", ".oga":
		return "audio/ogg"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	default:
		return "application/octet-stream"
	}
}
