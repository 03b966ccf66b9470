// Package asr resolves voice attachments into text. The download capability
// is furnished by the caller; transcoding is best-effort; the transcription
// provider is chosen once at construction and never probed at runtime.
package asr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// PlaceholderText substitutes for a transcript when no provider is
// configured. Substitution is not an error condition.
const PlaceholderText = "[voice message]"

// ErrTranscriptionFailed marks recoverable provider failures: the caller
// should ask the user to retry by voice or send text, never forward an
// empty transcript.
var ErrTranscriptionFailed = errors.New("transcription failed")

// DownloadFunc fetches the raw audio bytes of one voice attachment and its
// filename (the suffix identifies the container format).
type DownloadFunc func(ctx context.Context) (data []byte, filename string, err error)

// Result is a resolved voice input. Skipped means no provider was
// configured and Text holds PlaceholderText.
type Result struct {
	Text       string
	Confidence *float64
	Skipped    bool
}

type audioPayload struct {
	data     []byte
	filename string
	wav      bool
}

type provider interface {
	name() string
	transcribe(ctx context.Context, audio audioPayload) (string, *float64, error)
}

type Config struct {
	// Provider A: external transcription HTTP endpoint.
	TranscribeURL   string
	TranscribeToken string

	// Provider B: hosted ASR; requires both APIKey and Model.
	APIKey   string
	Model    string
	URL      string
	Language string

	Timeout      time.Duration
	FFmpegBinary string
}

type Resolver struct {
	provider   provider // nil when transcription is skipped entirely
	transcoder *transcoder
	timeout    time.Duration
	logger     *slog.Logger
}

func NewResolver(cfg Config, httpClient *http.Client, logger *slog.Logger) *Resolver {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	var p provider
	switch {
	case cfg.TranscribeURL != "":
		p = &httpProvider{
			http:  httpClient,
			url:   cfg.TranscribeURL,
			token: cfg.TranscribeToken,
		}
	case cfg.APIKey != "" && cfg.Model != "":
		p = &hostedProvider{
			http:     httpClient,
			url:      cfg.URL,
			apiKey:   cfg.APIKey,
			model:    cfg.Model,
			language: cfg.Language,
		}
	}

	return &Resolver{
		provider: p,
		transcoder: &transcoder{
			binary:  cfg.FFmpegBinary,
			timeout: timeout,
			logger:  logger,
		},
		timeout: timeout,
		logger:  logger,
	}
}

// Configured reports whether any transcription provider was selected.
func (r *Resolver) Configured() bool {
	return r.provider != nil
}

// Resolve turns one voice attachment into text. Without a provider it
// short-circuits to the placeholder before downloading anything. With a
// provider it downloads, transcodes when possible, and makes exactly one
// transcription call bounded by the configured timeout.
func (r *Resolver) Resolve(ctx context.Context, download DownloadFunc, durationSeconds int) (Result, error) {
	if r.provider == nil {
		r.logger.Info("asr_skipped", "voice_seconds", durationSeconds)
		return Result{Text: PlaceholderText, Skipped: true}, nil
	}

	data, filename, err := download(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("%w: download: %v", ErrTranscriptionFailed, err)
	}

	audio := audioPayload{data: data, filename: filename}
	if wav, ok := r.transcoder.toWAV(ctx, data, filename); ok {
		audio = audioPayload{data: wav, filename: "voice.wav", wav: true}
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	text, confidence, err := r.provider.transcribe(callCtx, audio)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %v", ErrTranscriptionFailed, r.provider.name(), err)
	}
	r.logger.Info("asr_done",
		"provider", r.provider.name(),
		"text_len", len(text),
		"voice_seconds", durationSeconds,
	)
	return Result{Text: text, Confidence: confidence}, nil
}
