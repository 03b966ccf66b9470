package asr

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// transcoder converts compressed voice audio into 16 kHz mono WAV, the
// widest-compatibility input for transcription providers. Any failure is
// non-fatal: the caller falls back to the original bytes.
type transcoder struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

func (t *transcoder) toWAV(ctx context.Context, data []byte, filename string) ([]byte, bool) {
	binary := t.binary
	if binary == "" {
		binary = "ffmpeg"
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		t.logger.Warn("ffmpeg_unavailable", "binary", binary)
		return nil, false
	}

	dir, err := os.MkdirTemp("", "voice-")
	if err != nil {
		t.logger.Warn("ffmpeg_tempdir_error", "error", err.Error())
		return nil, false
	}
	defer os.RemoveAll(dir)

	suffix := filepath.Ext(filename)
	if suffix == "" {
		suffix = ".oga"
	}
	src := filepath.Join(dir, "in"+suffix)
	dst := filepath.Join(dir, "out.wav")
	if err := os.WriteFile(src, data, 0o600); err != nil {
		t.logger.Warn("ffmpeg_write_error", "error", err.Error())
		return nil, false
	}

	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	cmd := exec.CommandContext(runCtx, path, "-y", "-i", src, "-ar", "16000", "-ac", "1", dst)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		t.logger.Warn("ffmpeg_failed",
			"error", err.Error(),
			"stderr", truncate(stderr.String(), 1000),
		)
		return nil, false
	}

	out, err := os.ReadFile(dst)
	if err != nil {
		t.logger.Warn("ffmpeg_read_error", "error", err.Error())
		return nil, false
	}
	return out, true
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
