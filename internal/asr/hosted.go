package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const defaultHostedURL = "https://api.deepgram.com/v1/listen"

// hostedProvider talks to a hosted ASR completion endpoint (Deepgram wire
// format: Token auth, query-string options, nested alternatives). It only
// accepts WAV input, so a missing transcoder surfaces as a provider error.
type hostedProvider struct {
	http     *http.Client
	url      string
	apiKey   string
	model    string
	language string
}

func (p *hostedProvider) name() string { return "hosted" }

func (p *hostedProvider) transcribe(ctx context.Context, audio audioPayload) (string, *float64, error) {
	if !audio.wav {
		return "", nil, fmt.Errorf("wav transcode required but transcoder is unavailable")
	}

	base := p.url
	if base == "" {
		base = defaultHostedURL
	}
	params := url.Values{}
	params.Set("punctuate", "true")
	params.Set("smart_format", "true")
	params.Set("model", p.model)
	if p.language != "" {
		params.Set("language", p.language)
	} else {
		params.Set("detect_language", "true")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"?"+params.Encode(), bytes.NewReader(audio.data))
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := p.http.Do(req)
	if err != nil {
		return "", nil, err
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", nil, fmt.Errorf("hosted asr http %d: %s", resp.StatusCode, truncate(strings.TrimSpace(string(raw)), 500))
	}

	var out struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string   `json:"transcript"`
					Confidence *float64 `json:"confidence"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", nil, fmt.Errorf("invalid hosted asr response: %w", err)
	}
	if len(out.Results.Channels) == 0 || len(out.Results.Channels[0].Alternatives) == 0 {
		return "", nil, fmt.Errorf("hosted asr returned no alternatives")
	}
	alt := out.Results.Channels[0].Alternatives[0]
	text := strings.TrimSpace(alt.Transcript)
	if text == "" {
		return "", nil, fmt.Errorf("hosted asr returned empty transcript")
	}
	return text, alt.Confidence, nil
}
