// Package transcribe converts captured audio to text via Deepgram's
// pre-recorded audio endpoint.
package transcribe

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	json "github.com/goccy/go-json"

	"github.com/starford/ansuz/internal/apperr"
)

const (
	DefaultBaseURL = "https://api.deepgram.com/v1"
	DefaultModel   = "nova-2"
	DefaultTimeout = 30 * time.Second

	providerName = "deepgram"
)

// Config configures the Deepgram client.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Language    string
	SmartFormat bool
	Timeout     time.Duration
}

// Deepgram is a one-shot transcription client. It never retries.
type Deepgram struct {
	client *resty.Client
	cfg    Config
}

// NewDeepgram creates a client. Empty fields take the package defaults.
func NewDeepgram(cfg Config) *Deepgram {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Authorization", "Token "+cfg.APIKey).
		SetHeader("Accept", "application/json").
		SetTimeout(cfg.Timeout).
		SetRetryCount(0)

	return &Deepgram{client: c, cfg: cfg}
}

type listenResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe sends audio to Deepgram and returns the top transcript.
// Any failure is reported as apperr.ErrProviderUnavailable.
func (d *Deepgram) Transcribe(ctx context.Context, audio []byte, mimeHint string) (string, error) {
	if mimeHint == "" {
		mimeHint = "application/octet-stream"
	}

	params := map[string]string{
		"model":        d.cfg.Model,
		"smart_format": strconv.FormatBool(d.cfg.SmartFormat),
	}
	if d.cfg.Language != "" {
		params["language"] = d.cfg.Language
	}

	resp, err := d.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", mimeHint).
		SetQueryParams(params).
		SetBody(audio).
		Post("/listen")
	if err != nil {
		return "", apperr.Provider(providerName, fmt.Errorf("request: %w", err))
	}
	if resp.IsError() {
		return "", apperr.Provider(providerName, fmt.Errorf("status %d", resp.StatusCode()))
	}

	var lr listenResponse
	if err := json.Unmarshal(resp.Body(), &lr); err != nil {
		return "", apperr.Provider(providerName, fmt.Errorf("decode response: %w", err))
	}
	if len(lr.Results.Channels) == 0 {
		return "", apperr.Provider(providerName, fmt.Errorf("response has no channels"))
	}
	ch := lr.Results.Channels[0]
	if len(ch.Alternatives) == 0 {
		return "", nil
	}
	return strings.TrimSpace(ch.Alternatives[0].Transcript), nil
}
