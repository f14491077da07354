// Package elevenlabs narrates text through the ElevenLabs text-to-speech API.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/forPelevin/storyreel/internal/ports/adapters/apierr"
	"github.com/forPelevin/storyreel/internal/types"
)

const (
	DefaultBaseURL = "https://api.elevenlabs.io"
	DefaultVoiceID = "JBFqnCBsd6RMkjVDRZzb"
	defaultModelID = "eleven_multilingual_v2"
	outputFormat   = "mp3_44100_128"
	maxAttempts    = 3
)

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// Storytelling defaults.
var defaultVoice = voiceSettings{Stability: 0.75, SimilarityBoost: 0.75, Style: 0.4, UseSpeakerBoost: true}

type Client struct {
	key     string
	voice   string
	model   string
	baseURL string
	http    *http.Client
	retry   func() backoff.BackOff
}

func New(apiKey, voiceID, baseURL string) *Client {
	if voiceID == "" {
		voiceID = DefaultVoiceID
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		key:     apiKey,
		voice:   voiceID,
		model:   defaultModelID,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Minute},
		retry: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = 2 * time.Second
			return backoff.WithMaxRetries(bo, maxAttempts-1)
		},
	}
}

// Synthesize writes the mp3 rendition of text to dst. Transient statuses are
// retried a couple of times before giving up.
func (c *Client) Synthesize(ctx context.Context, text, dst string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("elevenlabs: empty text")
	}
	body, err := json.Marshal(map[string]any{
		"text":           text,
		"model_id":       c.model,
		"voice_settings": defaultVoice,
	})
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s", c.baseURL, url.PathEscape(c.voice), outputFormat)

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("xi-api-key", c.key)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "audio/mpeg")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return apierr.FromResponse("elevenlabs", resp, c.key)
		}
		return writeFile(dst, resp.Body)
	}
	return backoff.Retry(op, backoff.WithContext(c.retry(), ctx))
}

// Process adapts Synthesize to the inline job adapter.
func (c *Client) Process(ctx context.Context, payload types.Unit, dst string) (types.Unit, error) {
	if err := c.Synthesize(ctx, payload.Text, dst); err != nil {
		return types.Unit{}, err
	}
	return types.Media(types.KindAudio, dst, 0), nil
}

func writeFile(dst string, r io.Reader) error {
	tmp := dst + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return backoff.Permanent(err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n == 0 {
		err = errors.New("elevenlabs: empty audio response")
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return backoff.Permanent(err)
	}
	return nil
}
