package elevenlabs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v4"

	"github.com/forPelevin/storyreel/internal/types"
)

func newTestClient(url string) *Client {
	c := New("xi-secret", "", url)
	c.retry = func() backoff.BackOff { return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, maxAttempts-1) }
	return c
}

func TestProcess_WritesAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/text-to-speech/"+DefaultVoiceID {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.URL.Query().Get("output_format") != outputFormat {
			t.Errorf("missing output format: %s", r.URL.RawQuery)
		}
		if r.Header.Get("xi-api-key") != "xi-secret" {
			t.Errorf("missing api key header")
		}
		var body struct {
			Text     string        `json:"text"`
			ModelID  string        `json:"model_id"`
			Settings voiceSettings `json:"voice_settings"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body.Text != "Hello there." || body.ModelID != defaultModelID || body.Settings != defaultVoice {
			t.Errorf("unexpected body: %+v", body)
		}
		_, _ = w.Write([]byte("ID3fake"))
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "n.mp3")
	out, err := newTestClient(srv.URL).Process(context.Background(), types.Text("Hello there."), dst)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.Kind != types.KindAudio || out.Path != dst {
		t.Fatalf("unexpected unit: %+v", out)
	}
	if b, _ := os.ReadFile(dst); string(b) != "ID3fake" {
		t.Fatalf("unexpected file content %q", b)
	}
}

func TestSynthesize_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("mp3"))
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "n.mp3")
	if err := newTestClient(srv.URL).Synthesize(context.Background(), "hi", dst); err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestSynthesize_PermanentFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"detail":"bad xi-api-key: xi-secret"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "n.mp3")
	err := newTestClient(srv.URL).Synthesize(context.Background(), "hi", dst)
	if err == nil || !strings.Contains(err.Error(), "elevenlabs status 401") {
		t.Fatalf("expected 401 error, got %v", err)
	}
	if strings.Contains(err.Error(), "xi-secret") {
		t.Fatalf("secret leaked: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected no retry on 401, got %d calls", calls.Load())
	}
	if _, statErr := os.Stat(dst); !os.IsNotExist(statErr) {
		t.Fatalf("expected no output file")
	}
}
