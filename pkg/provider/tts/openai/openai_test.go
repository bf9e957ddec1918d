package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/recallcheck/pkg/provider/credential"
	"github.com/MrWong99/recallcheck/pkg/provider/tts"
)

func TestNew_InvalidSpeed(t *testing.T) {
	if _, err := New("", WithSpeed(9)); err == nil {
		t.Fatal("expected error for out-of-range speed")
	}
}

func TestSynthesize_RequestShape(t *testing.T) {
	var body map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Errorf("path = %s, want /audio/speech", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte("RIFF"))
	}))
	defer srv.Close()

	p, err := New("", WithBaseURL(srv.URL), WithCredential(credential.Literal("sk-test")), WithVoice("nova"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	payload, err := p.Synthesize(context.Background(), tts.Request{Text: "Leader"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", auth)
	}
	if body["input"] != "Leader" || body["voice"] != "nova" || body["response_format"] != "wav" {
		t.Errorf("unexpected body %v", body)
	}
	if body["model"] != DefaultModel {
		t.Errorf("model = %v, want %s", body["model"], DefaultModel)
	}
	if string(payload.Data) != "RIFF" {
		t.Errorf("payload = %q", payload.Data)
	}
}

func TestSynthesize_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"requests"}}`))
	}))
	defer srv.Close()

	p, _ := New("", WithBaseURL(srv.URL), WithCredential(credential.Literal("sk-test")))
	_, err := p.Synthesize(context.Background(), tts.Request{Text: "Season"})
	var pe *tts.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want *tts.ProviderError", err)
	}
	if pe.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d, want 429", pe.StatusCode)
	}
}

func TestSynthesize_MissingCredential(t *testing.T) {
	t.Setenv("RECALLCHECK_OPENAI_TEST", "")
	p, _ := New("", WithCredential(credential.FromEnv("RECALLCHECK_OPENAI_TEST")))
	_, err := p.Synthesize(context.Background(), tts.Request{Text: "Table"})
	if !errors.Is(err, credential.ErrMissing) {
		t.Fatalf("error = %v, want credential.ErrMissing", err)
	}
}
