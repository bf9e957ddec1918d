package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/coder/websocket"

	"github.com/MrWong99/recallcheck/pkg/provider/credential"
	"github.com/MrWong99/recallcheck/pkg/provider/tts"
)

// newFakeServer starts a WebSocket server that records the client's text
// messages and replies with the given responses.
func newFakeServer(t *testing.T, replies []audioResponse) (*httptest.Server, func() []map[string]any) {
	t.Helper()
	var (
		mu       sync.Mutex
		received []map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.CloseNow()

		ctx := r.Context()
		for range 3 {
			_, msg, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var m map[string]any
			_ = json.Unmarshal(msg, &m)
			mu.Lock()
			received = append(received, m)
			mu.Unlock()
		}
		for _, rep := range replies {
			data, _ := json.Marshal(rep)
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		}
		conn.Close(websocket.StatusNormalClosure, "")
	}))
	t.Cleanup(srv.Close)
	return srv, func() []map[string]any {
		mu.Lock()
		defer mu.Unlock()
		return append([]map[string]any(nil), received...)
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestNew_RejectsNonPCMFormat(t *testing.T) {
	if _, err := New(WithOutputFormat("mp3_44100_128")); err == nil {
		t.Fatal("expected error for mp3 output format")
	}
	p, err := New(WithOutputFormat("pcm_24000"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.sampleRate != 24000 {
		t.Errorf("sampleRate = %d, want 24000", p.sampleRate)
	}
}

func TestBuildURL(t *testing.T) {
	p, _ := New()
	got := p.buildURL("voice-abc123")
	want := "wss://api.elevenlabs.io/v1/text-to-speech/voice-abc123/stream-input?model_id=eleven_flash_v2_5&output_format=pcm_16000"
	if got != want {
		t.Errorf("buildURL = %q, want %q", got, want)
	}
}

func TestSynthesize_CollectsChunks(t *testing.T) {
	chunk1 := []byte{1, 0, 2, 0}
	chunk2 := []byte{3, 0}
	srv, received := newFakeServer(t, []audioResponse{
		{Audio: base64.StdEncoding.EncodeToString(chunk1)},
		{Audio: base64.StdEncoding.EncodeToString(chunk2)},
		{IsFinal: true},
	})

	p, err := New(WithBaseURL(wsURL(srv)), WithCredential(credential.Literal("xi-key")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	payload, err := p.Synthesize(context.Background(), tts.Request{Text: "Village"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(payload.Data) != string(append(chunk1, chunk2...)) {
		t.Errorf("Data = %v", payload.Data)
	}
	if payload.ContentType != "audio/L16;rate=16000" {
		t.Errorf("ContentType = %q", payload.ContentType)
	}

	msgs := received()
	if len(msgs) != 3 {
		t.Fatalf("server received %d messages, want 3", len(msgs))
	}
	if msgs[0]["xi_api_key"] != "xi-key" {
		t.Errorf("BOI message = %v", msgs[0])
	}
	if msgs[1]["text"] != "Village " || msgs[1]["flush"] != true {
		t.Errorf("text message = %v", msgs[1])
	}
	if msgs[2]["text"] != "" {
		t.Errorf("end-of-input message = %v", msgs[2])
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	srv, _ := newFakeServer(t, []audioResponse{{Error: "quota_exceeded", Message: "quota exceeded"}})
	p, _ := New(WithBaseURL(wsURL(srv)), WithCredential(credential.Literal("k")))
	_, err := p.Synthesize(context.Background(), tts.Request{Text: "Kitchen"})
	var pe *tts.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want *tts.ProviderError", err)
	}
	if pe.Body != "quota_exceeded" {
		t.Errorf("Body = %q", pe.Body)
	}
}

func TestSynthesize_HandshakeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, _ := New(WithBaseURL(wsURL(srv)), WithCredential(credential.Literal("bad")))
	_, err := p.Synthesize(context.Background(), tts.Request{Text: "Baby"})
	var pe *tts.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want *tts.ProviderError", err)
	}
	if pe.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", pe.StatusCode)
	}
}
