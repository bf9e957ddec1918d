package stt_test

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/MrWong99/recallcheck/pkg/audio"
	audiomock "github.com/MrWong99/recallcheck/pkg/audio/mock"
	"github.com/MrWong99/recallcheck/pkg/provider/stt"
	sttmock "github.com/MrWong99/recallcheck/pkg/provider/stt/mock"
)

// 100 ms of 16 kHz mono audio.
const frameSamples = 1600

// speechFrame returns a 440 Hz tone whose RMS (~7071) is well above the
// silence threshold.
func speechFrame() []byte {
	buf := make([]byte, frameSamples*2)
	for i := range frameSamples {
		v := int16(10_000 * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func silenceFrame() []byte { return make([]byte, frameSamples*2) }

func frames(pattern ...[]byte) [][]byte { return pattern }

func repeat(f []byte, n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = f
	}
	return out
}

func TestNewRecognizer_Unsupported(t *testing.T) {
	if _, err := stt.NewRecognizer(nil, &sttmock.Provider{}); !errors.Is(err, stt.ErrUnsupported) {
		t.Errorf("nil capturer: err = %v, want ErrUnsupported", err)
	}
	if _, err := stt.NewRecognizer(&audiomock.Capturer{}, nil); !errors.Is(err, stt.ErrUnsupported) {
		t.Errorf("nil provider: err = %v, want ErrUnsupported", err)
	}
}

func TestListen_StopsAfterTrailingSilence(t *testing.T) {
	pattern := append(repeat(speechFrame(), 5), repeat(silenceFrame(), 5)...)
	capturer := &audiomock.Capturer{Frames: pattern, Hold: true}
	provider := &sttmock.Provider{Results: []stt.Transcript{{Text: "  banana sunrise chair "}}}

	r, err := stt.NewRecognizer(capturer, provider,
		stt.WithTrailingSilence(300*time.Millisecond),
		stt.WithLanguage("en-GB"),
	)
	if err != nil {
		t.Fatalf("NewRecognizer: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	text, err := r.Listen(ctx)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if text != "banana sunrise chair" {
		t.Errorf("text = %q", text)
	}

	if provider.CallCount() != 1 {
		t.Fatalf("Transcribe calls = %d, want 1", provider.CallCount())
	}
	call := provider.TranscribeCalls[0]
	if call.Cfg.Language != "en-GB" {
		t.Errorf("language = %q, want en-GB", call.Cfg.Language)
	}
	// 5 speech frames + 3 silence frames reach the 300 ms trailing window.
	if got, want := call.Clip.Frames(), 8*frameSamples; got != want {
		t.Errorf("captured %d frames, want %d", got, want)
	}
}

func TestListen_NoSpeech(t *testing.T) {
	capturer := &audiomock.Capturer{Frames: repeat(silenceFrame(), 20), Hold: true}
	provider := &sttmock.Provider{}
	r, _ := stt.NewRecognizer(capturer, provider, stt.WithNoSpeechTimeout(time.Second))

	_, err := r.Listen(context.Background())
	if !errors.Is(err, stt.ErrNoSpeech) {
		t.Fatalf("err = %v, want ErrNoSpeech", err)
	}
	if provider.CallCount() != 0 {
		t.Error("silence must not be sent for transcription")
	}
}

func TestListen_StreamEndsAfterSpeech(t *testing.T) {
	capturer := &audiomock.Capturer{Frames: frames(speechFrame(), speechFrame())}
	provider := &sttmock.Provider{Results: []stt.Transcript{{Text: "leader"}}}
	r, _ := stt.NewRecognizer(capturer, provider)

	text, err := r.Listen(context.Background())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if text != "leader" {
		t.Errorf("text = %q", text)
	}
}

func TestListen_MaxUtterance(t *testing.T) {
	capturer := &audiomock.Capturer{Frames: repeat(speechFrame(), 50), Hold: true}
	provider := &sttmock.Provider{Results: []stt.Transcript{{Text: "long"}}}
	r, _ := stt.NewRecognizer(capturer, provider, stt.WithMaxUtterance(time.Second))

	if _, err := r.Listen(context.Background()); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if got := provider.TranscribeCalls[0].Clip.Duration(); got != time.Second {
		t.Errorf("captured %v, want 1s", got)
	}
}

func TestListen_CaptureError(t *testing.T) {
	capErr := errors.New("device busy")
	r, _ := stt.NewRecognizer(&audiomock.Capturer{StreamErr: capErr}, &sttmock.Provider{})
	if _, err := r.Listen(context.Background()); !errors.Is(err, capErr) {
		t.Fatalf("err = %v, want %v", err, capErr)
	}
}

func TestListen_TranscribeError(t *testing.T) {
	trErr := errors.New("server down")
	capturer := &audiomock.Capturer{Frames: frames(speechFrame())}
	r, _ := stt.NewRecognizer(capturer, &sttmock.Provider{Err: trErr})
	if _, err := r.Listen(context.Background()); !errors.Is(err, trErr) {
		t.Fatalf("err = %v, want %v", err, trErr)
	}
}

func TestListen_ContextCancelled(t *testing.T) {
	capturer := &audiomock.Capturer{Hold: true}
	r, _ := stt.NewRecognizer(capturer, &sttmock.Provider{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	if _, err := r.Listen(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

var _ audio.Capturer = (*audiomock.Capturer)(nil)
