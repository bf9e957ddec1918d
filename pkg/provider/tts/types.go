package tts

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Request is a single synthesis request.
type Request struct {
	// Text is the complete utterance to synthesise.
	Text string

	// Voice optionally selects a provider-specific voice. Empty means the
	// provider's configured default.
	Voice string
}

// Payload is an encoded audio response.
type Payload struct {
	// Data holds the raw response bytes.
	Data []byte

	// ContentType is the MIME type hint from the provider, e.g. "audio/wav"
	// or "audio/L16;rate=16000".
	ContentType string
}

// maxErrorBody bounds the response body kept on a ProviderError.
const maxErrorBody = 1024

// ProviderError reports a failed synthesis request. Either StatusCode is set
// (the provider answered with a non-success status) or Err carries the
// transport failure.
type ProviderError struct {
	// Provider is the short provider name, e.g. "hfinference".
	Provider string

	// StatusCode is the HTTP status code, or 0 for transport failures.
	StatusCode int

	// Status is the status text, e.g. "503 Service Unavailable".
	Status string

	// Body is the (truncated) response body.
	Body string

	// Err is the underlying transport or protocol error, if any.
	Err error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(": synthesis failed")
	if e.StatusCode != 0 {
		status := e.Status
		if status == "" {
			status = fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
		}
		fmt.Fprintf(&b, ": status %s", status)
	}
	if e.Body != "" {
		fmt.Fprintf(&b, ": %s", e.Body)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *ProviderError) Unwrap() error { return e.Err }

// ErrResponseTooLarge is wrapped by the ProviderError returned from
// [ReadAudio] when the body exceeds its limit.
var ErrResponseTooLarge = errors.New("audio response too large")

// ReadAudio reads an audio response body of at most limit bytes. A longer
// body is reported as a *ProviderError instead of being cut short, so that
// truncated audio is never played.
func ReadAudio(provider string, r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, &ProviderError{Provider: provider, Err: fmt.Errorf("read audio response: %w", err)}
	}
	if int64(len(data)) > limit {
		return nil, &ProviderError{Provider: provider, Err: fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, limit)}
	}
	return data, nil
}

// StatusError builds a ProviderError from a non-success response. body is
// truncated and trimmed.
func StatusError(provider string, resp *http.Response, body []byte) *ProviderError {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &ProviderError{
		Provider:   provider,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(body)),
	}
}
