// Package credential resolves provider API keys lazily.
//
// Keys are looked up on every call rather than at construction so that a
// missing key does not prevent start-up. The first request made without a
// key fails with [ErrMissing], which providers surface as a normal request
// error.
package credential

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrMissing is returned by [Source.Resolve] when no key is available.
var ErrMissing = errors.New("credential: missing API key")

// Source describes where an API key comes from. A literal Value takes
// precedence over Env.
type Source struct {
	// Value is a literal key. Prefer Env for anything checked into config.
	Value string

	// Env names the environment variable holding the key.
	Env string
}

// FromEnv returns a Source backed by the environment variable name.
func FromEnv(name string) Source { return Source{Env: name} }

// Literal returns a Source backed by a fixed key.
func Literal(key string) Source { return Source{Value: key} }

// Resolve returns the key, or an error wrapping ErrMissing.
func (s Source) Resolve() (string, error) {
	if v := strings.TrimSpace(s.Value); v != "" {
		return v, nil
	}
	if s.Env == "" {
		return "", ErrMissing
	}
	if v := strings.TrimSpace(os.Getenv(s.Env)); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: environment variable %s is not set", ErrMissing, s.Env)
}

// Configured reports whether Resolve would currently succeed.
func (s Source) Configured() bool {
	_, err := s.Resolve()
	return err == nil
}
