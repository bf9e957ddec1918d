// Package system speaks text through the host's built-in speech synthesiser.
//
// It is the last-resort voice when the remote TTS provider cannot be used.
// The first command found on PATH wins, in this order:
//
//	say        (macOS)
//	espeak-ng  (Linux, most distributions)
//	espeak
//	spd-say    (speech-dispatcher)
//
// Commands run synchronously, so Speak returns once the utterance has been
// spoken. No network access and no credentials are involved.
package system

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ErrUnavailable is returned by Speak when no synthesiser command exists.
var ErrUnavailable = errors.New("system: no local speech synthesiser found")

// engine describes how to invoke one synthesiser command.
type engine struct {
	name string
	args func(text string, s *Synth) []string
}

var engines = []engine{
	{name: "say", args: func(text string, s *Synth) []string {
		args := []string{}
		if s.rate > 0 {
			args = append(args, "-r", strconv.Itoa(s.rate))
		}
		return append(args, text)
	}},
	{name: "espeak-ng", args: espeakArgs},
	{name: "espeak", args: espeakArgs},
	{name: "spd-say", args: func(text string, s *Synth) []string {
		args := []string{"--wait", "-l", s.language}
		return append(args, text)
	}},
}

func espeakArgs(text string, s *Synth) []string {
	args := []string{"-v", s.language}
	if s.rate > 0 {
		args = append(args, "-s", strconv.Itoa(s.rate))
	}
	return append(args, text)
}

// Runner executes name with args and waits for it to exit.
type Runner func(ctx context.Context, name string, args ...string) error

// Option configures a Synth.
type Option func(*Synth)

// WithLanguage sets the language hint passed to engines that take one
// (e.g., "en-us"). Defaults to "en-us".
func WithLanguage(lang string) Option {
	return func(s *Synth) {
		if lang != "" {
			s.language = strings.ToLower(lang)
		}
	}
}

// WithRate sets the speaking rate in words per minute. Zero keeps the
// engine default.
func WithRate(wpm int) Option {
	return func(s *Synth) {
		s.rate = wpm
	}
}

// WithCommand forces a specific engine by command name instead of probing.
func WithCommand(name string) Option {
	return func(s *Synth) {
		s.forced = name
	}
}

// WithLookPath replaces exec.LookPath for probing.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(s *Synth) {
		s.lookPath = fn
	}
}

// WithRunner replaces the command runner.
func WithRunner(r Runner) Option {
	return func(s *Synth) {
		s.run = r
	}
}

// Synth is a local speech synthesiser. The zero value is not usable; create
// one with New.
type Synth struct {
	language string
	rate     int
	forced   string
	lookPath func(string) (string, error)
	run      Runner

	engine *engine
	path   string
}

// New probes PATH for a synthesiser command. A Synth is always returned;
// Available reports whether a command was found.
func New(opts ...Option) *Synth {
	s := &Synth{
		language: "en-us",
		lookPath: exec.LookPath,
		run:      runCommand,
	}
	for _, o := range opts {
		o(s)
	}
	for i := range engines {
		e := &engines[i]
		if s.forced != "" && e.name != s.forced {
			continue
		}
		if p, err := s.lookPath(e.name); err == nil {
			s.engine, s.path = e, p
			break
		}
	}
	return s
}

// Available reports whether a synthesiser command was found.
func (s *Synth) Available() bool { return s.engine != nil }

// Name returns the selected command name, or "" when unavailable.
func (s *Synth) Name() string {
	if s.engine == nil {
		return ""
	}
	return s.engine.name
}

// Speak speaks text and returns when the command exits.
func (s *Synth) Speak(ctx context.Context, text string) error {
	if s.engine == nil {
		return ErrUnavailable
	}
	// A leading dash would be parsed as a flag.
	if strings.HasPrefix(text, "-") {
		text = " " + text
	}
	if err := s.run(ctx, s.path, s.engine.args(text, s)...); err != nil {
		return fmt.Errorf("system: %s: %w", s.engine.name, err)
	}
	return nil
}

func runCommand(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}
