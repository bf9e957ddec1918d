package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/MrWong99/recallcheck/internal/assessment"
	"github.com/MrWong99/recallcheck/internal/delivery"
	"github.com/MrWong99/recallcheck/pkg/provider/stt"
)

const consoleHelp = `Commands:
  s, Enter  start a recall test
  l         listen again after a failed answer
  r         reset to the start
  q         quit
`

// Console is the line-oriented presentation loop. It renders every machine
// change and turns key presses into machine triggers.
type Console struct {
	machine  *assessment.Machine
	in       io.Reader
	notifier Notifier

	mu      sync.Mutex // guards out and lastKey
	out     io.Writer
	lastKey string

	ops sync.WaitGroup
}

// NewConsole returns a console bound to m. It registers itself as m's
// observer.
func NewConsole(m *assessment.Machine, in io.Reader, out io.Writer, n Notifier) *Console {
	c := &Console{machine: m, in: in, out: out, notifier: n}
	m.OnChange(c.render)
	return c
}

// Run reads commands until "q", end of input, or ctx is cancelled. Long
// operations run in the background so that a reset is always accepted.
// Run resets any active run before returning.
func (c *Console) Run(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	c.printf("recallcheck: three-word recall test\n%s", consoleHelp)
	if !c.machine.RecallSupported() {
		c.printf("Note: speech recognition is not available, so answers cannot be captured.\n")
	}
	c.prompt()

	defer func() {
		c.machine.Reset()
		c.Wait()
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := c.Handle(ctx, line); quit {
				return nil
			}
		}
	}
}

// Handle executes one command line and reports whether the user asked to
// quit.
func (c *Console) Handle(ctx context.Context, line string) (quit bool) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "", "s", "start":
		c.spawn(ctx, c.machine.Start)
	case "l", "listen":
		c.spawn(ctx, c.machine.Listen)
	case "r", "reset":
		c.machine.Reset()
		c.prompt()
	case "q", "quit", "exit":
		c.printf("Goodbye.\n")
		return true
	case "h", "help", "?":
		c.printf("%s", consoleHelp)
	default:
		c.printf("Unknown command %q.\n%s", line, consoleHelp)
	}
	return false
}

// Wait blocks until background operations have returned.
func (c *Console) Wait() {
	c.ops.Wait()
}

// spawn runs op in the background. Errors that the machine records in its
// snapshot are rendered by render; the rest are printed here.
func (c *Console) spawn(ctx context.Context, op func(context.Context) error) {
	c.ops.Add(1)
	go func() {
		defer c.ops.Done()
		err := op(ctx)
		var aborted *assessment.SequenceAbortedError
		var recog *assessment.RecognitionError
		switch {
		case err == nil,
			errors.As(err, &aborted),
			errors.As(err, &recog),
			errors.Is(err, assessment.ErrReset),
			errors.Is(err, context.Canceled):
			return
		}
		c.printf("%s\n", Describe(err))
	}()
}

// render prints a snapshot when it differs from the last one shown.
func (c *Console) render(s assessment.Snapshot) {
	key := fmt.Sprint(s.Phase, s.Busy, s.Attempts, s.Err)
	c.mu.Lock()
	if key == c.lastKey {
		c.mu.Unlock()
		return
	}
	c.lastKey = key
	c.mu.Unlock()

	switch s.Phase {
	case assessment.Idle:
		if s.Err != nil {
			c.printf("The test stopped: %s\n", Describe(s.Err))
		}
	case assessment.Presenting:
		c.printf("Listen carefully to the three words...\n")
	case assessment.Distracting:
		c.printf("Please wait...\n")
	case assessment.Recalling:
		switch {
		case s.Busy:
			c.printf("Listening. Say the three words now.\n")
		case s.Err != nil:
			c.printf("%s\nPress l to try again or r to reset.\n", Describe(s.Err))
		}
	case assessment.Scored:
		c.printf("%s", FormatResult(s))
		_ = c.notifier.Notify("Recall test finished", fmt.Sprintf("Score: %d of 3", s.Score))
		c.printf("Press r to reset.\n")
	}
}

func (c *Console) prompt() {
	c.printf("Press Enter to start.\n")
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// FormatResult renders a scored snapshot.
func FormatResult(s assessment.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Score: %d of 3\n", s.Score)
	fmt.Fprintf(&b, "Words: %s\n", s.Words)
	if s.Transcript == "" {
		b.WriteString("Heard: (nothing)\n")
	} else {
		fmt.Fprintf(&b, "Heard: %q\n", s.Transcript)
	}
	for _, nm := range s.NearMisses {
		fmt.Fprintf(&b, "  %s sounded like %q (not counted)\n", nm.Word, nm.Heard)
	}
	return b.String()
}

// Describe turns an error into a sentence for the console.
func Describe(err error) string {
	var derr *delivery.Error
	var recog *assessment.RecognitionError
	switch {
	case errors.As(err, &derr):
		if derr.FallbackUnavailable() {
			return fmt.Sprintf("speech could not be played and no local voice is available (%v)", derr.Err)
		}
		return fmt.Sprintf("speech could not be played (%v; local voice: %v)", derr.Err, derr.Fallback)
	case errors.Is(err, assessment.ErrRecognitionUnsupported):
		return "speech recognition is not available on this device"
	case errors.Is(err, stt.ErrNoSpeech):
		return "no answer was heard"
	case errors.As(err, &recog):
		return fmt.Sprintf("the answer could not be recognised (%v)", recog.Err)
	case errors.Is(err, assessment.ErrWrongPhase):
		return "that is not possible right now; press r to reset"
	case errors.Is(err, assessment.ErrBusy):
		return "already listening"
	}
	return err.Error()
}
