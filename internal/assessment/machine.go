// Package assessment runs the three-word recall test.
//
// A [Machine] walks through the phases Idle, Presenting, Distracting,
// Recalling and Scored. Start drives a whole run: it speaks an introduction,
// the three words with a pause after each, a transition prompt, waits out
// the distraction interval, speaks the recall prompt and listens once.
// Listen retries the listening step after a recognition error. Reset
// returns to Idle from any phase, cancelling whatever is in flight.
//
// The machine holds at most one pending operation. Triggers that do not fit
// the current phase return [ErrWrongPhase] and change nothing.
package assessment

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/recallcheck/internal/observe"
	"github.com/MrWong99/recallcheck/internal/phonetic"
	"github.com/MrWong99/recallcheck/internal/resilience"
)

// Speaker delivers an utterance and returns once it has been heard.
// *delivery.Pipeline implements it.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Recognizer captures one spoken answer and returns its transcript.
// *stt.Recognizer implements it.
type Recognizer interface {
	Listen(ctx context.Context) (string, error)
}

// Default timings.
const (
	DefaultWordPause           = time.Second
	DefaultDistractionInterval = 5 * time.Second
)

// Default prompts.
const (
	DefaultIntroPrompt       = "I am going to say three words. Please listen carefully and try to remember them."
	DefaultDistractionPrompt = "Thank you. In a moment I will ask you to repeat the words. Please wait."
	DefaultRecallPrompt      = "Now, please say the three words you remember."
)

// Prompts are the instructions spoken around the words.
type Prompts struct {
	Intro       string
	Distraction string
	Recall      string
}

// Settings tune a run. They are copied when a run starts, so changes apply
// to the next run only.
type Settings struct {
	// WordPause is the silence after each word.
	WordPause time.Duration

	// DistractionInterval is the wait between the transition prompt and the
	// recall prompt.
	DistractionInterval time.Duration

	// MaxListen bounds a single listening attempt. Zero leaves it to the
	// recogniser.
	MaxListen time.Duration

	Prompts Prompts

	// Catalog holds the word sets a run picks from.
	Catalog []WordSet
}

// DefaultSettings returns the standard timings, prompts and catalog.
func DefaultSettings() Settings {
	return Settings{
		WordPause:           DefaultWordPause,
		DistractionInterval: DefaultDistractionInterval,
		Prompts: Prompts{
			Intro:       DefaultIntroPrompt,
			Distraction: DefaultDistractionPrompt,
			Recall:      DefaultRecallPrompt,
		},
		Catalog: DefaultCatalog,
	}
}

// Validate reports every problem with s.
func (s Settings) Validate() error {
	var errs []error
	if s.WordPause < 0 {
		errs = append(errs, fmt.Errorf("assessment: word pause %v is negative", s.WordPause))
	}
	if s.DistractionInterval < 0 {
		errs = append(errs, fmt.Errorf("assessment: distraction interval %v is negative", s.DistractionInterval))
	}
	if s.MaxListen < 0 {
		errs = append(errs, fmt.Errorf("assessment: max listen %v is negative", s.MaxListen))
	}
	if err := ValidateCatalog(s.Catalog); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Snapshot is a read-only view of the machine.
type Snapshot struct {
	Phase Phase

	// Words is the active word set; zero in Idle.
	Words WordSet

	// Transcript is the recognised answer, verbatim.
	Transcript string

	// Score is the number of words recalled, 0..3. Meaningful in Scored.
	Score int

	// NearMisses lists similar-sounding answers for words not recalled.
	NearMisses []NearMiss

	// Err is the last error: a *SequenceAbortedError in Idle or a
	// *RecognitionError in Recalling.
	Err error

	// RunID identifies the current run in logs and traces.
	RunID string

	// Attempts counts listening attempts in the current run.
	Attempts int

	// Busy reports whether an operation is in flight.
	Busy bool

	// RecallSupported is false when no recogniser was configured.
	RecallSupported bool
}

// Option configures a Machine.
type Option func(*Machine)

// WithSettings replaces DefaultSettings. New validates them.
func WithSettings(s Settings) Option {
	return func(m *Machine) {
		m.settings = s
	}
}

// WithSleep replaces the pause and distraction waits, mainly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(m *Machine) {
		m.sleep = fn
	}
}

// WithPicker replaces the uniform random word set choice. fn returns an
// index in [0, n).
func WithPicker(fn func(n int) int) Option {
	return func(m *Machine) {
		m.pick = fn
	}
}

// WithMatcher sets the near-miss matcher. Default: phonetic.New().
func WithMatcher(pm *phonetic.Matcher) Option {
	return func(m *Machine) {
		m.matcher = pm
	}
}

// WithMetrics overrides the metrics sink. Default: observe.DefaultMetrics().
func WithMetrics(met *observe.Metrics) Option {
	return func(m *Machine) {
		m.metrics = met
	}
}

// Machine is the assessment state machine. All methods are safe for
// concurrent use.
type Machine struct {
	speaker    Speaker
	recognizer Recognizer
	sleep      func(ctx context.Context, d time.Duration) error
	pick       func(n int) int
	matcher    *phonetic.Matcher
	metrics    *observe.Metrics

	mu       sync.Mutex
	settings Settings
	observer func(Snapshot)
	st       state

	// gen increments on every Start and Reset. A pending operation whose
	// generation no longer matches has been reset and must not touch st.
	gen uint64

	// cancel is the pending-operation slot.
	cancel context.CancelFunc
}

type state struct {
	phase      Phase
	words      WordSet
	transcript string
	score      int
	nearMisses []NearMiss
	err        error
	runID      string
	attempts   int
	active     bool
	settings   Settings
}

// New creates a Machine in Idle. recognizer may be nil when speech
// recognition is unavailable; the machine then reports RecallSupported
// false and runs abort on reaching recall.
func New(speaker Speaker, recognizer Recognizer, opts ...Option) (*Machine, error) {
	m := &Machine{
		speaker:    speaker,
		recognizer: recognizer,
		sleep:      resilience.Sleep,
		pick:       rand.IntN,
		settings:   DefaultSettings(),
	}
	for _, o := range opts {
		o(m)
	}
	if m.matcher == nil {
		m.matcher = phonetic.New()
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	if speaker == nil {
		return nil, errors.New("assessment: speaker is required")
	}
	if err := m.settings.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// OnChange registers fn to be called with a snapshot after every transition
// and error update. fn runs on the goroutine that caused the change and must
// not block. A later call replaces the previous observer.
func (m *Machine) OnChange(fn func(Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = fn
}

// UpdateSettings validates s and stores it for the next run.
func (m *Machine) UpdateSettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s
	return nil
}

// Snapshot returns the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// RecallSupported reports whether a recogniser is configured.
func (m *Machine) RecallSupported() bool { return m.recognizer != nil }

// Start runs a full assessment and returns when it reaches Scored, stops in
// Recalling after a recognition error, aborts, or is reset.
//
// It returns ErrWrongPhase outside Idle, a *SequenceAbortedError when speech
// delivery failed or recall is unsupported, a *RecognitionError when the
// listening attempt failed, and ErrReset when Reset interrupted the run.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.st.phase != Idle {
		phase := m.st.phase
		m.mu.Unlock()
		return fmt.Errorf("%w: start requested while %s", ErrWrongPhase, phase)
	}
	s := m.settings
	runID := uuid.NewString()
	m.gen++
	gen := m.gen
	runCtx, cancel := context.WithCancel(observe.WithRunID(ctx, runID))
	m.cancel = cancel
	m.st = state{
		phase:    Presenting,
		words:    s.Catalog[m.pick(len(s.Catalog))],
		runID:    runID,
		active:   true,
		settings: s,
	}
	words := m.st.words
	snap := m.snapshotLocked()
	m.mu.Unlock()
	defer cancel()

	m.metrics.ActiveAssessments.Add(ctx, 1)
	m.notify(snap)

	runCtx, span := observe.StartSpan(runCtx, "assessment.run",
		trace.WithAttributes(attribute.String("run_id", runID)),
	)
	defer span.End()
	observe.Logger(runCtx).Info("assessment started")

	err := m.run(runCtx, gen, s, words)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (m *Machine) run(ctx context.Context, gen uint64, s Settings, words WordSet) error {
	if err := m.say(ctx, gen, s.Prompts.Intro); err != nil {
		return err
	}
	for _, w := range words {
		if err := m.say(ctx, gen, w); err != nil {
			return err
		}
		if err := m.wait(ctx, gen, s.WordPause); err != nil {
			return err
		}
	}

	if err := m.enter(gen, Distracting); err != nil {
		return err
	}
	if err := m.say(ctx, gen, s.Prompts.Distraction); err != nil {
		return err
	}
	if err := m.wait(ctx, gen, s.DistractionInterval); err != nil {
		return err
	}

	if err := m.enter(gen, Recalling); err != nil {
		return err
	}
	if err := m.say(ctx, gen, s.Prompts.Recall); err != nil {
		return err
	}
	if m.recognizer == nil {
		return m.abort(ctx, gen, ErrRecognitionUnsupported)
	}
	return m.listen(ctx, gen, s.MaxListen)
}

// Listen retries the listening step. It is only valid in Recalling with no
// operation in flight, i.e. after Start returned a *RecognitionError.
func (m *Machine) Listen(ctx context.Context) error {
	m.mu.Lock()
	if m.st.phase != Recalling {
		phase := m.st.phase
		m.mu.Unlock()
		return fmt.Errorf("%w: listen requested while %s", ErrWrongPhase, phase)
	}
	if m.cancel != nil {
		m.mu.Unlock()
		return ErrBusy
	}
	if m.recognizer == nil {
		m.mu.Unlock()
		return ErrRecognitionUnsupported
	}
	gen := m.gen
	maxListen := m.st.settings.MaxListen
	lctx, cancel := context.WithCancel(observe.WithRunID(ctx, m.st.runID))
	m.cancel = cancel
	snap := m.snapshotLocked()
	m.mu.Unlock()
	defer cancel()

	m.notify(snap)
	return m.listen(lctx, gen, maxListen)
}

// Reset returns to Idle and clears the run. During an active phase it
// cancels the in-flight operation, whose caller then receives ErrReset.
func (m *Machine) Reset() {
	m.mu.Lock()
	wasActive := m.st.active
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.gen++
	m.st = state{}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if wasActive {
		ctx := context.Background()
		m.metrics.ActiveAssessments.Add(ctx, -1)
		m.metrics.RecordAssessment(ctx, "reset", 0)
		observe.Logger(ctx).Info("assessment reset during active run")
	}
	m.notify(snap)
}

// say speaks text, aborting the run on failure.
func (m *Machine) say(ctx context.Context, gen uint64, text string) error {
	if err := m.speaker.Speak(ctx, text); err != nil {
		return m.abort(ctx, gen, err)
	}
	return m.current(gen)
}

// wait sleeps for d, aborting the run if ctx ends first.
func (m *Machine) wait(ctx context.Context, gen uint64, d time.Duration) error {
	if err := m.sleep(ctx, d); err != nil {
		return m.abort(ctx, gen, err)
	}
	return m.current(gen)
}

// current returns ErrReset when gen is stale.
func (m *Machine) current(gen uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return ErrReset
	}
	return nil
}

// enter moves an active run to phase.
func (m *Machine) enter(gen uint64, phase Phase) error {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return ErrReset
	}
	m.st.phase = phase
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.notify(snap)
	return nil
}

// abort returns the machine to Idle with a *SequenceAbortedError, unless the
// run was already reset.
func (m *Machine) abort(ctx context.Context, gen uint64, cause error) error {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return ErrReset
	}
	err := &SequenceAbortedError{Phase: m.st.phase, Err: cause}
	m.cancel = nil
	m.st = state{err: err}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.metrics.ActiveAssessments.Add(context.WithoutCancel(ctx), -1)
	m.metrics.RecordAssessment(context.WithoutCancel(ctx), "aborted", 0)
	observe.Logger(ctx).Warn("assessment aborted", "phase", err.Phase, "error", cause)
	m.notify(snap)
	return err
}

// listen performs one recognition attempt and either scores the transcript
// or records a *RecognitionError. It releases the pending-operation slot.
func (m *Machine) listen(ctx context.Context, gen uint64, maxListen time.Duration) error {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return ErrReset
	}
	m.st.attempts++
	attempt := m.st.attempts
	m.st.err = nil
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.notify(snap)

	lctx := ctx
	if maxListen > 0 {
		var cancel context.CancelFunc
		lctx, cancel = context.WithTimeout(ctx, maxListen)
		defer cancel()
	}
	lctx, span := observe.StartSpan(lctx, "assessment.listen",
		trace.WithAttributes(attribute.Int("attempt", attempt)),
	)
	start := time.Now()
	text, err := m.recognizer.Listen(lctx)
	span.End()
	m.metrics.STTDuration.Record(context.WithoutCancel(ctx), time.Since(start).Seconds())

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return ErrReset
	}
	m.cancel = nil
	if err != nil {
		if ctx.Err() != nil {
			// The caller went away; the attempt does not count as a
			// recognition failure.
			m.st.attempts--
			snap := m.snapshotLocked()
			m.mu.Unlock()
			m.notify(snap)
			return ctx.Err()
		}
		rerr := &RecognitionError{Attempt: attempt, Err: err}
		m.st.err = rerr
		snap := m.snapshotLocked()
		m.mu.Unlock()

		observe.Logger(ctx).Warn("recognition failed", "attempt", attempt, "error", err)
		m.notify(snap)
		return rerr
	}

	m.st.phase = Scored
	m.st.transcript = text
	m.st.score = Score(m.st.words, text)
	m.st.nearMisses = NearMisses(m.matcher, m.st.words, text)
	m.st.active = false
	score := m.st.score
	snap = m.snapshotLocked()
	m.mu.Unlock()

	mctx := context.WithoutCancel(ctx)
	m.metrics.ActiveAssessments.Add(mctx, -1)
	m.metrics.RecordAssessment(mctx, "scored", score)
	observe.Logger(ctx).Info("assessment scored", "score", score, "attempts", attempt)
	m.notify(snap)
	return nil
}

func (m *Machine) snapshotLocked() Snapshot {
	return Snapshot{
		Phase:           m.st.phase,
		Words:           m.st.words,
		Transcript:      m.st.transcript,
		Score:           m.st.score,
		NearMisses:      append([]NearMiss(nil), m.st.nearMisses...),
		Err:             m.st.err,
		RunID:           m.st.runID,
		Attempts:        m.st.attempts,
		Busy:            m.cancel != nil,
		RecallSupported: m.recognizer != nil,
	}
}

func (m *Machine) notify(s Snapshot) {
	m.mu.Lock()
	fn := m.observer
	m.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}
