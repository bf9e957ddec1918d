package assessment

// Phase is one step of an assessment run.
type Phase int

const (
	// Idle is the initial phase and the phase after a reset or an abort.
	Idle Phase = iota

	// Presenting covers the introduction and the three words.
	Presenting

	// Distracting covers the transition prompt and the distraction interval.
	Distracting

	// Recalling covers the recall prompt and listening for the answer.
	Recalling

	// Scored holds the transcript and score until the next reset.
	Scored
)

var phaseNames = [...]string{
	Idle:        "idle",
	Presenting:  "presenting",
	Distracting: "distracting",
	Recalling:   "recalling",
	Scored:      "scored",
}

// String returns the lower-case phase name.
func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// Active reports whether a run is in progress.
func (p Phase) Active() bool {
	return p == Presenting || p == Distracting || p == Recalling
}
