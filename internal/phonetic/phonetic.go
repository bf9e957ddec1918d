// Package phonetic finds the spoken token that most likely stands for an
// expected word when the transcript does not contain the word itself.
//
// The algorithm proceeds in two stages:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     the expected word and every candidate. A candidate whose codes overlap
//     with the word's codes is a phonetic candidate.
//
//  2. Jaro-Winkler ranking: among phonetic candidates the one with the
//     highest Jaro-Winkler similarity wins, provided it reaches the phonetic
//     threshold (default 0.70). When no phonetic candidate qualifies, pure
//     Jaro-Winkler similarity is tested against the higher fuzzy threshold
//     (default 0.85).
//
// Candidates are the individual transcript tokens plus every pair of adjacent
// tokens, so a recogniser that splits "sunrise" into "sun rise" still yields
// a candidate.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically-matched candidate. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score when no phonetic
// candidate qualifies. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Match is the best candidate found for an expected word.
type Match struct {
	// Token is the transcript text as heard, e.g. "chairs" or "sun rise".
	Token string

	// Score is the Jaro-Winkler similarity in [0, 1].
	Score float64

	// Phonetic reports whether the Double Metaphone codes overlapped.
	Phonetic bool
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a Matcher configured with opts.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Closest returns the candidate from tokens that best matches word. tokens
// are the transcript's words in spoken order. ok is false when nothing
// reaches a threshold.
func (m *Matcher) Closest(word string, tokens []string) (match Match, ok bool) {
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" || len(tokens) == 0 {
		return Match{}, false
	}
	wordCodes := codes(word)

	for _, c := range candidates(tokens) {
		key := strings.ReplaceAll(c, " ", "")
		score := matchr.JaroWinkler(word, key, false)
		isPhonetic := codesOverlap(wordCodes, codes(key))

		switch {
		case isPhonetic && score >= m.phoneticThreshold:
			if !match.Phonetic || score > match.Score {
				match = Match{Token: c, Score: score, Phonetic: true}
			}
		case !match.Phonetic && score >= m.fuzzyThreshold && score > match.Score:
			match = Match{Token: c, Score: score}
		}
	}
	return match, match.Token != ""
}

// candidates returns the lower-cased tokens followed by each adjacent pair
// joined with a space.
func candidates(tokens []string) []string {
	lower := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			lower = append(lower, t)
		}
	}
	out := append([]string(nil), lower...)
	for i := 0; i+1 < len(lower); i++ {
		out = append(out, lower[i]+" "+lower[i+1])
	}
	return out
}

// codes returns the non-empty Double Metaphone codes for s.
func codes(s string) map[string]struct{} {
	set := make(map[string]struct{}, 2)
	p, alt := matchr.DoubleMetaphone(s)
	if p != "" {
		set[p] = struct{}{}
	}
	if alt != "" {
		set[alt] = struct{}{}
	}
	return set
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
