package assessment

import (
	"strings"
	"unicode"

	"github.com/MrWong99/recallcheck/internal/phonetic"
)

// NearMiss is a presented word that was not recalled exactly but has a
// similar-sounding counterpart in the transcript. Near misses never count
// towards the score.
type NearMiss struct {
	// Word is the presented word.
	Word string

	// Heard is the transcript text that resembles it.
	Heard string

	// Similarity is the Jaro-Winkler similarity in [0, 1].
	Similarity float64
}

// Score counts the words of ws that occur in transcript as whole words,
// ignoring case and punctuation. The result is always in [0, 3].
func Score(ws WordSet, transcript string) int {
	tokens := tokenize(transcript)
	score := 0
	for _, w := range ws {
		if containsWord(tokens, w) {
			score++
		}
	}
	return score
}

// NearMisses returns a near miss for every word of ws that Score did not
// count and that matcher finds a close candidate for.
func NearMisses(matcher *phonetic.Matcher, ws WordSet, transcript string) []NearMiss {
	tokens := tokenize(transcript)
	if len(tokens) == 0 || matcher == nil {
		return nil
	}
	var out []NearMiss
	for _, w := range ws {
		if containsWord(tokens, w) {
			continue
		}
		if m, ok := matcher.Closest(w, tokens); ok {
			out = append(out, NearMiss{Word: w, Heard: m.Token, Similarity: m.Score})
		}
	}
	return out
}

// containsWord reports whether the tokens of word appear contiguously in
// tokens. Single-token words are the common case.
func containsWord(tokens []string, word string) bool {
	want := tokenize(word)
	if len(want) == 0 || len(want) > len(tokens) {
		return false
	}
outer:
	for i := 0; i+len(want) <= len(tokens); i++ {
		for j := range want {
			if tokens[i+j] != want[j] {
				continue outer
			}
		}
		return true
	}
	return false
}

// tokenize lower-cases s and splits it on anything that is not a letter or
// a digit. Apostrophes separate too, so "chair's" and "'chair'" both hold
// the token "chair".
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
