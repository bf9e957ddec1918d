package assessment

import (
	"errors"
	"fmt"
	"strings"
)

// WordSet is the three words presented in one run.
type WordSet [3]string

// String joins the words with ", ".
func (w WordSet) String() string {
	return strings.Join(w[:], ", ")
}

// Empty reports whether no words are set.
func (w WordSet) Empty() bool {
	return w == WordSet{}
}

// DefaultCatalog holds the classic three-word recall lists.
var DefaultCatalog = []WordSet{
	{"Banana", "Sunrise", "Chair"},
	{"Leader", "Season", "Table"},
	{"Village", "Kitchen", "Baby"},
	{"River", "Nation", "Finger"},
	{"Captain", "Garden", "Picture"},
	{"Daughter", "Heaven", "Mountain"},
}

// ParseWordSet builds a WordSet from exactly three words.
func ParseWordSet(words []string) (WordSet, error) {
	var ws WordSet
	if len(words) != len(ws) {
		return ws, fmt.Errorf("assessment: word set needs exactly %d words, got %d", len(ws), len(words))
	}
	for i, w := range words {
		ws[i] = strings.TrimSpace(w)
	}
	return ws, ws.Validate()
}

// Validate checks that every word is non-empty, contains at least one letter
// or digit, and that no word repeats (case-insensitive).
func (w WordSet) Validate() error {
	seen := make(map[string]bool, len(w))
	for i, word := range w {
		if len(tokenize(word)) == 0 {
			return fmt.Errorf("assessment: word %d of set [%s] is empty", i+1, w)
		}
		key := strings.ToLower(strings.TrimSpace(word))
		if seen[key] {
			return fmt.Errorf("assessment: word %q repeats in set [%s]", word, w)
		}
		seen[key] = true
	}
	return nil
}

// ValidateCatalog checks every set in catalog. An empty catalog is an error.
func ValidateCatalog(catalog []WordSet) error {
	if len(catalog) == 0 {
		return errors.New("assessment: word set catalog is empty")
	}
	var errs []error
	for _, ws := range catalog {
		if err := ws.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
