package search

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Long vowels written with a macron or circumflex are folded to their doubled
// romaji spelling; grave and acute accents are dropped.
var vowelFolder = strings.NewReplacer(
	"ā", "aa", "ī", "ii", "ū", "uu", "ē", "ee", "ō", "ou",
	"â", "aa", "ê", "ee", "î", "ii", "ô", "ou", "û", "uu",
	"à", "a", "è", "e", "ì", "i", "ò", "o", "ù", "u",
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u",
)

var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))

// Normalizer folds titles into a comparable form and memoizes results for
// the life of the process. Safe for concurrent use.
type Normalizer struct {
	mu   sync.RWMutex
	memo map[string]string
}

func NewNormalizer() *Normalizer {
	return &Normalizer{memo: make(map[string]string)}
}

func (n *Normalizer) Normalize(text string) string {
	if text == "" {
		return ""
	}
	n.mu.RLock()
	cached, ok := n.memo[text]
	n.mu.RUnlock()
	if ok {
		return cached
	}

	normalized := NormalizeTitle(text)

	n.mu.Lock()
	n.memo[text] = normalized
	n.mu.Unlock()
	return normalized
}

// Len reports how many distinct inputs are memoized.
func (n *Normalizer) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.memo)
}

// NormalizeTitle is the uncached folding pipeline: lowercase, fold romaji
// vowels, decompose and drop combining marks, turn dashes into spaces, keep
// word characters plus ' . ! ? : ;, then collapse whitespace.
func NormalizeTitle(text string) string {
	if text == "" {
		return ""
	}
	folded := vowelFolder.Replace(strings.ToLower(text))
	decomposed, _, err := transform.String(stripMarks, folded)
	if err != nil {
		decomposed = folded
	}
	// Compatibility decomposition can surface capitals (e.g. U+210C).
	decomposed = strings.ToLower(decomposed)

	var b strings.Builder
	b.Grow(len(decomposed))
	pendingSpace := false
	for _, r := range decomposed {
		switch {
		case isDash(r) || unicode.IsSpace(r):
			pendingSpace = true
			continue
		case isWordRune(r), isKeptPunctuation(r):
		default:
			continue
		}
		if pendingSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		pendingSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

func isDash(r rune) bool {
	switch r {
	case '-', '‐', '‑', '‒', '–', '—', '―', '−':
		return true
	}
	return false
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

func isKeptPunctuation(r rune) bool {
	switch r {
	case '\'', '.', '!', '?', ':', ';':
		return true
	}
	return false
}

// trigramSource is the normalized text with spaces removed.
func trigramSource(normalized string) []rune {
	return []rune(strings.ReplaceAll(normalized, " ", ""))
}
