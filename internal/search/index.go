package search

import (
	"slices"
	"strings"

	"github.com/Ark1369/CBZ-Metadata-Manager/internal/domain"
)

const (
	// Normalized text never contains '#', so trigram keys cannot collide
	// with word keys.
	trigramPrefix = "#3:"
	// Below this many word hits the trigram keys are consulted as well.
	trigramFallbackThreshold = 20
)

// Index is an inverted index from normalized words and trigrams to record
// ordinals. It is built once per snapshot and only read afterwards.
type Index struct {
	postings map[string][]int
	norm     *Normalizer
}

// BuildIndex indexes every normalized text of every record. texts[i] holds
// the text pairs of the record with ordinal i.
func BuildIndex(texts [][]domain.TextPair, norm *Normalizer) *Index {
	idx := &Index{postings: make(map[string][]int), norm: norm}
	for ordinal, pairs := range texts {
		for _, pair := range pairs {
			idx.add(ordinal, pair.Normalized)
		}
	}
	return idx
}

func (idx *Index) add(ordinal int, normalized string) {
	for _, word := range titleWords(normalized) {
		if len([]rune(word)) > 1 {
			idx.post(word, ordinal)
		}
	}
	for _, trigram := range trigrams(normalized) {
		idx.post(trigramPrefix+trigram, ordinal)
	}
}

func (idx *Index) post(key string, ordinal int) {
	list := idx.postings[key]
	// Ordinals arrive in increasing order, so only the tail can repeat.
	if n := len(list); n > 0 && list[n-1] == ordinal {
		return
	}
	idx.postings[key] = append(list, ordinal)
}

// Keys reports the number of distinct index keys.
func (idx *Index) Keys() int {
	if idx == nil {
		return 0
	}
	return len(idx.postings)
}

// Candidates returns the ordinals of records sharing a word with the query,
// widened with trigram hits when word hits are scarce. The result is sorted
// so scoring visits candidates in catalog order.
func (idx *Index) Candidates(query string) []int {
	normalized := idx.norm.Normalize(strings.TrimSpace(query))
	if normalized == "" {
		return nil
	}
	set := make(map[int]struct{})
	for _, word := range titleWords(normalized) {
		for _, ordinal := range idx.postings[word] {
			set[ordinal] = struct{}{}
		}
	}
	if len(set) < trigramFallbackThreshold {
		for _, trigram := range trigrams(normalized) {
			for _, ordinal := range idx.postings[trigramPrefix+trigram] {
				set[ordinal] = struct{}{}
			}
		}
	}
	out := make([]int, 0, len(set))
	for ordinal := range set {
		out = append(out, ordinal)
	}
	slices.Sort(out)
	return out
}

// titleWords splits normalized text on whitespace and the sentence
// punctuation the normalizer keeps, so "re:zero" and "re: zero" share words.
func titleWords(normalized string) []string {
	return strings.FieldsFunc(normalized, func(r rune) bool {
		switch r {
		case ' ', '.', '!', '?', ':', ';':
			return true
		}
		return false
	})
}

func trigrams(normalized string) []string {
	stripped := trigramSource(normalized)
	if len(stripped) < 3 {
		return nil
	}
	out := make([]string, 0, len(stripped)-2)
	for i := 0; i+3 <= len(stripped); i++ {
		out = append(out, string(stripped[i:i+3]))
	}
	return out
}
