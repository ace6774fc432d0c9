package search

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Ark1369/CBZ-Metadata-Manager/internal/domain"
)

// ScoringConfig is the single set of thresholds used by the scorer. Scores
// are truncated to integers after each formula.
type ScoringConfig struct {
	AcceptThreshold int `toml:"accept_threshold" json:"acceptThreshold"`
	ExactScore      int `toml:"exact_score" json:"exactScore"`

	ContainmentMinRatio float64 `toml:"containment_min_ratio" json:"containmentMinRatio"`
	ContainmentBase     float64 `toml:"containment_base" json:"containmentBase"`
	ContainmentWeight   float64 `toml:"containment_weight" json:"containmentWeight"`
	ContainmentCap      int     `toml:"containment_cap" json:"containmentCap"`

	ReverseMinLength int     `toml:"reverse_min_length" json:"reverseMinLength"`
	ReverseMinRatio  float64 `toml:"reverse_min_ratio" json:"reverseMinRatio"`
	ReverseBase      float64 `toml:"reverse_base" json:"reverseBase"`
	ReverseWeight    float64 `toml:"reverse_weight" json:"reverseWeight"`
	ReverseCap       int     `toml:"reverse_cap" json:"reverseCap"`

	WordOverlapBelow   int     `toml:"word_overlap_below" json:"wordOverlapBelow"`
	WordMinOverlap     int     `toml:"word_min_overlap" json:"wordMinOverlap"`
	WordRatioThreshold float64 `toml:"word_ratio_threshold" json:"wordRatioThreshold"`
	WordBase           float64 `toml:"word_base" json:"wordBase"`
	WordWeight         float64 `toml:"word_weight" json:"wordWeight"`
	CoverageThreshold  float64 `toml:"coverage_threshold" json:"coverageThreshold"`
	CoverageMinRatio   float64 `toml:"coverage_min_ratio" json:"coverageMinRatio"`
	CoverageBase       float64 `toml:"coverage_base" json:"coverageBase"`
	CoverageWeight     float64 `toml:"coverage_weight" json:"coverageWeight"`

	CharOverlapBelow    int     `toml:"char_overlap_below" json:"charOverlapBelow"`
	CharMaxQueryLength  int     `toml:"char_max_query_length" json:"charMaxQueryLength"`
	CharMinOverlap      int     `toml:"char_min_overlap" json:"charMinOverlap"`
	CharOverlapFraction float64 `toml:"char_overlap_fraction" json:"charOverlapFraction"`
	CharBase            float64 `toml:"char_base" json:"charBase"`
	CharWeight          float64 `toml:"char_weight" json:"charWeight"`
}

func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		AcceptThreshold: 65,
		ExactScore:      100,

		ContainmentMinRatio: 0.4,
		ContainmentBase:     65,
		ContainmentWeight:   30,
		ContainmentCap:      95,

		ReverseMinLength: 4,
		ReverseMinRatio:  0.4,
		ReverseBase:      50,
		ReverseWeight:    35,
		ReverseCap:       85,

		WordOverlapBelow:   75,
		WordMinOverlap:     2,
		WordRatioThreshold: 0.5,
		WordBase:           45,
		WordWeight:         30,
		CoverageThreshold:  0.6,
		CoverageMinRatio:   0.3,
		CoverageBase:       40,
		CoverageWeight:     25,

		CharOverlapBelow:    50,
		CharMaxQueryLength:  6,
		CharMinOverlap:      3,
		CharOverlapFraction: 0.8,
		CharBase:            30,
		CharWeight:          20,
	}
}

var ErrInvalidScoringConfig = errors.New("invalid scoring config")

func (c ScoringConfig) Validate() error {
	switch {
	case c.ExactScore <= 0 || c.ExactScore > 100:
		return fmt.Errorf("%w: exact_score must be in (0,100], got %d", ErrInvalidScoringConfig, c.ExactScore)
	case c.AcceptThreshold < 0 || c.AcceptThreshold > c.ExactScore:
		return fmt.Errorf("%w: accept_threshold must be in [0,%d], got %d", ErrInvalidScoringConfig, c.ExactScore, c.AcceptThreshold)
	case c.ContainmentCap > c.ExactScore || c.ReverseCap > c.ExactScore:
		return fmt.Errorf("%w: tier caps must not exceed exact_score", ErrInvalidScoringConfig)
	case c.ContainmentMinRatio < 0 || c.ReverseMinRatio < 0:
		return fmt.Errorf("%w: ratios must not be negative", ErrInvalidScoringConfig)
	}
	return nil
}

// Scorer compares a normalized query against the text variants of one
// candidate record.
type Scorer struct {
	cfg ScoringConfig
}

func NewScorer(cfg ScoringConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

func (s *Scorer) Config() ScoringConfig { return s.cfg }

// Accepts reports whether score is high enough to be returned as a match.
func (s *Scorer) Accepts(score int) bool {
	return score >= s.cfg.AcceptThreshold
}

// Score returns the best score over pairs and the original text that earned
// it. An exact match ends the scan.
func (s *Scorer) Score(query string, pairs []domain.TextPair) (int, string) {
	if query == "" {
		return 0, ""
	}
	q := newScoredQuery(query)
	best, bestText := 0, ""
	for _, pair := range pairs {
		text := pair.Normalized
		if text == "" {
			continue
		}
		if text == query {
			return s.cfg.ExactScore, pair.Original
		}
		textLen := utf8.RuneCountInString(text)

		candidate := 0
		switch {
		case strings.Contains(text, query):
			ratio := float64(q.length) / float64(textLen)
			if ratio > s.cfg.ContainmentMinRatio {
				candidate = min(s.cfg.ContainmentCap, int(s.cfg.ContainmentBase+ratio*s.cfg.ContainmentWeight))
			}
		case strings.Contains(query, text) && textLen >= s.cfg.ReverseMinLength:
			ratio := float64(textLen) / float64(q.length)
			if ratio > s.cfg.ReverseMinRatio {
				candidate = min(s.cfg.ReverseCap, int(s.cfg.ReverseBase+ratio*s.cfg.ReverseWeight))
			}
		case best < s.cfg.WordOverlapBelow:
			candidate = s.wordOverlap(q, text)
		}
		if candidate > best {
			best, bestText = candidate, pair.Original
		}

		if best < s.cfg.CharOverlapBelow && q.length <= s.cfg.CharMaxQueryLength {
			if score := s.charOverlap(q, text); score > best {
				best, bestText = score, pair.Original
			}
		}
	}
	return best, bestText
}

func (s *Scorer) wordOverlap(q scoredQuery, text string) int {
	if len(q.words) == 0 {
		return 0
	}
	textWords := wordSet(titleWords(text))
	if len(textWords) == 0 {
		return 0
	}
	overlap := 0
	for word := range q.words {
		if _, ok := textWords[word]; ok {
			overlap++
		}
	}
	if overlap == 0 || overlap < min(s.cfg.WordMinOverlap, len(q.words)) {
		return 0
	}
	overlapRatio := float64(overlap) / float64(len(q.words))
	coverage := float64(overlap) / float64(len(textWords))
	switch {
	case overlapRatio >= s.cfg.WordRatioThreshold:
		return int(s.cfg.WordBase + overlapRatio*s.cfg.WordWeight)
	case coverage >= s.cfg.CoverageThreshold && overlapRatio >= s.cfg.CoverageMinRatio:
		return int(s.cfg.CoverageBase + coverage*s.cfg.CoverageWeight)
	}
	return 0
}

func (s *Scorer) charOverlap(q scoredQuery, text string) int {
	if len(q.chars) == 0 {
		return 0
	}
	textChars := runeSet(text)
	overlap := 0
	for r := range q.chars {
		if _, ok := textChars[r]; ok {
			overlap++
		}
	}
	need := max(float64(s.cfg.CharMinOverlap), float64(len(q.chars))*s.cfg.CharOverlapFraction)
	if float64(overlap) < need {
		return 0
	}
	return int(s.cfg.CharBase + float64(overlap)/float64(len(q.chars))*s.cfg.CharWeight)
}

// scoredQuery caches the query-side sets reused for every candidate text.
type scoredQuery struct {
	length int
	words  map[string]struct{}
	chars  map[rune]struct{}
}

func newScoredQuery(query string) scoredQuery {
	return scoredQuery{
		length: utf8.RuneCountInString(query),
		words:  wordSet(titleWords(query)),
		chars:  runeSet(query),
	}
}

func wordSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, word := range words {
		set[word] = struct{}{}
	}
	return set
}

func runeSet(text string) map[rune]struct{} {
	set := make(map[rune]struct{}, len(text))
	for _, r := range text {
		if r != ' ' {
			set[r] = struct{}{}
		}
	}
	return set
}
