package search

import (
	"errors"
	"testing"

	"github.com/Ark1369/CBZ-Metadata-Manager/internal/domain"
)

func TestScoreTiers(t *testing.T) {
	scorer := NewScorer(DefaultScoringConfig())
	cases := []struct {
		name  string
		query string
		texts []string
		want  int
	}{
		{"exact", "attack on titan", []string{"attack on titan"}, 100},
		{"containment", "attack on titan", []string{"attack on titan season"}, 85},
		{"containment ratio too low falls to char tier", "titan", []string{"attack on titan final season"}, 50},
		{"reverse containment", "one piece party time", []string{"one piece"}, 65},
		{"reverse containment needs four chars", "abc def", []string{"abc"}, 0},
		{"word overlap", "the ancient magus bride", []string{"magus bride ancient the"}, 75},
		{"candidate coverage", "alpha beta gamma delta epsilon zeta", []string{"alpha zeta omega"}, 56},
		{"too little overlap", "alpha beta gamma", []string{"alpha omega"}, 0},
		{"punctuated words overlap", "re:zero", []string{"re: zero starting life in another world"}, 75},
		{"best across texts", "vinland saga", []string{"saga", "vinland saga"}, 100},
		{"empty texts skipped", "vinland", []string{"", ""}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pairs := make([]domain.TextPair, 0, len(tc.texts))
			for _, text := range tc.texts {
				pairs = append(pairs, domain.TextPair{Original: "orig:" + text, Normalized: text})
			}
			got, _ := scorer.Score(tc.query, pairs)
			if got != tc.want {
				t.Fatalf("Score(%q, %v) = %d, want %d", tc.query, tc.texts, got, tc.want)
			}
		})
	}
}

func TestScoreReportsMatchedOriginal(t *testing.T) {
	scorer := NewScorer(DefaultScoringConfig())
	score, matched := scorer.Score("aot", []domain.TextPair{
		{Original: "Attack on Titan", Normalized: "attack on titan"},
		{Original: "AoT", Normalized: "aot"},
	})
	if score != 100 || matched != "AoT" {
		t.Fatalf("expected exact match on AoT, got %d %q", score, matched)
	}
	if score, matched := scorer.Score("", []domain.TextPair{{Original: "x", Normalized: "x"}}); score != 0 || matched != "" {
		t.Fatalf("empty query must score 0, got %d %q", score, matched)
	}
}

func TestAcceptsThreshold(t *testing.T) {
	scorer := NewScorer(DefaultScoringConfig())
	if scorer.Accepts(64) || !scorer.Accepts(65) {
		t.Fatalf("acceptance threshold must be 65")
	}
}

func TestScoringConfigValidate(t *testing.T) {
	if err := DefaultScoringConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	cfg := DefaultScoringConfig()
	cfg.AcceptThreshold = 150
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidScoringConfig) {
		t.Fatalf("expected ErrInvalidScoringConfig, got %v", err)
	}
	cfg = DefaultScoringConfig()
	cfg.ContainmentCap = 120
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidScoringConfig) {
		t.Fatalf("expected ErrInvalidScoringConfig for cap, got %v", err)
	}
}
