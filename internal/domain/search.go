package domain

// TextPair is one title variant of a record together with its normalized form.
type TextPair struct {
	Original   string
	Normalized string
}

// ScoredMatch is a transient ranking result for a single query.
type ScoredMatch struct {
	Record      CatalogRecord
	Score       int
	MatchedText string
}

type LookupSource string

const (
	LookupSourceLocal  LookupSource = "local"
	LookupSourceRemote LookupSource = "remote"
	LookupSourceCache  LookupSource = "cache"
	LookupSourceNone   LookupSource = "none"
)

type LookupRequest struct {
	Title     string
	Limit     int
	LocalOnly bool
}

type MatchedMetadata struct {
	Metadata
	Score       int    `json:"score,omitempty"`
	MatchedText string `json:"matchedText,omitempty"`
}

type LookupResult struct {
	Query     string            `json:"query"`
	Source    LookupSource      `json:"source"`
	Items     []MatchedMetadata `json:"items"`
	ElapsedMS int64             `json:"elapsedMs"`
}

type BatchItem struct {
	File  string `json:"file,omitempty"`
	Title string `json:"title,omitempty"`
}

type BatchOutcome string

const (
	BatchOutcomeMatched      BatchOutcome = "matched"
	BatchOutcomeNoMatch      BatchOutcome = "no_match"
	BatchOutcomeInvalidTitle BatchOutcome = "invalid_title"
	BatchOutcomeCancelled    BatchOutcome = "cancelled"
)

type BatchResult struct {
	File    string            `json:"file,omitempty"`
	Title   string            `json:"title"`
	Outcome BatchOutcome      `json:"outcome"`
	Source  LookupSource      `json:"source,omitempty"`
	Items   []MatchedMetadata `json:"items,omitempty"`
	Error   string            `json:"error,omitempty"`
}

type BatchResponse struct {
	RunID     string        `json:"runId"`
	Results   []BatchResult `json:"results"`
	Matched   int           `json:"matched"`
	Failed    int           `json:"failed"`
	ElapsedMS int64         `json:"elapsedMs"`
}

// CatalogStats summarizes the derived artifacts of the active snapshot.
type CatalogStats struct {
	Records     int    `json:"records"`
	Merged      int    `json:"merged"`
	Active      int    `json:"active"`
	Canonical   int    `json:"canonical"`
	IndexKeys   int    `json:"indexKeys"`
	Indexed     bool   `json:"indexed"`
	Fingerprint string `json:"fingerprint"`
}
