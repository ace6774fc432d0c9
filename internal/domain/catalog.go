package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// RecordID is the opaque identifier of a catalog entry. Catalog dumps carry
// numeric ids; remote payloads sometimes quote them, so both are accepted.
type RecordID string

func (id RecordID) String() string { return string(id) }

func (id RecordID) IsZero() bool { return strings.TrimSpace(string(id)) == "" }

func (id *RecordID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var value string
		if err := json.Unmarshal(data, &value); err != nil {
			return err
		}
		*id = RecordID(strings.TrimSpace(value))
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(data, &number); err != nil {
		return err
	}
	*id = RecordID(number.String())
	return nil
}

// MarshalJSON writes canonical integers as bare numbers. Anything else,
// including zero-padded or signed forms such as "007" or "+5", stays quoted.
func (id RecordID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

type RecordState string

const (
	RecordStateActive RecordState = "active"
	RecordStateMerged RecordState = "merged"
)

// NormalizeRecordState lowercases and trims a raw state value. Unknown states
// are kept verbatim so they are neither treated as active nor as merged.
func NormalizeRecordState(raw string) RecordState {
	return RecordState(strings.ToLower(strings.TrimSpace(raw)))
}

// LanguageTitles holds the alternative titles published for one language, in
// catalog order.
type LanguageTitles struct {
	Language string
	Titles   []string
}

// SecondaryTitles preserves the language order of the source object so that
// text variants are always visited in the same order.
type SecondaryTitles []LanguageTitles

func (s SecondaryTitles) All() []string {
	var out []string
	for _, lang := range s {
		out = append(out, lang.Titles...)
	}
	return out
}

func (s SecondaryTitles) ForLanguage(language string) []string {
	for _, lang := range s {
		if strings.EqualFold(lang.Language, language) {
			return lang.Titles
		}
	}
	return nil
}

func (s SecondaryTitles) MarshalJSON() ([]byte, error) {
	if len(s) == 0 {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, lang := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(lang.Language)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		items := make([]map[string]string, 0, len(lang.Titles))
		for _, title := range lang.Titles {
			items = append(items, map[string]string{"title": title})
		}
		encoded, err := json.Marshal(items)
		if err != nil {
			return nil, err
		}
		buf.Write(encoded)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type Publisher struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// CatalogRecord is one entry of the catalog snapshot. Records are decoded and
// validated by the catalog package and never mutated afterwards.
type CatalogRecord struct {
	ID              RecordID        `json:"id"`
	Title           string          `json:"title,omitempty"`
	NativeTitle     string          `json:"native_title,omitempty"`
	RomanizedTitle  string          `json:"romanized_title,omitempty"`
	SecondaryTitles SecondaryTitles `json:"secondary_titles,omitempty"`
	State           RecordState     `json:"state,omitempty"`
	MergedWith      RecordID        `json:"merged_with,omitempty"`

	Type          string      `json:"type,omitempty"`
	Description   string      `json:"description,omitempty"`
	ContentRating string      `json:"content_rating,omitempty"`
	Year          string      `json:"year,omitempty"`
	Lang          string      `json:"lang,omitempty"`
	Authors       []string    `json:"authors,omitempty"`
	Artists       []string    `json:"artists,omitempty"`
	Genres        []string    `json:"genres,omitempty"`
	Tags          []string    `json:"tags,omitempty"`
	Links         []string    `json:"links,omitempty"`
	Publishers    []Publisher `json:"publishers,omitempty"`
	FinalVolume   string      `json:"final_volume,omitempty"`
	FinalChapter  string      `json:"final_chapter,omitempty"`
}

func (r CatalogRecord) IsMerged() bool { return r.State == RecordStateMerged }

func (r CatalogRecord) IsActive() bool { return r.State == RecordStateActive }

// SearchableTexts returns every title variant of the record in a fixed order:
// primary, native, romanized, then secondary titles in language order.
func (r CatalogRecord) SearchableTexts() []string {
	texts := make([]string, 0, 3+len(r.SecondaryTitles))
	for _, value := range []string{r.Title, r.NativeTitle, r.RomanizedTitle} {
		if value != "" {
			texts = append(texts, value)
		}
	}
	for _, title := range r.SecondaryTitles.All() {
		if title != "" {
			texts = append(texts, title)
		}
	}
	return texts
}
