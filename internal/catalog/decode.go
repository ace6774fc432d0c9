package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Ark1369/CBZ-Metadata-Manager/internal/domain"
)

var (
	ErrMalformedRecord = errors.New("malformed catalog record")
	errMissingID       = errors.New("missing id")
)

// RecordError reports a catalog line that could not be turned into a record.
type RecordError struct {
	Line int
	Err  error
}

func (e *RecordError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return e.Err.Error()
}

func (e *RecordError) Unwrap() []error {
	return []error{ErrMalformedRecord, e.Err}
}

// FieldIssue describes an optional field that had an unexpected shape and
// was dropped while the rest of the record was kept.
type FieldIssue struct {
	Field  string
	Reason string
}

// DecodeRecord validates one JSON object against the catalog record shape.
// Only a non-object payload or a missing id rejects the record; every other
// shape problem drops the offending field and is reported as a FieldIssue.
func DecodeRecord(data []byte) (domain.CatalogRecord, []FieldIssue, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return domain.CatalogRecord{}, nil, &RecordError{Err: err}
	}
	if fields == nil {
		return domain.CatalogRecord{}, nil, &RecordError{Err: errors.New("record is null")}
	}

	d := fieldDecoder{fields: fields}
	record := domain.CatalogRecord{
		ID:             d.id("id"),
		Title:          d.text("title"),
		NativeTitle:    d.text("native_title"),
		RomanizedTitle: d.text("romanized_title"),
		State:          domain.NormalizeRecordState(d.text("state")),
		MergedWith:     d.id("merged_with"),
		Type:           d.text("type"),
		Description:    d.text("description"),
		ContentRating:  d.text("content_rating"),
		Year:           d.text("year"),
		Lang:           d.text("lang"),
		Authors:        d.list("authors"),
		Artists:        d.list("artists"),
		Genres:         d.list("genres"),
		Tags:           d.list("tags"),
		Links:          d.list("links"),
		Publishers:     d.publishers("publishers"),
		FinalVolume:    d.text("final_volume"),
		FinalChapter:   d.text("final_chapter"),
	}
	record.SecondaryTitles = d.secondaryTitles("secondary_titles")

	if record.ID.IsZero() {
		return domain.CatalogRecord{}, d.issues, &RecordError{Err: errMissingID}
	}
	if record.State != domain.RecordStateMerged {
		record.MergedWith = ""
	}
	return record, d.issues, nil
}

type fieldDecoder struct {
	fields map[string]json.RawMessage
	issues []FieldIssue
}

func (d *fieldDecoder) raw(name string) (json.RawMessage, bool) {
	value, ok := d.fields[name]
	if !ok {
		return nil, false
	}
	value = bytes.TrimSpace(value)
	if len(value) == 0 || bytes.Equal(value, []byte("null")) {
		return nil, false
	}
	return value, true
}

func (d *fieldDecoder) fail(name, reason string) {
	d.issues = append(d.issues, FieldIssue{Field: name, Reason: reason})
}

func (d *fieldDecoder) id(name string) domain.RecordID {
	value, ok := d.raw(name)
	if !ok {
		return ""
	}
	var id domain.RecordID
	if err := json.Unmarshal(value, &id); err != nil {
		d.fail(name, "expected string or number")
		return ""
	}
	return id
}

// text accepts strings and numbers; numbers keep their literal form.
func (d *fieldDecoder) text(name string) string {
	value, ok := d.raw(name)
	if !ok {
		return ""
	}
	switch value[0] {
	case '"':
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			d.fail(name, err.Error())
			return ""
		}
		return s
	case '{', '[':
		d.fail(name, "expected scalar")
		return ""
	case 't', 'f':
		return string(value)
	default:
		var n json.Number
		if err := json.Unmarshal(value, &n); err != nil {
			d.fail(name, "expected scalar")
			return ""
		}
		return n.String()
	}
}

// list accepts a single string or a list; non-string items are skipped.
func (d *fieldDecoder) list(name string) []string {
	value, ok := d.raw(name)
	if !ok {
		return nil
	}
	if value[0] == '"' {
		var s string
		if err := json.Unmarshal(value, &s); err != nil || s == "" {
			return nil
		}
		return []string{s}
	}
	var items []json.RawMessage
	if err := json.Unmarshal(value, &items); err != nil {
		d.fail(name, "expected string or list")
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if json.Unmarshal(item, &s) != nil || s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (d *fieldDecoder) publishers(name string) []domain.Publisher {
	value, ok := d.raw(name)
	if !ok {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(value, &items); err != nil {
		d.fail(name, "expected list")
		return nil
	}
	out := make([]domain.Publisher, 0, len(items))
	for _, item := range items {
		var p struct {
			Name string `json:"name"`
			Type string `json:"type"`
		}
		if json.Unmarshal(item, &p) != nil {
			continue
		}
		out = append(out, domain.Publisher{Name: p.Name, Type: p.Type})
	}
	return out
}

// secondaryTitles walks the object token by token so language order is kept.
func (d *fieldDecoder) secondaryTitles(name string) domain.SecondaryTitles {
	value, ok := d.raw(name)
	if !ok {
		return nil
	}
	if value[0] != '{' {
		d.fail(name, "expected object of language to title list")
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(value))
	if _, err := dec.Token(); err != nil {
		d.fail(name, err.Error())
		return nil
	}
	var out domain.SecondaryTitles
	for dec.More() {
		keyToken, err := dec.Token()
		if err != nil {
			d.fail(name, err.Error())
			return out
		}
		language, _ := keyToken.(string)
		var rawTitles json.RawMessage
		if err := dec.Decode(&rawTitles); err != nil {
			d.fail(name, err.Error())
			return out
		}
		var items []json.RawMessage
		if err := json.Unmarshal(rawTitles, &items); err != nil {
			if !bytes.Equal(bytes.TrimSpace(rawTitles), []byte("null")) {
				d.fail(name+"."+language, "expected list")
			}
			continue
		}
		titles := make([]string, 0, len(items))
		for _, item := range items {
			var entry struct {
				Title string `json:"title"`
			}
			if json.Unmarshal(item, &entry) != nil || strings.TrimSpace(entry.Title) == "" {
				continue
			}
			titles = append(titles, entry.Title)
		}
		if len(titles) > 0 {
			out = append(out, domain.LanguageTitles{Language: language, Titles: titles})
		}
	}
	if _, err := dec.Token(); err != nil && !errors.Is(err, io.EOF) {
		d.fail(name, err.Error())
	}
	return out
}
