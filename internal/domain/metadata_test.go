package domain

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestMetadataFromRecordPublishers(t *testing.T) {
	tests := []struct {
		name      string
		input     []Publisher
		publisher string
		imprint   string
	}{
		{name: "none", input: nil},
		{name: "single", input: []Publisher{{Name: "Kodansha", Type: "Original"}}, publisher: "Kodansha"},
		{
			name:      "english preferred",
			input:     []Publisher{{Name: "Kodansha", Type: "Original"}, {Name: "Kodansha USA", Type: "English"}},
			publisher: "Kodansha USA",
			imprint:   "Kodansha (Original), Kodansha USA (English)",
		},
		{
			name:      "first when no english",
			input:     []Publisher{{Name: "Shueisha", Type: "Original"}, {Name: "Panini", Type: "German"}},
			publisher: "Shueisha",
			imprint:   "Shueisha (Original), Panini (German)",
		},
		{name: "missing type skipped", input: []Publisher{{Name: "Nameless"}, {Name: "Viz", Type: "en"}}, publisher: "Viz"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			meta := MetadataFromRecord(CatalogRecord{ID: "1", Publishers: tc.input})
			if meta.Publisher != tc.publisher || meta.Imprint != tc.imprint {
				t.Fatalf("got publisher=%q imprint=%q", meta.Publisher, meta.Imprint)
			}
		})
	}
}

func TestMetadataFromRecordFields(t *testing.T) {
	record := CatalogRecord{
		ID:             "42",
		Title:          "Attack on Titan",
		NativeTitle:    "進撃の巨人",
		RomanizedTitle: "Shingeki no Kyojin",
		SecondaryTitles: SecondaryTitles{
			{Language: "es", Titles: []string{"Ataque a los Titanes"}},
			{Language: "en", Titles: []string{"AoT", "Attack on Titan"}},
		},
		Authors:       []string{"Isayama Hajime"},
		Artists:       []string{"Isayama Hajime"},
		Genres:        []string{"Action", "Drama"},
		ContentRating: "suggestive",
		FinalChapter:  "139",
		Description:   "<p>Humanity</p><br>lives <i>behind</i> walls.",
	}
	meta := MetadataFromRecord(record)

	if meta.EntryID != "42" || meta.Series != "Attack on Titan" {
		t.Fatalf("unexpected identity fields: %+v", meta)
	}
	if meta.LocalizedSeries != "Shingeki no Kyojin, 進撃の巨人, AoT, Attack on Titan" {
		t.Fatalf("unexpected localized series %q", meta.LocalizedSeries)
	}
	if meta.AgeRating != "Teen" {
		t.Fatalf("expected Teen, got %q", meta.AgeRating)
	}
	if meta.Count != "139" {
		t.Fatalf("expected final chapter fallback, got %q", meta.Count)
	}
	if meta.LanguageISO != "en" {
		t.Fatalf("expected default language, got %q", meta.LanguageISO)
	}
	if meta.Inker != "Isayama Hajime" || meta.Genre != "Action, Drama" {
		t.Fatalf("unexpected credits: %+v", meta)
	}
	if strings.Contains(meta.Summary, "<") {
		t.Fatalf("html left in summary: %q", meta.Summary)
	}
}

func TestCleanLinks(t *testing.T) {
	got := CleanLinks([]string{
		"https://anilist.co/manga/53390/",
		"anilist.co/manga/53390; https://www.amazon.co.jp/dp/1",
		"https://ja.wikipedia.org/wiki/x, https://mangadex.org/title/abc",
		"",
	})
	want := "https://anilist.co/manga/53390/, https://mangadex.org/title/abc"
	if got != want {
		t.Fatalf("CleanLinks() = %q, want %q", got, want)
	}
}

func TestCleanHTMLDescriptionCollapsesBlankLines(t *testing.T) {
	got := CleanHTMLDescription("One<br><br><br><br>Two <span class=\"x\">three</span>")
	if got != "One\n\nTwo three" {
		t.Fatalf("unexpected cleaned text %q", got)
	}
}

func TestApplyCreditsKeepsExistingWhenEmpty(t *testing.T) {
	meta := Metadata{Writer: "Original Writer", Penciller: "Artist"}
	meta.ApplyCredits(Credits{Writer: "Story Writer", Characters: "Eren Yeager"})
	if meta.Writer != "Story Writer" || meta.Penciller != "Artist" || meta.Characters != "Eren Yeager" {
		t.Fatalf("unexpected metadata after credits: %+v", meta)
	}
}

func TestRecordIDJSON(t *testing.T) {
	var record struct {
		ID     RecordID `json:"id"`
		Target RecordID `json:"target"`
	}
	if err := json.Unmarshal([]byte(`{"id": 123, "target": " abc "}`), &record); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if record.ID != "123" || record.Target != "abc" {
		t.Fatalf("unexpected ids: %+v", record)
	}
	encoded, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(encoded) != `{"id":123,"target":"abc"}` {
		t.Fatalf("unexpected encoding %s", encoded)
	}
}

func TestRecordIDMarshalNonCanonicalNumbers(t *testing.T) {
	tests := map[RecordID]string{
		"42":   `42`,
		"-3":   `-3`,
		"0":    `0`,
		"007":  `"007"`,
		"+5":   `"+5"`,
		"-0":   `"-0"`,
		"abc":  `"abc"`,
		"1e3":  `"1e3"`,
		"12 a": `"12 a"`,
	}
	for id, want := range tests {
		encoded, err := json.Marshal(id)
		if err != nil {
			t.Fatalf("marshal %q: %v", id, err)
		}
		if string(encoded) != want {
			t.Fatalf("marshal %q = %s, want %s", id, encoded, want)
		}
		var decoded RecordID
		if err := json.Unmarshal(encoded, &decoded); err != nil {
			t.Fatalf("unmarshal %s: %v", encoded, err)
		}
		if decoded != id {
			t.Fatalf("round trip %q came back as %q", id, decoded)
		}
	}
}

func TestSecondaryTitlesMarshalKeepsOrder(t *testing.T) {
	titles := SecondaryTitles{
		{Language: "ja", Titles: []string{"A"}},
		{Language: "en", Titles: []string{"B", "C"}},
	}
	encoded, err := json.Marshal(titles)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"ja":[{"title":"A"}],"en":[{"title":"B"},{"title":"C"}]}`
	if string(encoded) != want {
		t.Fatalf("got %s want %s", encoded, want)
	}
}
