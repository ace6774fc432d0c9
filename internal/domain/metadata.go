package domain

import (
	"regexp"
	"strings"
)

// Metadata is the result-metadata object handed to callers and persisted in
// the response cache. Field names follow the ComicInfo vocabulary.
type Metadata struct {
	Title           string    `json:"Title"`
	Series          string    `json:"Series"`
	Number          string    `json:"Number"`
	Volume          string    `json:"Volume"`
	Summary         string    `json:"Summary"`
	Writer          string    `json:"Writer"`
	Penciller       string    `json:"Penciller"`
	Inker           string    `json:"Inker"`
	Colorist        string    `json:"Colorist"`
	Letterer        string    `json:"Letterer,omitempty"`
	CoverArtist     string    `json:"CoverArtist,omitempty"`
	Editor          string    `json:"Editor,omitempty"`
	Translator      string    `json:"Translator,omitempty"`
	Characters      string    `json:"Characters,omitempty"`
	Publisher       string    `json:"Publisher"`
	Imprint         string    `json:"Imprint"`
	Genre           string    `json:"Genre"`
	Tags            string    `json:"Tags"`
	Year            string    `json:"Year"`
	LanguageISO     string    `json:"LanguageISO"`
	Web             string    `json:"Web"`
	Count           string    `json:"Count"`
	PageCount       string    `json:"PageCount"`
	Teams           string    `json:"Teams"`
	Locations       string    `json:"Locations"`
	LocalizedSeries string    `json:"LocalizedSeries"`
	Format          string    `json:"Format"`
	AgeRating       string    `json:"AgeRating"`
	Type            string    `json:"type"`
	ContentRating   string    `json:"content_rating"`
	EntryID         string    `json:"entry_id"`
	AllTitles       AllTitles `json:"all_titles"`
}

type AllTitles struct {
	Primary   string `json:"primary"`
	Romanized string `json:"romanized"`
	Native    string `json:"native"`
	Secondary string `json:"secondary"`
}

// Credits are contributor and character lists gathered by the enrichment
// service, already joined into comma separated strings.
type Credits struct {
	Characters  string `json:"Characters"`
	Writer      string `json:"Writer"`
	Penciller   string `json:"Penciller"`
	Inker       string `json:"Inker"`
	Colorist    string `json:"Colorist"`
	Letterer    string `json:"Letterer"`
	CoverArtist string `json:"CoverArtist"`
	Editor      string `json:"Editor"`
	Translator  string `json:"Translator"`
}

// ApplyCredits overwrites contributor fields with every non-empty credit.
func (m *Metadata) ApplyCredits(c Credits) {
	set := func(dst *string, value string) {
		if strings.TrimSpace(value) != "" {
			*dst = value
		}
	}
	set(&m.Characters, c.Characters)
	set(&m.Writer, c.Writer)
	set(&m.Penciller, c.Penciller)
	set(&m.Inker, c.Inker)
	set(&m.Colorist, c.Colorist)
	set(&m.Letterer, c.Letterer)
	set(&m.CoverArtist, c.CoverArtist)
	set(&m.Editor, c.Editor)
	set(&m.Translator, c.Translator)
}

var ageRatings = map[string]string{
	"safe":         "Everyone",
	"suggestive":   "Teen",
	"erotica":      "Mature 17+",
	"pornographic": "Adults Only 18+",
}

var blacklistedLinkHosts = []string{"amazon.co.jp", "ja.wikipedia.org"}

// MetadataFromRecord maps a catalog entry onto the metadata vocabulary.
func MetadataFromRecord(r CatalogRecord) Metadata {
	publisher, imprint := selectPublishers(r.Publishers)

	englishTitles := r.SecondaryTitles.ForLanguage("en")
	secondary := strings.Join(englishTitles, ", ")
	localized := joinNonEmpty(", ", r.RomanizedTitle, r.NativeTitle, secondary)

	ageRating := ""
	if r.ContentRating != "" {
		ageRating = r.ContentRating
		if mapped, ok := ageRatings[strings.ToLower(r.ContentRating)]; ok {
			ageRating = mapped
		}
	}

	language := r.Lang
	if language == "" {
		language = "en"
	}
	count := r.FinalVolume
	if count == "" {
		count = r.FinalChapter
	}
	artists := strings.Join(r.Artists, ", ")

	return Metadata{
		Title:           r.Title,
		Series:          r.Title,
		Summary:         CleanHTMLDescription(r.Description),
		Writer:          strings.Join(r.Authors, ", "),
		Penciller:       artists,
		Inker:           artists,
		Colorist:        artists,
		Publisher:       publisher,
		Imprint:         imprint,
		Genre:           strings.Join(r.Genres, ", "),
		Tags:            strings.Join(r.Tags, ", "),
		Year:            r.Year,
		LanguageISO:     language,
		Web:             CleanLinks(r.Links),
		Count:           count,
		LocalizedSeries: localized,
		AgeRating:       ageRating,
		Type:            r.Type,
		ContentRating:   r.ContentRating,
		EntryID:         r.ID.String(),
		AllTitles: AllTitles{
			Primary:   r.Title,
			Romanized: r.RomanizedTitle,
			Native:    r.NativeTitle,
			Secondary: secondary,
		},
	}
}

// selectPublishers puts a lone publisher in Publisher. With several, the first
// English one (or the first overall) becomes Publisher and all of them are
// listed in Imprint as "name (type)".
func selectPublishers(publishers []Publisher) (string, string) {
	valid := make([]Publisher, 0, len(publishers))
	for _, p := range publishers {
		name := strings.TrimSpace(p.Name)
		kind := strings.TrimSpace(p.Type)
		if name == "" || kind == "" {
			continue
		}
		valid = append(valid, Publisher{Name: name, Type: kind})
	}
	switch len(valid) {
	case 0:
		return "", ""
	case 1:
		return valid[0].Name, ""
	}

	selected := valid[0]
	for _, p := range valid {
		kind := strings.ToLower(p.Type)
		if kind == "english" || kind == "en" {
			selected = p
			break
		}
	}
	imprint := make([]string, 0, len(valid))
	for _, p := range valid {
		imprint = append(imprint, p.Name+" ("+p.Type+")")
	}
	return selected.Name, strings.Join(imprint, ", ")
}

var linkSeparator = regexp.MustCompile(`[;,]`)

// CleanLinks splits, schemes, filters and de-duplicates web links.
func CleanLinks(links []string) string {
	raw := make([]string, 0, len(links))
	for _, link := range links {
		if link != "" {
			raw = append(raw, link)
		}
	}
	if len(raw) == 0 {
		return ""
	}

	seen := make(map[string]struct{})
	cleaned := make([]string, 0, len(raw))
	for _, part := range linkSeparator.Split(strings.Join(raw, "; "), -1) {
		link := strings.TrimSpace(part)
		if link == "" {
			continue
		}
		key := strings.TrimRight(strings.ToLower(link), "/")
		if !strings.HasPrefix(key, "http://") && !strings.HasPrefix(key, "https://") {
			link = "https://" + link
			key = "https://" + key
		}
		if isBlacklistedLink(key) {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		cleaned = append(cleaned, link)
	}
	return strings.Join(cleaned, ", ")
}

func isBlacklistedLink(link string) bool {
	for _, host := range blacklistedLinkHosts {
		if strings.Contains(link, host) {
			return true
		}
	}
	return false
}

var (
	htmlReplacer = strings.NewReplacer(
		"<br>", "\n", "<br/>", "\n", "<br />", "\n", "</br>", "\n",
		"<i>", "", "</i>", "", "<b>", "", "</b>", "",
		"<strong>", "", "</strong>", "", "<em>", "", "</em>", "",
		"<u>", "", "</u>", "", "<p>", "\n", "</p>", "\n",
	)
	htmlTagPattern    = regexp.MustCompile(`<[^>]+>`)
	blankLinesPattern = regexp.MustCompile(`\n\s*\n\s*\n+`)
)

// CleanHTMLDescription turns an HTML synopsis into plain text.
func CleanHTMLDescription(text string) string {
	if text == "" {
		return ""
	}
	cleaned := htmlReplacer.Replace(text)
	cleaned = htmlTagPattern.ReplaceAllString(cleaned, "")
	cleaned = blankLinesPattern.ReplaceAllString(cleaned, "\n\n")
	return strings.TrimSpace(cleaned)
}

func joinNonEmpty(sep string, values ...string) string {
	parts := make([]string, 0, len(values))
	for _, value := range values {
		if value != "" {
			parts = append(parts, value)
		}
	}
	return strings.Join(parts, sep)
}
