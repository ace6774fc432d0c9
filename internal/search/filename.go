package search

import (
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	bracketGroup   = regexp.MustCompile(`[\[\(].*?[\]\)]`)
	volumeMarker   = regexp.MustCompile(`(?i)(v|vol|volume|ch|chapter)[\s_]*\d+`)
	separatorRun   = regexp.MustCompile(`[_\-]+`)
	whitespaceRun  = regexp.MustCompile(`\s+`)
	volumePatterns = []*regexp.Regexp{
		regexp.MustCompile(`[Vv]ol\.?\s*(\d+)`),
		regexp.MustCompile(`[Vv]olume\s*(\d+)`),
		regexp.MustCompile(`\bv\.?\s*0*(\d+)\b`),
	}
)

// TitleFromFilename guesses a series title from an archive file name, e.g.
// "[Group] attack_on_titan v01 (2012).cbz" becomes "Attack On Titan".
func TitleFromFilename(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = bracketGroup.ReplaceAllString(base, "")
	base = volumeMarker.ReplaceAllString(base, "")
	base = separatorRun.ReplaceAllString(base, " ")
	base = whitespaceRun.ReplaceAllString(base, " ")
	return cases.Title(language.Und).String(strings.TrimSpace(base))
}

// VolumeFromFilename returns the volume number embedded in a file name, or
// "" when there is none.
func VolumeFromFilename(name string) string {
	for _, pattern := range volumePatterns {
		if match := pattern.FindStringSubmatch(name); match != nil {
			return match[1]
		}
	}
	return ""
}
