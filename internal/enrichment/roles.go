package enrichment

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Ark1369/CBZ-Metadata-Manager/internal/domain"
)

type creditField int

const (
	fieldWriter creditField = iota
	fieldPenciller
	fieldInker
	fieldColorist
	fieldLetterer
	fieldCoverArtist
	fieldEditor
	fieldTranslator
	fieldCount
)

var staffRoles = map[string]creditField{
	"story":                              fieldWriter,
	"story & art":                        fieldWriter,
	"original creator":                   fieldWriter,
	"original story":                     fieldWriter,
	"author":                             fieldWriter,
	"writer":                             fieldWriter,
	"artist":                             fieldPenciller,
	"illustrator":                        fieldPenciller,
	"inking":                             fieldInker,
	"color":                              fieldColorist,
	"coloring":                           fieldColorist,
	"lettering (english)":                fieldLetterer,
	"touch-up art & lettering (english)": fieldLetterer,
	"cover":                              fieldCoverArtist,
	"cover art":                          fieldCoverArtist,
	"assistant":                          fieldCoverArtist,
	"assistant (former)":                 fieldCoverArtist,
	"editor":                             fieldEditor,
	"editorial":                          fieldEditor,
	"translation":                        fieldTranslator,
	"translator (english)":               fieldTranslator,
}

// Checked before staffRoles; the first hit wins.
var staffRolePatterns = []struct {
	pattern *regexp.Regexp
	field   creditField
}{
	{regexp.MustCompile(`^touch-up art & lettering`), fieldLetterer},
	{regexp.MustCompile(`^translator \(english`), fieldTranslator},
	{regexp.MustCompile(`^editing \(.*\)`), fieldEditor},
}

var characterRoles = map[string]struct{}{
	"MAIN":       {},
	"SUPPORTING": {},
	"BACKGROUND": {},
}

// staffFields returns every credit field a staff role contributes to. Art
// roles other than touch-ups also fill the penciller, inker and colorist.
func staffFields(rawRole string) []creditField {
	role := strings.ToLower(strings.TrimSpace(rawRole))
	var fields []creditField

	isArt := strings.Contains(role, "character design") || strings.Contains(role, "art")
	if isArt && !strings.Contains(role, "touch-up") {
		fields = append(fields, fieldPenciller, fieldInker, fieldColorist)
	}
	for _, rule := range staffRolePatterns {
		if rule.pattern.MatchString(role) {
			return append(fields, rule.field)
		}
	}
	if field, ok := staffRoles[role]; ok {
		fields = append(fields, field)
	}
	return fields
}

// BuildCredits maps staff and character edges onto credit fields. Staff
// names are de-duplicated per field in first-seen order.
func BuildCredits(staff []StaffEdge, characters []CharacterEdge) domain.Credits {
	var names [fieldCount][]string
	var seen [fieldCount]map[string]struct{}
	for i := range seen {
		seen[i] = make(map[string]struct{})
	}
	for _, edge := range staff {
		name := strings.TrimSpace(edge.Node.Name.Full)
		if name == "" {
			continue
		}
		for _, field := range staffFields(edge.Role) {
			if _, dup := seen[field][name]; dup {
				continue
			}
			seen[field][name] = struct{}{}
			names[field] = append(names[field], name)
		}
	}

	var cast []string
	for _, edge := range characters {
		if _, ok := characterRoles[strings.ToUpper(strings.TrimSpace(edge.Role))]; !ok {
			continue
		}
		if name := CharacterName(edge.Node.Name); name != "" {
			cast = append(cast, name)
		}
	}

	join := func(field creditField) string { return strings.Join(names[field], ", ") }
	return domain.Credits{
		Characters:  strings.Join(cast, ", "),
		Writer:      join(fieldWriter),
		Penciller:   join(fieldPenciller),
		Inker:       join(fieldInker),
		Colorist:    join(fieldColorist),
		Letterer:    join(fieldLetterer),
		CoverArtist: join(fieldCoverArtist),
		Editor:      join(fieldEditor),
		Translator:  join(fieldTranslator),
	}
}

// CharacterName prefers first/middle/last when that is longer than the full
// name, then the full name, then the first alternative.
func CharacterName(name CharacterNameParts) string {
	full := strings.TrimSpace(name.Full)
	var parts []string
	for _, part := range []string{name.First, name.Middle, name.Last} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) > 0 {
		constructed := strings.Join(parts, " ")
		if utf8.RuneCountInString(constructed) > utf8.RuneCountInString(full) {
			return constructed
		}
	}
	if full != "" {
		return full
	}
	if len(name.Alternative) > 0 {
		return strings.TrimSpace(name.Alternative[0])
	}
	return ""
}
