package enrichment

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var ErrNoLink = errors.New("no enrichment link found")

var (
	embeddedURL  = regexp.MustCompile(`https?://\S+`)
	leadingDigit = regexp.MustCompile(`^\d+`)
)

// ExtractAniListID finds the first anilist.co manga link in a comma- or
// newline-separated list and returns its numeric id.
func ExtractAniListID(links string) (string, error) {
	if strings.TrimSpace(links) == "" {
		return "", fmt.Errorf("%w: link list is empty", ErrNoLink)
	}
	separator := "\n"
	if strings.Contains(links, ",") {
		separator = ","
	}

	var candidate string
	var hosts []string
	for _, part := range strings.Split(links, separator) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(strings.ToLower(part), "anilist.co") {
			candidate = part
			break
		}
		if len(hosts) < 5 {
			if parsed, err := url.Parse(part); err == nil {
				hosts = append(hosts, parsed.Host)
			}
		}
	}
	if candidate == "" {
		return "", fmt.Errorf("%w: available hosts %v", ErrNoLink, hosts)
	}

	lower := strings.ToLower(candidate)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		match := embeddedURL.FindString(candidate)
		if match == "" {
			return "", fmt.Errorf("%w: no url in %q", ErrInvalidID, candidate)
		}
		candidate = match
	}

	parsed, err := url.Parse(candidate)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	if !strings.Contains(strings.ToLower(parsed.Host), "anilist.co") {
		return "", fmt.Errorf("%w: %q is not an anilist url", ErrInvalidID, candidate)
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(segments) < 2 {
		return "", fmt.Errorf("%w: path %q too short", ErrInvalidID, parsed.Path)
	}
	if segments[0] != "manga" {
		return "", fmt.Errorf("%w: %q is not a manga url", ErrInvalidID, candidate)
	}
	id := leadingDigit.FindString(segments[1])
	if id == "" {
		return "", fmt.Errorf("%w: no numeric id in %q", ErrInvalidID, segments[1])
	}
	return id, nil
}
