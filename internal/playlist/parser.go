// Package playlist turns M3U8 playlist text into downloadable segments.
package playlist

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/yourusername/fetchvideo-go/internal/domain"
)

const (
	headerTag = "#EXTM3U"
	extinfTag = "#EXTINF:"

	// DefaultSegmentDuration applies to segments without an #EXTINF directive
	DefaultSegmentDuration = 10.0
)

// Parse returns the segments referenced by playlist text in playlist order.
// playlistURL must be the absolute URL the text was fetched from.
func Parse(text, playlistURL string) ([]domain.Segment, error) {
	if !strings.Contains(text, headerTag) {
		return nil, fmt.Errorf("%w: missing %s marker", domain.ErrParse, headerTag)
	}

	base, err := ParsePlaylistURL(playlistURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrParse, err)
	}

	lines := splitLines(text)
	segments := make([]domain.Segment, 0, len(lines)/2)

	for i, line := range lines {
		if isDirective(line) {
			continue
		}
		segments = append(segments, domain.Segment{
			URL:      ResolveURL(base, line),
			Index:    len(segments),
			Duration: durationBefore(lines, i),
		})
	}

	if len(segments) == 0 {
		return nil, domain.ErrEmptyPlaylist
	}

	return segments, nil
}

// ParsePlaylistURL validates that raw is an absolute http(s) URL
func ParsePlaylistURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid playlist url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported playlist url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("playlist url %q has no host", raw)
	}
	return u, nil
}

// splitLines returns the trimmed non-empty lines of text
func splitLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func isDirective(line string) bool {
	return strings.HasPrefix(line, "#")
}

// durationBefore walks back over the directives directly above lines[i]
// looking for an #EXTINF
func durationBefore(lines []string, i int) float64 {
	for j := i - 1; j >= 0 && isDirective(lines[j]); j-- {
		if strings.HasPrefix(lines[j], extinfTag) {
			return parseExtinf(lines[j])
		}
	}
	return DefaultSegmentDuration
}

// parseExtinf reads the duration of "#EXTINF:<duration>,<title>"
func parseExtinf(line string) float64 {
	value := strings.TrimPrefix(line, extinfTag)
	if idx := strings.IndexByte(value, ','); idx >= 0 {
		value = value[:idx]
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || d < 0 {
		return DefaultSegmentDuration
	}
	return d
}
