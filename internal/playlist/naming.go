package playlist

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultTitle is used when nothing meaningful can be derived from a URL
const DefaultTitle = "HLS Stream"

// QualityUnknown is reported when no quality marker is recognised
const QualityUnknown = "unknown"

// DefaultExtension is used for direct downloads whose URL names no extension
const DefaultExtension = ".mp4"

// maxFilenameLength caps sanitized names, in runes
const maxFilenameLength = 200

var (
	unsafeFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	filenameSpaces      = regexp.MustCompile(`\s+`)
)

// IsM3U8URL reports whether a URL looks like an HLS playlist
func IsM3U8URL(raw string) bool {
	return strings.Contains(strings.ToLower(raw), "m3u8")
}

// TitleFromURL derives a readable title from the last meaningful path segment
func TitleFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return DefaultTitle
	}

	parts := strings.Split(u.Path, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		part := parts[i]
		if len(part) <= 2 || strings.Contains(strings.ToLower(part), ".m3u8") {
			continue
		}
		if decoded, err := url.PathUnescape(part); err == nil {
			part = decoded
		}
		return strings.NewReplacer("_", " ", "-", " ").Replace(part)
	}

	return DefaultTitle
}

var qualityMarkers = []struct {
	quality string
	markers []string
}{
	{"4K", []string{"4k", "2160p"}},
	{"2K", []string{"2k", "1440p"}},
	{"1080p", []string{"1080p", "fhd"}},
	{"720p", []string{"720p", "hd"}},
	{"480p", []string{"480p", "sd"}},
	{"360p", []string{"360p"}},
	{"240p", []string{"240p"}},
}

// GuessQuality looks for common resolution markers in a URL
func GuessQuality(raw string) string {
	lower := strings.ToLower(raw)
	for _, q := range qualityMarkers {
		for _, m := range q.markers {
			if strings.Contains(lower, m) {
				return q.quality
			}
		}
	}
	return QualityUnknown
}

// QualityFromSize maps a frame size to a quality label
func QualityFromSize(width, height int) string {
	if width <= 0 || height <= 0 {
		return QualityUnknown
	}

	pixels := width * height
	switch {
	case height >= 2160 || pixels >= 3840*2160:
		return "4K"
	case height >= 1440 || pixels >= 2560*1440:
		return "2K"
	case height >= 1080 || pixels >= 1920*1080:
		return "1080p"
	case height >= 720 || pixels >= 1280*720:
		return "720p"
	case height >= 480 || pixels >= 854*480:
		return "480p"
	case height >= 360 || pixels >= 640*360:
		return "360p"
	case height >= 240 || pixels >= 426*240:
		return "240p"
	}
	return fmt.Sprintf("%dx%d", width, height)
}

// FileStem returns the last path segment of a URL without its extension
func FileStem(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "/" || base == "." {
		return ""
	}
	if decoded, err := url.PathUnescape(base); err == nil {
		base = decoded
	}
	return strings.TrimSuffix(base, path.Ext(base))
}

// FileExtension returns the extension of the URL path, ".mp4" when it has none
func FileExtension(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return DefaultExtension
	}
	ext := path.Ext(u.Path)
	if len(ext) < 2 || strings.ContainsAny(ext, " %") {
		return DefaultExtension
	}
	return strings.ToLower(ext)
}

// SanitizeFilename replaces characters that are unsafe in file names, turns
// whitespace runs into underscores and caps the length
func SanitizeFilename(name string) string {
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = filenameSpaces.ReplaceAllString(strings.TrimSpace(name), "_")
	for strings.Contains(name, "..") {
		name = strings.ReplaceAll(name, "..", ".")
	}
	name = strings.Trim(name, ".")

	if utf8.RuneCountInString(name) > maxFilenameLength {
		name = string([]rune(name)[:maxFilenameLength])
	}
	return name
}

// FileName builds the name a direct download is saved under
func FileName(title, raw string) string {
	stem := SanitizeFilename(title)
	if stem == "" {
		stem = SanitizeFilename(FileStem(raw))
	}
	if stem == "" {
		stem = "video"
	}
	return stem + FileExtension(raw)
}
