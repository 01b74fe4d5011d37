package playlist

import (
	"fmt"
	"strings"

	"github.com/grafov/m3u8"

	"github.com/yourusername/fetchvideo-go/internal/domain"
)

// Kind distinguishes master playlists from media playlists
type Kind string

const (
	KindMaster Kind = "master"
	KindMedia  Kind = "media"
)

// Variant is one rendition listed by a master playlist
type Variant struct {
	URL        string `json:"url"`
	Bandwidth  uint32 `json:"bandwidth"`
	Resolution string `json:"resolution,omitempty"`
	Codecs     string `json:"codecs,omitempty"`
	Quality    string `json:"quality"`
}

// Info summarises a playlist without downloading anything
type Info struct {
	URL            string    `json:"url"`
	Kind           Kind      `json:"kind"`
	Title          string    `json:"title"`
	Quality        string    `json:"quality"`
	Variants       []Variant `json:"variants,omitempty"`
	TargetDuration float64   `json:"target_duration,omitempty"`
	SegmentCount   int       `json:"segment_count"`
	TotalDuration  float64   `json:"total_duration"`
	Closed         bool      `json:"closed"`
	Encrypted      bool      `json:"encrypted"`
}

// Probe decodes playlist text with a full M3U8 decoder and summarises it
func Probe(text, playlistURL string) (*Info, error) {
	if !strings.Contains(text, headerTag) {
		return nil, fmt.Errorf("%w: missing %s marker", domain.ErrParse, headerTag)
	}

	base, err := ParsePlaylistURL(playlistURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrParse, err)
	}

	p, listType, err := m3u8.DecodeFrom(strings.NewReader(text), false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrParse, err)
	}

	info := &Info{
		URL:     playlistURL,
		Title:   TitleFromURL(playlistURL),
		Quality: GuessQuality(playlistURL),
	}

	switch listType {
	case m3u8.MASTER:
		info.Kind = KindMaster
		master := p.(*m3u8.MasterPlaylist)
		for _, v := range master.Variants {
			if v == nil {
				continue
			}
			info.Variants = append(info.Variants, Variant{
				URL:        ResolveURL(base, v.URI),
				Bandwidth:  v.Bandwidth,
				Resolution: v.Resolution,
				Codecs:     v.Codecs,
				Quality:    qualityOfVariant(v.Resolution, v.URI),
			})
		}
	case m3u8.MEDIA:
		info.Kind = KindMedia
		media := p.(*m3u8.MediaPlaylist)
		info.TargetDuration = media.TargetDuration
		info.Closed = media.Closed
		info.Encrypted = media.Key != nil && media.Key.Method != "" && media.Key.Method != "NONE"
		for _, seg := range media.Segments {
			if seg == nil {
				continue
			}
			info.SegmentCount++
			info.TotalDuration += seg.Duration
			if seg.Key != nil && seg.Key.Method != "" && seg.Key.Method != "NONE" {
				info.Encrypted = true
			}
		}
	default:
		return nil, fmt.Errorf("%w: unknown playlist type", domain.ErrParse)
	}

	return info, nil
}

// IsMaster reports whether text looks like a master playlist
func IsMaster(text string) bool {
	return strings.Contains(text, "#EXT-X-STREAM-INF")
}

func qualityOfVariant(resolution, uri string) string {
	var w, h int
	if _, err := fmt.Sscanf(resolution, "%dx%d", &w, &h); err == nil {
		return QualityFromSize(w, h)
	}
	return GuessQuality(uri)
}
