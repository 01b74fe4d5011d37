package playlist

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveURL(t *testing.T) {
	base, err := url.Parse("https://cdn.example.com/videos/show/index.m3u8")
	require.NoError(t, err)

	tests := []struct {
		ref      string
		expected string
	}{
		{"seg001.ts", "https://cdn.example.com/videos/show/seg001.ts"},
		{"/abs/seg001.ts", "https://cdn.example.com/abs/seg001.ts"},
		{"https://other.cdn.com/seg001.ts", "https://other.cdn.com/seg001.ts"},
		{"http://other.cdn.com/seg001.ts", "http://other.cdn.com/seg001.ts"},
		{"sub/seg001.ts?sig=abc", "https://cdn.example.com/videos/show/sub/seg001.ts?sig=abc"},
		{"//edge.example.com/seg001.ts", "https://edge.example.com/seg001.ts"},
		// dot segments are not normalised
		{"../seg001.ts", "https://cdn.example.com/videos/show/../seg001.ts"},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			assert.Equal(t, tt.expected, ResolveURL(base, tt.ref))
		})
	}
}

func TestResolveURL_PlaylistQueryIsDropped(t *testing.T) {
	base, err := url.Parse("https://x.test/a/b/index.m3u8?token=x/y")
	require.NoError(t, err)

	assert.Equal(t, "https://x.test/a/b/seg.ts", ResolveURL(base, "seg.ts"))
}

func TestResolveURL_PlaylistAtRoot(t *testing.T) {
	base, err := url.Parse("http://x.test:8080/index.m3u8")
	require.NoError(t, err)

	assert.Equal(t, "http://x.test:8080/seg.ts", ResolveURL(base, "seg.ts"))
	assert.Equal(t, "http://x.test:8080/abs/seg.ts", ResolveURL(base, "/abs/seg.ts"))
}

func TestResolveURL_TrailingSlashDirectory(t *testing.T) {
	base, err := url.Parse("https://x.test/a//index.m3u8")
	require.NoError(t, err)

	assert.Equal(t, "https://x.test/a/seg.ts", ResolveURL(base, "seg.ts"))
}
