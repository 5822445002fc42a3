package playlist

import "strings"

const (
	headerMarker = "#EXTM3U"
	extinfMarker = "#EXTINF"
)

// IsPlaylist reports whether content looks like an M3U playlist.
//
// The check is a permissive heuristic: any #EXTINF or #EXTM3U marker, or any
// line that starts with an http(s) URL, is enough. Unrelated text holding a bare
// URL line is accepted as a playlist.
func IsPlaylist(content string) bool {
	if content == "" {
		return false
	}

	if strings.Contains(content, extinfMarker) || strings.Contains(content, headerMarker) {
		return true
	}

	for _, line := range strings.Split(content, "\n") {
		if isStreamURL(strings.TrimSpace(line)) {
			return true
		}
	}

	return false
}

func isStreamURL(line string) bool {
	return strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://")
}
