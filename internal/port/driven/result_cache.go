package driven

import "github.com/alorle/playlist-proxy/internal/playlist"

// ResultCache defines the interface for storing parsed playlists between requests.
// This is a driven port that will be implemented by concrete adapters (e.g., in-memory LRU).
type ResultCache interface {
	// KeyFor derives the fixed-length cache key of a normalized playlist URL.
	KeyFor(url string) string

	// Get returns the result stored under key while it is still fresh.
	Get(key string) (playlist.Result, bool)

	// Put stores result under key, replacing any previous entry and restarting its lifetime.
	Put(key string, result playlist.Result)
}
