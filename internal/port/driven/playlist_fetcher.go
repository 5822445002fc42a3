package driven

import "context"

// PlaylistFetcher defines the interface for retrieving raw playlist text from a remote location.
// This is a driven port that will be implemented by concrete adapters (e.g., HTTP client).
type PlaylistFetcher interface {
	// Fetch retrieves the body of the playlist at url. The url must already be
	// normalized (see playlist.NormalizeURL).
	// A non-2xx answer is reported as *playlist.UpstreamStatusError; transport
	// failures that outlive every retry wrap playlist.ErrUpstreamUnreachable.
	Fetch(ctx context.Context, url string) (string, error)
}
