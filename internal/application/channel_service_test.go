package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alorle/playlist-proxy/internal/playlist"
)

// mockPlaylistFetcher is a mock implementation of driven.PlaylistFetcher for testing.
type mockPlaylistFetcher struct {
	fetchFunc func(ctx context.Context, url string) (string, error)
	calls     atomic.Int32
}

func (m *mockPlaylistFetcher) Fetch(ctx context.Context, url string) (string, error) {
	m.calls.Add(1)
	if m.fetchFunc != nil {
		return m.fetchFunc(ctx, url)
	}
	return "", nil
}

// mockResultCache is a mock implementation of driven.ResultCache backed by a map.
type mockResultCache struct {
	mu      sync.Mutex
	entries map[string]playlist.Result
	gets    int
	puts    int
}

func newMockResultCache() *mockResultCache {
	return &mockResultCache{entries: make(map[string]playlist.Result)}
}

func (m *mockResultCache) KeyFor(url string) string {
	return "key:" + url
}

func (m *mockResultCache) Get(key string) (playlist.Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	r, ok := m.entries[key]
	return r, ok
}

func (m *mockResultCache) Put(key string, result playlist.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	m.entries[key] = result
}

func (m *mockResultCache) getCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets
}

const samplePlaylist = "#EXTM3U\n#EXTINF:-1 tvg-name=\"One\" group-title=\"News\",One\nhttp://x/1\n#EXTINF:-1,Two\nhttp://x/2\n"

func newTestService(fetcher *mockPlaylistFetcher, cache *mockResultCache) *ChannelService {
	return NewChannelService(fetcher, cache, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestChannelService_GetChannels(t *testing.T) {
	t.Run("fetches, parses and caches on miss", func(t *testing.T) {
		fetcher := &mockPlaylistFetcher{
			fetchFunc: func(ctx context.Context, url string) (string, error) {
				if url != "http://example.com/list.m3u" {
					t.Errorf("expected normalized url, got %q", url)
				}
				return samplePlaylist, nil
			},
		}
		cache := newMockResultCache()
		svc := newTestService(fetcher, cache)

		result, cached, err := svc.GetChannels(context.Background(), "http://example.com/list.m3u", false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cached {
			t.Error("expected fresh result")
		}
		if result.Total() != 2 {
			t.Fatalf("expected 2 channels, got %d", result.Total())
		}
		if result.Channels[0].Title != "One" || result.Channels[0].Group != "News" {
			t.Errorf("unexpected first channel %+v", result.Channels[0])
		}
		if _, ok := cache.entries["key:http://example.com/list.m3u"]; !ok {
			t.Error("expected result to be cached under the normalized url key")
		}
	})

	t.Run("decodes percent-encoded url before fetching", func(t *testing.T) {
		fetcher := &mockPlaylistFetcher{
			fetchFunc: func(ctx context.Context, url string) (string, error) {
				if url != "http://example.com/list.m3u?a=1&b=2" {
					t.Errorf("expected decoded url, got %q", url)
				}
				return samplePlaylist, nil
			},
		}
		svc := newTestService(fetcher, newMockResultCache())

		if _, _, err := svc.GetChannels(context.Background(), "http://example.com/list.m3u%3Fa%3D1%26b%3D2", false); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("serves cache hit without fetching", func(t *testing.T) {
		fetcher := &mockPlaylistFetcher{}
		cache := newMockResultCache()
		cache.entries["key:http://example.com/list.m3u"] = playlist.Result{
			Channels: []playlist.Channel{{Title: "Cached", StreamURL: "http://x/c"}},
		}
		svc := newTestService(fetcher, cache)

		result, cached, err := svc.GetChannels(context.Background(), "http://example.com/list.m3u", false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !cached {
			t.Error("expected cached result")
		}
		if result.Channels[0].Title != "Cached" {
			t.Errorf("expected cached channel, got %+v", result.Channels[0])
		}
		if fetcher.calls.Load() != 0 {
			t.Errorf("expected no fetch, got %d", fetcher.calls.Load())
		}
	})

	t.Run("force refresh bypasses a present entry", func(t *testing.T) {
		fetcher := &mockPlaylistFetcher{
			fetchFunc: func(ctx context.Context, url string) (string, error) {
				return samplePlaylist, nil
			},
		}
		cache := newMockResultCache()
		cache.entries["key:http://example.com/list.m3u"] = playlist.Result{
			Channels: []playlist.Channel{{Title: "Stale", StreamURL: "http://x/s"}},
		}
		svc := newTestService(fetcher, cache)

		result, cached, err := svc.GetChannels(context.Background(), "http://example.com/list.m3u", true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cached {
			t.Error("expected fresh result")
		}
		if fetcher.calls.Load() != 1 {
			t.Errorf("expected 1 fetch, got %d", fetcher.calls.Load())
		}
		if cache.gets != 0 {
			t.Errorf("expected cache not to be read, got %d reads", cache.gets)
		}
		if result.Total() != 2 {
			t.Errorf("expected refreshed result, got %d channels", result.Total())
		}
		if cache.entries["key:http://example.com/list.m3u"].Total() != 2 {
			t.Error("expected refreshed result to replace the cache entry")
		}
	})

	t.Run("rejects bad input without fetching", func(t *testing.T) {
		tests := []struct {
			name    string
			url     string
			wantErr error
		}{
			{"empty", "", playlist.ErrEmptyURL},
			{"blank", "   ", playlist.ErrEmptyURL},
			{"ftp scheme", "ftp://example.com/list.m3u", playlist.ErrUnsupportedScheme},
			{"no scheme", "example.com/list.m3u", playlist.ErrUnsupportedScheme},
			{"encoded scheme", "http%3A%2F%2Fexample.com%2Flist.m3u", playlist.ErrUnsupportedScheme},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				fetcher := &mockPlaylistFetcher{}
				cache := newMockResultCache()
				svc := newTestService(fetcher, cache)

				_, _, err := svc.GetChannels(context.Background(), tt.url, false)
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				if fetcher.calls.Load() != 0 {
					t.Errorf("expected no fetch, got %d", fetcher.calls.Load())
				}
				if cache.gets != 0 {
					t.Errorf("expected no cache lookup, got %d", cache.gets)
				}
			})
		}
	})

	t.Run("fetch failure is returned and not cached", func(t *testing.T) {
		statusErr := &playlist.UpstreamStatusError{URL: "http://example.com/list.m3u", StatusCode: 503}
		fetcher := &mockPlaylistFetcher{
			fetchFunc: func(ctx context.Context, url string) (string, error) {
				return "", statusErr
			},
		}
		cache := newMockResultCache()
		svc := newTestService(fetcher, cache)

		_, _, err := svc.GetChannels(context.Background(), "http://example.com/list.m3u", false)
		var gotStatus *playlist.UpstreamStatusError
		if !errors.As(err, &gotStatus) || gotStatus.StatusCode != 503 {
			t.Fatalf("expected upstream status error, got %v", err)
		}
		if cache.puts != 0 {
			t.Errorf("expected nothing cached, got %d puts", cache.puts)
		}
	})

	t.Run("empty body", func(t *testing.T) {
		fetcher := &mockPlaylistFetcher{
			fetchFunc: func(ctx context.Context, url string) (string, error) {
				return "", nil
			},
		}
		cache := newMockResultCache()
		svc := newTestService(fetcher, cache)

		_, _, err := svc.GetChannels(context.Background(), "http://example.com/list.m3u", false)
		if !errors.Is(err, playlist.ErrEmptyResponse) {
			t.Fatalf("expected ErrEmptyResponse, got %v", err)
		}
		if cache.puts != 0 {
			t.Errorf("expected nothing cached, got %d puts", cache.puts)
		}
	})

	t.Run("non-playlist text yields an empty result", func(t *testing.T) {
		fetcher := &mockPlaylistFetcher{
			fetchFunc: func(ctx context.Context, url string) (string, error) {
				return "<html>maintenance</html>", nil
			},
		}
		svc := newTestService(fetcher, newMockResultCache())

		result, _, err := svc.GetChannels(context.Background(), "http://example.com/list.m3u", false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Total() != 0 {
			t.Errorf("expected no channels, got %d", result.Total())
		}
	})

	t.Run("parse failure is returned and not cached", func(t *testing.T) {
		fetcher := &mockPlaylistFetcher{
			fetchFunc: func(ctx context.Context, url string) (string, error) {
				return "#EXTM3U\n" + string(make([]byte, 2*1024*1024)), nil
			},
		}
		cache := newMockResultCache()
		svc := newTestService(fetcher, cache)

		_, _, err := svc.GetChannels(context.Background(), "http://example.com/list.m3u", false)
		var parseErr *playlist.ParseError
		if !errors.As(err, &parseErr) {
			t.Fatalf("expected *ParseError, got %v", err)
		}
		if parseErr.Line != "#EXTM3U" {
			t.Errorf("expected last line #EXTM3U, got %q", parseErr.Line)
		}
		if cache.puts != 0 {
			t.Errorf("expected nothing cached, got %d puts", cache.puts)
		}
	})

	t.Run("second request is served from cache", func(t *testing.T) {
		fetcher := &mockPlaylistFetcher{
			fetchFunc: func(ctx context.Context, url string) (string, error) {
				return samplePlaylist, nil
			},
		}
		svc := newTestService(fetcher, newMockResultCache())

		if _, _, err := svc.GetChannels(context.Background(), "http://example.com/list.m3u", false); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		_, cached, err := svc.GetChannels(context.Background(), "http://example.com/list.m3u", false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !cached {
			t.Error("expected second request to hit the cache")
		}
		if fetcher.calls.Load() != 1 {
			t.Errorf("expected 1 fetch, got %d", fetcher.calls.Load())
		}
	})
}

func TestChannelService_GetChannels_SharesConcurrentFetches(t *testing.T) {
	release := make(chan struct{})
	fetcher := &mockPlaylistFetcher{
		fetchFunc: func(ctx context.Context, url string) (string, error) {
			<-release
			return samplePlaylist, nil
		},
	}
	cache := newMockResultCache()
	svc := newTestService(fetcher, cache)

	const callers = 5
	var wg sync.WaitGroup
	results := make(chan int, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, _, err := svc.GetChannels(context.Background(), "http://example.com/list.m3u", false)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			results <- result.Total()
		}()
	}

	deadline := time.Now().Add(2 * time.Second)
	for cache.getCount() < callers && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	for total := range results {
		if total != 2 {
			t.Errorf("expected 2 channels for every caller, got %d", total)
		}
	}
	if got := fetcher.calls.Load(); got != 1 {
		t.Errorf("expected a single shared fetch, got %d", got)
	}
}

func TestChannelService_GetChannels_CallerCancellation(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	fetcher := &mockPlaylistFetcher{
		fetchFunc: func(ctx context.Context, url string) (string, error) {
			<-release
			return samplePlaylist, nil
		},
	}
	svc := newTestService(fetcher, newMockResultCache())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err := svc.GetChannels(ctx, "http://example.com/list.m3u", false)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestChannelService_FetchRaw(t *testing.T) {
	t.Run("returns validated body without touching the cache", func(t *testing.T) {
		fetcher := &mockPlaylistFetcher{
			fetchFunc: func(ctx context.Context, url string) (string, error) {
				return samplePlaylist, nil
			},
		}
		cache := newMockResultCache()
		svc := newTestService(fetcher, cache)

		body, err := svc.FetchRaw(context.Background(), "https://example.com/list.m3u")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if body != samplePlaylist {
			t.Errorf("expected raw body, got %q", body)
		}
		if cache.gets != 0 || cache.puts != 0 {
			t.Errorf("expected cache untouched, got %d gets and %d puts", cache.gets, cache.puts)
		}
	})

	t.Run("rejects content that is not a playlist", func(t *testing.T) {
		fetcher := &mockPlaylistFetcher{
			fetchFunc: func(ctx context.Context, url string) (string, error) {
				return "hello world", nil
			},
		}
		svc := newTestService(fetcher, newMockResultCache())

		_, err := svc.FetchRaw(context.Background(), "https://example.com/list.m3u")
		if !errors.Is(err, playlist.ErrInvalidFormat) {
			t.Errorf("expected ErrInvalidFormat, got %v", err)
		}
	})

	t.Run("empty body", func(t *testing.T) {
		svc := newTestService(&mockPlaylistFetcher{}, newMockResultCache())

		_, err := svc.FetchRaw(context.Background(), "https://example.com/list.m3u")
		if !errors.Is(err, playlist.ErrEmptyResponse) {
			t.Errorf("expected ErrEmptyResponse, got %v", err)
		}
	})

	t.Run("empty url", func(t *testing.T) {
		fetcher := &mockPlaylistFetcher{}
		svc := newTestService(fetcher, newMockResultCache())

		_, err := svc.FetchRaw(context.Background(), "")
		if !errors.Is(err, playlist.ErrEmptyURL) {
			t.Errorf("expected ErrEmptyURL, got %v", err)
		}
		if fetcher.calls.Load() != 0 {
			t.Errorf("expected no fetch, got %d", fetcher.calls.Load())
		}
	})

	t.Run("fetch failure", func(t *testing.T) {
		fetcher := &mockPlaylistFetcher{
			fetchFunc: func(ctx context.Context, url string) (string, error) {
				return "", playlist.ErrUpstreamUnreachable
			},
		}
		svc := newTestService(fetcher, newMockResultCache())

		_, err := svc.FetchRaw(context.Background(), "https://example.com/list.m3u")
		if !errors.Is(err, playlist.ErrUpstreamUnreachable) {
			t.Errorf("expected ErrUpstreamUnreachable, got %v", err)
		}
	})
}
