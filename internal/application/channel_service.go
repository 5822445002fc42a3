package application

import (
	"context"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/alorle/playlist-proxy/internal/playlist"
	"github.com/alorle/playlist-proxy/internal/port/driven"
	"github.com/alorle/playlist-proxy/metrics"
)

// Pipeline stages reported in failure logs.
const (
	stageDecode   = "decode"
	stageFetch    = "fetch"
	stageValidate = "validate"
	stageParse    = "parse"
)

// ChannelService provides the fetch, validate, parse and cache pipeline for remote playlists.
// It depends only on domain packages and port interfaces.
type ChannelService struct {
	fetcher driven.PlaylistFetcher
	cache   driven.ResultCache
	logger  *slog.Logger

	flights singleflight.Group
}

// NewChannelService creates a new ChannelService with the given fetcher and cache.
func NewChannelService(fetcher driven.PlaylistFetcher, cache driven.ResultCache, logger *slog.Logger) *ChannelService {
	return &ChannelService{
		fetcher: fetcher,
		cache:   cache,
		logger:  logger,
	}
}

// GetChannels returns the parsed channels of the playlist at rawURL and whether
// they were served from the cache.
//
// A fresh cached result is returned without fetching unless forceRefresh is set.
// Concurrent misses for the same playlist share a single fetch. Failed runs are
// never cached.
//
// Returns playlist.ErrEmptyURL, playlist.ErrUnsupportedScheme or playlist.ErrInvalidURL
// for unusable input, fetch errors as reported by the PlaylistFetcher,
// playlist.ErrEmptyResponse for an empty body and *playlist.ParseError if the body
// cannot be read.
func (s *ChannelService) GetChannels(ctx context.Context, rawURL string, forceRefresh bool) (playlist.Result, bool, error) {
	target, err := s.normalize(rawURL)
	if err != nil {
		return playlist.Result{}, false, err
	}

	key := s.cache.KeyFor(target)

	if forceRefresh {
		metrics.RecordCacheLookup(metrics.CacheBypass)
	} else {
		if result, ok := s.cache.Get(key); ok {
			metrics.RecordCacheLookup(metrics.CacheHit)
			s.logger.Info("serving playlist from cache", "url", target, "channels", result.Total())
			return result, true, nil
		}
		metrics.RecordCacheLookup(metrics.CacheMiss)
	}

	// A forced refresh must not be satisfied by a load that a plain request
	// started earlier, so it gets its own flight.
	flightKey := key
	if forceRefresh {
		flightKey = "refresh:" + key
	}

	// The shared load outlives any single caller so that the others, and the
	// cache, still get its result.
	loadCtx := context.WithoutCancel(ctx)
	ch := s.flights.DoChan(flightKey, func() (any, error) {
		return s.load(loadCtx, target, key)
	})

	select {
	case <-ctx.Done():
		return playlist.Result{}, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return playlist.Result{}, false, res.Err
		}
		return res.Val.(playlist.Result).Clone(), false, nil
	}
}

// FetchRaw returns the unparsed body of the playlist at rawURL once it passes
// the playlist shape check. The cache is neither read nor written.
//
// Returns playlist.ErrInvalidFormat when the body does not look like a playlist,
// otherwise the same errors as GetChannels.
func (s *ChannelService) FetchRaw(ctx context.Context, rawURL string) (string, error) {
	target, err := s.normalize(rawURL)
	if err != nil {
		return "", err
	}

	body, err := s.fetch(ctx, target)
	if err != nil {
		return "", err
	}

	if !playlist.IsPlaylist(body) {
		s.logger.Error("upstream content is not a playlist",
			"url", target,
			"stage", stageValidate,
			"error", playlist.ErrInvalidFormat,
		)
		return "", playlist.ErrInvalidFormat
	}

	s.logger.Info("proxying playlist", "url", target, "content_length", len(body))
	return body, nil
}

func (s *ChannelService) normalize(rawURL string) (string, error) {
	target, err := playlist.NormalizeURL(rawURL)
	if err != nil {
		s.logger.Warn("rejected playlist url", "url", rawURL, "stage", stageDecode, "error", err)
		return "", err
	}
	return target, nil
}

func (s *ChannelService) fetch(ctx context.Context, target string) (string, error) {
	s.logger.Info("fetching playlist", "url", target)

	body, err := s.fetcher.Fetch(ctx, target)
	if err != nil {
		s.logger.Error("failed to fetch playlist", "url", target, "stage", stageFetch, "error", err)
		return "", err
	}

	if len(body) == 0 {
		s.logger.Error("failed to fetch playlist", "url", target, "stage", stageFetch, "error", playlist.ErrEmptyResponse)
		return "", playlist.ErrEmptyResponse
	}

	return body, nil
}

func (s *ChannelService) load(ctx context.Context, target, key string) (playlist.Result, error) {
	body, err := s.fetch(ctx, target)
	if err != nil {
		return playlist.Result{}, err
	}

	result, err := playlist.Parse(body)
	if err != nil {
		s.logger.Error("failed to parse playlist", "url", target, "stage", stageParse, "error", err)
		return playlist.Result{}, err
	}

	metrics.ObserveChannelsParsed(result.Total())
	s.logger.Info("parsed playlist", "url", target, "channels", result.Total())

	s.cache.Put(key, result)
	return result, nil
}
