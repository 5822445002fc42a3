package playlist

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrEmptyURL            = errors.New("url parameter is required")
	ErrUnsupportedScheme   = errors.New("url scheme must be http or https")
	ErrInvalidURL          = errors.New("url is not a valid absolute url")
	ErrUpstreamUnreachable = errors.New("upstream unreachable")
	ErrEmptyResponse       = errors.New("upstream returned an empty response")
	ErrResponseTooLarge    = errors.New("upstream response exceeds the size limit")
	ErrInvalidFormat       = errors.New("content is not a valid M3U playlist")
)

// UpstreamStatusError reports an upstream response with a non-2xx status code.
type UpstreamStatusError struct {
	URL        string
	StatusCode int
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("target server returned %d", e.StatusCode)
}

// ParseError reports a fault that stopped iteration over the playlist text.
// Line holds the last line read before the fault.
type ParseError struct {
	LineNumber int
	Line       string
	Err        error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse M3U content after line %d (%q): %v", e.LineNumber, e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
