package fetcher

import "errors"

var (
	ErrInvalidURL        = errors.New("invalid URL")
	ErrPrivateIP         = errors.New("private IP address not allowed")
	ErrTooManyRedirects  = errors.New("too many redirects")
	ErrBodyTooLarge      = errors.New("response body too large")
	ErrReadabilityFailed = errors.New("readability extraction failed")
)
