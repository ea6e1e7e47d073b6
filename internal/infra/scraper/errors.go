package scraper

import "errors"

// ErrParseFailed means the response arrived but no usable feed could be parsed
// from it: the body is not RSS/Atom, or parsing failed with zero entries.
// Transport failures are reported as *retry.HTTPError or network errors instead.
var ErrParseFailed = errors.New("feed parse failed")
