package analysis

import "errors"

var (
	ErrInvalidURL       = errors.New("analysis: url must be absolute http or https")
	ErrForbiddenAddress = errors.New("analysis: url resolves to a non-public address")
	ErrFetchFailed      = errors.New("analysis: failed to fetch page")
	ErrNotHTML          = errors.New("analysis: response is not an html document")
	ErrParseFailure     = errors.New("analysis: failed to parse page")
)
