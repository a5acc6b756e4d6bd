package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
)

// Response codes the B3 API embeds in error pages.
const (
	codeUnauthorizedAccess = "422.02"
	codeDocumentNotFound   = "422.03"
	codeTooManyRequests    = "429"
	codeInternalError      = "500"
)

// Sentinel errors for semantic remote failures. These are never retried and
// must stay distinguishable at the caller.
var (
	// ErrUnauthorizedClientAccess means B3 denied consent for this document.
	// It propagates unwrapped so callers can tell "no access" apart from an
	// internal failure.
	ErrUnauthorizedClientAccess = errors.New("client not authorized to access B3 data for this document")

	// ErrTooManyRequests means B3 is rate limiting; the caller should back off.
	ErrTooManyRequests = errors.New("B3 rate limit exceeded")

	// ErrDocumentNotFound means B3 has no registration for the document.
	ErrDocumentNotFound = errors.New("document not registered with B3")
)

// TokenError reports a failed client-credentials exchange, or a request that
// stayed unauthorized after one forced token refresh.
type TokenError struct {
	Err error
}

func (e *TokenError) Error() string { return fmt.Sprintf("B3 token acquisition failed: %v", e.Err) }
func (e *TokenError) Unwrap() error { return e.Err }

// RequestError reports a transport-level failure of a single request.
type RequestError struct {
	Method string
	URL    string
	Err    error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request %s %s failed: %v", e.Method, e.URL, e.Err)
}
func (e *RequestError) Unwrap() error { return e.Err }

// PaginatorError reports an aborted pagination after the per-page retry
// budget was exhausted. It carries the request context of the failed fetch.
type PaginatorError struct {
	Method string
	Path   string
	Params url.Values
	Err    error
}

func (e *PaginatorError) Error() string {
	return fmt.Sprintf("pagination of %s %s (%s) failed: %v", e.Method, e.Path, e.Params.Encode(), e.Err)
}
func (e *PaginatorError) Unwrap() error { return e.Err }

// InconsistentDataError reports a page that violates the response protocol,
// carrying the offending page for diagnosis.
type InconsistentDataError struct {
	Page json.RawMessage
}

func (e *InconsistentDataError) Error() string { return "inconsistent paginator data" }

// UnknownStatusError reports a response code outside the known B3 table.
type UnknownStatusError struct {
	Status string
}

func (e *UnknownStatusError) Error() string {
	return fmt.Sprintf("unknown status received from B3: %s", e.Status)
}

// MovementsError wraps any failure of a movements fetch other than an
// access denial, which propagates unwrapped.
type MovementsError struct {
	Err error
}

func (e *MovementsError) Error() string { return fmt.Sprintf("movements fetch failed: %v", e.Err) }
func (e *MovementsError) Unwrap() error { return e.Err }

// errorForStatus maps a B3 response code to its semantic error. Known codes
// without a dedicated error return nil; the caller treats the page as
// inconsistent data instead.
func errorForStatus(status string) error {
	switch status {
	case codeUnauthorizedAccess:
		return ErrUnauthorizedClientAccess
	case codeTooManyRequests:
		return ErrTooManyRequests
	case codeDocumentNotFound:
		return ErrDocumentNotFound
	case codeInternalError:
		return nil
	default:
		return &UnknownStatusError{Status: status}
	}
}
