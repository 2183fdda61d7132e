package ai

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	openaigo "github.com/meguminnnnnnnnn/go-openai"
)

// Kind tags a provider failure so callers can map it to a response status
// without matching on message text.
type Kind string

const (
	KindUnavailable  Kind = "provider_unavailable"
	KindUnauthorized Kind = "unauthorized"
	KindRateLimited  Kind = "rate_limited"
	KindProvider     Kind = "provider_error"
)

// Error is a classified provider failure.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// ErrUnavailable is returned on every call when the client was never
// configured. The condition is permanent and non-retryable.
var ErrUnavailable = &Error{Kind: KindUnavailable, Message: "completion client not configured"}

// KindOf extracts the error kind, defaulting to KindProvider for
// unclassified failures.
func KindOf(err error) (Kind, bool) {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind, true
	}
	return "", false
}

// isNetworkError reports whether err is a transport-level failure that never
// reached the provider, such as a refused connection or a dial timeout.
func isNetworkError(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// classify maps a raw provider error onto a kind plus whether a retry may
// help. Status codes come from the provider SDK's typed errors; transport
// failures are transient.
func classify(err error) (*Error, bool) {
	status := 0
	var apiErr *openaigo.APIError
	var reqErr *openaigo.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
		if status == 0 {
			// transport-level failure, worth retrying
			return &Error{Kind: KindProvider, Message: err.Error(), cause: err}, true
		}
	default:
		if isNetworkError(err) {
			return &Error{Kind: KindProvider, Message: err.Error(), cause: err}, true
		}
		return &Error{Kind: KindProvider, Message: err.Error(), cause: err}, false
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &Error{Kind: KindUnauthorized, Message: err.Error(), cause: err}, false
	case status == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, Message: err.Error(), cause: err}, true
	case status >= 500:
		return &Error{Kind: KindProvider, Message: err.Error(), cause: err}, true
	default:
		return &Error{Kind: KindProvider, Message: err.Error(), cause: err}, false
	}
}
