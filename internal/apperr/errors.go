// Package apperr defines the error taxonomy shared by the sharing-code services
// and the HTTP handlers that report them.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies a failure by who is responsible for it.
type Kind int

const (
	KindUnknown Kind = iota
	// KindNotFound: the code or video does not exist.
	KindNotFound
	// KindForbidden: the lookup succeeded but policy denied the request.
	KindForbidden
	// KindValidation: the caller sent malformed input.
	KindValidation
	// KindConfig: persisted data violates a format contract (operator misconfiguration).
	KindConfig
	// KindUpstream: a store or grant-service call failed or timed out.
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindValidation:
		return "validation"
	case KindConfig:
		return "config"
	case KindUpstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// Reason is the machine-readable code reported to callers.
type Reason string

const (
	ReasonNotFound             Reason = "NOT_FOUND"
	ReasonTimeExpired          Reason = "TIME_EXPIRED"
	ReasonDownloadLimitReached Reason = "DOWNLOAD_LIMIT_REACHED"
	ReasonBothLimitsReached    Reason = "BOTH_LIMITS_REACHED"
	ReasonVideoNotInScope      Reason = "VIDEO_NOT_IN_SCOPE"
	ReasonValidation           Reason = "VALIDATION_ERROR"
	ReasonConfig               Reason = "CONFIG_ERROR"
	ReasonUpstream             Reason = "UPSTREAM_FAILURE"
)

// Error is the single error type crossing service boundaries.
type Error struct {
	Kind    Kind
	Reason  Reason
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound reports an absent code or video.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Reason: ReasonNotFound, Message: message}
}

// Forbidden reports a policy denial. reason must be one of the policy reasons.
func Forbidden(reason Reason, message string) *Error {
	return &Error{Kind: KindForbidden, Reason: reason, Message: message}
}

// Validation reports malformed caller input.
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Reason: ReasonValidation, Message: message}
}

// Config reports persisted data that cannot be interpreted.
func Config(message string, err error) *Error {
	return &Error{Kind: KindConfig, Reason: ReasonConfig, Message: message, Err: err}
}

// Upstream reports a failed or timed-out dependency call.
func Upstream(message string, err error) *Error {
	return &Error{Kind: KindUpstream, Reason: ReasonUpstream, Message: message, Err: err}
}

// As extracts the *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or KindUnknown if err is not an *Error.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindUnknown
}

// ReasonOf returns the Reason of err, or "" if err is not an *Error.
func ReasonOf(err error) Reason {
	if e, ok := As(err); ok {
		return e.Reason
	}
	return ""
}

// HTTPStatus maps err to the status code the transport should answer with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
