package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the pipeline can report to a caller.
type ErrorKind string

const (
	KindInput             ErrorKind = "input"
	KindUnreadableInput   ErrorKind = "unreadable_input"
	KindExtractionFailed  ErrorKind = "extraction_failed"
	KindUnsupportedFormat ErrorKind = "unsupported_format"
	KindMissingCredential ErrorKind = "missing_credential"
	KindProvider          ErrorKind = "provider"
	KindRateLimited       ErrorKind = "rate_limited"
	KindTimeout           ErrorKind = "timeout"
	KindEmptyResponse     ErrorKind = "empty_response"
	KindMalformedResponse ErrorKind = "malformed_response"
	KindCancelled         ErrorKind = "cancelled"
)

// Error is the typed failure returned by every pipeline stage.
// Page is set for per-unit extraction failures (1-based); HTTPStatus and
// ProviderMessage are set for provider failures.
type Error struct {
	Kind            ErrorKind
	Message         string
	Page            int
	HTTPStatus      int
	ProviderMessage string
	Err             error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Page > 0 {
		msg = fmt.Sprintf("%s (page %d)", msg, e.Page)
	}
	if e.HTTPStatus != 0 {
		msg = fmt.Sprintf("%s (http %d)", msg, e.HTTPStatus)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, models.ErrRateLimited) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrInput             = &Error{Kind: KindInput}
	ErrUnreadableInput   = &Error{Kind: KindUnreadableInput}
	ErrExtractionFailed  = &Error{Kind: KindExtractionFailed}
	ErrUnsupportedFormat = &Error{Kind: KindUnsupportedFormat}
	ErrMissingCredential = &Error{Kind: KindMissingCredential}
	ErrProvider          = &Error{Kind: KindProvider}
	ErrRateLimited       = &Error{Kind: KindRateLimited}
	ErrTimeout           = &Error{Kind: KindTimeout}
	ErrEmptyResponse     = &Error{Kind: KindEmptyResponse}
	ErrMalformedResponse = &Error{Kind: KindMalformedResponse}
	ErrCancelled         = &Error{Kind: KindCancelled}
)

func newError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func InputError(message string) *Error {
	return newError(KindInput, message, nil)
}

func UnreadableInputError(message string, err error) *Error {
	return newError(KindUnreadableInput, message, err)
}

func ExtractionFailedError(page int, err error) *Error {
	e := newError(KindExtractionFailed, "failed to decode page", err)
	e.Page = page
	return e
}

func UnsupportedFormatError(mediaType string) *Error {
	return newError(KindUnsupportedFormat, fmt.Sprintf("unsupported media type %q", mediaType), nil)
}

func MissingCredentialError(message string) *Error {
	return newError(KindMissingCredential, message, nil)
}

// ProviderError builds the error for a non-success provider response.
// HTTP 429 is tagged as rate limited.
func ProviderError(httpStatus int, providerMessage string) *Error {
	kind := KindProvider
	message := "generation provider returned an error"
	if httpStatus == 429 {
		kind = KindRateLimited
		message = "generation provider is rate limiting requests"
	}
	return &Error{Kind: kind, Message: message, HTTPStatus: httpStatus, ProviderMessage: providerMessage}
}

func TimeoutError(message string, err error) *Error {
	return newError(KindTimeout, message, err)
}

func EmptyResponseError(message string) *Error {
	return newError(KindEmptyResponse, message, nil)
}

func MalformedResponseError(message string, err error) *Error {
	return newError(KindMalformedResponse, message, err)
}

func CancelledError(err error) *Error {
	return newError(KindCancelled, "run was cancelled", err)
}

// KindOf returns the kind of the first *Error in err's chain, or "" when there is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// IsProviderError reports whether err is a provider failure, including the
// rate-limited and timeout subtypes.
func IsProviderError(err error) bool {
	switch KindOf(err) {
	case KindProvider, KindRateLimited, KindTimeout:
		return true
	}
	return false
}

// UserMessage renders the human-readable reason carried by terminal progress events.
func UserMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return err.Error()
	}
	switch e.Kind {
	case KindRateLimited:
		return "The generation service is rate limiting requests. Wait a moment and try again."
	case KindTimeout:
		return "The generation service did not answer in time. Try again."
	case KindMissingCredential:
		return "The generation service is not configured: " + e.Message
	case KindExtractionFailed:
		return fmt.Sprintf("Could not read page %d of the document: %v", e.Page, e.Err)
	case KindCancelled:
		return "Syllabus generation was cancelled."
	case KindProvider:
		if e.ProviderMessage != "" {
			return fmt.Sprintf("The generation service failed (HTTP %d): %s", e.HTTPStatus, e.ProviderMessage)
		}
		return fmt.Sprintf("The generation service failed (HTTP %d).", e.HTTPStatus)
	case KindEmptyResponse:
		return "The generation service returned no content: " + e.Message
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}
