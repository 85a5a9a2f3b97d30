package faults

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes attached to every error produced by this module.
const (
	TextCodeNetwork       = "NETWORK_ERROR"
	TextCodeRejection     = "CLIENT_REJECTION"
	TextCodeSerialization = "SERIALIZATION_ERROR"
)

// Kind classifies an error for retry and queue decisions.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindRejection
	KindSerialization
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindRejection:
		return "rejection"
	case KindSerialization:
		return "serialization"
	default:
		return "unknown"
	}
}

// Network wraps a transient transport failure. Network errors are retryable.
func Network(source error, message string) error {
	if source == nil {
		return goerrors.NewRetryable(message, goerrors.CategoryExternal).
			WithTextCode(TextCodeNetwork)
	}
	return goerrors.WrapRetryable(source, goerrors.CategoryExternal, message).
		WithTextCode(TextCodeNetwork)
}

// NetworkStatus builds a retryable error for a 5xx response.
func NetworkStatus(status int, message string) error {
	return goerrors.NewRetryable(message, goerrors.CategoryExternal).
		WithCode(status).
		WithTextCode(TextCodeNetwork)
}

// Rejection builds a definitive 4xx-class rejection. It is never retried.
func Rejection(status int, message string) error {
	if message == "" {
		message = http.StatusText(status)
	}
	return goerrors.NewNonRetryable(message, goerrors.HTTPStatusToCategory(status)).
		WithCode(status).
		WithTextCode(TextCodeRejection)
}

// Serialization wraps an error raised while encoding or decoding persisted
// state or response bodies.
func Serialization(source error, message string) error {
	if source == nil {
		return goerrors.New(message, goerrors.CategoryBadInput).
			WithTextCode(TextCodeSerialization)
	}
	return goerrors.Wrap(source, goerrors.CategoryBadInput, message).
		WithTextCode(TextCodeSerialization)
}

// KindOf reports the kind of err by inspecting its text code.
func KindOf(err error) Kind {
	switch textCode(err) {
	case TextCodeNetwork:
		return KindNetwork
	case TextCodeRejection:
		return KindRejection
	case TextCodeSerialization:
		return KindSerialization
	}
	return KindUnknown
}

// IsNetwork reports whether err is a transient network failure.
func IsNetwork(err error) bool { return KindOf(err) == KindNetwork }

// IsRejection reports whether err is a definitive client rejection.
func IsRejection(err error) bool { return KindOf(err) == KindRejection }

// IsSerialization reports whether err came from a corrupt payload.
func IsSerialization(err error) bool { return KindOf(err) == KindSerialization }

// IsRetryable reports whether err, or anything it wraps, asks to be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var re *goerrors.RetryableError
	if goerrors.As(err, &re) {
		return re.IsRetryable()
	}
	return false
}

// StatusCode returns the HTTP status attached to err, or 0.
func StatusCode(err error) int {
	if base := baseError(err); base != nil {
		return base.Code
	}
	return 0
}

// Message returns the human readable message without category decoration.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if base := baseError(err); base != nil && base.Message != "" {
		return base.Message
	}
	return err.Error()
}

func textCode(err error) string {
	if base := baseError(err); base != nil {
		return base.TextCode
	}
	return ""
}

func baseError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var re *goerrors.RetryableError
	if goerrors.As(err, &re) && re.BaseError != nil {
		return re.BaseError
	}
	var e *goerrors.Error
	if goerrors.As(err, &e) {
		return e
	}
	return nil
}
