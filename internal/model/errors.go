package model

import "errors"

// IsValidation reports whether err is a malformed-input error. Validation
// failures are rejected synchronously and must never be retried.
func IsValidation(err error) bool {
	return errors.Is(err, ErrEmptyText) ||
		errors.Is(err, ErrTextTooLong) ||
		errors.Is(err, ErrSelfFollow) ||
		errors.Is(err, ErrNegativeCount)
}

// IsNotFound reports whether err means a referenced tweet or user was absent.
// On the async fan-out path a missing tweet is a benign no-op; on synchronous
// paths it is surfaced to the caller.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTweetNotFound) || errors.Is(err, ErrUserNotFound)
}
