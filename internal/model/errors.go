package model

import "errors"

var (
	// ErrInvalidImage means the uploaded bytes are empty or not a decodable image.
	ErrInvalidImage = errors.New("invalid image")

	// ErrInferenceFailure means model execution itself failed.
	ErrInferenceFailure = errors.New("inference failure")

	// ErrSourceUnavailable means a static resource needed at startup could not be loaded.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrIndexOutOfRange means the classifier output and the label vocabulary disagree in width.
	ErrIndexOutOfRange = errors.New("index out of range")
)

// IsClientError reports whether err was caused by the request payload rather than the server.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidImage)
}

// IsKnown reports whether err already carries one of the taxonomy errors.
func IsKnown(err error) bool {
	return errors.Is(err, ErrInvalidImage) ||
		errors.Is(err, ErrInferenceFailure) ||
		errors.Is(err, ErrSourceUnavailable) ||
		errors.Is(err, ErrIndexOutOfRange)
}
