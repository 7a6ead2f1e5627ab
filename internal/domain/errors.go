package domain

import "errors"

var (
	// ErrIO marks filesystem failures while storing uploads.
	ErrIO = errors.New("io error")
	// ErrMissingFilename is returned when a multipart part declares no filename.
	ErrMissingFilename = errors.New("no filename")
	// ErrInvalidFilename is returned for names that cannot be stored safely (".." etc).
	ErrInvalidFilename = errors.New("invalid filename")
	// ErrMalformed marks an HTTP payload that does not decode to a ForwardRequest.
	ErrMalformed = errors.New("malformed payload")
	// ErrPlatform wraps every failure reported by the messaging platform.
	ErrPlatform = errors.New("telegram")
)
