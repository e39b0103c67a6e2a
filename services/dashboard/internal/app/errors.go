package app

import "errors"

var (
	// ErrUnknownPlatform is returned when a record names a platform outside
	// the emission table.
	ErrUnknownPlatform = errors.New("unknown platform")

	// ErrInvalidTimestamp is returned when a record's timestamp cannot be
	// parsed or is unreasonably far in the future.
	ErrInvalidTimestamp = errors.New("invalid timestamp")
)
