package lancast

import "errors"

// Package-level sentinel errors.
var (
	// ErrInvalidHandle is returned when a handle is stale or was never
	// issued. Released handles always fail with this, never by touching a
	// newer object that reused the slot.
	ErrInvalidHandle = errors.New("lancast: invalid handle")

	// ErrBadAdvertisement is returned when a discovered advertisement lacks
	// the properties needed to attach a receiver.
	ErrBadAdvertisement = errors.New("lancast: bad advertisement")
)
