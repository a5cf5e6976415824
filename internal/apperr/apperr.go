// Package apperr defines the error kinds shared by the booking core.
// Operations return these sentinels (usually wrapped with %w plus context)
// instead of panicking; handlers translate them to HTTP statuses.
package apperr

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthenticated = errors.New("no such login token")
	ErrSessionExpired  = errors.New("login has expired")

	ErrInvalidInterval     = errors.New("start time must be before end time")
	ErrSlotConflict        = errors.New("slot overlaps an existing one")
	ErrSlotFull            = errors.New("no space left in this slot")
	ErrSlotHasBookings     = errors.New("slot has active bookings")
	ErrCapacityBelowBooked = errors.New("capacity below booked count")

	ErrAlreadyBooked   = errors.New("appointment already exists")
	ErrAlreadyFinished = errors.New("appointment has been finished")
	ErrAlreadyCanceled = errors.New("appointment has been canceled")
	ErrNotBooked       = errors.New("appointment doesn't exist")
	ErrNotUnfinished   = errors.New("appointment is not unfinished")

	ErrWrongPassword = errors.New("wrong password")
	ErrDuplicate     = errors.New("duplicated record")

	// ErrStoreUnavailable marks transport failures talking to the database.
	// It is the only kind callers may retry.
	ErrStoreUnavailable = errors.New("store unavailable")
)
