package storage

import "errors"

// Storage errors shared by all store implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrPoolExhausted is returned by claim operations when no record
	// of the requested category is available.
	ErrPoolExhausted = errors.New("key pool exhausted")

	// ErrInvalidState is returned when a state transition is attempted
	// on a record that is not in the required state, e.g. committing a
	// record that is not reserved.
	ErrInvalidState = errors.New("invalid record state")

	// ErrReferrerNotFound is returned when a referral code resolves to
	// no known user.
	ErrReferrerNotFound = errors.New("referrer not found")

	// ErrSelfReferral is returned when a user submits their own code.
	ErrSelfReferral = errors.New("self referral")

	// ErrAlreadyHasReferrer is returned when the user's referrer is
	// already set. Referrer assignment happens at most once.
	ErrAlreadyHasReferrer = errors.New("user already has referrer")
)
