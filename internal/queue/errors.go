package queue

import "errors"

// Errors surfaced to callers of Service.
var (
	ErrAlreadyQueued     = errors.New("user already has an active queue entry")
	ErrAlreadyConnected  = errors.New("user is already connected to a representative")
	ErrNotQueued         = errors.New("user has no active queue entry")
	ErrNotRepresentative = errors.New("user is not a representative")
	ErrCallNotActive     = errors.New("call is not active")
	ErrAgentBusy         = errors.New("representative has an active call")
	ErrForbidden         = errors.New("operation not permitted for this user")
	ErrInvalidCallStatus = errors.New("unknown call status")
)

// Errors shared with Store implementations.
var (
	ErrNotFound = errors.New("record not found")
	// ErrMatchRace means the entry or agent picked for a pairing was changed
	// by a concurrent operation. Never returned from Service to callers.
	ErrMatchRace = errors.New("entry or agent changed concurrently")
	// ErrStaleEntry is returned by conditional status updates on entries that
	// are no longer active.
	ErrStaleEntry = errors.New("queue entry is no longer active")
)

// ErrInvalidPosition signals a broken position invariant upstream.
var ErrInvalidPosition = errors.New("queue position must be positive")
