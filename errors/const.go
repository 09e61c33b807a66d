// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package errors

// ErrCode is type for multiple reconizable errors.
type ErrCode int

// error codes
const (
	// if error is unknown
	Unknown ErrCode = 0

	// if the argument is not valid
	InvalidArgument ErrCode = 1

	// if the shared capacity pool has nothing left to grant, or a
	// registration would exceed the pool's part bound. transient by
	// nature and cleared by the next replenishment tick
	NoCapacity ErrCode = 2

	// if the background clock task of a limiter has stopped running,
	// permanent for that limiter instance
	TimerFailed ErrCode = 3

	// if the background clock task could not be scheduled at all,
	// reported only during limiter construction
	SchedulingFailed ErrCode = 4
)
