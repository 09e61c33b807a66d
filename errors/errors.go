// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package errors

import "fmt"

// GetErrCode gets the error code if the error is
// associated to recognizable error types
func GetErrCode(err error) ErrCode {
	val, ok := err.(*Error)
	if ok {
		return ErrCode(val.code)
	}
	return Unknown
}

// base error structure
type Error struct {
	code ErrCode
	msg  string
}

// Error() prints out the error message string
func (e Error) Error() string {
	return e.msg
}

// Creates a new error msg without error code
func New(msg string) error {
	return &Error{
		msg: msg,
	}
}

// Wraps the error msg with recognized error codes
func Wrap(code ErrCode, msg string) error {
	return &Error{
		code: code,
		msg:  msg,
	}
}

// Wrapf formats the error msg with recognized error codes
func Wrapf(code ErrCode, format string, args ...any) error {
	return &Error{
		code: code,
		msg:  fmt.Sprintf(format, args...),
	}
}

// IsInvalidArgument returns true if err
// item is invalid argument
func IsInvalidArgument(err error) bool {
	return GetErrCode(err) == InvalidArgument
}

// IsNoCapacity returns true if err reports
// an exhausted capacity pool or part bound
func IsNoCapacity(err error) bool {
	return GetErrCode(err) == NoCapacity
}

// IsTimerFailed returns true if err reports
// a limiter whose clock task has stopped
func IsTimerFailed(err error) bool {
	return GetErrCode(err) == TimerFailed
}

// IsSchedulingFailed returns true if err reports
// that the clock task could not be scheduled
func IsSchedulingFailed(err error) bool {
	return GetErrCode(err) == SchedulingFailed
}
