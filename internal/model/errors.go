package model

import "errors"

var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a resource already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned when a resource is not valid.
	ErrNotValid = errors.New("not valid")
	// ErrValidationRejected is returned when a script is rejected by the execution policy.
	ErrValidationRejected = errors.New("validation rejected")
	// ErrBinding is returned when the caller parameters can't be bound to the script parameters.
	ErrBinding = errors.New("parameter binding failed")
	// ErrBusy is returned when the concurrent executions limit has been reached.
	ErrBusy = errors.New("busy")
	// ErrStillRunning is returned when the result of an execution is requested before it finished.
	ErrStillRunning = errors.New("still running")
)
