package lib

import (
	"errors"

	"github.com/slok/scriptrun/internal/model"
)

var (
	// ErrNotFound is returned when an execution does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when an execution ID is already used.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned on invalid input (e.g. a bad script or timeout).
	ErrNotValid = errors.New("not valid")
	// ErrRejected is returned when the policy rejects a script.
	ErrRejected = errors.New("rejected")
	// ErrBinding is returned when parameters can't be bound to the script parameters.
	ErrBinding = errors.New("parameter binding failed")
	// ErrBusy is returned when the concurrent executions limit is reached.
	ErrBusy = errors.New("busy")
	// ErrStillRunning is returned when a result is requested before the execution finished.
	ErrStillRunning = errors.New("still running")
)

var sentinels = []struct{ internal, public error }{
	{model.ErrNotFound, ErrNotFound},
	{model.ErrAlreadyExists, ErrAlreadyExists},
	{model.ErrNotValid, ErrNotValid},
	{model.ErrValidationRejected, ErrRejected},
	{model.ErrBinding, ErrBinding},
	{model.ErrBusy, ErrBusy},
	{model.ErrStillRunning, ErrStillRunning},
}

func mapError(err error) error {
	if err == nil {
		return nil
	}

	for _, s := range sentinels {
		if errors.Is(err, s.internal) {
			return &mappedError{original: err, sentinel: s.public}
		}
	}
	return err
}

type mappedError struct {
	original error
	sentinel error
}

func (e *mappedError) Error() string { return e.original.Error() }

func (e *mappedError) Is(target error) bool { return target == e.sentinel }

func (e *mappedError) Unwrap() error { return e.original }
