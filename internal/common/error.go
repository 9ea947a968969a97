package common

import (
	"errors"
	"fmt"
)

var (
	ErrFileNotFound     = fmt.Errorf("file not found")
	ErrInvalidManifest  = fmt.Errorf("invalid manifest")
	ErrInvalidEntry     = fmt.Errorf("invalid manifest entry")
	ErrInvalidVersion   = fmt.Errorf("unsupported version string")
	ErrUnknownFormat    = fmt.Errorf("unknown module format")
	ErrUnexpectedStatus = fmt.Errorf("unexpected response status")
	ErrRunFailed        = fmt.Errorf("run failed")
)

const (
	OpResolve = "resolve"
	OpFetch   = "fetch"
	OpAdapt   = "adapt"
	OpWrite   = "write"
)

// TaskError describes the failure of one fanned-out task.
type TaskError struct {
	Package string
	File    string
	Op      string
	Err     error
}

func (e *TaskError) Error() string {
	if e == nil {
		return ""
	}

	if e.File == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Package, e.Err)
	}

	return fmt.Sprintf("%s %s/%s: %v", e.Op, e.Package, e.File, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

func NewTaskError(pkg, file, op string, err error) error {
	var te *TaskError
	if errors.As(err, &te) {
		return err
	}

	return &TaskError{Package: pkg, File: file, Op: op, Err: err}
}
