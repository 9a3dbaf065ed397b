package types

import (
	"fmt"
)

type ErrEmpty struct {
	Field string
}

func (e ErrEmpty) Error() string {
	return fmt.Sprintf("%s cannot be empty", e.Field)
}

// ErrMissingTool is returned when an external program the pipeline depends on
// cannot be found. It is a configuration error and aborts the run.
type ErrMissingTool struct {
	Tool string
	Err  error
}

func (e ErrMissingTool) Error() string {
	return fmt.Sprintf("required tool %q not available: %v", e.Tool, e.Err)
}

func (e ErrMissingTool) Unwrap() error {
	return e.Err
}

type ErrInvalidBuildID struct {
	ID string
}

func (e ErrInvalidBuildID) Error() string {
	return fmt.Sprintf("invalid build ID %q", e.ID)
}
