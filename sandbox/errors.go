package sandbox

import (
	"errors"
	"fmt"
)

var (
	// ErrRuntimeUnavailable means the container runtime daemon could not be reached.
	ErrRuntimeUnavailable = errors.New("container runtime unavailable")
	// ErrImageNotFound means the configured image does not exist yet.
	ErrImageNotFound = errors.New("image not found")
	// ErrContainerNotFound means the managed container does not exist.
	ErrContainerNotFound = errors.New("container not found")
	// ErrBuildFailed means the image build reported an error.
	ErrBuildFailed = errors.New("image build failed")
	// ErrExecTimeout means a command did not finish within the exec timeout.
	ErrExecTimeout = errors.New("execution timed out")
)

// LifecycleError is returned when a container lifecycle transition fails
type LifecycleError struct {
	Name string // container name
	Op   string // inspect, create, start, remove, stop
	Err  error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("container %s: %s: %v", e.Name, e.Op, e.Err)
}

func (e *LifecycleError) Unwrap() error {
	return e.Err
}

// ExecError is returned when a command could not be executed
type ExecError struct {
	Command string
	Err     error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("exec %q: %v", e.Command, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}
