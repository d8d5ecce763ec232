package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DockerExecutor implements SandboxExecutor on top of the Docker Engine API
type DockerExecutor struct {
	logger    *zap.Logger
	config    *Config
	client    RuntimeClient
	fs        FileSystem
	observer  BuildObserver
	builder   *ImageBuilder
	lifecycle *Lifecycle
}

// Config holds configuration for the Docker executor
type Config struct {
	Dockerfile    string
	ImageName     string
	ContainerName string
	HostDataDir   string
	WorkDir       string
	ExecTimeout   time.Duration
	StopTimeout   time.Duration
	LookupPolicy  LookupPolicy
}

// DockerExecutorOption defines a functional option for DockerExecutor
type DockerExecutorOption func(*DockerExecutor)

// WithDockerFileSystem sets the FileSystem for DockerExecutor
func WithDockerFileSystem(fs FileSystem) DockerExecutorOption {
	return func(d *DockerExecutor) {
		d.fs = fs
	}
}

// WithBuildObserver sets the observer receiving image build log lines
func WithBuildObserver(observer BuildObserver) DockerExecutorOption {
	return func(d *DockerExecutor) {
		d.observer = observer
	}
}

// NewDockerExecutor creates a new DockerExecutor using the given runtime client
func NewDockerExecutor(logger *zap.Logger, config *Config, client RuntimeClient, opts ...DockerExecutorOption) *DockerExecutor {
	executor := &DockerExecutor{
		logger: logger,
		config: config,
		client: client,
		fs:     &RealFileSystem{}, // Default implementation
	}

	// Apply options
	for _, opt := range opts {
		opt(executor)
	}

	executor.builder = NewImageBuilder(logger, client, config.ImageName, config.Dockerfile, executor.observer)
	executor.lifecycle = NewLifecycle(logger, client, executor.fs, LifecycleConfig{
		ImageName:   config.ImageName,
		HostDataDir: config.HostDataDir,
		WorkDir:     config.WorkDir,
		StopTimeout: config.StopTimeout,
		Policy:      config.LookupPolicy,
	})

	return executor
}

// Run executes cmd in the managed container, building the image and
// (re)creating the container first when needed
func (d *DockerExecutor) Run(ctx context.Context, cmd string) (ExecResult, error) {
	result := ExecResult{ID: uuid.NewString(), Command: cmd}
	start := time.Now()
	log := d.logger.With(
		zap.String("execution_id", result.ID),
		zap.String("container", d.config.ContainerName))

	// at first, check for image
	if err := d.builder.Ensure(ctx); err != nil {
		if !errors.Is(err, ErrBuildFailed) && !d.IsRuntimeAvailable(ctx) {
			err = fmt.Errorf("%w: %w", ErrRuntimeUnavailable, err)
		}
		return result, &ExecError{Command: cmd, Err: err}
	}

	// the container cannot be stopped or recreated while the command runs
	release, err := d.lifecycle.Acquire(ctx, d.config.ContainerName)
	if err != nil {
		return result, &ExecError{Command: cmd, Err: err}
	}
	defer release()

	execCtx := ctx
	if d.config.ExecTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, d.config.ExecTimeout)
		defer cancel()
	}

	log.Debug("executing command", zap.String("command", cmd))
	output, exitCode, err := d.exec(execCtx, cmd)
	result.Duration = time.Since(start)
	result.Output = normalizeOutput(output)
	if err != nil {
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w after %s", ErrExecTimeout, d.config.ExecTimeout)
		}
		return result, &ExecError{Command: cmd, Err: err}
	}

	result.ExitCode = exitCode
	log.Info("command executed",
		zap.Int("exit_code", exitCode),
		zap.Int("output_len", len(result.Output)),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// Execute runs cmd and returns its output. It never fails: any error is
// returned as its text so the command boundary stays total.
func (d *DockerExecutor) Execute(ctx context.Context, cmd string) []byte {
	result, err := d.Run(ctx, cmd)
	if err != nil {
		d.logger.Error("error running container", zap.String("command", cmd), zap.Error(err))
		return []byte(err.Error())
	}
	return result.Output
}

func (d *DockerExecutor) exec(ctx context.Context, cmd string) ([]byte, int, error) {
	execResp, err := d.client.ContainerExecCreate(ctx, d.config.ContainerName, container.ExecOptions{
		Cmd:          []string{"/bin/sh", "-c", cmd},
		WorkingDir:   d.config.WorkDir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		if errdefs.IsNotFound(err) {
			err = fmt.Errorf("%w: %w", ErrContainerNotFound, err)
		}
		return nil, 0, fmt.Errorf("failed to create exec: %w", err)
	}

	attachResp, err := d.client.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to attach exec: %w", err)
	}
	defer attachResp.Close()

	// stdout and stderr share one buffer
	var output bytes.Buffer
	copyDone := make(chan error, 1)
	go func() {
		_, copyErr := stdcopy.StdCopy(&output, &output, attachResp.Reader)
		copyDone <- copyErr
	}()

	select {
	case copyErr := <-copyDone:
		if copyErr != nil {
			return output.Bytes(), 0, fmt.Errorf("failed to read output: %w", copyErr)
		}
	case <-ctx.Done():
		// closing the hijacked connection unblocks the copy; the process
		// inside the container is left to the runtime
		attachResp.Close()
		<-copyDone
		d.logger.Warn("command did not finish in time",
			zap.String("container", d.config.ContainerName),
			zap.String("exec_id", execResp.ID))
		return output.Bytes(), 0, ctx.Err()
	}

	inspectResp, err := d.client.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return output.Bytes(), 0, fmt.Errorf("failed to inspect exec: %w", err)
	}

	return output.Bytes(), inspectResp.ExitCode, nil
}

// normalizeOutput replaces invalid UTF-8 sequences so the output is always
// valid text. Empty output is returned as an empty, non-nil slice.
func normalizeOutput(output []byte) []byte {
	if len(output) == 0 {
		return []byte{}
	}
	return []byte(strings.ToValidUTF8(string(output), "\uFFFD"))
}

// Stop stops and removes the managed container when all is true
func (d *DockerExecutor) Stop(ctx context.Context, all bool) error {
	if !all {
		return nil
	}
	return d.lifecycle.Stop(ctx, d.config.ContainerName)
}

// IsRuntimeAvailable pings the Docker daemon
func (d *DockerExecutor) IsRuntimeAvailable(ctx context.Context) bool {
	if d.client == nil {
		return false
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if _, err := d.client.Ping(pingCtx); err != nil {
		d.logger.Debug("container runtime unreachable", zap.Error(err))
		return false
	}
	return true
}

// Status reports the state of the managed container
func (d *DockerExecutor) Status(ctx context.Context) (ContainerStatus, error) {
	return d.lifecycle.Status(ctx, d.config.ContainerName)
}

// BuildImage builds the image if missing, or unconditionally when force is set
func (d *DockerExecutor) BuildImage(ctx context.Context, force bool) error {
	if force {
		return d.builder.Build(ctx)
	}
	return d.builder.Ensure(ctx)
}

// Close releases the runtime client
func (d *DockerExecutor) Close() error {
	if d.client == nil {
		return nil
	}
	return d.client.Close()
}
