// Package sandbox provides a managed execution container for shell commands.
//
// The sandbox package owns a single long-lived, named Docker container. Before
// each command it ensures the backing image exists (building it from a
// configured Dockerfile) and that the container is running, then executes the
// command inside it and returns the captured output.
package sandbox

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// ExecResult represents the result of a command executed in the sandbox
type ExecResult struct {
	ID       string // execution id, used to correlate logs
	Command  string
	Output   []byte // combined stdout and stderr
	ExitCode int
	Duration time.Duration
}

// ContainerStatus describes the managed container as seen by the runtime
type ContainerStatus struct {
	Name    string
	ID      string
	State   string
	Running bool
	Image   string
	Created time.Time
}

// SandboxExecutor defines the command surface of the sandbox
type SandboxExecutor interface {
	// Run executes cmd in the managed container and reports failures as errors.
	Run(ctx context.Context, cmd string) (ExecResult, error)
	// Execute executes cmd and never fails: errors are returned as output text.
	Execute(ctx context.Context, cmd string) []byte
	// Stop tears the managed container down when all is true.
	Stop(ctx context.Context, all bool) error
	// IsRuntimeAvailable pings the container runtime.
	IsRuntimeAvailable(ctx context.Context) bool
	Status(ctx context.Context) (ContainerStatus, error)
	BuildImage(ctx context.Context, force bool) error
	Close() error
}

// RuntimeClient is the subset of the Docker Engine API used by the sandbox.
// *client.Client from github.com/docker/docker/client satisfies it.
type RuntimeClient interface {
	Ping(ctx context.Context) (types.Ping, error)
	ImageInspectWithRaw(ctx context.Context, imageID string) (types.ImageInspect, []byte, error)
	ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error)
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig,
		networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerExecCreate(ctx context.Context, containerID string, options container.ExecOptions) (types.IDResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, config container.ExecStartOptions) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error)
	Close() error
}

// FileSystem defines an interface for file system operations
type FileSystem interface {
	MkdirAll(path string, perm os.FileMode) error
	FileExists(path string) (bool, error)
}

// RealFileSystem implements FileSystem using actual file system operations
type RealFileSystem struct{}

func (RealFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (RealFileSystem) FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

// LookupPolicy controls what happens when the container lookup fails with an
// error other than "not found".
type LookupPolicy string

const (
	// LookupBestEffort logs the failure and lets execution proceed.
	LookupBestEffort LookupPolicy = "best-effort"
	// LookupFailFast aborts execution with a *LifecycleError.
	LookupFailFast LookupPolicy = "fail-fast"
)

// Container layout constants
const (
	ContainerDataDir   = "/data"
	DockerfileName     = "Dockerfile"
	LabelManagedBy     = "shellbox.managed-by"
	ManagedByValue     = "shellbox"
	DirPermission      = 0755
	FilePermission     = 0644
	pingTimeout        = 5 * time.Second
	defaultStopTimeout = 10 * time.Second
)

// keepAliveCmd keeps the container idle between executions.
var keepAliveCmd = []string{"tail", "-f", "/dev/null"}
