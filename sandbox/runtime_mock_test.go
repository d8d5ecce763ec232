package sandbox

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// mockContainer is a container known to MockRuntime
type mockContainer struct {
	id     string
	image  string
	status string
}

// MockRuntime implements RuntimeClient in memory for testing
type MockRuntime struct {
	mu sync.Mutex

	pingErr         error
	imageInspectErr error
	containerErr    error // returned by ContainerInspect when set
	buildFailure    string
	buildDelay      time.Duration

	images     map[string]bool
	containers map[string]*mockContainer

	execStdout   []byte
	execStderr   []byte
	execExitCode int
	execBlock    bool
	onExecCreate func() // called after an exec is created, outside the runtime lock

	builds       int
	creates      int
	starts       int
	stops        int
	removes      int
	execCommands [][]string
	buildContext []byte
	createConfig *container.Config
	hostConfig   *container.HostConfig
	peers        []net.Conn
	closed       bool
}

func NewMockRuntime() *MockRuntime {
	return &MockRuntime{
		images:     make(map[string]bool),
		containers: make(map[string]*mockContainer),
	}
}

func (m *MockRuntime) Ping(_ context.Context) (types.Ping, error) {
	if m.pingErr != nil {
		return types.Ping{}, m.pingErr
	}
	return types.Ping{APIVersion: "1.46", OSType: "linux"}, nil
}

func (m *MockRuntime) ImageInspectWithRaw(_ context.Context, imageID string) (types.ImageInspect, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.imageInspectErr != nil {
		return types.ImageInspect{}, nil, m.imageInspectErr
	}
	if !m.images[imageID] {
		return types.ImageInspect{}, nil, errdefs.NotFound(fmt.Errorf("No such image: %s", imageID))
	}
	return types.ImageInspect{ID: "sha256:" + imageID, RepoTags: []string{imageID + ":latest"}}, nil, nil
}

func (m *MockRuntime) ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error) {
	if m.buildDelay > 0 {
		select {
		case <-time.After(m.buildDelay):
		case <-ctx.Done():
			return types.ImageBuildResponse{}, ctx.Err()
		}
	}

	data, err := io.ReadAll(buildContext)
	if err != nil {
		return types.ImageBuildResponse{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.builds++
	m.buildContext = data

	var body string
	if m.buildFailure != "" {
		body = fmt.Sprintf(`{"stream":"Step 1/1 : FROM broken\n"}`+"\n"+`{"errorDetail":{"message":%q},"error":%q}`+"\n",
			m.buildFailure, m.buildFailure)
	} else {
		for _, tag := range options.Tags {
			m.images[tag] = true
		}
		body = `{"stream":"Step 1/2 : FROM python:3.11\n"}` + "\n" +
			`{"stream":" ---> 1a2b3c4d\n"}` + "\n" +
			`{"aux":{"ID":"sha256:1a2b3c4d"}}` + "\n" +
			`{"stream":"Successfully tagged ` + strings.Join(options.Tags, ",") + `:latest\n"}` + "\n"
	}

	return types.ImageBuildResponse{Body: io.NopCloser(strings.NewReader(body)), OSType: "linux"}, nil
}

func (m *MockRuntime) ContainerInspect(_ context.Context, containerID string) (types.ContainerJSON, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.containerErr != nil {
		return types.ContainerJSON{}, m.containerErr
	}
	c, ok := m.containers[containerID]
	if !ok {
		return types.ContainerJSON{}, errdefs.NotFound(fmt.Errorf("No such container: %s", containerID))
	}
	return types.ContainerJSON{
		ContainerJSONBase: &types.ContainerJSONBase{
			ID:      c.id,
			Name:    "/" + containerID,
			Created: "2024-11-17T17:00:00.000000000Z",
			State: &types.ContainerState{
				Status:  c.status,
				Running: c.status == "running",
			},
		},
		Config: &container.Config{Image: c.image},
	}, nil
}

func (m *MockRuntime) ContainerCreate(_ context.Context, config *container.Config, hostConfig *container.HostConfig,
	_ *network.NetworkingConfig, _ *ocispec.Platform, containerName string,
) (container.CreateResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.containers[containerName]; exists {
		return container.CreateResponse{}, errdefs.Conflict(fmt.Errorf("name %s is already in use", containerName))
	}
	if !m.images[config.Image] {
		return container.CreateResponse{}, errdefs.NotFound(fmt.Errorf("No such image: %s", config.Image))
	}

	m.creates++
	id := fmt.Sprintf("container-%d", m.creates)
	m.containers[containerName] = &mockContainer{id: id, image: config.Image, status: "created"}
	m.createConfig = config
	m.hostConfig = hostConfig
	return container.CreateResponse{ID: id}, nil
}

func (m *MockRuntime) lookup(ref string) (string, *mockContainer) {
	if c, ok := m.containers[ref]; ok {
		return ref, c
	}
	for name, c := range m.containers {
		if c.id == ref {
			return name, c
		}
	}
	return "", nil
}

func (m *MockRuntime) ContainerStart(_ context.Context, containerID string, _ container.StartOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, c := m.lookup(containerID)
	if c == nil {
		return errdefs.NotFound(fmt.Errorf("No such container: %s", containerID))
	}
	m.starts++
	c.status = "running"
	return nil
}

func (m *MockRuntime) ContainerStop(_ context.Context, containerID string, _ container.StopOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stops++
	_, c := m.lookup(containerID)
	if c == nil {
		return errdefs.NotFound(fmt.Errorf("No such container: %s", containerID))
	}
	c.status = "exited"
	return nil
}

func (m *MockRuntime) ContainerRemove(_ context.Context, containerID string, _ container.RemoveOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name, c := m.lookup(containerID)
	if c == nil {
		return errdefs.NotFound(fmt.Errorf("No such container: %s", containerID))
	}
	m.removes++
	delete(m.containers, name)
	return nil
}

func (m *MockRuntime) ContainerExecCreate(_ context.Context, containerID string, options container.ExecOptions) (types.IDResponse, error) {
	m.mu.Lock()
	_, c := m.lookup(containerID)
	if c == nil {
		m.mu.Unlock()
		return types.IDResponse{}, errdefs.NotFound(fmt.Errorf("No such container: %s", containerID))
	}
	if c.status != "running" {
		m.mu.Unlock()
		return types.IDResponse{}, errdefs.Conflict(fmt.Errorf("container %s is not running", containerID))
	}
	m.execCommands = append(m.execCommands, options.Cmd)
	id := fmt.Sprintf("exec-%d", len(m.execCommands))
	hook := m.onExecCreate
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	return types.IDResponse{ID: id}, nil
}

func (m *MockRuntime) ContainerExecAttach(_ context.Context, _ string, _ container.ExecStartOptions) (types.HijackedResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, peer := net.Pipe()
	m.peers = append(m.peers, peer)

	if m.execBlock {
		// nothing is ever written to peer, so reads block until conn is closed
		return types.HijackedResponse{Conn: conn, Reader: bufio.NewReader(conn)}, nil
	}

	var stream bytes.Buffer
	if len(m.execStdout) > 0 {
		if _, err := stdcopy.NewStdWriter(&stream, stdcopy.Stdout).Write(m.execStdout); err != nil {
			return types.HijackedResponse{}, err
		}
	}
	if len(m.execStderr) > 0 {
		if _, err := stdcopy.NewStdWriter(&stream, stdcopy.Stderr).Write(m.execStderr); err != nil {
			return types.HijackedResponse{}, err
		}
	}
	return types.HijackedResponse{Conn: conn, Reader: bufio.NewReader(&stream)}, nil
}

func (m *MockRuntime) ContainerExecInspect(_ context.Context, execID string) (container.ExecInspect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return container.ExecInspect{ExecID: execID, ExitCode: m.execExitCode}, nil
}

func (m *MockRuntime) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, peer := range m.peers {
		_ = peer.Close()
	}
	m.closed = true
	return nil
}

// dockerfileFromContext extracts the Dockerfile entry of the last build context
func (m *MockRuntime) dockerfileFromContext() (string, error) {
	m.mu.Lock()
	data := m.buildContext
	m.mu.Unlock()

	tarReader := tar.NewReader(bytes.NewReader(data))
	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("no %s in build context", DockerfileName)
		}
		if err != nil {
			return "", err
		}
		if header.Name == DockerfileName {
			content, err := io.ReadAll(tarReader)
			return string(content), err
		}
	}
}

// MockFileSystem implements FileSystem for testing
type MockFileSystem struct {
	mu             sync.Mutex
	mkdirAllCalls  []string
	mkdirAllErrors map[string]error
	exists         map[string]bool
}

func (m *MockFileSystem) MkdirAll(path string, _ os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.mkdirAllErrors[path]; ok {
		return err
	}
	m.mkdirAllCalls = append(m.mkdirAllCalls, path)
	return nil
}

func (m *MockFileSystem) FileExists(path string) (bool, error) {
	if m.exists != nil {
		return m.exists[path], nil
	}
	return false, nil
}
