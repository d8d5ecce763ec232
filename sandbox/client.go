package sandbox

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/docker/docker/client"
)

// NewDockerClient creates a Docker Engine API client. An explicit host wins;
// otherwise DOCKER_HOST and friends are honoured, and when those are unset
// the common Docker Desktop and Colima socket locations are probed.
func NewDockerClient(host string, fs FileSystem) (*client.Client, error) {
	if host == "" && os.Getenv(client.EnvOverrideHost) == "" {
		host = detectDockerHost(fs)
	}

	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return cli, nil
}

// detectDockerHost returns the first existing daemon socket, or "" to fall
// back to the client default
func detectDockerHost(fs FileSystem) string {
	candidates := []string{"/var/run/docker.sock"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".docker", "run", "docker.sock"), // Docker Desktop macOS
			filepath.Join(home, ".colima", "docker.sock"),        // Colima
		)
	}

	for _, path := range candidates {
		if exists, _ := fs.FileExists(path); exists {
			return "unix://" + path
		}
	}
	return ""
}
