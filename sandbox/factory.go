package sandbox

import (
	"go.uber.org/zap"

	"github.com/isdmx/shellbox/config"
)

// NewExecutor creates the Docker-backed sandbox executor from the application configuration
func NewExecutor(logger *zap.Logger, cfg *config.Config) (SandboxExecutor, error) {
	fs := &RealFileSystem{}

	cli, err := NewDockerClient(cfg.Sandbox.DockerHost, fs)
	if err != nil {
		return nil, err
	}

	executorConfig := ConfigFromApp(cfg)

	logger.Info("sandbox configured",
		zap.String("docker_host", cli.DaemonHost()),
		zap.String("image", executorConfig.ImageName),
		zap.String("container", executorConfig.ContainerName),
		zap.String("data_dir", executorConfig.HostDataDir),
		zap.Duration("exec_timeout", executorConfig.ExecTimeout),
		zap.String("lookup_policy", string(executorConfig.LookupPolicy)))

	return NewDockerExecutor(logger, executorConfig, cli, WithDockerFileSystem(fs)), nil
}

// ConfigFromApp maps the application configuration onto the executor configuration
func ConfigFromApp(cfg *config.Config) *Config {
	return &Config{
		Dockerfile:    cfg.Sandbox.Dockerfile,
		ImageName:     cfg.Sandbox.ImageName,
		ContainerName: cfg.Sandbox.ContainerName,
		HostDataDir:   cfg.Sandbox.DataDir,
		WorkDir:       cfg.Sandbox.WorkDir,
		ExecTimeout:   cfg.ExecTimeout(),
		StopTimeout:   cfg.StopTimeout(),
		LookupPolicy:  LookupPolicy(cfg.Sandbox.LookupPolicy),
	}
}
