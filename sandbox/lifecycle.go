package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/errdefs"
	"go.uber.org/zap"
)

const stateRunning = "running"

// Lifecycle ensures a named container exists and is running.
//
// Transitions for one container name are serialized, so concurrent callers
// never create or remove the same container twice. Callers holding the
// container through Acquire block transitions until they release it.
type Lifecycle struct {
	logger      *zap.Logger
	client      RuntimeClient
	fs          FileSystem
	imageName   string
	hostDataDir string
	workDir     string
	stopTimeout time.Duration
	policy      LookupPolicy
	locks       keyedMutex
}

// LifecycleConfig holds the fixed container options
type LifecycleConfig struct {
	ImageName   string
	HostDataDir string // bound to /data inside the container
	WorkDir     string
	StopTimeout time.Duration
	Policy      LookupPolicy
}

// NewLifecycle creates a Lifecycle controller
func NewLifecycle(logger *zap.Logger, client RuntimeClient, fs FileSystem, cfg LifecycleConfig) *Lifecycle {
	l := &Lifecycle{
		logger:      logger,
		client:      client,
		fs:          fs,
		imageName:   cfg.ImageName,
		hostDataDir: cfg.HostDataDir,
		workDir:     cfg.WorkDir,
		stopTimeout: cfg.StopTimeout,
		policy:      cfg.Policy,
	}
	if l.stopTimeout <= 0 {
		l.stopTimeout = defaultStopTimeout
	}
	if l.policy == "" {
		l.policy = LookupBestEffort
	}
	if l.workDir == "" {
		l.workDir = ContainerDataDir
	}
	return l
}

// maxAcquireAttempts bounds how often Acquire recreates a container that
// keeps disappearing between the transition and the shared hold
const maxAcquireAttempts = 3

// Acquire ensures the named container is running and holds it in that state
// until release is called. Holders share the container with each other;
// Stop and recreation wait until every holder has released it.
func (l *Lifecycle) Acquire(ctx context.Context, name string) (func(), error) {
	for attempt := 1; ; attempt++ {
		runlock := l.locks.rlock(name)
		running, err := l.inspectRunning(ctx, name)
		switch {
		case running:
			return runlock, nil
		case err != nil && !errdefs.IsNotFound(err):
			if lerr := l.lookupFailed(name, err); lerr != nil {
				runlock()
				return nil, lerr
			}
			return runlock, nil
		}
		runlock()

		if attempt > maxAcquireAttempts {
			return nil, &LifecycleError{Name: name, Op: "start", Err: fmt.Errorf("container did not stay running after %d attempts", maxAcquireAttempts)}
		}
		if err := l.EnsureRunning(ctx, name); err != nil {
			return nil, err
		}
	}
}

// EnsureRunning makes sure the named container exists and is running.
// A container that exists but is not running is removed and recreated.
func (l *Lifecycle) EnsureRunning(ctx context.Context, name string) error {
	unlock := l.locks.lock(name)
	defer unlock()

	running, err := l.inspectRunning(ctx, name)
	switch {
	case running:
		l.logger.Debug("container already running", zap.String("container", name))
		return nil
	case err == nil:
		l.logger.Info("container is not running, recreating", zap.String("container", name))
		if rmErr := l.client.ContainerRemove(ctx, name, container.RemoveOptions{Force: true}); rmErr != nil && !errdefs.IsNotFound(rmErr) {
			return &LifecycleError{Name: name, Op: "remove", Err: rmErr}
		}
	case errdefs.IsNotFound(err):
		l.logger.Info("container not found, creating a new one", zap.String("container", name))
	default:
		return l.lookupFailed(name, err)
	}

	return l.create(ctx, name)
}

func (l *Lifecycle) inspectRunning(ctx context.Context, name string) (bool, error) {
	inspect, err := l.client.ContainerInspect(ctx, name)
	if err != nil {
		return false, err
	}
	return inspect.ContainerJSONBase != nil && inspect.State != nil && inspect.State.Status == stateRunning, nil
}

// lookupFailed applies the lookup policy to an inspect error. Best-effort
// returns nil so the following exec surfaces the failure.
func (l *Lifecycle) lookupFailed(name string, err error) error {
	lerr := &LifecycleError{Name: name, Op: "inspect", Err: err}
	l.logger.Error("error looking up container",
		zap.String("container", name),
		zap.String("policy", string(l.policy)),
		zap.Error(lerr))
	if l.policy == LookupFailFast {
		return lerr
	}
	return nil
}

func (l *Lifecycle) create(ctx context.Context, name string) error {
	if err := l.fs.MkdirAll(l.hostDataDir, DirPermission); err != nil {
		return &LifecycleError{Name: name, Op: "create", Err: fmt.Errorf("failed to prepare data dir %s: %w", l.hostDataDir, err)}
	}

	containerCfg := &container.Config{
		Image:      l.imageName,
		Cmd:        keepAliveCmd,
		Tty:        true,
		OpenStdin:  true,
		WorkingDir: l.workDir,
		Labels: map[string]string{
			LabelManagedBy: ManagedByValue,
		},
	}

	hostCfg := &container.HostConfig{
		Binds: []string{fmt.Sprintf("%s:%s:rw", l.hostDataDir, ContainerDataDir)},
	}

	resp, err := l.client.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, name)
	if err != nil {
		if errdefs.IsNotFound(err) {
			err = fmt.Errorf("%w: %s: %w", ErrImageNotFound, l.imageName, err)
		}
		return &LifecycleError{Name: name, Op: "create", Err: err}
	}
	for _, warning := range resp.Warnings {
		l.logger.Warn("container create warning", zap.String("container", name), zap.String("warning", warning))
	}

	if err := l.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return &LifecycleError{Name: name, Op: "start", Err: err}
	}

	l.logger.Info("container started",
		zap.String("container", name),
		zap.String("id", resp.ID),
		zap.String("image", l.imageName),
		zap.String("data_dir", l.hostDataDir))
	return nil
}

// Stop stops and removes the named container. A missing container is not an error.
func (l *Lifecycle) Stop(ctx context.Context, name string) error {
	unlock := l.locks.lock(name)
	defer unlock()

	timeout := int(l.stopTimeout.Seconds())
	err := l.client.ContainerStop(ctx, name, container.StopOptions{Timeout: &timeout})
	if errdefs.IsNotFound(err) {
		l.logger.Info("container not found", zap.String("container", name))
		return nil
	}
	if err != nil {
		return &LifecycleError{Name: name, Op: "stop", Err: err}
	}

	if err := l.client.ContainerRemove(ctx, name, container.RemoveOptions{Force: true}); err != nil && !errdefs.IsNotFound(err) {
		return &LifecycleError{Name: name, Op: "remove", Err: err}
	}

	l.logger.Info("container stopped and removed", zap.String("container", name))
	return nil
}

// Status inspects the named container
func (l *Lifecycle) Status(ctx context.Context, name string) (ContainerStatus, error) {
	inspect, err := l.client.ContainerInspect(ctx, name)
	if errdefs.IsNotFound(err) {
		return ContainerStatus{Name: name, State: "absent"}, fmt.Errorf("%w: %s", ErrContainerNotFound, name)
	}
	if err != nil {
		return ContainerStatus{Name: name}, &LifecycleError{Name: name, Op: "inspect", Err: err}
	}

	status := ContainerStatus{Name: name}
	if base := inspect.ContainerJSONBase; base != nil {
		status.ID = base.ID
		status.Created, _ = time.Parse(time.RFC3339Nano, base.Created)
		if base.State != nil {
			status.State = base.State.Status
			status.Running = base.State.Running
		}
	}
	if inspect.Config != nil {
		status.Image = inspect.Config.Image
	}
	return status, nil
}

// keyedMutex hands out one read-write mutex per key
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

func (k *keyedMutex) get(key string) *sync.RWMutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.RWMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.RWMutex{}
		k.locks[key] = m
	}
	return m
}

// lock takes the exclusive lock for key and returns its unlock func
func (k *keyedMutex) lock(key string) func() {
	m := k.get(key)
	m.Lock()
	return m.Unlock
}

// rlock takes the shared lock for key and returns its unlock func
func (k *keyedMutex) rlock(key string) func() {
	m := k.get(key)
	m.RLock()
	return m.RUnlock
}
