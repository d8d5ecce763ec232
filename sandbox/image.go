package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/jsonmessage"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// BuildObserver receives image build log lines as they stream from the runtime
type BuildObserver func(line string)

// ImageBuilder builds the sandbox image from the configured Dockerfile
type ImageBuilder struct {
	logger     *zap.Logger
	client     RuntimeClient
	imageName  string
	dockerfile string
	observer   BuildObserver
	group      singleflight.Group
}

// NewImageBuilder creates an ImageBuilder. A nil observer logs build lines at info level.
func NewImageBuilder(logger *zap.Logger, client RuntimeClient, imageName, dockerfile string, observer BuildObserver) *ImageBuilder {
	b := &ImageBuilder{
		logger:     logger,
		client:     client,
		imageName:  imageName,
		dockerfile: dockerfile,
		observer:   observer,
	}
	if b.observer == nil {
		b.observer = func(line string) {
			logger.Info("image build", zap.String("image", imageName), zap.String("line", line))
		}
	}
	return b
}

// Exists reports whether the image is present in the runtime
func (b *ImageBuilder) Exists(ctx context.Context) (bool, error) {
	_, _, err := b.client.ImageInspectWithRaw(ctx, b.imageName)
	if err == nil {
		return true, nil
	}
	if errdefs.IsNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to inspect image %s: %w", b.imageName, err)
}

// Ensure builds the image if it does not exist. Concurrent callers share one build.
func (b *ImageBuilder) Ensure(ctx context.Context) error {
	return b.shared(ctx, "ensure:"+b.imageName, func(ctx context.Context) error {
		exists, err := b.Exists(ctx)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		b.logger.Info("image not found, building", zap.String("image", b.imageName))
		return b.build(ctx)
	})
}

// Build rebuilds the image unconditionally
func (b *ImageBuilder) Build(ctx context.Context) error {
	return b.shared(ctx, "build:"+b.imageName, b.build)
}

// shared runs fn once per key for all concurrent callers. fn is detached from
// the cancellation of whichever caller started it; each caller stops waiting
// when its own ctx is done.
func (b *ImageBuilder) shared(ctx context.Context, key string, fn func(context.Context) error) error {
	detached := context.WithoutCancel(ctx)
	ch := b.group.DoChan(key, func() (any, error) {
		return nil, fn(detached)
	})

	select {
	case res := <-ch:
		if res.Shared {
			b.logger.Debug("joined in-flight image operation", zap.String("image", b.imageName), zap.String("key", key))
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *ImageBuilder) build(ctx context.Context) error {
	buildContext, err := CreateBuildContext(b.dockerfile)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrBuildFailed, b.imageName, err)
	}

	b.logger.Info("please wait, building the docker image", zap.String("image", b.imageName))

	resp, err := b.client.ImageBuild(ctx, bytes.NewReader(buildContext), types.ImageBuildOptions{
		Tags:        []string{b.imageName},
		Dockerfile:  DockerfileName,
		Remove:      true,
		ForceRemove: true,
		Labels:      map[string]string{LabelManagedBy: ManagedByValue},
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrBuildFailed, b.imageName, err)
	}
	defer resp.Body.Close()

	if err := b.streamBuildLog(resp.Body); err != nil {
		return err
	}

	b.logger.Info("image built", zap.String("image", b.imageName))
	return nil
}

// streamBuildLog forwards the stream field of each build message to the
// observer and stops at the first error message
func (b *ImageBuilder) streamBuildLog(body io.Reader) error {
	decoder := json.NewDecoder(body)
	for {
		var msg jsonmessage.JSONMessage
		if err := decoder.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("%w: %s: reading build output: %w", ErrBuildFailed, b.imageName, err)
		}

		if msg.Error != nil {
			return fmt.Errorf("%w: %s: %s", ErrBuildFailed, b.imageName, msg.Error.Message)
		}

		if line := strings.TrimSpace(msg.Stream); line != "" {
			b.observer(line)
		}
	}
}
