package sandbox

import (
	"archive/tar"
	"bytes"
	"fmt"
	"time"
)

// CreateBuildContext packages the Dockerfile text into an in-memory tar
// archive holding a single Dockerfile entry
func CreateBuildContext(dockerfile string) ([]byte, error) {
	if dockerfile == "" {
		return nil, fmt.Errorf("empty dockerfile")
	}

	var buf bytes.Buffer
	tarWriter := tar.NewWriter(&buf)

	data := []byte(dockerfile)
	header := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     DockerfileName,
		Mode:     FilePermission,
		Size:     int64(len(data)),
		ModTime:  time.Unix(0, 0),
	}

	if err := tarWriter.WriteHeader(header); err != nil {
		return nil, fmt.Errorf("failed to write dockerfile header: %w", err)
	}
	if _, err := tarWriter.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write dockerfile: %w", err)
	}

	if err := tarWriter.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
