package detector

import (
	"context"
	"fmt"
	"os"

	"github.com/srediag/detection-shm/pkg/detection"
)

// SidecarSuffix is appended to the image path when no sidecar path is configured.
const SidecarSuffix = ".detections.json"

// FileDetector replays detector output stored next to the image, e.g. by an
// offline darknet run.
type FileDetector struct {
	path string
}

// NewFileDetector reads candidates from path, or from <image>.detections.json when empty.
func NewFileDetector(path string) *FileDetector {
	return &FileDetector{path: path}
}

// Detect loads the sidecar for img.
func (d *FileDetector) Detect(_ context.Context, img Image) ([]detection.Candidate, error) {
	path := d.path
	if path == "" {
		path = img.Path + SidecarSuffix
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sidecar: %w", err)
	}
	return decodeResponse(data)
}

func (d *FileDetector) Close() error { return nil }
