// Package detector adapts object detectors to the candidate format consumed
// by the detection writer.
package detector

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/srediag/detection-shm/pkg/detection"
)

// Detector runs inference over one image. Candidates are returned in the
// detector's own order, already NMS-sorted.
type Detector interface {
	Detect(ctx context.Context, img Image) ([]detection.Candidate, error)
	Close() error
}

// Kind names a detector implementation.
type Kind string

const (
	KindFile Kind = "file"
	KindHTTP Kind = "http"
)

// Options selects and configures a Detector.
type Options struct {
	Kind    Kind
	Sidecar string
	HTTP    HTTPOptions
}

// New returns the detector selected by opts.Kind.
func New(opts Options) (Detector, error) {
	switch opts.Kind {
	case KindFile, "":
		return NewFileDetector(opts.Sidecar), nil
	case KindHTTP:
		return NewHTTPDetector(opts.HTTP), nil
	}
	return nil, fmt.Errorf("unknown detector kind %q", opts.Kind)
}

// rawDetection is the wire form shared by the sidecar file and the
// inference server: a normalized center box and per-class probabilities.
type rawDetection struct {
	BBox struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
		W float64 `json:"w"`
		H float64 `json:"h"`
	} `json:"bbox"`
	Prob []float32 `json:"prob"`
}

type rawResponse struct {
	Detections []rawDetection `json:"detections"`
}

func (r rawResponse) candidates() []detection.Candidate {
	out := make([]detection.Candidate, len(r.Detections))
	for i, d := range r.Detections {
		out[i] = detection.Candidate{
			Box:    detection.Box{X: d.BBox.X, Y: d.BBox.Y, W: d.BBox.W, H: d.BBox.H},
			Scores: d.Prob,
		}
	}
	return out
}

func decodeResponse(data []byte) ([]detection.Candidate, error) {
	var resp rawResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode detections: %w", err)
	}
	return resp.candidates(), nil
}
