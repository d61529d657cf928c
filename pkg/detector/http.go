package detector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/srediag/detection-shm/pkg/detection"
)

const (
	defaultTimeout = 30 * time.Second
	detectPath     = "/v1/detect"
)

// ErrEmptyImage is returned when an image carries no encoded bytes to send.
var ErrEmptyImage = errors.New("image has no data")

// HTTPOptions configures the inference-server client.
type HTTPOptions struct {
	URL     string
	Timeout time.Duration
	// Config and Weights identify the network the server should load.
	Config  string
	Weights string
}

// HTTPDetector posts the encoded image to an inference server and reads back
// raw detections. Requests are not retried.
type HTTPDetector struct {
	client *resty.Client
	opts   HTTPOptions
}

// NewHTTPDetector returns a client for the server at opts.URL.
func NewHTTPDetector(opts HTTPOptions) *HTTPDetector {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	c := resty.New().
		SetBaseURL(opts.URL).
		SetTimeout(opts.Timeout).
		SetTransport(&http.Transport{
			DisableKeepAlives: true,
		})
	return &HTTPDetector{client: c, opts: opts}
}

// Detect runs one inference on the server.
func (d *HTTPDetector) Detect(ctx context.Context, img Image) ([]detection.Candidate, error) {
	if len(img.Data) == 0 {
		return nil, fmt.Errorf("detect %s: %w", img.Path, ErrEmptyImage)
	}
	var result rawResponse
	resp, err := d.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "image/"+img.Format).
		SetQueryParams(map[string]string{
			"config":  d.opts.Config,
			"weights": d.opts.Weights,
		}).
		SetBody(img.Data).
		SetResult(&result).
		Post(detectPath)
	if err != nil {
		return nil, fmt.Errorf("couldn't connect with inference server: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("inference server returned %d: %s", resp.StatusCode(), resp.String())
	}
	return result.candidates(), nil
}

// Close releases idle connections.
func (d *HTTPDetector) Close() error {
	d.client.GetClient().CloseIdleConnections()
	return nil
}
