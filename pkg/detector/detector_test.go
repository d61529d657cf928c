package detector

import (
	"context"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srediag/detection-shm/pkg/detection"
)

const sampleDetections = `{"detections":[
  {"bbox":{"x":0.5,"y":0.5,"w":0.2,"h":0.4},"prob":[0.9,0.1]},
  {"bbox":{"x":0.1,"y":0.2,"w":0.05,"h":0.05},"prob":[0.3]}
]}`

func writePNG(t *testing.T, w, h int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "frame.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, w, h))))
	return path
}

func TestLoadImage(t *testing.T) {
	img, err := LoadImage(writePNG(t, 640, 480))
	require.NoError(t, err)
	assert.Equal(t, 640, img.Width)
	assert.Equal(t, 480, img.Height)
	assert.Equal(t, "png", img.Format)
	assert.NotEmpty(t, img.Data)
}

func TestLoadImageErrors(t *testing.T) {
	_, err := LoadImage(filepath.Join(t.TempDir(), "missing.jpg"))
	assert.Error(t, err)

	bogus := filepath.Join(t.TempDir(), "bogus.jpg")
	require.NoError(t, os.WriteFile(bogus, []byte("not an image"), 0o644))
	_, err = LoadImage(bogus)
	assert.Error(t, err)
}

func TestFileDetectorDefaultSidecar(t *testing.T) {
	path := writePNG(t, 640, 480)
	require.NoError(t, os.WriteFile(path+SidecarSuffix, []byte(sampleDetections), 0o644))
	img, err := LoadImage(path)
	require.NoError(t, err)

	d, err := New(Options{Kind: KindFile})
	require.NoError(t, err)
	defer d.Close()
	cands, err := d.Detect(context.Background(), img)
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, detection.Box{X: 0.5, Y: 0.5, W: 0.2, H: 0.4}, cands[0].Box)
	assert.Equal(t, []float32{0.9, 0.1}, cands[0].Scores)

	batch, _ := detection.Build(cands, img.Width, img.Height)
	require.Equal(t, int32(1), batch.Count)
	assert.Equal(t, detection.Record{Confidence: 0.9, X: 256, Y: 144, W: 128, H: 192}, batch.Records[0])
}

func TestFileDetectorBadSidecar(t *testing.T) {
	sidecar := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, os.WriteFile(sidecar, []byte("{"), 0o644))
	_, err := NewFileDetector(sidecar).Detect(context.Background(), Image{Path: "x.png"})
	assert.Error(t, err)

	_, err = NewFileDetector("").Detect(context.Background(), Image{Path: filepath.Join(t.TempDir(), "x.png")})
	assert.Error(t, err)
}

func TestHTTPDetector(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, detectPath, r.URL.Path)
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
		assert.Equal(t, "yolov4-tiny.cfg", r.URL.Query().Get("config"))
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, sampleDetections)
	}))
	defer srv.Close()

	d, err := New(Options{Kind: KindHTTP, HTTP: HTTPOptions{URL: srv.URL, Config: "yolov4-tiny.cfg"}})
	require.NoError(t, err)
	defer d.Close()

	img := Image{Format: "png", Data: []byte{1, 2, 3}}
	cands, err := d.Detect(context.Background(), img)
	require.NoError(t, err)
	assert.Len(t, cands, 2)
	assert.Equal(t, []byte{1, 2, 3}, gotBody)
}

func TestHTTPDetectorServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	img, err := LoadImage(writePNG(t, 32, 32))
	require.NoError(t, err)
	_, err = NewHTTPDetector(HTTPOptions{URL: srv.URL}).Detect(context.Background(), img)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestHTTPDetectorEmptyImage(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	_, err := NewHTTPDetector(HTTPOptions{URL: srv.URL}).Detect(context.Background(), Image{Format: "png"})
	assert.ErrorIs(t, err, ErrEmptyImage)
	assert.False(t, called)
}

func TestUnknownKind(t *testing.T) {
	_, err := New(Options{Kind: "darknet"})
	assert.Error(t, err)
}
