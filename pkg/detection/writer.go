package detection

import (
	internalshm "github.com/srediag/detection-shm/internal/shm"
)

// Box is a normalized center box: X, Y are the center and W, H the size,
// all relative to the image dimensions.
type Box struct {
	X, Y, W, H float64
}

// Candidate is one raw detector output: a box and per-class scores indexed by class id.
type Candidate struct {
	Box    Box
	Scores []float32
}

// Stats describes how candidates were consumed by Build.
type Stats struct {
	Candidates     int
	Written        int
	BelowThreshold int
	Dropped        int
}

// Build turns candidates into a batch. Candidates are taken in detector
// order; only the class 0 score is checked against Threshold, and once
// Capacity records are collected the rest are dropped.
func Build(cands []Candidate, width, height int) (Batch, Stats) {
	var (
		batch Batch
		stats = Stats{Candidates: len(cands)}
	)
	for _, c := range cands {
		if len(c.Scores) == 0 || !(c.Scores[0] > Threshold) {
			stats.BelowThreshold++
			continue
		}
		if batch.Count >= Capacity {
			stats.Dropped++
			continue
		}
		batch.Records[batch.Count] = toRecord(c.Box, c.Scores[0], width, height)
		batch.Count++
	}
	stats.Written = int(batch.Count)
	return batch, stats
}

func toRecord(b Box, score float32, width, height int) Record {
	w, h := float64(width), float64(height)
	return Record{
		ClassID:    0,
		Confidence: score,
		X:          int32((b.X - b.W/2) * w),
		Y:          int32((b.Y - b.H/2) * h),
		W:          int32(b.W * w),
		H:          int32(b.H * h),
	}
}

// Writer publishes batches into a mapped region. It is meant for a single
// writer; in the plain layout readers are not synchronized with it.
type Writer struct {
	buf     []byte
	layout  Layout
	metrics *Metrics
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithMetrics records per-write counters.
func WithMetrics(m *Metrics) WriterOption {
	return func(w *Writer) { w.metrics = m }
}

// NewWriter returns a writer over buf, which must hold layout.Size() bytes.
func NewWriter(buf []byte, layout Layout, opts ...WriterOption) (*Writer, error) {
	if len(buf) < layout.Size() {
		return nil, ErrShortBuffer
	}
	w := &Writer{buf: buf, layout: layout}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Write builds the batch from cands and stores it. The count is reset to
// zero first and set last, after every record is in place. Slots past the
// new count are left as they were.
func (w *Writer) Write(cands []Candidate, width, height int) Batch {
	batch, stats := Build(cands, width, height)

	body := w.buf
	var seq []byte
	if w.layout == LayoutSequenced {
		seq, body = w.buf[:seqSize], w.buf[seqSize:]
		s := internalshm.AtomicLoadUint32(seq)
		if s%2 == 1 {
			s++
		}
		internalshm.AtomicStoreUint32(seq, s+1)
		defer internalshm.AtomicStoreUint32(seq, s+2)
	}

	internalshm.AtomicStoreUint32(body, 0)
	for i, r := range batch.Valid() {
		putRecord(body[recordOffset(i):], r)
	}
	internalshm.AtomicStoreUint32(body, uint32(batch.Count))

	w.metrics.observe(stats)
	return batch
}
