// Package detection defines the fixed binary layout of a detection batch and
// the writer that publishes detector output into a shared memory region.
//
// Plain layout, native byte order, 244 bytes:
//
//	offset 0   count      int32
//	offset 4   records    [Capacity]Record
//
//	Record (24 bytes):
//	  class_id   int32
//	  confidence float32
//	  x, y, w, h int32
//
// Only the first count records are meaningful. Sequenced layout prefixes the
// batch with a uint32 sequence counter that is odd while a write is in
// progress.
package detection

import (
	"errors"
	"fmt"
)

const (
	// Capacity is the fixed number of record slots in a batch.
	Capacity = 10
	// Threshold is the exclusive lower bound on the class-0 score.
	Threshold float32 = 0.5

	RecordSize = 24
	countSize  = 4
	// BatchSize is the size of one batch in the plain layout.
	BatchSize = countSize + Capacity*RecordSize

	seqSize = 4
	// SequencedSize is the size of one batch in the sequenced layout.
	SequencedSize = seqSize + BatchSize
)

var (
	ErrShortBuffer  = errors.New("buffer shorter than batch layout")
	ErrCorruptBatch = errors.New("batch count out of range")
	ErrTornRead     = errors.New("batch changed while reading")
)

// Layout selects the on-wire format shared by writer and reader.
type Layout string

const (
	LayoutPlain     Layout = "plain"
	LayoutSequenced Layout = "sequenced"
)

// Size returns the number of bytes the layout occupies.
func (l Layout) Size() int {
	if l == LayoutSequenced {
		return SequencedSize
	}
	return BatchSize
}

// ParseLayout accepts "plain" (or empty) and "sequenced".
func ParseLayout(s string) (Layout, error) {
	switch Layout(s) {
	case "", LayoutPlain:
		return LayoutPlain, nil
	case LayoutSequenced:
		return LayoutSequenced, nil
	}
	return "", fmt.Errorf("unknown layout %q", s)
}

// Record is one detected object in pixel coordinates.
type Record struct {
	ClassID    int32
	Confidence float32
	X          int32
	Y          int32
	W          int32
	H          int32
}

// Batch is the full shared payload.
type Batch struct {
	Count   int32
	Records [Capacity]Record
}

// Valid returns the leading Count records. Slots past Count are ignored.
func (b *Batch) Valid() []Record {
	n := int(b.Count)
	if n < 0 {
		n = 0
	}
	if n > Capacity {
		n = Capacity
	}
	return b.Records[:n]
}
