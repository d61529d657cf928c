package detection

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	internalshm "github.com/srediag/detection-shm/internal/shm"
)

const (
	readRetryInterval = time.Millisecond
	readMaxRetries    = 49
)

var errChanged = errors.New("sequence changed")

// Reader decodes batches from a mapped region. It never writes to it.
type Reader struct {
	buf    []byte
	layout Layout
}

// NewReader returns a reader over buf, which must hold layout.Size() bytes.
func NewReader(buf []byte, layout Layout) (*Reader, error) {
	if len(buf) < layout.Size() {
		return nil, ErrShortBuffer
	}
	return &Reader{buf: buf, layout: layout}, nil
}

// Sequence returns the current sequence counter, or 0 for the plain layout.
func (r *Reader) Sequence() uint32 {
	if r.layout != LayoutSequenced {
		return 0
	}
	return internalshm.AtomicLoadUint32(r.buf)
}

// Snapshot copies and decodes the current batch. In the plain layout a read
// racing a live writer may be torn. In the sequenced layout the copy is
// retried while a write is in progress, and ErrTornRead is returned if the
// writer never settles.
func (r *Reader) Snapshot(ctx context.Context) (Batch, error) {
	if r.layout != LayoutSequenced {
		return Decode(r.copyBody(r.buf))
	}

	var batch Batch
	op := func() error {
		before := internalshm.AtomicLoadUint32(r.buf)
		if before%2 == 1 {
			return errChanged
		}
		body := r.copyBody(r.buf[seqSize:])
		if internalshm.AtomicLoadUint32(r.buf) != before {
			return errChanged
		}
		b, err := Decode(body)
		if err != nil {
			return backoff.Permanent(err)
		}
		batch = b
		return nil
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(readRetryInterval), readMaxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		if errors.Is(err, errChanged) {
			return Batch{}, ErrTornRead
		}
		return Batch{}, err
	}
	return batch, nil
}

func (r *Reader) copyBody(src []byte) []byte {
	body := make([]byte, BatchSize)
	copy(body, src)
	return body
}
