package detection

import (
	"encoding/binary"
	"math"
)

var order = binary.NativeEndian

func putRecord(b []byte, r Record) {
	order.PutUint32(b[0:], uint32(r.ClassID))
	order.PutUint32(b[4:], math.Float32bits(r.Confidence))
	order.PutUint32(b[8:], uint32(r.X))
	order.PutUint32(b[12:], uint32(r.Y))
	order.PutUint32(b[16:], uint32(r.W))
	order.PutUint32(b[20:], uint32(r.H))
}

func getRecord(b []byte) Record {
	return Record{
		ClassID:    int32(order.Uint32(b[0:])),
		Confidence: math.Float32frombits(order.Uint32(b[4:])),
		X:          int32(order.Uint32(b[8:])),
		Y:          int32(order.Uint32(b[12:])),
		W:          int32(order.Uint32(b[16:])),
		H:          int32(order.Uint32(b[20:])),
	}
}

func recordOffset(i int) int {
	return countSize + i*RecordSize
}

// Encode writes the batch into b in the plain layout. Records are stored
// before the count.
func Encode(b []byte, batch *Batch) error {
	if len(b) < BatchSize {
		return ErrShortBuffer
	}
	for i := range batch.Records {
		putRecord(b[recordOffset(i):], batch.Records[i])
	}
	order.PutUint32(b[0:], uint32(batch.Count))
	return nil
}

// Decode parses a plain-layout batch from b.
func Decode(b []byte) (Batch, error) {
	var batch Batch
	if len(b) < BatchSize {
		return batch, ErrShortBuffer
	}
	batch.Count = int32(order.Uint32(b[0:]))
	if batch.Count < 0 || batch.Count > Capacity {
		return batch, ErrCorruptBatch
	}
	for i := range batch.Records {
		batch.Records[i] = getRecord(b[recordOffset(i):])
	}
	return batch, nil
}
