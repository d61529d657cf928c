package shm

import (
	"sync/atomic"
	"unsafe"
)

// AtomicLoadUint32 loads a uint32 from shared memory atomically.
// b must hold at least 4 bytes and be 4-byte aligned, which holds for the
// start of an mmap'd region.
func AtomicLoadUint32(b []byte) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&b[0])))
}

// AtomicStoreUint32 stores a uint32 to shared memory atomically.
func AtomicStoreUint32(b []byte, val uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&b[0])), val)
}

// AtomicAddUint32 adds delta to a uint32 in shared memory and returns the new value.
func AtomicAddUint32(b []byte, delta uint32) uint32 {
	return atomic.AddUint32((*uint32)(unsafe.Pointer(&b[0])), delta)
}
