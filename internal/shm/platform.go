// Package shm contains platform-specific helpers for named shared memory segments.
package shm

import (
	"errors"
	"fmt"
	"strings"
)

// DevShmDir is where POSIX shared memory objects live on Linux.
const DevShmDir = "/dev/shm"

const maxNameLen = 255

var (
	// ErrInvalidName is returned for segment names that cannot be used with shm_open.
	ErrInvalidName = errors.New("invalid shared memory name")
	// ErrInsufficientSpace is returned when the shm filesystem cannot hold the segment.
	ErrInsufficientSpace = errors.New("share memory had not left space")
	// ErrUnsupportedPlatform is returned on platforms without POSIX shared memory.
	ErrUnsupportedPlatform = errors.New("shared memory not supported on this platform")
)

// Segment is an open handle to a named shared memory object.
type Segment struct {
	Name    string
	Size    int
	Created bool
	// Ino identifies the object behind Name at open time.
	Ino uint64
	fd  int
}

// MappedRegion represents a memory-mapped shared region.
type MappedRegion struct {
	Addr []byte
	Name string
	Ino  uint64
}

// OpenOptions defines options for opening a segment.
type OpenOptions struct {
	Name string
	Size int
	Perm uint32
	// Create allows the segment to be created and resized. Without it the
	// segment must already exist and be at least Size bytes.
	Create bool
}

// CleanName validates a segment name and returns it without the leading slash.
func CleanName(name string) (string, error) {
	clean := strings.TrimPrefix(name, "/")
	switch {
	case clean == "":
		return "", fmt.Errorf("%w: empty", ErrInvalidName)
	case len(clean) > maxNameLen:
		return "", fmt.Errorf("%w: %q longer than %d bytes", ErrInvalidName, name, maxNameLen)
	case strings.Contains(clean, "/"):
		return "", fmt.Errorf("%w: %q contains '/'", ErrInvalidName, name)
	case clean == "." || clean == "..":
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return clean, nil
}

// Zero overwrites the whole mapping with zero bytes.
func Zero(b []byte) {
	clear(b)
}
