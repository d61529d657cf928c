package shm

import (
	"fmt"

	internalshm "github.com/srediag/detection-shm/internal/shm"
)

var (
	ErrInvalidName         = internalshm.ErrInvalidName
	ErrInsufficientSpace   = internalshm.ErrInsufficientSpace
	ErrUnsupportedPlatform = internalshm.ErrUnsupportedPlatform
)

// ResourceError reports that the named segment could not be created, opened or sized.
type ResourceError struct {
	Name string
	Op   string
	Err  error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("shm %s %s: %v", e.Op, e.Name, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// MappingError reports that the segment could not be mapped into the address space.
type MappingError struct {
	Name string
	Err  error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("shm map %s: %v", e.Name, e.Err)
}

func (e *MappingError) Unwrap() error { return e.Err }
