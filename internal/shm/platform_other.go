//go:build !linux

package shm

// Path is not available without /dev/shm.
func Path(name string) (string, error) {
	if _, err := CleanName(name); err != nil {
		return "", err
	}
	return "", ErrUnsupportedPlatform
}

// OpenSegment is not implemented on this platform.
func OpenSegment(opts OpenOptions) (*Segment, error) {
	return nil, ErrUnsupportedPlatform
}

// Map is not implemented on this platform.
func (s *Segment) Map() (*MappedRegion, error) {
	return nil, ErrUnsupportedPlatform
}

// Close is a no-op on this platform.
func (s *Segment) Close() error {
	return nil
}

// UnmapRegion is a no-op on this platform.
func UnmapRegion(region *MappedRegion) error {
	return nil
}

// Inode is not implemented on this platform.
func Inode(name string) (uint64, error) {
	return 0, ErrUnsupportedPlatform
}

// Unlink is not implemented on this platform.
func Unlink(name string) error {
	return ErrUnsupportedPlatform
}
