//go:build linux

package shm

import (
	"errors"
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Path returns the /dev/shm path backing a segment name.
func Path(name string) (string, error) {
	clean, err := CleanName(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(DevShmDir, clean), nil
}

// OpenSegment opens the named segment, creating it when absent if opts.Create is set.
// A created segment is sized to opts.Size and chmod'ed to opts.Perm.
func OpenSegment(opts OpenOptions) (*Segment, error) {
	if opts.Size <= 0 {
		return nil, fmt.Errorf("invalid segment size %d", opts.Size)
	}
	path, err := Path(opts.Name)
	if err != nil {
		return nil, err
	}
	if !opts.Create {
		return attachSegment(path, opts)
	}

	created := true
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL|unix.O_CLOEXEC, opts.Perm)
	if errors.Is(err, unix.EEXIST) {
		created = false
		fd, err = unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	} else if err == nil && !canCreateOnDevShm(uint64(opts.Size), path) {
		_ = unix.Close(fd)
		_ = unix.Unlink(path)
		return nil, fmt.Errorf("%w: path %s, size %d", ErrInsufficientSpace, path, opts.Size)
	}
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	if created {
		if err := unix.Fchmod(fd, opts.Perm); err != nil {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("fchmod: %w", err)
		}
	}
	if err := unix.Ftruncate(fd, int64(opts.Size)); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("ftruncate: %w", err)
	}
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("fstat: %w", err)
	}
	return &Segment{Name: opts.Name, Size: opts.Size, Created: created, Ino: st.Ino, fd: fd}, nil
}

func attachSegment(path string, opts OpenOptions) (*Segment, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("fstat: %w", err)
	}
	if st.Size < int64(opts.Size) {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("segment %s is %d bytes, want at least %d", path, st.Size, opts.Size)
	}
	return &Segment{Name: opts.Name, Size: opts.Size, Ino: st.Ino, fd: fd}, nil
}

// Map maps the segment read-write and shared. The descriptor is closed once
// mapped; the mapping keeps the object alive.
func (s *Segment) Map() (*MappedRegion, error) {
	addr, err := unix.Mmap(s.fd, 0, s.Size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	_ = s.Close()
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return &MappedRegion{Addr: addr, Name: s.Name, Ino: s.Ino}, nil
}

// Close releases the descriptor without touching the named object.
func (s *Segment) Close() error {
	if s.fd < 0 {
		return nil
	}
	fd := s.fd
	s.fd = -1
	if err := unix.Close(fd); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

// UnmapRegion unmaps the process-local view. The named object persists.
func UnmapRegion(region *MappedRegion) error {
	if region == nil || region.Addr == nil {
		return nil
	}
	if err := unix.Munmap(region.Addr); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	region.Addr = nil
	return nil
}

// Inode returns the inode currently behind name.
func Inode(name string) (uint64, error) {
	path, err := Path(name)
	if err != nil {
		return 0, err
	}
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, fmt.Errorf("stat: %w", err)
	}
	return st.Ino, nil
}

// Unlink removes the named object. Existing mappings stay valid until unmapped.
func Unlink(name string) error {
	path, err := Path(name)
	if err != nil {
		return err
	}
	if err := unix.Unlink(path); err != nil {
		return fmt.Errorf("unlink: %w", err)
	}
	return nil
}
