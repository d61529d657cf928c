//go:build linux

package shm

import (
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
)

// canCreateOnDevShm reports whether size bytes fit on /dev/shm. Paths outside
// /dev/shm are always accepted, as is a filesystem whose usage cannot be read.
func canCreateOnDevShm(size uint64, path string) bool {
	if !strings.HasPrefix(path, DevShmDir+"/") {
		return true
	}
	stat, err := disk.Usage(DevShmDir)
	if err != nil {
		return true
	}
	return stat.Free >= size
}
