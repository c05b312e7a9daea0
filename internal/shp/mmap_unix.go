//go:build unix

package shp

import (
	"os"

	"golang.org/x/sys/unix"
)

func mapFile(f *os.File, size int) ([]byte, func([]byte) error, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, err
	}
	// Record access is random once the index narrows the candidates.
	_ = unix.Madvise(data, unix.MADV_RANDOM)
	return data, unix.Munmap, nil
}
