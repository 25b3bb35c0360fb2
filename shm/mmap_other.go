//go:build !linux

package shm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// shmDir falls back to a temp-rooted directory on non-Linux POSIX systems,
// which lack a standardized tmpfs mount analogous to Linux's /dev/shm.
func shmDir() string {
	return filepath.Join(os.TempDir(), "appose-shm")
}

func shmPath(name string) string {
	return filepath.Join(shmDir(), name)
}

func createNamed(name string, rsize int64) ([]byte, int64, error) {
	if err := os.MkdirAll(shmDir(), 0o700); err != nil {
		return nil, 0, fmt.Errorf("mkdir %s: %w", shmDir(), err)
	}
	path := shmPath(name)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	size := pageAlign(rsize)
	if err := f.Truncate(size); err != nil {
		os.Remove(path)
		return nil, 0, fmt.Errorf("truncate %s: %w", path, err)
	}

	buf, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		os.Remove(path)
		return nil, 0, fmt.Errorf("mmap %s: %w", path, err)
	}
	return buf, size, nil
}

func attachNamed(name string, rsize int64) ([]byte, int64, error) {
	path := shmPath(name)
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, fmt.Errorf("%s: %w", path, errNotFound)
		}
		return nil, 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stat %s: %w", path, err)
	}
	size := st.Size()
	if size == 0 {
		size = pageAlign(rsize)
	}

	buf, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, 0, fmt.Errorf("mmap %s: %w", path, err)
	}
	return buf, size, nil
}

func munmap(buf []byte) error {
	return unix.Munmap(buf)
}

func unlinkNamed(name string) error {
	err := os.Remove(shmPath(name))
	if err != nil && errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func pageAlign(n int64) int64 {
	pageSize := int64(unix.Getpagesize())
	if n <= 0 {
		return pageSize
	}
	if rem := n % pageSize; rem != 0 {
		n += pageSize - rem
	}
	return n
}
