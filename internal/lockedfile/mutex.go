// Package lockedfile provides inter-process mutual exclusion backed by
// advisory locks on files.
package lockedfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// A Mutex provides mutual exclusion within and across processes by locking
// a well-known file. Such a file generally guards some other part of the
// filesystem: for example, a Mutex file in an install directory might guard
// the build that populates it.
//
// The zero Mutex is not valid; use MutexAt.
type Mutex struct {
	path string
}

// MutexAt returns a new Mutex with the given path. The parent directory is
// created on Lock if it does not exist.
func MutexAt(path string) *Mutex {
	if path == "" {
		panic("lockedfile.MutexAt: path must be non-empty")
	}
	return &Mutex{path: path}
}

func (mu *Mutex) String() string {
	return fmt.Sprintf("lockedfile.Mutex(%s)", mu.path)
}

// Lock attempts to lock the Mutex, blocking until it is available.
// If successful, Lock returns a non-nil unlock function.
func (mu *Mutex) Lock() (unlock func(), err error) {
	f, err := mu.open()
	if err != nil {
		return nil, err
	}
	if err := lockFile(f, true); err != nil {
		f.Close()
		return nil, fmt.Errorf("lock %s: %w", mu.path, err)
	}
	return func() { release(f) }, nil
}

// TryLock locks the Mutex if it is free. It reports false without blocking
// if another holder owns the lock.
func (mu *Mutex) TryLock() (unlock func(), ok bool, err error) {
	f, err := mu.open()
	if err != nil {
		return nil, false, err
	}
	if err := lockFile(f, false); err != nil {
		f.Close()
		if isBusy(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("lock %s: %w", mu.path, err)
	}
	return func() { release(f) }, true, nil
}

func (mu *Mutex) open() (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(mu.path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(mu.path, os.O_RDWR|os.O_CREATE, 0o666)
}

func release(f *os.File) {
	_ = unlockFile(f)
	f.Close()
}
