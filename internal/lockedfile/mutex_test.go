//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd || windows

package lockedfile

import (
	"path/filepath"
	"testing"
	"time"
)

func TestMutexExcludes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", ".lock")
	mu := MutexAt(path)

	unlock, err := mu.Lock()
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	// flock locks belong to the open file description, so a second Mutex on
	// the same path contends even within one process.
	other := MutexAt(path)
	if u, ok, err := other.TryLock(); err != nil || ok {
		if ok {
			u()
		}
		t.Fatalf("TryLock() on held mutex = %v, %v, want false, nil", ok, err)
	}

	done := make(chan struct{})
	go func() {
		u, err := other.Lock()
		if err != nil {
			t.Errorf("Lock() error = %v", err)
			close(done)
			return
		}
		u()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Lock() returned while the mutex was held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Lock() did not return after unlock")
	}
}

func TestMutexAtEmptyPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MutexAt(\"\") did not panic")
		}
	}()
	MutexAt("")
}
