//go:build !(darwin || dragonfly || freebsd || linux || netbsd || openbsd || windows)

package lockedfile

import (
	"errors"
	"os"
)

func lockFile(f *os.File, block bool) error {
	return errors.ErrUnsupported
}

func unlockFile(f *os.File) error {
	return errors.ErrUnsupported
}

func isBusy(err error) bool {
	return false
}
