//go:build unix

package pidfile

import (
	"fmt"
	"os"
	"syscall"
)

// lockFile takes an exclusive flock on the registry, blocking until it is free
func lockFile(file *os.File) error {
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("failed to lock registry: %w", err)
	}
	return nil
}

func unlockFile(file *os.File) error {
	return syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
}
