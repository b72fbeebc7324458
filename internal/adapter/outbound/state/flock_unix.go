//go:build !windows

package state

import "syscall"

// flockLock takes an exclusive advisory lock on the baseline lock file.
// Blocks until the lock is available.
func flockLock(fd uintptr) error {
	return syscall.Flock(int(fd), syscall.LOCK_EX)
}

// flockUnlock releases the advisory lock.
func flockUnlock(fd uintptr) error {
	return syscall.Flock(int(fd), syscall.LOCK_UN)
}
