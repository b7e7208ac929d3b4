//go:build !windows

package resilience

import "syscall"

// isProcessAlive sends signal 0 to pid. EPERM means the process exists but
// belongs to another user.
func isProcessAlive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}
