//go:build windows

package resilience

import "golang.org/x/sys/windows"

// isProcessAlive opens pid with the minimum access right that proves it exists.
func isProcessAlive(pid int) bool {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	_ = windows.CloseHandle(handle)
	return true
}
