// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral API for pinning a loop worker's OS thread to a CPU.
// Platform-specific implementations are guarded by build tags.

package affinity

// SetAffinity pins the calling OS thread to cpuID. The caller must hold
// runtime.LockOSThread for the pin to stay with its goroutine.
func SetAffinity(cpuID int) error {
	return setAffinityPlatform(cpuID)
}
