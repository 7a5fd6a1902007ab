package sync

import "runtime"

// Fraction of the memory limit at which a batch stops mid-page.
const memoryGuardRatio = 0.85

// memoryGuard returns a check reporting whether heap usage has crossed the
// guard ratio of the configured limit. A zero limit disables the guard.
func memoryGuard(limitMB int) func() bool {
	if limitMB <= 0 {
		return func() bool { return false }
	}
	limit := float64(limitMB) * 1024 * 1024
	return func() bool {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		return float64(ms.HeapAlloc) >= memoryGuardRatio*limit
	}
}
