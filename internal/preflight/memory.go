package preflight

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// MinMemoryBytes is the minimum recommended available memory (1GB).
const MinMemoryBytes = 1 * 1024 * 1024 * 1024

// CheckMemory checks available system memory. Advisory only: ingest of
// a large corpus slows down under memory pressure but still completes.
func (c *Checker) CheckMemory() CheckResult {
	result := CheckResult{
		Name:     "memory",
		Required: false,
	}

	available, ok := availableMemory()
	if !ok {
		result.Status = StatusPass
		result.Message = "not checked on this platform"
		return result
	}

	if available < MinMemoryBytes {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s available (recommended: 1 GB)", formatBytes(available))
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s available (recommended: 1 GB)", formatBytes(available))
	return result
}

// availableMemory reads MemAvailable from /proc/meminfo. Reports false
// on platforms without it.
func availableMemory() (uint64, bool) {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0, false
	}

	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "MemAvailable:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			break
		}
		return kb * 1024, true
	}
	return 0, false
}
