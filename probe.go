package vidstab

import "fmt"

// Probe is a liveness check. It reports whether the stabilizer is usable
// without opening files, starting goroutines or allocating frame buffers.
func Probe() error {
	if err := DefaultOptions().Validate(); err != nil {
		return fmt.Errorf("default options rejected: %w", err)
	}
	return nil
}
