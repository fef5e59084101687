//go:build windows

package volume

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// requireElevation verifies the process token carries administrative
// elevation, which all change journal control operations demand.
func requireElevation() error {
	if !windows.GetCurrentProcessToken().IsElevated() {
		return fmt.Errorf("process token not elevated: %w", ErrNotElevated)
	}

	return nil
}
