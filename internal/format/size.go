// Package format renders byte counts and progress bars for status messages.
package format

import (
	"fmt"
	"strings"
)

// BarWidth is the cell count of the ASCII progress bar.
const BarWidth = 20

// Size converts a byte count to a human-readable string using 1024-based units.
func Size(size int64) string {
	value := float64(size)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if value < 1024.0 {
			return fmt.Sprintf("%.1f %s", value, unit)
		}
		value /= 1024.0
	}
	return fmt.Sprintf("%.1f TB", value)
}

// Bar renders a fixed-width block bar for the given percentage. One cell
// fills per 5 percentage points.
func Bar(percent float64) string {
	filled := int(percent / 5)
	if filled < 0 {
		filled = 0
	}
	if filled > BarWidth {
		filled = BarWidth
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", BarWidth-filled)
}
