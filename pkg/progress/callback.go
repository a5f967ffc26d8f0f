// Package progress provides progress reporting utilities for long-running
// sweeps and fits.
//
// Grid simulations can run for tens of seconds; callers that want feedback
// register a Callback and receive at most one invocation per completed unit of
// work (one grid row, one scan value). Callbacks must be cheap: they run on
// the simulation goroutine.
package progress

// Callback is a function that reports progress during long operations.
// Parameters:
//   - current: Number of units completed
//   - total: Total number of units
//   - message: Human-readable description of the current phase
//
// A nil Callback is valid and will be safely ignored by the Call() helper.
type Callback func(current, total int, message string)

// Call safely invokes the callback if non-nil.
// This allows callers to pass progress updates without checking for nil.
func Call(cb Callback, current, total int, message string) {
	if cb != nil {
		cb(current, total, message)
	}
}

// Update represents a detailed progress update with phase information.
// Used for rich progress reporting by the honeycomb simulator and scans.
type Update struct {
	Phase   string         // Phase identifier (e.g., "grid_rows", "scan_values")
	Current int            // Current progress count within the phase
	Total   int            // Total units to process in the phase
	Message string         // Human-readable progress message
	Details map[string]any // Arbitrary metrics (e.g., rows_per_second, run_id)
}

// DetailedCallback is a function that receives detailed progress updates.
// A nil DetailedCallback is valid and will be safely ignored by CallDetailed().
type DetailedCallback func(update Update)

// CallDetailed safely invokes the detailed callback if non-nil.
func CallDetailed(cb DetailedCallback, update Update) {
	if cb != nil {
		cb(update)
	}
}
