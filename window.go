package telesync

import (
	"fmt"
	"time"
)

// WindowSpec is a relative time-range specifier for telemetry queries.
type WindowSpec string

const (
	Window24h WindowSpec = "24h"
	Window7d  WindowSpec = "7d"
	Window30d WindowSpec = "30d"
)

// ResolveWindow converts a relative window specifier into an absolute
// [From, To] range ending at now. Both endpoints derive from the single
// now value passed in, so From never exceeds To. The arithmetic is plain
// duration subtraction, not calendar-day boundaries.
func ResolveWindow(spec WindowSpec, now time.Time) (TimeWindow, error) {
	var span time.Duration

	switch spec {
	case Window24h:
		span = 24 * time.Hour
	case Window7d:
		span = 7 * 24 * time.Hour
	case Window30d:
		span = 30 * 24 * time.Hour
	default:
		return TimeWindow{}, fmt.Errorf("%w: %q", ErrUnknownWindow, spec)
	}

	return TimeWindow{From: now.Add(-span), To: now}, nil
}
