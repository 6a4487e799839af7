package telesync

import (
	"errors"
	"testing"
	"time"
)

func TestResolveWindow(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		spec     WindowSpec
		now      time.Time
		expected time.Duration
	}{
		{
			name:     "24 hours",
			spec:     Window24h,
			now:      now,
			expected: 24 * time.Hour,
		},
		{
			name:     "7 days",
			spec:     Window7d,
			now:      now,
			expected: 7 * 24 * time.Hour,
		},
		{
			name:     "30 days",
			spec:     Window30d,
			now:      now,
			expected: 30 * 24 * time.Hour,
		},
		{
			name: "24h across a DST transition",
			// 2025-03-30 02:30 CET is shortly after the European
			// spring-forward; duration arithmetic must ignore it.
			spec:     Window24h,
			now:      time.Date(2025, 3, 30, 2, 30, 0, 0, time.FixedZone("CEST", 2*3600)),
			expected: 24 * time.Hour,
		},
		{
			name:     "7d ending at midnight",
			spec:     Window7d,
			now:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			expected: 7 * 24 * time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			window, err := ResolveWindow(tt.spec, tt.now)
			if err != nil {
				t.Fatalf("ResolveWindow(%q) returned error: %v", tt.spec, err)
			}

			if !window.To.Equal(tt.now) {
				t.Errorf("To = %v, want %v", window.To, tt.now)
			}
			if got := window.To.Sub(window.From); got != tt.expected {
				t.Errorf("window span = %v, want %v", got, tt.expected)
			}
			if window.From.After(window.To) {
				t.Errorf("From %v is after To %v", window.From, window.To)
			}
		})
	}
}

func TestResolveWindowUnknownSpec(t *testing.T) {
	for _, spec := range []WindowSpec{"", "12h", "1y", "24H"} {
		_, err := ResolveWindow(spec, time.Now())
		if !errors.Is(err, ErrUnknownWindow) {
			t.Errorf("ResolveWindow(%q) error = %v, want ErrUnknownWindow", spec, err)
		}
	}
}
