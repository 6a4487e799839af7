package telesync

import (
	"testing"
	"time"
)

func TestClassifyConnectivity(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	threshold := 10 * time.Minute

	seenAgo := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}

	tests := []struct {
		name     string
		lastSeen *time.Time
		expected Connectivity
	}{
		{
			name:     "never seen is unknown",
			lastSeen: nil,
			expected: ConnUnknown,
		},
		{
			name:     "seen just now is online",
			lastSeen: seenAgo(0),
			expected: ConnOnline,
		},
		{
			name:     "seen 9 minutes ago is online",
			lastSeen: seenAgo(9 * time.Minute),
			expected: ConnOnline,
		},
		{
			name:     "seen just under the threshold is online",
			lastSeen: seenAgo(10*time.Minute - time.Nanosecond),
			expected: ConnOnline,
		},
		{
			name:     "seen exactly at the threshold is offline",
			lastSeen: seenAgo(10 * time.Minute),
			expected: ConnOffline,
		},
		{
			name:     "seen an hour ago is offline",
			lastSeen: seenAgo(time.Hour),
			expected: ConnOffline,
		},
		{
			name:     "clock skew puts last seen in the future",
			lastSeen: seenAgo(-30 * time.Second),
			expected: ConnOnline,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyConnectivity(tt.lastSeen, now, threshold)
			if got != tt.expected {
				t.Errorf("ClassifyConnectivity() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGoodQuality(t *testing.T) {
	score := func(v float64) *float64 { return &v }

	tests := []struct {
		name     string
		score    *float64
		expected bool
	}{
		{name: "no score", score: nil, expected: false},
		{name: "below threshold", score: score(0.5), expected: false},
		{name: "exactly at threshold", score: score(0.7), expected: true},
		{name: "above threshold", score: score(0.95), expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GoodQuality(tt.score, 0.7); got != tt.expected {
				t.Errorf("GoodQuality() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-2 * time.Minute)
	old := now.Add(-2 * time.Hour)

	devices := []Device{
		{ID: 1, Status: "active", LastSeenAt: &recent},
		{ID: 2, Status: "active", LastSeenAt: &old},
		{ID: 3, Status: "maintenance", LastSeenAt: &recent},
		{ID: 4, Status: "error", LastSeenAt: nil},
	}

	s := Summarize(devices, now, 10*time.Minute)

	if s.Total != 4 {
		t.Errorf("Total = %d, want 4", s.Total)
	}
	if s.Online != 2 {
		t.Errorf("Online = %d, want 2", s.Online)
	}
	// Never-seen devices count as offline, like the dashboard shows them.
	if s.Offline != 2 {
		t.Errorf("Offline = %d, want 2", s.Offline)
	}
	if s.Maintenance != 1 {
		t.Errorf("Maintenance = %d, want 1", s.Maintenance)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil, time.Now(), 10*time.Minute)
	if s.Total != 0 || s.Online != 0 || s.Offline != 0 || s.Maintenance != 0 {
		t.Errorf("Summarize(nil) = %+v, want zero counts", s)
	}
}
