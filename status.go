package telesync

import "time"

// Connectivity classifies a device's connection state from its last-seen
// timestamp.
type Connectivity int

const (
	ConnUnknown Connectivity = iota
	ConnOnline
	ConnOffline
)

// String returns a human-readable name for the connectivity state.
func (c Connectivity) String() string {
	switch c {
	case ConnOnline:
		return "online"
	case ConnOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// ClassifyConnectivity classifies a device as online, offline or unknown.
// A device is online when it was seen strictly less than threshold ago;
// one seen exactly threshold ago is offline. A nil lastSeen is unknown.
func ClassifyConnectivity(lastSeen *time.Time, now time.Time, threshold time.Duration) Connectivity {
	if lastSeen == nil {
		return ConnUnknown
	}
	if now.Sub(*lastSeen) < threshold {
		return ConnOnline
	}
	return ConnOffline
}

// GoodQuality reports whether a reading's quality score meets the
// threshold. A reading without a score never qualifies.
func GoodQuality(score *float64, threshold float64) bool {
	return score != nil && *score >= threshold
}

// FleetSummary aggregates connection and status counts over a device list.
type FleetSummary struct {
	Total       int
	Online      int
	Offline     int // includes devices that were never seen
	Maintenance int
}

// Summarize computes fleet-level counts from a device list. Devices
// without a last-seen timestamp count as offline, matching how the
// dashboard reports them.
func Summarize(devices []Device, now time.Time, threshold time.Duration) FleetSummary {
	s := FleetSummary{Total: len(devices)}

	for _, d := range devices {
		if ClassifyConnectivity(d.LastSeenAt, now, threshold) == ConnOnline {
			s.Online++
		} else {
			s.Offline++
		}
		if d.Status == "maintenance" {
			s.Maintenance++
		}
	}

	return s
}
