package gateway

import "sync/atomic"

// Stats holds the gateway's global observable counters (spec.md §6).
// All fields are updated with atomic operations so the stats API and
// the periodic flusher can read consistent snapshots without taking a
// lock on the hot path.
type Stats struct {
	PacketsReceived          atomic.Uint64
	BytesReceived            atomic.Uint64
	PacketsForwardedToRadio  atomic.Uint64
	PacketsForwardedToClient atomic.Uint64
	BytesForwardedToRadio    atomic.Uint64
	BytesForwardedToClient   atomic.Uint64
	Errors                   atomic.Uint64
	DroppedNoSession         atomic.Uint64
	DroppedNoRadio           atomic.Uint64
}

// StatsSnapshot is a point-in-time, JSON-friendly view of Stats.
type StatsSnapshot struct {
	PacketsReceived          uint64 `json:"packets_received"`
	BytesReceived            uint64 `json:"bytes_received"`
	PacketsForwardedToRadio  uint64 `json:"packets_forwarded_to_radio"`
	PacketsForwardedToClient uint64 `json:"packets_forwarded_to_client"`
	BytesForwardedToRadio    uint64 `json:"bytes_forwarded_to_radio"`
	BytesForwardedToClient   uint64 `json:"bytes_forwarded_to_client"`
	Errors                   uint64 `json:"errors"`
	DroppedNoSession         uint64 `json:"dropped_no_session"`
	DroppedNoRadio           uint64 `json:"dropped_no_radio"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		PacketsReceived:          s.PacketsReceived.Load(),
		BytesReceived:            s.BytesReceived.Load(),
		PacketsForwardedToRadio:  s.PacketsForwardedToRadio.Load(),
		PacketsForwardedToClient: s.PacketsForwardedToClient.Load(),
		BytesForwardedToRadio:    s.BytesForwardedToRadio.Load(),
		BytesForwardedToClient:   s.BytesForwardedToClient.Load(),
		Errors:                   s.Errors.Load(),
		DroppedNoSession:         s.DroppedNoSession.Load(),
		DroppedNoRadio:           s.DroppedNoRadio.Load(),
	}
}
