package rdv

import "sync/atomic"

type counters struct {
	originated       atomic.Uint64
	received         atomic.Uint64
	forwarded        atomic.Uint64
	droppedTTL       atomic.Uint64
	droppedDuplicate atomic.Uint64
	sendFailed       atomic.Uint64
	handoffRejected  atomic.Uint64
	sent             atomic.Uint64
}

// Stats is a point-in-time copy of the engine counters.
type Stats struct {
	Originated       uint64 `json:"originated"`
	Received         uint64 `json:"received"`
	Forwarded        uint64 `json:"forwarded"`
	DroppedTTL       uint64 `json:"dropped_ttl"`
	DroppedDuplicate uint64 `json:"dropped_duplicate"`
	SendFailed       uint64 `json:"send_failed"`
	HandoffRejected  uint64 `json:"handoff_rejected"`
	Sent             uint64 `json:"sent"`
	SeenEntries      int    `json:"seen_entries"`
}

func (e *Engine) Stats() Stats {
	return Stats{
		Originated:       e.stats.originated.Load(),
		Received:         e.stats.received.Load(),
		Forwarded:        e.stats.forwarded.Load(),
		DroppedTTL:       e.stats.droppedTTL.Load(),
		DroppedDuplicate: e.stats.droppedDuplicate.Load(),
		SendFailed:       e.stats.sendFailed.Load(),
		HandoffRejected:  e.stats.handoffRejected.Load(),
		Sent:             e.stats.sent.Load(),
		SeenEntries:      e.seen.Len(),
	}
}
