package dataType

import "time"

const AdhocRdvVersion = "0.3.0"

// Clock is the time source for cache and freshness bookkeeping.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// InboundRequest is one propagated message as received from a neighbor,
// before and after decoding.
type InboundRequest struct {
	RemoteIP  string
	FromPeer  string
	Signature string
	Body      []byte
	Message   *Message
}

// RateLimit allows Limit events per Window.
type RateLimit struct {
	Limit  int64
	Window time.Duration
}

// SharedMemory is the state shared by the inbound checks.
type SharedMemory struct {
	Neighbors    NeighborTable
	AllowedNets  *CIDRSet
	FloodCounter *WindowCounter
	Clock        Clock
}
