package check

import (
	"adhoc_rdv/internal/action"
	"adhoc_rdv/internal/config"
	"adhoc_rdv/internal/dataType"
)

type CheckFunc func(*dataType.InboundRequest, *config.MainConfig, *action.Decision, *dataType.SharedMemory)

// Pipeline is the inbound check order; the first decisive check wins.
var Pipeline = []CheckFunc{
	PeerAddrAllow,
	Signature,
	KnownPeer,
	PeerFlood,
	HeaderSanity,
	Freshness,
}

// Run checks one inbound propagation request. A request that passes every
// check is accepted; HeaderSanity leaves the decoded message on req.
func Run(req *dataType.InboundRequest, cfg *config.MainConfig, sharedMem *dataType.SharedMemory) *action.Decision {
	decision := action.NewDecision()
	for _, checkFunc := range Pipeline {
		checkFunc(req, cfg, decision, sharedMem)
		if decision.State == action.Done {
			return decision
		}
	}
	decision.Accept()
	return decision
}

func clockOf(sharedMem *dataType.SharedMemory) dataType.Clock {
	if sharedMem != nil && sharedMem.Clock != nil {
		return sharedMem.Clock
	}
	return dataType.SystemClock{}
}
