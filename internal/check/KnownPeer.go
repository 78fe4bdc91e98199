package check

import (
	"net/http"

	"adhoc_rdv/internal/action"
	"adhoc_rdv/internal/config"
	"adhoc_rdv/internal/dataType"
)

func KnownPeer(req *dataType.InboundRequest, cfg *config.MainConfig, decision *action.Decision, sharedMem *dataType.SharedMemory) {
	if !cfg.Inbound.RequireKnownPeer {
		decision.Set(action.Continue)
		return
	}
	if req.FromPeer == "" {
		decision.Refuse(http.StatusBadRequest, "missing sender")
		return
	}
	if sharedMem == nil || sharedMem.Neighbors == nil {
		decision.Refuse(http.StatusForbidden, "unknown peer")
		return
	}
	if _, ok := dataType.FindNeighbor(sharedMem.Neighbors, req.FromPeer); !ok {
		decision.Refuse(http.StatusForbidden, "unknown peer")
		return
	}
	decision.Set(action.Continue)
}
