package check

import (
	"net"
	"net/http"

	"adhoc_rdv/internal/action"
	"adhoc_rdv/internal/config"
	"adhoc_rdv/internal/dataType"
)

// PeerAddrAllow only lets senders inside allow_cidrs through. No list means
// any address.
func PeerAddrAllow(req *dataType.InboundRequest, cfg *config.MainConfig, decision *action.Decision, sharedMem *dataType.SharedMemory) {
	if sharedMem == nil || sharedMem.AllowedNets == nil || sharedMem.AllowedNets.Empty() {
		decision.Set(action.Continue)
		return
	}
	ip := net.ParseIP(req.RemoteIP)
	if ip == nil || !sharedMem.AllowedNets.Contains(ip) {
		decision.Refuse(http.StatusForbidden, "address not allowed")
		return
	}
	decision.Set(action.Continue)
}
