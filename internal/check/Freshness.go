package check

import (
	"time"

	"adhoc_rdv/internal/action"
	"adhoc_rdv/internal/config"
	"adhoc_rdv/internal/dataType"
)

// Freshness discards messages older than max_message_age or dated further
// ahead than max_clock_skew. They are acknowledged so the sender does not
// retry them.
func Freshness(req *dataType.InboundRequest, cfg *config.MainConfig, decision *action.Decision, sharedMem *dataType.SharedMemory) {
	if req.Message == nil || req.Message.Header == nil {
		decision.Set(action.Continue)
		return
	}
	hdr := req.Message.Header
	now := clockOf(sharedMem).Now()
	ts := time.Unix(hdr.Timestamp, 0)

	if age := cfg.Inbound.MaxMessageAge; age > 0 && now.Sub(ts) > age {
		decision.Drop("stale message")
		return
	}
	if skew := cfg.Inbound.MaxClockSkew; skew > 0 && ts.Sub(now) > skew {
		decision.Drop("message from the future")
		return
	}
	decision.Set(action.Continue)
}
