package check

import (
	"fmt"
	"net/http"
	"time"

	"adhoc_rdv/internal/action"
	"adhoc_rdv/internal/config"
	"adhoc_rdv/internal/dataType"
)

// PeerFlood counts every request against the sender and refuses once any
// configured window is over its limit.
func PeerFlood(req *dataType.InboundRequest, cfg *config.MainConfig, decision *action.Decision, sharedMem *dataType.SharedMemory) {
	if sharedMem == nil || sharedMem.FloodCounter == nil || len(cfg.RateLimits) == 0 {
		decision.Set(action.Continue)
		return
	}
	key := req.FromPeer
	if key == "" {
		key = req.RemoteIP
	}

	windows := make([]time.Duration, len(cfg.RateLimits))
	for i, rl := range cfg.RateLimits {
		windows[i] = rl.Window
	}
	counts := sharedMem.FloodCounter.Add(key, 1, windows...)
	for i, rl := range cfg.RateLimits {
		if counts[i] > rl.Limit {
			decision.Refuse(http.StatusTooManyRequests, fmt.Sprintf("rate limit %d/%s exceeded", rl.Limit, rl.Window))
			return
		}
	}
	decision.Set(action.Continue)
}
