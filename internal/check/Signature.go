package check

import (
	"net/http"

	"adhoc_rdv/internal/action"
	"adhoc_rdv/internal/config"
	"adhoc_rdv/internal/dataType"
	"adhoc_rdv/internal/utils"
)

// Signature verifies the HMAC-SHA512 of the body when a global secret is set.
func Signature(req *dataType.InboundRequest, cfg *config.MainConfig, decision *action.Decision, _ *dataType.SharedMemory) {
	if cfg.GlobalSecret == "" {
		decision.Set(action.Continue)
		return
	}
	if err := utils.VerifySignature(cfg.GlobalSecret, req.Body, req.Signature); err != nil {
		decision.Refuse(http.StatusForbidden, err.Error())
		return
	}
	decision.Set(action.Continue)
}
