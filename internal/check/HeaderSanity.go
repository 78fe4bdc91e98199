package check

import (
	"net/http"

	"adhoc_rdv/internal/action"
	"adhoc_rdv/internal/config"
	"adhoc_rdv/internal/dataType"
	"adhoc_rdv/internal/rdv"

	"github.com/google/uuid"
)

// HeaderSanity decodes the body and checks the propagation header. The
// decoded message is stored on req for the handler.
func HeaderSanity(req *dataType.InboundRequest, _ *config.MainConfig, decision *action.Decision, _ *dataType.SharedMemory) {
	if req.Message == nil {
		msg, err := dataType.DecodeMessage(req.Body)
		if err != nil {
			decision.Refuse(http.StatusBadRequest, "undecodable message")
			return
		}
		req.Message = msg
	}
	hdr := req.Message.Header
	if hdr == nil {
		decision.Refuse(http.StatusBadRequest, "not a propagated message")
		return
	}
	if _, err := uuid.Parse(hdr.MessageID); err != nil {
		decision.Refuse(http.StatusBadRequest, "malformed message id")
		return
	}
	if err := rdv.ValidateHeader(hdr); err != nil {
		decision.Refuse(http.StatusBadRequest, err.Error())
		return
	}
	decision.Set(action.Continue)
}
