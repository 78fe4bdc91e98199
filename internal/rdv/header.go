package rdv

import (
	"fmt"

	"adhoc_rdv/internal/dataType"
)

// Extract returns a copy of the propagation header, or nil when the message
// is not a propagated message.
func Extract(msg *dataType.Message) *dataType.PropagationHeader {
	if msg == nil || msg.Header == nil {
		return nil
	}
	return msg.Header.Clone()
}

// ValidateHeader checks the identity and the structural header invariants.
func ValidateHeader(h *dataType.PropagationHeader) error {
	if err := VerifyIdentity(h); err != nil {
		return err
	}
	if h.TTL < 0 {
		return fmt.Errorf("%w: negative ttl %d", ErrMalformedMessage, h.TTL)
	}
	seen := make(map[string]struct{}, len(h.Path))
	for _, p := range h.Path {
		if _, dup := seen[p]; dup {
			return fmt.Errorf("%w: peer %q repeated in path", ErrMalformedMessage, p)
		}
		seen[p] = struct{}{}
	}
	return nil
}

// effectiveTTL caps the requested budget by the configured ceiling and, for
// messages that already carry a header, by the budget left in that header.
func (e *Engine) effectiveTTL(requested int, h *dataType.PropagationHeader) int {
	ttl := requested
	if ttl > e.maxTTL {
		ttl = e.maxTTL
	}
	if h != nil && h.TTL < ttl {
		ttl = h.TTL
	}
	return ttl
}

// Update computes the header this peer would propagate, without side effects.
// It returns nil when the message should not be propagated: the budget is
// spent or the message id was already handled here. The TTL is not
// decremented; that happens per send in NextHop.
func (e *Engine) Update(h *dataType.PropagationHeader, serviceName, serviceParam string, requestedTTL int) *dataType.PropagationHeader {
	if h == nil {
		return nil
	}
	ttl := e.effectiveTTL(requestedTTL, h)
	if ttl <= 0 {
		return nil
	}
	if e.seen.Contains(h.MessageID) {
		return nil
	}
	out := h.Clone()
	out.ServiceName = serviceName
	out.ServiceParam = serviceParam
	out.TTL = ttl
	return out
}
