package rdv

import (
	"fmt"

	"adhoc_rdv/internal/dataType"

	"go.uber.org/zap"
)

type Outcome int

const (
	OutcomeDuplicate Outcome = iota
	OutcomeDelivered
	OutcomeForwarded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeDelivered:
		return "delivered"
	case OutcomeForwarded:
		return "forwarded"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Listener consumes messages addressed to a local service. It runs on the
// receiving goroutine and must not block.
type Listener func(msg *dataType.Message)

func listenerKey(serviceName, serviceParam string) string {
	return serviceName + "\x00" + serviceParam
}

func (e *Engine) AddListener(serviceName, serviceParam string, l Listener) {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()
	e.listeners[listenerKey(serviceName, serviceParam)] = l
}

func (e *Engine) RemoveListener(serviceName, serviceParam string) {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()
	delete(e.listeners, listenerKey(serviceName, serviceParam))
}

// SetFallbackListener receives messages no service listener claimed.
func (e *Engine) SetFallbackListener(l Listener) {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()
	e.fallback = l
}

func (e *Engine) deliver(msg *dataType.Message) {
	hdr := msg.Header
	e.listenersMu.RLock()
	l, ok := e.listeners[listenerKey(hdr.ServiceName, hdr.ServiceParam)]
	if !ok {
		l = e.fallback
	}
	e.listenersMu.RUnlock()

	if l == nil {
		e.logger.Debug("no listener for message",
			zap.String("id", hdr.MessageID),
			zap.String("service", hdr.ServiceName),
			zap.String("param", hdr.ServiceParam))
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("listener panic", zap.String("service", hdr.ServiceName), zap.Any("panic", r))
		}
	}()
	l(msg)
}

// Receive handles a message that arrived from fromPeer: it claims the id,
// delivers locally and floods on with the carried budget capped by MaxTTL.
// fromPeer is never sent the message back.
func (e *Engine) Receive(msg *dataType.Message, fromPeer string) (Outcome, error) {
	if msg == nil || msg.Header == nil {
		return OutcomeDuplicate, fmt.Errorf("%w: no propagation header", ErrMalformedMessage)
	}
	hdr := msg.Header
	if err := ValidateHeader(hdr); err != nil {
		return OutcomeDuplicate, err
	}
	if e.isClosed() {
		return OutcomeDuplicate, ErrEngineClosed
	}
	e.stats.received.Add(1)

	if !e.seen.MarkSeen(hdr.MessageID) {
		e.dropDuplicate(hdr.MessageID)
		return OutcomeDuplicate, nil
	}
	e.deliver(msg.Clone())

	effective := e.effectiveTTL(hdr.TTL, nil)
	if effective <= 0 {
		e.dropTTL(hdr, hdr.TTL)
		return OutcomeDelivered, nil
	}
	if n := e.fanOut(msg, hdr, "", "", effective, ToAllNeighbors(), fromPeer); n > 0 {
		e.stats.forwarded.Add(1)
		return OutcomeForwarded, nil
	}
	return OutcomeDelivered, nil
}
