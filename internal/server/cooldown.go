package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"adhoc_rdv/internal/action"
	"adhoc_rdv/internal/dataType"
	"adhoc_rdv/internal/rdv"
)

var ErrPeerCoolingDown = errors.New("peer cooling down")

// Cooldown suppresses sends to a peer for a while after a failed send to it,
// so an unreachable neighbor does not hold a send slot for every message.
type Cooldown struct {
	next   rdv.Transport
	rules  *action.PeerRuleEngine
	period time.Duration
}

func NewCooldown(next rdv.Transport, rules *action.PeerRuleEngine, period time.Duration) *Cooldown {
	return &Cooldown{next: next, rules: rules, period: period}
}

func (c *Cooldown) Send(ctx context.Context, peerID string, msg *dataType.Message) error {
	if c.period <= 0 || c.rules == nil {
		return c.next.Send(ctx, peerID, msg)
	}
	if c.rules.Check(peerID) == action.ActionSuppress {
		return fmt.Errorf("%w: %s", ErrPeerCoolingDown, peerID)
	}
	err := c.next.Send(ctx, peerID, msg)
	// shutdown cancellations say nothing about the peer
	if err != nil && !errors.Is(err, context.Canceled) {
		c.rules.AddPeerRule(peerID, action.ActionSuppress, c.period)
	}
	return err
}
