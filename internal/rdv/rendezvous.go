package rdv

import (
	"context"
	"fmt"
	"time"
)

// Ad hoc peers have no rendezvous role. The calls below exist so callers
// written against a rendezvous-capable service fail fast instead of silently
// doing nothing.

func (e *Engine) ConnectToRendezvous(_ context.Context, address string) error {
	return fmt.Errorf("%w: connect to rendezvous %s", ErrUnsupportedMode, address)
}

func (e *Engine) DisconnectFromRendezvous(peerID string) error {
	return fmt.Errorf("%w: disconnect from rendezvous %s", ErrUnsupportedMode, peerID)
}

func (e *Engine) ChallengeRendezvous(peerID string, _ time.Duration) error {
	return fmt.Errorf("%w: challenge rendezvous %s", ErrUnsupportedMode, peerID)
}

func (e *Engine) IsRendezvous() bool { return false }

func (e *Engine) ConnectedRendezvous() []string { return []string{} }
