package action

import (
	"sync"
	"time"
)

// ActionType defines the type of action to take against a peer.
type ActionType string

const (
	ActionNone     ActionType = "NONE"
	ActionSuppress ActionType = "SUPPRESS"
)

// peerRule represents a temporary rule with an expiration time.
type peerRule struct {
	Action    ActionType
	ExpiresAt time.Time
}

// PeerRuleEngine holds short-lived per-peer rules, such as the send cooldown
// after a failed delivery.
type PeerRuleEngine struct {
	mu           sync.RWMutex
	rules        map[string]peerRule
	stopOnce     sync.Once
	stopCleanup  chan struct{}
	cleanupTimer *time.Ticker
}

// NewPeerRuleEngine creates a PeerRuleEngine and starts the cleanup routine.
func NewPeerRuleEngine(cleanupInterval time.Duration) *PeerRuleEngine {
	e := &PeerRuleEngine{
		rules:        make(map[string]peerRule),
		stopCleanup:  make(chan struct{}),
		cleanupTimer: time.NewTicker(cleanupInterval),
	}
	go e.runCleanup()
	return e
}

// Stop stops the background cleanup routine.
func (e *PeerRuleEngine) Stop() {
	e.stopOnce.Do(func() {
		e.cleanupTimer.Stop()
		close(e.stopCleanup)
	})
}

// AddPeerRule adds or replaces the rule for a peer.
func (e *PeerRuleEngine) AddPeerRule(peer string, action ActionType, ttl time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules[peer] = peerRule{
		Action:    action,
		ExpiresAt: time.Now().Add(ttl),
	}
}

func (e *PeerRuleEngine) RemovePeerRule(peer string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.rules, peer)
}

// Check returns the live action for peer.
func (e *PeerRuleEngine) Check(peer string) ActionType {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if rule, ok := e.rules[peer]; ok && rule.ExpiresAt.After(time.Now()) {
		return rule.Action
	}
	return ActionNone
}

func (e *PeerRuleEngine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

// runCleanup periodically removes expired rules.
func (e *PeerRuleEngine) runCleanup() {
	for {
		select {
		case <-e.stopCleanup:
			return
		case <-e.cleanupTimer.C:
			e.cleanup()
		}
	}
}

func (e *PeerRuleEngine) cleanup() {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	for k, v := range e.rules {
		if !v.ExpiresAt.After(now) {
			delete(e.rules, k)
		}
	}
}
