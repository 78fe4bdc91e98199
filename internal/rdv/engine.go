package rdv

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"adhoc_rdv/internal/dataType"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultMaxTTL           = 2
	DefaultMaxInflightSends = 256
	DefaultSendTimeout      = 5 * time.Second
)

// Transport hands one message to one peer. Implementations must honour ctx.
type Transport interface {
	Send(ctx context.Context, peerID string, msg *dataType.Message) error
}

type Options struct {
	Self             string
	MaxTTL           int
	MaxInflightSends int
	SendTimeout      time.Duration
	Neighbors        dataType.NeighborTable
	Transport        Transport
	Seen             *dataType.SeenCache
	Logger           *zap.Logger
	Clock            dataType.Clock
}

// Engine decides whether, where and with what budget a message is forwarded.
// It is safe for concurrent use.
type Engine struct {
	self        string
	maxTTL      int
	sendTimeout time.Duration
	neighbors   dataType.NeighborTable
	transport   Transport
	seen        *dataType.SeenCache
	logger      *zap.Logger
	clock       dataType.Clock

	seq atomic.Uint64
	sem chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	idle     *sync.Cond
	inflight int
	closed   bool

	listenersMu sync.RWMutex
	listeners   map[string]Listener
	fallback    Listener

	stats counters
}

func NewEngine(opts Options) (*Engine, error) {
	if opts.Self == "" {
		return nil, errors.New("rdv: self peer id is required")
	}
	if opts.Transport == nil {
		return nil, errors.New("rdv: transport is required")
	}
	if opts.Neighbors == nil {
		return nil, errors.New("rdv: neighbor table is required")
	}
	if opts.MaxTTL < 0 {
		return nil, fmt.Errorf("rdv: negative max ttl %d", opts.MaxTTL)
	}
	if opts.MaxTTL == 0 {
		opts.MaxTTL = DefaultMaxTTL
	}
	if opts.MaxInflightSends <= 0 {
		opts.MaxInflightSends = DefaultMaxInflightSends
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.Clock == nil {
		opts.Clock = dataType.SystemClock{}
	}
	if opts.Seen == nil {
		opts.Seen = dataType.NewSeenCache(dataType.SeenCacheConfig{Clock: opts.Clock})
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		self:        opts.Self,
		maxTTL:      opts.MaxTTL,
		sendTimeout: opts.SendTimeout,
		neighbors:   opts.Neighbors,
		transport:   opts.Transport,
		seen:        opts.Seen,
		logger:      opts.Logger.With(zap.String("peer", opts.Self)),
		clock:       opts.Clock,
		sem:         make(chan struct{}, opts.MaxInflightSends),
		ctx:         ctx,
		cancel:      cancel,
		listeners:   make(map[string]Listener),
	}
	e.idle = sync.NewCond(&e.mu)
	return e, nil
}

func (e *Engine) Self() string { return e.self }

func (e *Engine) MaxTTL() int { return e.maxTTL }

// Propagate sends msg to the peers selected by dest and returns how many
// sends were handed to the transport. A spent budget or an already handled
// message id returns 0 without error. Per-peer send failures never surface
// here.
func (e *Engine) Propagate(msg *dataType.Message, serviceName, serviceParam string, ttl int, dest Destination) (int, error) {
	if msg == nil {
		return 0, fmt.Errorf("%w: nil message", ErrMalformedMessage)
	}
	if err := dest.validate(); err != nil {
		return 0, err
	}
	hdr := msg.Header
	if hdr != nil {
		if err := ValidateHeader(hdr); err != nil {
			return 0, err
		}
	} else if serviceName == "" {
		return 0, fmt.Errorf("%w: service name required for a new message", ErrMalformedMessage)
	}

	effective := e.effectiveTTL(ttl, hdr)
	if effective <= 0 {
		e.dropTTL(hdr, ttl)
		return 0, nil
	}

	if e.isClosed() {
		return 0, ErrEngineClosed
	}
	originated := hdr == nil
	if originated {
		hdr = e.newHeader(serviceName, serviceParam, effective)
	}
	if !e.seen.MarkSeen(hdr.MessageID) {
		e.dropDuplicate(hdr.MessageID)
		return 0, nil
	}
	if originated {
		e.stats.originated.Add(1)
	}

	n := e.fanOut(msg, hdr, serviceName, serviceParam, effective, dest, "")
	if n == 0 && e.isClosed() {
		return 0, ErrEngineClosed
	}
	if !originated && n > 0 {
		e.stats.forwarded.Add(1)
	}
	return n, nil
}

// Repropagate continues an inbound message as an intermediate hop. The
// budget is the carried TTL capped by MaxTTL. It reports whether at least one
// send was handed off and never fails; failures read as a silent drop.
func (e *Engine) Repropagate(msg *dataType.Message, hdr *dataType.PropagationHeader, serviceName, serviceParam string) bool {
	if msg == nil || hdr == nil {
		e.logger.Debug("repropagate without header")
		return false
	}
	if err := ValidateHeader(hdr); err != nil {
		e.logger.Debug("repropagate rejected", zap.Error(err))
		return false
	}
	effective := e.effectiveTTL(hdr.TTL, nil)
	if effective <= 0 {
		e.dropTTL(hdr, hdr.TTL)
		return false
	}
	if e.isClosed() {
		return false
	}
	if !e.seen.MarkSeen(hdr.MessageID) {
		e.dropDuplicate(hdr.MessageID)
		return false
	}
	n := e.fanOut(msg, hdr, serviceName, serviceParam, effective, ToAllNeighbors(), "")
	if n > 0 {
		e.stats.forwarded.Add(1)
	}
	return n > 0
}

// Walk has no walker to follow in ad hoc mode and floods direct neighbors.
func (e *Engine) Walk(msg *dataType.Message, serviceName, serviceParam string, ttl int) (int, error) {
	return e.Propagate(msg, serviceName, serviceParam, ttl, ToNeighbors())
}

func (e *Engine) WalkTo(msg *dataType.Message, serviceName, serviceParam string, ttl int, peers ...string) (int, error) {
	return e.Propagate(msg, serviceName, serviceParam, ttl, ToPeers(peers...))
}

func (e *Engine) newHeader(serviceName, serviceParam string, ttl int) *dataType.PropagationHeader {
	h := &dataType.PropagationHeader{
		OriginPeer:   e.self,
		Seq:          e.seq.Add(1),
		Nonce:        uuid.NewString(),
		Timestamp:    e.clock.Now().Unix(),
		ServiceName:  serviceName,
		ServiceParam: serviceParam,
		TTL:          ttl,
		Path:         []string{e.self},
	}
	// origin, seq and nonce are all set above
	h.MessageID, _ = Identify(h)
	return h
}

func (e *Engine) resolveTargets(hdr *dataType.PropagationHeader, dest Destination, exclude string) []string {
	if dest.Mode == ExplicitPeerSet {
		out := make([]string, 0, len(dest.Targets))
		dup := make(map[string]struct{}, len(dest.Targets))
		for _, p := range dest.Targets {
			if p == "" {
				continue
			}
			if _, ok := dup[p]; ok {
				continue
			}
			dup[p] = struct{}{}
			out = append(out, p)
		}
		return out
	}

	snapshot := e.neighbors.CurrentNeighbors()
	out := make([]string, 0, len(snapshot))
	dup := make(map[string]struct{}, len(snapshot))
	for _, n := range snapshot {
		if n.ID == "" || n.ID == e.self || n.ID == exclude || hdr.InPath(n.ID) {
			continue
		}
		if dest.Mode == InGroupOnly && !n.SameGroup {
			continue
		}
		if _, ok := dup[n.ID]; ok {
			continue
		}
		dup[n.ID] = struct{}{}
		out = append(out, n.ID)
	}
	return out
}

func (e *Engine) fanOut(msg *dataType.Message, hdr *dataType.PropagationHeader, serviceName, serviceParam string, effective int, dest Destination, exclude string) int {
	targets := e.resolveTargets(hdr, dest, exclude)
	handed := 0
	for _, peer := range targets {
		out := msg.WithHeader(hdr.NextHop(e.self, serviceName, serviceParam, effective))
		if e.dispatch(peer, out) {
			handed++
		}
	}
	e.logger.Debug("propagated",
		zap.String("id", hdr.MessageID),
		zap.String("mode", dest.Mode.String()),
		zap.Int("ttl", effective),
		zap.Int("targets", len(targets)),
		zap.Int("handed_off", handed))
	return handed
}

func (e *Engine) dispatch(peer string, msg *dataType.Message) bool {
	select {
	case e.sem <- struct{}{}:
	default:
		e.stats.handoffRejected.Add(1)
		e.logger.Warn("send queue full, dropping", zap.String("target", peer), zap.String("id", msg.Header.MessageID))
		return false
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		<-e.sem
		return false
	}
	e.inflight++
	e.mu.Unlock()

	go e.send(peer, msg)
	return true
}

func (e *Engine) send(peer string, msg *dataType.Message) {
	defer e.sendDone()
	defer func() {
		if r := recover(); r != nil {
			e.stats.sendFailed.Add(1)
			e.logger.Error("transport panic", zap.String("target", peer), zap.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(e.ctx, e.sendTimeout)
	defer cancel()
	if err := e.transport.Send(ctx, peer, msg); err != nil {
		e.stats.sendFailed.Add(1)
		e.logger.Warn("propagation send failed",
			zap.String("target", peer),
			zap.String("id", msg.Header.MessageID),
			zap.Error(err))
		return
	}
	e.stats.sent.Add(1)
}

func (e *Engine) sendDone() {
	<-e.sem
	e.mu.Lock()
	e.inflight--
	if e.inflight == 0 {
		e.idle.Broadcast()
	}
	e.mu.Unlock()
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Flush blocks until every handed-off send has returned.
func (e *Engine) Flush() {
	e.mu.Lock()
	for e.inflight > 0 {
		e.idle.Wait()
	}
	e.mu.Unlock()
}

// Close refuses new sends, cancels the ones in flight and waits for them.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.cancel()
	e.Flush()
}

func (e *Engine) dropTTL(hdr *dataType.PropagationHeader, requested int) {
	e.stats.droppedTTL.Add(1)
	id := ""
	if hdr != nil {
		id = hdr.MessageID
	}
	e.logger.Debug("propagation stopped", zap.String("reason", "ttl_exhausted"), zap.String("id", id), zap.Int("requested_ttl", requested))
}

func (e *Engine) dropDuplicate(id string) {
	e.stats.droppedDuplicate.Add(1)
	e.logger.Debug("propagation stopped", zap.String("reason", "duplicate"), zap.String("id", id))
}
