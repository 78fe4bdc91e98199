package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"adhoc_rdv/internal/action"
	"adhoc_rdv/internal/check"
	"adhoc_rdv/internal/config"
	"adhoc_rdv/internal/dataType"
	"adhoc_rdv/internal/rdv"
	"adhoc_rdv/internal/utils"

	"go.uber.org/zap"
)

const (
	MaxBodySize     = 10 << 20
	HeaderFrom      = "X-Rdv-From"
	HeaderSignature = "X-Rdv-Signature"
)

// Node ties the engine to the inbound checks and the HTTP routes.
type Node struct {
	cfg    *config.MainConfig
	engine *rdv.Engine
	table  *dataType.StaticNeighborTable
	shared *dataType.SharedMemory
	logger *zap.Logger
}

func NewNode(cfg *config.MainConfig, engine *rdv.Engine, table *dataType.StaticNeighborTable, shared *dataType.SharedMemory, logger *zap.Logger) *Node {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Node{cfg: cfg, engine: engine, table: table, shared: shared, logger: logger}
}

func (n *Node) Engine() *rdv.Engine { return n.engine }

// ReloadPeers swaps in the peer list of cfg. Other settings need a restart.
func (n *Node) ReloadPeers(cfg *config.MainConfig) {
	n.table.Replace(cfg.Neighbors())
	n.logger.Info("peers reloaded", zap.Int("peers", len(cfg.Peers)))
}

// HandleInbound runs the checks on one received message and hands accepted
// ones to the engine. Shared by the HTTP and QUIC listeners.
func (n *Node) HandleInbound(req *dataType.InboundRequest) *action.Decision {
	decision := check.Run(req, n.cfg, n.shared)
	switch decision.Get() {
	case action.Reject:
		n.logger.Warn("inbound rejected",
			zap.String("remote", req.RemoteIP),
			zap.String("from", req.FromPeer),
			zap.Int("status", decision.HTTPCode),
			zap.String("reason", decision.Reason))
		return decision
	case action.Discard:
		n.logger.Debug("inbound discarded", zap.String("from", req.FromPeer), zap.String("reason", decision.Reason))
		return decision
	}

	outcome, err := n.engine.Receive(req.Message, req.FromPeer)
	if errors.Is(err, rdv.ErrEngineClosed) {
		decision.Refuse(http.StatusServiceUnavailable, err.Error())
		return decision
	}
	if err != nil {
		decision.Refuse(http.StatusBadRequest, err.Error())
		return decision
	}
	n.logger.Debug("inbound handled",
		zap.String("from", req.FromPeer),
		zap.String("id", req.Message.Header.MessageID),
		zap.Stringer("outcome", outcome))
	return decision
}

func (n *Node) Handler() http.Handler {
	base := utils.NormalizeWebPath(n.cfg.WebPath)
	mux := http.NewServeMux()
	mux.HandleFunc(base+"/propagate", n.handlePropagate)
	mux.HandleFunc(base+"/publish", n.handlePublish)
	mux.HandleFunc(base+"/health", n.handleHealth)
	mux.HandleFunc(base+"/stats", n.handleStats)
	return mux
}

func (n *Node) handlePropagate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			n.logger.Warn("inbound body too large", zap.String("remote", r.RemoteAddr))
			http.Error(w, "Request Entity Too Large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	decision := n.HandleInbound(&dataType.InboundRequest{
		RemoteIP:  remoteIP(r),
		FromPeer:  r.Header.Get(HeaderFrom),
		Signature: r.Header.Get(HeaderSignature),
		Body:      body,
	})
	if decision.Get() == action.Reject {
		http.Error(w, decision.Reason, decision.HTTPCode)
		return
	}
	w.WriteHeader(decision.HTTPCode)
	if _, err := w.Write([]byte("ACK")); err != nil {
		n.logger.Error("failed to write ACK", zap.Error(err))
	}
}

type publishResponse struct {
	HandedOff int    `json:"handed_off"`
	Mode      string `json:"mode"`
	TTL       int    `json:"ttl"`
}

// handlePublish originates a message from this node. Query parameters carry
// service, param, ttl, mode and targets (comma separated); the body is the
// payload. Loopback callers only.
func (n *Node) handlePublish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if ip := net.ParseIP(remoteIP(r)); ip == nil || !ip.IsLoopback() {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize))
	if err != nil {
		http.Error(w, "Request Entity Too Large", http.StatusRequestEntityTooLarge)
		return
	}

	q := r.URL.Query()
	ttl := n.engine.MaxTTL()
	if s := q.Get("ttl"); s != "" {
		if ttl, err = strconv.Atoi(s); err != nil || ttl < 0 {
			http.Error(w, "invalid ttl", http.StatusBadRequest)
			return
		}
	}
	mode, err := rdv.ParseDestinationMode(q.Get("mode"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	dest := rdv.Destination{Mode: mode}
	if mode == rdv.ExplicitPeerSet {
		dest.Targets = splitList(q.Get("targets"))
	}

	handed, err := n.engine.Propagate(&dataType.Message{Payload: payload}, q.Get("service"), q.Get("param"), ttl, dest)
	if errors.Is(err, rdv.ErrEngineClosed) {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, n.logger, publishResponse{HandedOff: handed, Mode: mode.String(), TTL: min(ttl, n.engine.MaxTTL())})
}

func (n *Node) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type statsResponse struct {
	Node      string    `json:"node"`
	Version   string    `json:"version"`
	Neighbors int       `json:"neighbors"`
	Engine    rdv.Stats `json:"engine"`
}

func (n *Node) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, n.logger, statsResponse{
		Node:      n.engine.Self(),
		Version:   dataType.AdhocRdvVersion,
		Neighbors: len(n.table.CurrentNeighbors()),
		Engine:    n.engine.Stats(),
	})
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to write response", zap.Error(err))
	}
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func statusLine(d *action.Decision) string {
	reason := d.Reason
	if reason == "" {
		reason = d.Get().String()
	}
	return fmt.Sprintf("%d %s\n", d.HTTPCode, reason)
}
