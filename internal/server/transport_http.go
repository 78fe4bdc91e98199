package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"adhoc_rdv/internal/config"
	"adhoc_rdv/internal/dataType"
	"adhoc_rdv/internal/utils"
)

var ErrUnknownPeer = errors.New("unknown peer")

// HTTPTransport posts msgpack-encoded messages to <address><web_path>/propagate.
type HTTPTransport struct {
	self      string
	secret    string
	webPath   string
	neighbors dataType.NeighborTable
	client    *http.Client
}

func NewHTTPTransport(cfg *config.MainConfig, neighbors dataType.NeighborTable) *HTTPTransport {
	return &HTTPTransport{
		self:      cfg.NodeName,
		secret:    cfg.GlobalSecret,
		webPath:   cfg.WebPath,
		neighbors: neighbors,
		client:    &http.Client{Timeout: cfg.Propagation.SendTimeout},
	}
}

func (t *HTTPTransport) Send(ctx context.Context, peerID string, msg *dataType.Message) error {
	nb, ok := dataType.FindNeighbor(t.neighbors, peerID)
	if !ok || nb.Address == "" {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, peerID)
	}
	data, err := dataType.EncodeMessage(msg)
	if err != nil {
		return err
	}

	url := utils.PeerEndpoint(nb.Address, t.webPath, "propagate")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request for %s: %w", peerID, err)
	}
	req.Header.Set("Content-Type", "application/msgpack")
	req.Header.Set(HeaderFrom, t.self)
	if t.secret != "" {
		req.Header.Set(HeaderSignature, utils.Sign(t.secret, data))
	}
	if nb.Host != "" {
		req.Host = nb.Host
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send to %s: %w", peerID, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("peer %s returned status %d", peerID, resp.StatusCode)
	}
	return nil
}
