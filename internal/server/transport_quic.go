package server

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"adhoc_rdv/internal/config"
	"adhoc_rdv/internal/dataType"
	"adhoc_rdv/internal/utils"

	quic "github.com/quic-go/quic-go"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

const (
	quicALPN         = "adhoc-rdv"
	maxQUICFrameSize = MaxBodySize + 4096
	maxStatusLine    = 512
)

// quicFrame is what a client writes on one stream before closing its side.
type quicFrame struct {
	From      string `msgpack:"from"`
	Signature string `msgpack:"sig"`
	Body      []byte `msgpack:"body"`
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

// nodeCertificate derives the same self-signed ed25519 certificate on every
// node sharing secret. Clients pin it byte for byte.
func nodeCertificate(secret string) (tls.Certificate, []byte, error) {
	seed := sha256.Sum256([]byte("adhoc-rdv-quic:" + secret))
	priv := ed25519.NewKeyFromSeed(seed[:])
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Unix(0, 0),
		NotAfter:     time.Unix(0, 0).Add(100 * 365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		DNSNames:     []string{"adhoc-rdv"},
	}
	der, err := x509.CreateCertificate(zeroReader{}, &template, &template, priv.Public(), priv)
	if err != nil {
		return tls.Certificate{}, nil, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, der, nil
}

func serverTLSConfig(secret string) (*tls.Config, error) {
	cert, _, err := nodeCertificate(secret)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{quicALPN},
		MinVersion:   tls.VersionTLS13,
	}, nil
}

func clientTLSConfig(secret string) (*tls.Config, error) {
	_, der, err := nodeCertificate(secret)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		// chain verification is replaced by the pin below
		InsecureSkipVerify: true,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) == 0 || !bytes.Equal(rawCerts[0], der) {
				return errors.New("quic: peer certificate does not match pinned certificate")
			}
			return nil
		},
		NextProtos: []string{quicALPN},
		MinVersion: tls.VersionTLS13,
	}, nil
}

func quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,
	}
}

// QUICTransport sends each message on its own stream over a cached
// connection per peer.
type QUICTransport struct {
	self      string
	secret    string
	neighbors dataType.NeighborTable
	tlsConf   *tls.Config

	mu    sync.Mutex
	conns map[string]*quic.Conn
}

func NewQUICTransport(cfg *config.MainConfig, neighbors dataType.NeighborTable) (*QUICTransport, error) {
	tlsConf, err := clientTLSConfig(cfg.GlobalSecret)
	if err != nil {
		return nil, err
	}
	return &QUICTransport{
		self:      cfg.NodeName,
		secret:    cfg.GlobalSecret,
		neighbors: neighbors,
		tlsConf:   tlsConf,
		conns:     make(map[string]*quic.Conn),
	}, nil
}

func (t *QUICTransport) conn(ctx context.Context, addr string) (*quic.Conn, error) {
	t.mu.Lock()
	c, ok := t.conns[addr]
	t.mu.Unlock()
	if ok && c.Context().Err() == nil {
		return c, nil
	}

	c, err := quic.DialAddr(ctx, addr, t.tlsConf, quicConfig())
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	if old, ok := t.conns[addr]; ok && old != c {
		_ = old.CloseWithError(0, "replaced")
	}
	t.conns[addr] = c
	t.mu.Unlock()
	return c, nil
}

func (t *QUICTransport) drop(addr string, c *quic.Conn) {
	t.mu.Lock()
	if t.conns[addr] == c {
		delete(t.conns, addr)
	}
	t.mu.Unlock()
	_ = c.CloseWithError(0, "")
}

func (t *QUICTransport) Send(ctx context.Context, peerID string, msg *dataType.Message) error {
	nb, ok := dataType.FindNeighbor(t.neighbors, peerID)
	if !ok || nb.QUICAddress == "" {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, peerID)
	}
	body, err := dataType.EncodeMessage(msg)
	if err != nil {
		return err
	}
	frame := quicFrame{From: t.self, Body: body}
	if t.secret != "" {
		frame.Signature = utils.Sign(t.secret, body)
	}
	data, err := msgpack.Marshal(&frame)
	if err != nil {
		return fmt.Errorf("encode quic frame: %w", err)
	}

	c, err := t.conn(ctx, nb.QUICAddress)
	if err != nil {
		return fmt.Errorf("dial %s: %w", peerID, err)
	}
	stream, err := c.OpenStreamSync(ctx)
	if err != nil {
		// stale cached connection: redial once
		t.drop(nb.QUICAddress, c)
		if c, err = t.conn(ctx, nb.QUICAddress); err != nil {
			return fmt.Errorf("dial %s: %w", peerID, err)
		}
		if stream, err = c.OpenStreamSync(ctx); err != nil {
			return fmt.Errorf("open stream to %s: %w", peerID, err)
		}
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = stream.SetDeadline(deadline)
	}

	if _, err := stream.Write(data); err != nil {
		stream.CancelRead(0)
		return fmt.Errorf("write to %s: %w", peerID, err)
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("close stream to %s: %w", peerID, err)
	}
	reply, err := io.ReadAll(io.LimitReader(stream, maxStatusLine))
	if err != nil {
		return fmt.Errorf("read reply from %s: %w", peerID, err)
	}
	code, reason := parseStatusLine(reply)
	if code < 200 || code >= 300 {
		return fmt.Errorf("peer %s returned status %d %s", peerID, code, reason)
	}
	return nil
}

func (t *QUICTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for addr, c := range t.conns {
		_ = c.CloseWithError(0, "shutdown")
		delete(t.conns, addr)
	}
	return nil
}

func parseStatusLine(b []byte) (int, string) {
	line := strings.TrimSpace(string(b))
	codeStr, reason, _ := strings.Cut(line, " ")
	code, err := strconv.Atoi(codeStr)
	if err != nil {
		return 0, line
	}
	return code, reason
}

// ListenQUIC accepts propagated messages over QUIC until ctx is cancelled.
// The bound address is sent on ready once the listener is up.
func (n *Node) ListenQUIC(ctx context.Context, addr string, ready chan<- net.Addr) error {
	tlsConf, err := serverTLSConfig(n.cfg.GlobalSecret)
	if err != nil {
		return err
	}
	listener, err := quic.ListenAddr(addr, tlsConf, quicConfig())
	if err != nil {
		return err
	}
	n.logger.Info("QUIC listener ready", zap.String("addr", listener.Addr().String()))
	if ready != nil {
		ready <- listener.Addr()
	}
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go n.serveQUICConn(ctx, conn)
	}
}

func (n *Node) serveQUICConn(ctx context.Context, conn *quic.Conn) {
	remote := conn.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(remote); err == nil {
		remote = host
	}
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			n.logger.Debug("quic connection closed", zap.String("remote", remote), zap.Error(err))
			return
		}
		go n.serveQUICStream(stream, remote)
	}
}

func (n *Node) serveQUICStream(stream *quic.Stream, remote string) {
	defer stream.Close()
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("quic stream panic", zap.Any("panic", r))
		}
	}()

	data, err := io.ReadAll(io.LimitReader(stream, maxQUICFrameSize+1))
	if err != nil {
		n.logger.Debug("quic read error", zap.String("remote", remote), zap.Error(err))
		return
	}
	if len(data) > maxQUICFrameSize {
		stream.CancelRead(0)
		_, _ = io.WriteString(stream, "413 frame too large\n")
		return
	}
	var frame quicFrame
	if err := msgpack.Unmarshal(data, &frame); err != nil {
		_, _ = io.WriteString(stream, "400 undecodable frame\n")
		return
	}

	decision := n.HandleInbound(&dataType.InboundRequest{
		RemoteIP:  remote,
		FromPeer:  frame.From,
		Signature: frame.Signature,
		Body:      frame.Body,
	})
	if _, err := io.WriteString(stream, statusLine(decision)); err != nil {
		n.logger.Debug("quic write error", zap.String("remote", remote), zap.Error(err))
	}
}
