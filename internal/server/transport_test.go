package server

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"adhoc_rdv/internal/action"
	"adhoc_rdv/internal/dataType"
	"adhoc_rdv/internal/rdv"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTransport struct {
	calls atomic.Int32
	err   error
}

func (c *countingTransport) Send(context.Context, string, *dataType.Message) error {
	c.calls.Add(1)
	return c.err
}

func TestCooldown_SuppressesAfterFailure(t *testing.T) {
	rules := action.NewPeerRuleEngine(time.Minute)
	defer rules.Stop()
	next := &countingTransport{err: errors.New("connection refused")}
	cd := NewCooldown(next, rules, time.Minute)

	err := cd.Send(context.Background(), "B", &dataType.Message{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPeerCoolingDown)

	err = cd.Send(context.Background(), "B", &dataType.Message{})
	assert.ErrorIs(t, err, ErrPeerCoolingDown)
	assert.EqualValues(t, 1, next.calls.Load(), "suppressed sends never reach the transport")

	next.err = nil
	assert.NoError(t, cd.Send(context.Background(), "C", &dataType.Message{}), "other peers unaffected")
}

func TestCooldown_IgnoresCancellation(t *testing.T) {
	rules := action.NewPeerRuleEngine(time.Minute)
	defer rules.Stop()
	next := &countingTransport{err: context.Canceled}
	cd := NewCooldown(next, rules, time.Minute)

	_ = cd.Send(context.Background(), "B", &dataType.Message{})
	next.err = nil
	assert.NoError(t, cd.Send(context.Background(), "B", &dataType.Message{}))
	assert.Equal(t, 0, rules.Len())
}

func TestCooldown_Disabled(t *testing.T) {
	next := &countingTransport{err: errors.New("down")}
	cd := NewCooldown(next, nil, time.Minute)
	for i := 0; i < 3; i++ {
		assert.Error(t, cd.Send(context.Background(), "B", &dataType.Message{}))
	}
	assert.EqualValues(t, 3, next.calls.Load())
}

func TestNodeCertificate_Deterministic(t *testing.T) {
	_, der1, err := nodeCertificate("s1")
	require.NoError(t, err)
	_, der2, err := nodeCertificate("s1")
	require.NoError(t, err)
	_, der3, err := nodeCertificate("s2")
	require.NoError(t, err)

	assert.Equal(t, der1, der2)
	assert.NotEqual(t, der1, der3)
}

func TestParseStatusLine(t *testing.T) {
	code, reason := parseStatusLine([]byte("202 Allow\n"))
	assert.Equal(t, 202, code)
	assert.Equal(t, "Allow", reason)

	code, reason = parseStatusLine([]byte("garbage"))
	assert.Equal(t, 0, code)
	assert.Equal(t, "garbage", reason)
}

func startQUICNode(t *testing.T, name string) (*testNode, string) {
	t.Helper()
	cfg := newTestConfig(t, name)
	table := dataType.NewStaticNeighborTable(nil)
	tr, err := NewQUICTransport(cfg, table)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	tn := newNodeWithTransport(t, cfg, table, tr)

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan net.Addr, 1)
	done := make(chan error, 1)
	go func() { done <- tn.node.ListenQUIC(ctx, "127.0.0.1:0", ready) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Error("quic listener did not stop")
		}
	})

	select {
	case addr := <-ready:
		return tn, addr.String()
	case err := <-done:
		t.Fatalf("quic listen: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("quic listener not ready")
	}
	return nil, ""
}

func TestQUIC_RoundTrip(t *testing.T) {
	a, addrA := startQUICNode(t, "A")
	b, addrB := startQUICNode(t, "B")
	a.table.Replace([]dataType.Neighbor{{ID: "B", QUICAddress: addrB, SameGroup: true}})
	b.table.Replace([]dataType.Neighbor{{ID: "A", QUICAddress: addrA, SameGroup: true}})

	for i := 0; i < 2; i++ {
		n, err := a.engine.Propagate(&dataType.Message{Payload: []byte("over quic")}, "chat", "", 2, rdv.ToAllNeighbors())
		require.NoError(t, err)
		require.Equal(t, 1, n)

		m := waitMessage(t, b.got)
		assert.Equal(t, []byte("over quic"), m.Payload)
		assert.Equal(t, []string{"A"}, m.Header.Path)
	}

	a.engine.Flush()
	b.engine.Flush()
	assert.EqualValues(t, 2, a.engine.Stats().Sent)
	assert.EqualValues(t, 0, a.engine.Stats().SendFailed)
	assert.Empty(t, a.got, "B never echoes back to its sender")
}

func TestQUIC_RejectsForeignSecret(t *testing.T) {
	_, addrB := startQUICNode(t, "B")

	cfg := newTestConfig(t, "A")
	cfg.GlobalSecret = "another-secret"
	table := dataType.NewStaticNeighborTable([]dataType.Neighbor{{ID: "B", QUICAddress: addrB}})
	tr, err := NewQUICTransport(cfg, table)
	require.NoError(t, err)
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.Error(t, tr.Send(ctx, "B", &dataType.Message{}))
}

func TestQUIC_UnknownPeer(t *testing.T) {
	cfg := newTestConfig(t, "A")
	table := dataType.NewStaticNeighborTable([]dataType.Neighbor{{ID: "B", Address: "http://127.0.0.1:1"}})
	tr, err := NewQUICTransport(cfg, table)
	require.NoError(t, err)
	assert.ErrorIs(t, tr.Send(context.Background(), "B", &dataType.Message{}), ErrUnknownPeer)
}
