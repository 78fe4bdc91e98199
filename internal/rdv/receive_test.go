package rdv

import (
	"context"
	"sync"
	"testing"

	"adhoc_rdv/internal/dataType"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type delivery struct {
	from, to string
	msg      *dataType.Message
}

// memNetwork queues sends so a test can replay them hop by hop.
type memNetwork struct {
	mu      sync.Mutex
	queue   []delivery
	engines map[string]*Engine
}

type memTransport struct {
	net  *memNetwork
	from string
}

func (t *memTransport) Send(_ context.Context, peer string, msg *dataType.Message) error {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	t.net.queue = append(t.net.queue, delivery{from: t.from, to: peer, msg: msg})
	return nil
}

func (n *memNetwork) pop() (delivery, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.queue) == 0 {
		return delivery{}, false
	}
	d := n.queue[0]
	n.queue = n.queue[1:]
	return d, true
}

func (n *memNetwork) flush() {
	for _, e := range n.engines {
		e.Flush()
	}
}

// drain delivers queued messages until the network is quiet and returns
// every delivery in order.
func (n *memNetwork) drain(t *testing.T) []delivery {
	t.Helper()
	var log []delivery
	for {
		n.flush()
		d, ok := n.pop()
		if !ok {
			return log
		}
		log = append(log, d)
		target, ok := n.engines[d.to]
		require.True(t, ok, "unknown peer %s", d.to)
		_, err := target.Receive(d.msg, d.from)
		require.NoError(t, err)
	}
}

// newLine builds peers connected as a chain in the given order.
func newLine(t *testing.T, ids ...string) *memNetwork {
	t.Helper()
	n := &memNetwork{engines: map[string]*Engine{}}
	for i, id := range ids {
		var adj []string
		if i > 0 {
			adj = append(adj, ids[i-1])
		}
		if i < len(ids)-1 {
			adj = append(adj, ids[i+1])
		}
		n.engines[id] = newTestEngine(t, id, neighbors(adj...), &memTransport{net: n, from: id})
	}
	return n
}

func TestChain_TTLMonotonicity(t *testing.T) {
	net := newLine(t, "A", "B", "C", "D")
	got := map[string][]int{}
	var mu sync.Mutex
	for id, e := range net.engines {
		id := id
		e.AddListener("chat", "room", func(msg *dataType.Message) {
			mu.Lock()
			got[id] = append(got[id], msg.Header.TTL)
			mu.Unlock()
		})
	}

	n, err := net.engines["A"].Propagate(&dataType.Message{Payload: []byte("x")}, "chat", "room", 100, ToAllNeighbors())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	log := net.drain(t)
	require.Len(t, log, 2)
	assert.Equal(t, "B", log[0].to)
	assert.Equal(t, 1, log[0].msg.Header.TTL)
	assert.Equal(t, "C", log[1].to)
	assert.Equal(t, 0, log[1].msg.Header.TTL)
	assert.Equal(t, []string{"A", "B"}, log[1].msg.Header.Path)

	assert.Equal(t, []int{1}, got["B"])
	assert.Equal(t, []int{0}, got["C"])
	assert.Empty(t, got["D"])
	assert.Empty(t, got["A"])

	assert.EqualValues(t, 1, net.engines["B"].Stats().Forwarded)
	assert.EqualValues(t, 1, net.engines["C"].Stats().DroppedTTL)
}

func TestRing_DuplicatesSuppressed(t *testing.T) {
	n := &memNetwork{engines: map[string]*Engine{}}
	ring := []string{"A", "B", "C", "D"}
	for i, id := range ring {
		prev := ring[(i+len(ring)-1)%len(ring)]
		next := ring[(i+1)%len(ring)]
		n.engines[id] = newTestEngine(t, id, neighbors(prev, next), &memTransport{net: n, from: id},
			func(o *Options) { o.MaxTTL = 8 })
	}

	delivered := map[string]int{}
	var mu sync.Mutex
	for id, e := range n.engines {
		id := id
		e.SetFallbackListener(func(*dataType.Message) {
			mu.Lock()
			delivered[id]++
			mu.Unlock()
		})
	}

	_, err := n.engines["A"].Propagate(&dataType.Message{}, "chat", "", 8, ToAllNeighbors())
	require.NoError(t, err)
	n.drain(t)

	assert.Equal(t, map[string]int{"B": 1, "C": 1, "D": 1}, delivered)
	var dups uint64
	for _, e := range n.engines {
		dups += e.Stats().DroppedDuplicate
	}
	assert.NotZero(t, dups, "the ring closes on itself")
}

func TestEngine_ReceiveExcludesSender(t *testing.T) {
	tr := &recordingTransport{}
	e := newTestEngine(t, "B", neighbors("X", "C"), tr)

	// X relayed the message but did not add itself to the path.
	hdr := foreignHeader(t, "A", 1, 2, "A")
	outcome, err := e.Receive(&dataType.Message{Header: hdr}, "X")
	require.NoError(t, err)
	assert.Equal(t, OutcomeForwarded, outcome)
	e.Flush()
	assert.Equal(t, []string{"C"}, tr.peers())
}

func TestEngine_ReceiveOutcomes(t *testing.T) {
	tr := &recordingTransport{}
	e := newTestEngine(t, "B", neighbors("A"), tr)

	var got []*dataType.Message
	e.AddListener("chat", "", func(msg *dataType.Message) { got = append(got, msg) })

	hdr := foreignHeader(t, "A", 1, 2, "A")
	outcome, err := e.Receive(&dataType.Message{Header: hdr, Payload: []byte("p")}, "A")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDelivered, outcome, "only neighbor is already on the path")

	outcome, err = e.Receive(&dataType.Message{Header: hdr}, "A")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	require.Len(t, got, 1)
	assert.Equal(t, []byte("p"), got[0].Payload)

	_, err = e.Receive(&dataType.Message{}, "A")
	assert.ErrorIs(t, err, ErrMalformedMessage)

	st := e.Stats()
	assert.EqualValues(t, 2, st.Received)
	assert.EqualValues(t, 1, st.DroppedDuplicate)
}

func TestEngine_RemoveListenerFallsBack(t *testing.T) {
	e := newTestEngine(t, "B", neighbors(), &recordingTransport{})

	var direct, fallback int
	e.AddListener("chat", "", func(*dataType.Message) { direct++ })
	e.SetFallbackListener(func(*dataType.Message) { fallback++ })

	_, err := e.Receive(&dataType.Message{Header: foreignHeader(t, "A", 1, 1, "A")}, "A")
	require.NoError(t, err)
	e.RemoveListener("chat", "")
	_, err = e.Receive(&dataType.Message{Header: foreignHeader(t, "A", 2, 1, "A")}, "A")
	require.NoError(t, err)

	assert.Equal(t, 1, direct)
	assert.Equal(t, 1, fallback)
}

func TestEngine_ListenerPanicIsContained(t *testing.T) {
	tr := &recordingTransport{}
	e := newTestEngine(t, "B", neighbors("C"), tr)
	e.SetFallbackListener(func(*dataType.Message) { panic("listener") })

	outcome, err := e.Receive(&dataType.Message{Header: foreignHeader(t, "A", 1, 2, "A")}, "A")
	require.NoError(t, err)
	assert.Equal(t, OutcomeForwarded, outcome)
}
