package dataType

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// PropagationHeader travels with every propagated message.
type PropagationHeader struct {
	MessageID    string   `msgpack:"id" json:"id"`
	OriginPeer   string   `msgpack:"origin" json:"origin"`
	Seq          uint64   `msgpack:"seq" json:"seq"`
	Nonce        string   `msgpack:"nonce" json:"nonce"`
	Timestamp    int64    `msgpack:"ts" json:"ts"` // Unix seconds at origination
	ServiceName  string   `msgpack:"svc" json:"service_name"`
	ServiceParam string   `msgpack:"param" json:"service_param"`
	TTL          int      `msgpack:"ttl" json:"ttl"`
	Path         []string `msgpack:"path" json:"path"`
}

// Clone returns a deep copy of the header.
func (h *PropagationHeader) Clone() *PropagationHeader {
	if h == nil {
		return nil
	}
	c := *h
	if h.Path != nil {
		c.Path = make([]string, len(h.Path))
		copy(c.Path, h.Path)
	}
	return &c
}

// InPath reports whether peer already handled the message.
func (h *PropagationHeader) InPath(peer string) bool {
	for _, p := range h.Path {
		if p == peer {
			return true
		}
	}
	return false
}

// NextHop builds the header for one outbound send. The TTL is decremented
// here and nowhere else.
func (h *PropagationHeader) NextHop(self, serviceName, serviceParam string, effectiveTTL int) *PropagationHeader {
	out := h.Clone()
	if serviceName != "" {
		out.ServiceName = serviceName
		out.ServiceParam = serviceParam
	}
	out.TTL = effectiveTTL - 1
	if out.TTL < 0 {
		out.TTL = 0
	}
	if !out.InPath(self) {
		out.Path = append(out.Path, self)
	}
	return out
}

// Message is an opaque payload plus a metadata bag.
type Message struct {
	Payload  []byte             `msgpack:"payload"`
	Elements map[string]string  `msgpack:"elements,omitempty"`
	Header   *PropagationHeader `msgpack:"rdv,omitempty"`
}

// Clone copies the metadata and header. The payload is shared and must be
// treated as read-only once handed to the engine.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := &Message{Payload: m.Payload, Header: m.Header.Clone()}
	if m.Elements != nil {
		c.Elements = make(map[string]string, len(m.Elements))
		for k, v := range m.Elements {
			c.Elements[k] = v
		}
	}
	return c
}

// WithHeader returns a clone carrying h.
func (m *Message) WithHeader(h *PropagationHeader) *Message {
	c := m.Clone()
	c.Header = h
	return c
}

func EncodeMessage(m *Message) ([]byte, error) {
	data, err := msgpack.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}

func DecodeMessage(data []byte) (*Message, error) {
	var m Message
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return &m, nil
}
