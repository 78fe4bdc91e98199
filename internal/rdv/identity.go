package rdv

import (
	"fmt"
	"strconv"

	"adhoc_rdv/internal/dataType"

	"github.com/google/uuid"
)

// identityNamespace scopes the UUIDv5 message ids.
var identityNamespace = uuid.MustParse("6f1c9a3e-2b7d-5e40-9c1a-8d3f0b6e2a71")

// Identify derives the message id from the identity-bearing header fields:
// origin peer, origin sequence and origin nonce. TTL, path and service fields
// do not take part, so every hop computes the same id.
func Identify(h *dataType.PropagationHeader) (string, error) {
	if h == nil {
		return "", fmt.Errorf("%w: no propagation header", ErrMalformedMessage)
	}
	if h.OriginPeer == "" {
		return "", fmt.Errorf("%w: missing origin peer", ErrMalformedMessage)
	}
	if h.Seq == 0 {
		return "", fmt.Errorf("%w: missing sequence", ErrMalformedMessage)
	}
	if h.Nonce == "" {
		return "", fmt.Errorf("%w: missing nonce", ErrMalformedMessage)
	}
	name := make([]byte, 0, len(h.OriginPeer)+len(h.Nonce)+22)
	name = append(name, h.OriginPeer...)
	name = append(name, 0)
	name = strconv.AppendUint(name, h.Seq, 10)
	name = append(name, 0)
	name = append(name, h.Nonce...)
	return uuid.NewSHA1(identityNamespace, name).String(), nil
}

func IdentifyMessage(msg *dataType.Message) (string, error) {
	if msg == nil {
		return "", fmt.Errorf("%w: nil message", ErrMalformedMessage)
	}
	return Identify(msg.Header)
}

// VerifyIdentity checks that the carried id matches the identity fields.
func VerifyIdentity(h *dataType.PropagationHeader) error {
	id, err := Identify(h)
	if err != nil {
		return err
	}
	if h.MessageID != id {
		return fmt.Errorf("%w: message id does not match origin fields", ErrMalformedMessage)
	}
	return nil
}
