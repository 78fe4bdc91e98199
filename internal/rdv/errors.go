package rdv

import "errors"

var (
	// ErrMalformedMessage means the message lacks the fields needed to
	// build or check its propagation identity.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrUnsupportedMode is returned for rendezvous operations that have no
	// meaning in ad hoc topology.
	ErrUnsupportedMode = errors.New("unsupported in ad hoc mode")

	ErrInvalidDestination = errors.New("invalid destination")

	// ErrEngineClosed is returned once Close has been called. Nothing is
	// recorded for the refused message.
	ErrEngineClosed = errors.New("engine closed")
)
