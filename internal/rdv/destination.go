package rdv

import (
	"fmt"
	"strings"
)

type DestinationMode int

const (
	AllNeighbors DestinationMode = iota
	InGroupOnly
	NeighborsOnly
	ExplicitPeerSet
)

func (m DestinationMode) String() string {
	switch m {
	case AllNeighbors:
		return "all"
	case InGroupOnly:
		return "group"
	case NeighborsOnly:
		return "neighbors"
	case ExplicitPeerSet:
		return "explicit"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

func ParseDestinationMode(s string) (DestinationMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return AllNeighbors, nil
	case "group", "ingroup":
		return InGroupOnly, nil
	case "neighbors":
		return NeighborsOnly, nil
	case "explicit", "peers":
		return ExplicitPeerSet, nil
	default:
		return 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidDestination, s)
	}
}

// Destination selects the fan-out targets. Targets is only meaningful for
// ExplicitPeerSet.
type Destination struct {
	Mode    DestinationMode
	Targets []string
}

func ToAllNeighbors() Destination { return Destination{Mode: AllNeighbors} }

func ToGroup() Destination { return Destination{Mode: InGroupOnly} }

func ToNeighbors() Destination { return Destination{Mode: NeighborsOnly} }

func ToPeers(peers ...string) Destination {
	return Destination{Mode: ExplicitPeerSet, Targets: peers}
}

func (d Destination) validate() error {
	switch d.Mode {
	case AllNeighbors, InGroupOnly, NeighborsOnly:
		if len(d.Targets) > 0 {
			return fmt.Errorf("%w: targets given for mode %s", ErrInvalidDestination, d.Mode)
		}
	case ExplicitPeerSet:
		for _, p := range d.Targets {
			if p != "" {
				return nil
			}
		}
		return fmt.Errorf("%w: explicit mode needs at least one target", ErrInvalidDestination)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidDestination, d.Mode)
	}
	return nil
}
