package dataType

import "sync/atomic"

// Neighbor is one entry of the neighbor snapshot.
type Neighbor struct {
	ID          string
	Address     string // HTTP base URL
	Host        string // optional Host header override
	QUICAddress string
	SameGroup   bool
}

// NeighborTable supplies the current known neighbor set. Implementations are
// refreshed out of band; readers only need an atomic snapshot.
type NeighborTable interface {
	CurrentNeighbors() []Neighbor
}

// StaticNeighborTable holds a replaceable snapshot, typically built from the
// configured peer list.
type StaticNeighborTable struct {
	snapshot atomic.Pointer[[]Neighbor]
}

func NewStaticNeighborTable(neighbors []Neighbor) *StaticNeighborTable {
	t := &StaticNeighborTable{}
	t.Replace(neighbors)
	return t
}

// CurrentNeighbors returns the snapshot. Callers must not modify it.
func (t *StaticNeighborTable) CurrentNeighbors() []Neighbor {
	p := t.snapshot.Load()
	if p == nil {
		return nil
	}
	return *p
}

// Replace swaps in a new neighbor set.
func (t *StaticNeighborTable) Replace(neighbors []Neighbor) {
	cp := make([]Neighbor, len(neighbors))
	copy(cp, neighbors)
	t.snapshot.Store(&cp)
}

// Lookup finds a neighbor by id in the current snapshot.
func (t *StaticNeighborTable) Lookup(id string) (Neighbor, bool) {
	return FindNeighbor(t, id)
}

func FindNeighbor(table NeighborTable, id string) (Neighbor, bool) {
	if table == nil {
		return Neighbor{}, false
	}
	for _, n := range table.CurrentNeighbors() {
		if n.ID == id {
			return n, true
		}
	}
	return Neighbor{}, false
}
