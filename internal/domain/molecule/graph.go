// Package molecule holds the annotated molecule graph consumed by the
// fingerprint engine: atoms, bonds, rings and ring sets stored in arenas and
// cross-referenced by integer id.
package molecule

import (
	"fmt"
	"sort"
	"strings"

	"github.com/turtacn/pcfp/pkg/errors"
)

// AtomID, BondID, RingID and RingSetID are arena indexes into Graph.
type (
	AtomID    int
	BondID    int
	RingID    int
	RingSetID int
)

// ─────────────────────────────────────────────────────────────────────────────
// Bond orders
// ─────────────────────────────────────────────────────────────────────────────

// BondOrder is the order class of a bond. BondAny is never stored on a bond;
// it selects the order-agnostic "~" tally of an Environment.
type BondOrder uint8

const (
	BondAny BondOrder = iota
	BondSingle
	BondDouble
	BondTriple
	BondAromatic
)

// bondOrderCount sizes per-order arrays indexed by BondOrder.
const bondOrderCount = 5

var bondSymbols = [bondOrderCount]byte{'~', '-', '=', '#', ':'}

var bondNames = [bondOrderCount]string{"any", "single", "double", "triple", "aromatic"}

// Symbol returns the SMARTS bond symbol.
func (o BondOrder) Symbol() byte {
	if int(o) < bondOrderCount {
		return bondSymbols[o]
	}
	return '?'
}

func (o BondOrder) String() string {
	if int(o) < bondOrderCount {
		return bondNames[o]
	}
	return fmt.Sprintf("BondOrder(%d)", uint8(o))
}

// Valid reports whether o can be stored on a bond.
func (o BondOrder) Valid() bool {
	return o >= BondSingle && o <= BondAromatic
}

// ParseBondOrder accepts names ("double"), SMARTS symbols ("=") and numeric
// orders ("2", "1.5").
func ParseBondOrder(s string) (BondOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single", "1", "-":
		return BondSingle, nil
	case "double", "2", "=":
		return BondDouble, nil
	case "triple", "3", "#":
		return BondTriple, nil
	case "aromatic", "ar", "1.5", ":":
		return BondAromatic, nil
	case "any", "~":
		return BondAny, nil
	}
	return BondAny, errors.New(errors.ErrCodeMoleculeInvalidFormat, "unknown bond order").WithDetail(s)
}

// BondOrderFromSymbol is the inverse of Symbol.
func BondOrderFromSymbol(c byte) (BondOrder, bool) {
	for i, s := range bondSymbols {
		if s == c {
			return BondOrder(i), true
		}
	}
	return BondAny, false
}

// ─────────────────────────────────────────────────────────────────────────────
// Environment
// ─────────────────────────────────────────────────────────────────────────────

// ElementCounts tallies neighbours by element symbol.
type ElementCounts map[string]int

// Get returns the count for element, 0 when absent. Safe on a nil map.
func (c ElementCounts) Get(element string) int {
	return c[element]
}

// Environment is the tally of an atom's bonded neighbours by element, for any
// order and broken out per bond order.
type Environment struct {
	Any      ElementCounts `json:"any,omitempty"`
	Single   ElementCounts `json:"single,omitempty"`
	Double   ElementCounts `json:"double,omitempty"`
	Triple   ElementCounts `json:"triple,omitempty"`
	Aromatic ElementCounts `json:"aromatic,omitempty"`
}

// Count returns the number of neighbours of element bonded with order.
// BondAny counts every order.
func (e Environment) Count(order BondOrder, element string) int {
	switch order {
	case BondAny:
		return e.Any.Get(element)
	case BondSingle:
		return e.Single.Get(element)
	case BondDouble:
		return e.Double.Get(element)
	case BondTriple:
		return e.Triple.Get(element)
	case BondAromatic:
		return e.Aromatic.Get(element)
	}
	return 0
}

// Degree is the total number of bonded neighbours.
func (e Environment) Degree() int {
	n := 0
	for _, c := range e.Any {
		n += c
	}
	return n
}

// Add records one neighbour of element bonded with order.
func (e *Environment) Add(order BondOrder, element string) {
	inc := func(m *ElementCounts) {
		if *m == nil {
			*m = ElementCounts{}
		}
		(*m)[element]++
	}
	inc(&e.Any)
	switch order {
	case BondSingle:
		inc(&e.Single)
	case BondDouble:
		inc(&e.Double)
	case BondTriple:
		inc(&e.Triple)
	case BondAromatic:
		inc(&e.Aromatic)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Formula
// ─────────────────────────────────────────────────────────────────────────────

// Formula maps element symbols to whole-molecule counts. Missing elements count 0.
type Formula map[string]int

// Count returns the count for element.
func (f Formula) Count(element string) int {
	return f[element]
}

// String renders the formula in Hill order.
func (f Formula) String() string {
	keys := make([]string, 0, len(f))
	for k, v := range f {
		if v > 0 {
			keys = append(keys, k)
		}
	}
	hasC := f[Carbon] > 0
	sort.Slice(keys, func(i, j int) bool {
		if hasC {
			ri, rj := hillRank(keys[i]), hillRank(keys[j])
			if ri != rj {
				return ri < rj
			}
		}
		return keys[i] < keys[j]
	})
	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		if f[k] > 1 {
			fmt.Fprintf(&sb, "%d", f[k])
		}
	}
	return sb.String()
}

func hillRank(el string) int {
	switch el {
	case Carbon:
		return 0
	case Hydrogen:
		return 1
	}
	return 2
}

// ─────────────────────────────────────────────────────────────────────────────
// Arena entities
// ─────────────────────────────────────────────────────────────────────────────

// Atom is one vertex of the graph.
type Atom struct {
	ID            AtomID      `json:"id"`
	Element       string      `json:"element"`
	InRing        bool        `json:"in_ring"`
	SharedRingIDs []RingID    `json:"shared_ring_ids,omitempty"`
	Environment   Environment `json:"environment"`
}

// Bond joins two atoms.
type Bond struct {
	ID     BondID    `json:"id"`
	Begin  AtomID    `json:"begin"`
	End    AtomID    `json:"end"`
	Order  BondOrder `json:"order"`
	InRing bool      `json:"in_ring"`
}

// Other returns the endpoint that is not id.
func (b Bond) Other(id AtomID) AtomID {
	if b.Begin == id {
		return b.End
	}
	return b.Begin
}

// RingKind tags rings that ring-substitution probes look for.
type RingKind uint8

const (
	RingOther RingKind = iota
	RingBenzene
	RingCyclohexane
	RingCyclopentane
)

func (k RingKind) String() string {
	switch k {
	case RingBenzene:
		return "benzene"
	case RingCyclohexane:
		return "cyclohexane"
	case RingCyclopentane:
		return "cyclopentane"
	}
	return "other"
}

// Ring is one perceived ring with its aggregate statistics.
type Ring struct {
	ID              RingID              `json:"id"`
	Atoms           []AtomID            `json:"atoms"`
	IsAromatic      bool                `json:"is_aromatic"`
	IsHetero        bool                `json:"is_hetero"`
	CarbonCount     int                 `json:"carbon_count"`
	NitrogenCount   int                 `json:"nitrogen_count"`
	DoubleBondCount int                 `json:"double_bond_count"`
	Kind            RingKind            `json:"kind"`
	Outside         map[AtomID][]AtomID `json:"outside,omitempty"`
}

// Size is the number of ring members.
func (r *Ring) Size() int { return len(r.Atoms) }

// Contains reports whether id is a ring member.
func (r *Ring) Contains(id AtomID) bool {
	for _, a := range r.Atoms {
		if a == id {
			return true
		}
	}
	return false
}

// RingSet groups rings fused through shared bonds.
type RingSet struct {
	ID    RingSetID `json:"id"`
	Rings []RingID  `json:"rings"`
}

// Graph is the complete annotated molecule. Ids equal arena indexes.
type Graph struct {
	Formula  Formula   `json:"formula"`
	Atoms    []Atom    `json:"atoms"`
	Bonds    []Bond    `json:"bonds"`
	Rings    []Ring    `json:"rings"`
	RingSets []RingSet `json:"ring_sets"`
}

// Neighbor is one adjacency entry.
type Neighbor struct {
	Atom AtomID
	Bond BondID
}

// Adjacency returns the neighbour lists of every atom, in bond order.
func (g *Graph) Adjacency() [][]Neighbor {
	adj := make([][]Neighbor, len(g.Atoms))
	for _, b := range g.Bonds {
		adj[b.Begin] = append(adj[b.Begin], Neighbor{Atom: b.End, Bond: b.ID})
		adj[b.End] = append(adj[b.End], Neighbor{Atom: b.Begin, Bond: b.ID})
	}
	return adj
}

// Element returns the symbol of atom id, or "" when out of range.
func (g *Graph) Element(id AtomID) string {
	if int(id) < 0 || int(id) >= len(g.Atoms) {
		return ""
	}
	return g.Atoms[id].Element
}

// HeavyAtomCount counts non-hydrogen atoms.
func (g *Graph) HeavyAtomCount() int {
	n := 0
	for i := range g.Atoms {
		if g.Atoms[i].Element != Hydrogen {
			n++
		}
	}
	return n
}
