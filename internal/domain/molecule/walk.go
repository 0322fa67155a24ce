package molecule

import (
	"strings"
)

// Walk lengths enumerated for path patterns, in atoms.
const (
	MinWalkAtoms = 4
	MaxWalkAtoms = 8
)

// Walk is a simple path: no atom repeats. Orders[i] joins Atoms[i] and Atoms[i+1].
type Walk struct {
	Atoms  []AtomID    `json:"atoms"`
	Orders []BondOrder `json:"orders"`
}

// Len is the number of atoms on the walk.
func (w Walk) Len() int { return len(w.Atoms) }

// Render writes the walk as alternating element and bond symbols, e.g. "C-C-C#C".
func (w Walk) Render(g *Graph) string {
	var sb strings.Builder
	for i, a := range w.Atoms {
		if i > 0 {
			sb.WriteByte(w.Orders[i-1].Symbol())
		}
		sb.WriteString(g.Element(a))
	}
	return sb.String()
}

// Reverse returns the walk traversed from the other end.
func (w Walk) Reverse() Walk {
	n := len(w.Atoms)
	r := Walk{Atoms: make([]AtomID, n), Orders: make([]BondOrder, len(w.Orders))}
	for i, a := range w.Atoms {
		r.Atoms[n-1-i] = a
	}
	for i, o := range w.Orders {
		r.Orders[len(w.Orders)-1-i] = o
	}
	return r
}

// PrefixFilter decides whether a partial walk string can still grow into a
// pattern of interest. A nil filter keeps everything.
type PrefixFilter func(prefix string) bool

// VisitWalks calls visit for every simple walk of minAtoms..maxAtoms atoms,
// starting from every atom, so each path is seen once per direction. Partial
// walks rejected by keep are not extended. The Walk passed to visit is reused;
// copy it to retain it.
func VisitWalks(g *Graph, minAtoms, maxAtoms int, keep PrefixFilter, visit func(w Walk, rendered string)) {
	if maxAtoms < 1 || minAtoms > maxAtoms {
		return
	}
	adj := g.Adjacency()
	visited := make([]bool, len(g.Atoms))
	w := Walk{Atoms: make([]AtomID, 0, maxAtoms), Orders: make([]BondOrder, 0, maxAtoms)}

	var extend func(prefix string)
	extend = func(prefix string) {
		if len(w.Atoms) >= minAtoms {
			visit(w, prefix)
		}
		if len(w.Atoms) == maxAtoms {
			return
		}
		tail := w.Atoms[len(w.Atoms)-1]
		for _, nb := range adj[tail] {
			if visited[nb.Atom] {
				continue
			}
			order := g.Bonds[nb.Bond].Order
			next := prefix + string(order.Symbol()) + g.Atoms[nb.Atom].Element
			if keep != nil && !keep(next) {
				continue
			}
			visited[nb.Atom] = true
			w.Atoms = append(w.Atoms, nb.Atom)
			w.Orders = append(w.Orders, order)
			extend(next)
			w.Atoms = w.Atoms[:len(w.Atoms)-1]
			w.Orders = w.Orders[:len(w.Orders)-1]
			visited[nb.Atom] = false
		}
	}

	for i := range g.Atoms {
		start := g.Atoms[i].Element
		if keep != nil && !keep(start) {
			continue
		}
		visited[i] = true
		w.Atoms = append(w.Atoms[:0], AtomID(i))
		w.Orders = w.Orders[:0]
		extend(start)
		visited[i] = false
	}
}

// EnumerateWalks collects the walks VisitWalks produces.
func EnumerateWalks(g *Graph, minAtoms, maxAtoms int, keep PrefixFilter) []Walk {
	var out []Walk
	VisitWalks(g, minAtoms, maxAtoms, keep, func(w Walk, _ string) {
		out = append(out, Walk{
			Atoms:  append([]AtomID(nil), w.Atoms...),
			Orders: append([]BondOrder(nil), w.Orders...),
		})
	})
	return out
}

// RingTuple is a run of consecutive ring atoms offered to the ring
// substitution probes together with the kind of ring it was taken from.
type RingTuple struct {
	Atoms []AtomID `json:"atoms"`
	Kind  RingKind `json:"kind"`
}

// TupleSize returns the tuple length probed on rings of kind k, 0 if none.
func TupleSize(k RingKind) int {
	switch k {
	case RingBenzene, RingCyclohexane:
		return 4
	case RingCyclopentane:
		return 3
	}
	return 0
}

// EnumerateRingTuples returns, for every benzene, cyclohexane or cyclopentane
// ring, each window of TupleSize consecutive members starting at every member
// and running in both directions.
func EnumerateRingTuples(g *Graph) []RingTuple {
	var out []RingTuple
	for ri := range g.Rings {
		r := &g.Rings[ri]
		k := TupleSize(r.Kind)
		n := len(r.Atoms)
		if k == 0 || n < k {
			continue
		}
		for start := 0; start < n; start++ {
			for _, dir := range [2]int{1, -1} {
				t := RingTuple{Atoms: make([]AtomID, k), Kind: r.Kind}
				for j := 0; j < k; j++ {
					t.Atoms[j] = r.Atoms[((start+dir*j)%n+n)%n]
				}
				out = append(out, t)
			}
		}
	}
	return out
}
