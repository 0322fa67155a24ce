package molecule

import (
	"sort"

	"github.com/turtacn/pcfp/pkg/errors"
)

type atomSpec struct {
	element   string
	hydrogens int
}

type bondSpec struct {
	a, b  AtomID
	order BondOrder
}

type pairKey struct{ lo, hi AtomID }

func newPairKey(a, b AtomID) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{lo: a, hi: b}
}

// Builder assembles a Graph from atoms, bonds and perceived rings and derives
// every annotation the fingerprint engine reads: ring membership, neighbour
// environments, ring statistics and kinds, outside-atom maps, ring sets and
// the formula.
//
// Implicit hydrogens are materialised as explicit H atoms appended after all
// added atoms, each joined by a single bond.
type Builder struct {
	atoms   []atomSpec
	bonds   []bondSpec
	rings   [][]AtomID
	formula Formula
	err     error
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// AddAtom appends an atom carrying hydrogens implicit hydrogens and returns its id.
func (b *Builder) AddAtom(element string, hydrogens int) AtomID {
	id := AtomID(len(b.atoms))
	el, ok := NormalizeElement(element)
	if !ok {
		b.fail(errors.New(errors.ErrCodeMoleculeInvalidFormat, "unknown element").WithDetail(element))
	}
	if hydrogens < 0 {
		b.fail(malformed("atom", int(id), "negative hydrogen count %d", hydrogens))
	}
	b.atoms = append(b.atoms, atomSpec{element: el, hydrogens: hydrogens})
	return id
}

// AddBond joins atoms a and c.
func (b *Builder) AddBond(a, c AtomID, order BondOrder) BondID {
	id := BondID(len(b.bonds))
	if !order.Valid() {
		b.fail(malformed("bond", int(id), "invalid bond order %s", order))
	}
	b.bonds = append(b.bonds, bondSpec{a: a, b: c, order: order})
	return id
}

// AddRing records a perceived ring given its members in ring order.
func (b *Builder) AddRing(atoms ...AtomID) RingID {
	id := RingID(len(b.rings))
	b.rings = append(b.rings, append([]AtomID(nil), atoms...))
	return id
}

// SetFormula overrides the formula tallied from the atoms.
func (b *Builder) SetFormula(f Formula) *Builder {
	b.formula = make(Formula, len(f))
	for k, v := range f {
		b.formula[k] = v
	}
	return b
}

// Build derives all annotations and validates the result.
func (b *Builder) Build() (*Graph, error) {
	if b.err != nil {
		return nil, b.err
	}
	g := &Graph{}
	heavy := len(b.atoms)

	for i, spec := range b.atoms {
		g.Atoms = append(g.Atoms, Atom{ID: AtomID(i), Element: spec.element})
	}
	bondIndex := make(map[pairKey]BondID, len(b.bonds))
	addBond := func(a, c AtomID, order BondOrder) error {
		id := BondID(len(g.Bonds))
		if int(a) < 0 || int(a) >= len(g.Atoms) || int(c) < 0 || int(c) >= len(g.Atoms) {
			return malformed("bond", int(id), "references unknown atom (%d, %d)", a, c)
		}
		if a == c {
			return malformed("bond", int(id), "self loop on atom %d", a)
		}
		k := newPairKey(a, c)
		if prev, dup := bondIndex[k]; dup {
			return malformed("bond", int(id), "duplicates bond %d", prev)
		}
		bondIndex[k] = id
		g.Bonds = append(g.Bonds, Bond{ID: id, Begin: a, End: c, Order: order})
		return nil
	}
	for _, spec := range b.bonds {
		if err := addBond(spec.a, spec.b, spec.order); err != nil {
			return nil, err
		}
	}
	for i := 0; i < heavy; i++ {
		for h := 0; h < b.atoms[i].hydrogens; h++ {
			hid := AtomID(len(g.Atoms))
			g.Atoms = append(g.Atoms, Atom{ID: hid, Element: Hydrogen})
			if err := addBond(AtomID(i), hid, BondSingle); err != nil {
				return nil, err
			}
		}
	}

	for i := range g.Bonds {
		bd := &g.Bonds[i]
		g.Atoms[bd.Begin].Environment.Add(bd.Order, g.Atoms[bd.End].Element)
		g.Atoms[bd.End].Environment.Add(bd.Order, g.Atoms[bd.Begin].Element)
	}

	ringBonds := make([][]BondID, len(b.rings))
	for ri, members := range b.rings {
		if len(members) < 3 {
			return nil, malformed("ring", ri, "has %d members, need at least 3", len(members))
		}
		seen := make(map[AtomID]bool, len(members))
		for j, a := range members {
			if int(a) < 0 || int(a) >= len(g.Atoms) {
				return nil, malformed("ring", ri, "references unknown atom %d", a)
			}
			if seen[a] {
				return nil, malformed("ring", ri, "repeats atom %d", a)
			}
			seen[a] = true
			next := members[(j+1)%len(members)]
			bid, ok := bondIndex[newPairKey(a, next)]
			if !ok {
				return nil, malformed("ring", ri, "members %d and %d are not bonded", a, next)
			}
			ringBonds[ri] = append(ringBonds[ri], bid)
		}
		for _, bid := range ringBonds[ri] {
			g.Bonds[bid].InRing = true
		}
		for _, a := range members {
			g.Atoms[a].InRing = true
			g.Atoms[a].SharedRingIDs = append(g.Atoms[a].SharedRingIDs, RingID(ri))
		}
	}

	adj := g.Adjacency()
	for ri, members := range b.rings {
		g.Rings = append(g.Rings, newRing(g, RingID(ri), members, ringBonds[ri], adj))
	}
	g.RingSets = groupRingSets(len(b.rings), ringBonds)

	if b.formula != nil {
		g.Formula = b.formula
	} else {
		g.Formula = Formula{}
		for i := range g.Atoms {
			g.Formula[g.Atoms[i].Element]++
		}
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func newRing(g *Graph, id RingID, members []AtomID, bonds []BondID, adj [][]Neighbor) Ring {
	r := Ring{ID: id, Atoms: members, Outside: make(map[AtomID][]AtomID, len(members))}
	aromatic, allSingle := true, true
	for _, bid := range bonds {
		switch g.Bonds[bid].Order {
		case BondAromatic:
			allSingle = false
		case BondDouble:
			r.DoubleBondCount++
			aromatic, allSingle = false, false
		case BondSingle:
			aromatic = false
		default:
			aromatic, allSingle = false, false
		}
	}
	r.IsAromatic = aromatic
	for _, a := range members {
		switch g.Atoms[a].Element {
		case Carbon:
			r.CarbonCount++
		case Nitrogen:
			r.NitrogenCount++
			r.IsHetero = true
		case Hydrogen:
		default:
			r.IsHetero = true
		}
	}
	for _, a := range members {
		var out []AtomID
		for _, nb := range adj[a] {
			if !r.Contains(nb.Atom) {
				out = append(out, nb.Atom)
			}
		}
		if len(out) > 0 {
			r.Outside[a] = out
		}
	}
	r.Kind = classifyRing(len(members), r.CarbonCount, aromatic, allSingle)
	return r
}

func classifyRing(size, carbons int, aromatic, allSingle bool) RingKind {
	if carbons != size {
		return RingOther
	}
	switch {
	case size == 6 && aromatic:
		return RingBenzene
	case size == 6 && allSingle:
		return RingCyclohexane
	case size == 5 && allSingle:
		return RingCyclopentane
	}
	return RingOther
}

// groupRingSets unions rings that share a bond. Set ids follow the smallest
// member ring id; members are listed ascending.
func groupRingSets(n int, ringBonds [][]BondID) []RingSet {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	owner := map[BondID]int{}
	for ri, bonds := range ringBonds {
		for _, bid := range bonds {
			if other, ok := owner[bid]; ok {
				a, c := find(ri), find(other)
				if a != c {
					if a < c {
						parent[c] = a
					} else {
						parent[a] = c
					}
				}
				continue
			}
			owner[bid] = ri
		}
	}
	byRoot := map[int][]RingID{}
	var roots []int
	for ri := 0; ri < n; ri++ {
		root := find(ri)
		if _, ok := byRoot[root]; !ok {
			roots = append(roots, root)
		}
		byRoot[root] = append(byRoot[root], RingID(ri))
	}
	sort.Ints(roots)
	sets := make([]RingSet, 0, len(roots))
	for i, root := range roots {
		sets = append(sets, RingSet{ID: RingSetID(i), Rings: byRoot[root]})
	}
	return sets
}
