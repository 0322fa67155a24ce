package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/turtacn/pcfp/internal/domain/molecule"
)

// MustBuild builds b and fails the test on error.
func MustBuild(tb testing.TB, b *molecule.Builder) *molecule.Graph {
	tb.Helper()
	g, err := b.Build()
	require.NoError(tb, err)
	return g
}

// aromaticRing adds n aromatic atoms of element el, each carrying h hydrogens,
// bonds them into a ring and returns their ids.
func aromaticRing(b *molecule.Builder, n int, el string, h []int) []molecule.AtomID {
	ids := make([]molecule.AtomID, n)
	for i := range ids {
		ids[i] = b.AddAtom(el, h[i])
	}
	for i := range ids {
		b.AddBond(ids[i], ids[(i+1)%n], molecule.BondAromatic)
	}
	b.AddRing(ids...)
	return ids
}

// Benzene is c1ccccc1.
func Benzene(tb testing.TB) *molecule.Graph {
	b := molecule.NewBuilder()
	aromaticRing(b, 6, "C", []int{1, 1, 1, 1, 1, 1})
	return MustBuild(tb, b)
}

// ParaChlorotoluene is Cc1ccc(Cl)cc1 with explicit hydrogens.
func ParaChlorotoluene(tb testing.TB) *molecule.Graph {
	b := molecule.NewBuilder()
	ring := aromaticRing(b, 6, "C", []int{0, 1, 1, 0, 1, 1})
	me := b.AddAtom("C", 3)
	cl := b.AddAtom("Cl", 0)
	b.AddBond(ring[0], me, molecule.BondSingle)
	b.AddBond(ring[3], cl, molecule.BondSingle)
	return MustBuild(tb, b)
}

// Naphthalene is c1ccc2ccccc2c1: two aromatic rings fused through one bond.
func Naphthalene(tb testing.TB) *molecule.Graph {
	b := molecule.NewBuilder()
	ids := make([]molecule.AtomID, 10)
	hs := []int{1, 1, 1, 1, 0, 1, 1, 1, 1, 0}
	for i := range ids {
		ids[i] = b.AddAtom("C", hs[i])
	}
	// 0-1-2-3-4-9 and 4-5-6-7-8-9 share the 4-9 bond.
	for _, p := range [][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 4}, {4, 9}, {9, 0}, {4, 5}, {5, 6}, {6, 7}, {7, 8}, {8, 9}} {
		b.AddBond(ids[p[0]], ids[p[1]], molecule.BondAromatic)
	}
	b.AddRing(ids[0], ids[1], ids[2], ids[3], ids[4], ids[9])
	b.AddRing(ids[4], ids[5], ids[6], ids[7], ids[8], ids[9])
	return MustBuild(tb, b)
}

// Bicyclopentyl is C1CCC(C1)C1CCCC1: two saturated carbocyclic 5-rings
// joined by a non-ring bond, so each ring forms its own ring set.
func Bicyclopentyl(tb testing.TB) *molecule.Graph {
	b := molecule.NewBuilder()
	ring := func() []molecule.AtomID {
		ids := make([]molecule.AtomID, 5)
		for i := range ids {
			h := 2
			if i == 0 {
				h = 1
			}
			ids[i] = b.AddAtom("C", h)
		}
		for i := range ids {
			b.AddBond(ids[i], ids[(i+1)%5], molecule.BondSingle)
		}
		b.AddRing(ids...)
		return ids
	}
	a, c := ring(), ring()
	b.AddBond(a[0], c[0], molecule.BondSingle)
	return MustBuild(tb, b)
}

// Spiro55 is C1CCC2(C1)CCCC2: two 5-rings sharing only one atom.
func Spiro55(tb testing.TB) *molecule.Graph {
	b := molecule.NewBuilder()
	spiro := b.AddAtom("C", 0)
	ring := func() {
		ids := []molecule.AtomID{spiro}
		for i := 0; i < 4; i++ {
			ids = append(ids, b.AddAtom("C", 2))
		}
		for i := range ids {
			b.AddBond(ids[i], ids[(i+1)%5], molecule.BondSingle)
		}
		b.AddRing(ids...)
	}
	ring()
	ring()
	return MustBuild(tb, b)
}

// Bicyclo330 is octahydropentalene: two saturated 5-rings fused through one bond.
func Bicyclo330(tb testing.TB) *molecule.Graph {
	b := molecule.NewBuilder()
	ids := make([]molecule.AtomID, 8)
	for i := range ids {
		h := 2
		if i == 0 || i == 4 {
			h = 1
		}
		ids[i] = b.AddAtom("C", h)
	}
	for _, p := range [][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 4}, {4, 0}, {4, 5}, {5, 6}, {6, 7}, {7, 0}} {
		b.AddBond(ids[p[0]], ids[p[1]], molecule.BondSingle)
	}
	b.AddRing(ids[0], ids[1], ids[2], ids[3], ids[4])
	b.AddRing(ids[0], ids[4], ids[5], ids[6], ids[7])
	return MustBuild(tb, b)
}

// Chain builds an acyclic heavy-atom chain without hydrogens from alternating
// elements and orders, e.g. Chain(tb, []string{"O","C","C","C","O"},
// []molecule.BondOrder{Double, Single, Single, Double}).
func Chain(tb testing.TB, elements []string, orders []molecule.BondOrder) *molecule.Graph {
	tb.Helper()
	require.Len(tb, orders, len(elements)-1)
	b := molecule.NewBuilder()
	ids := make([]molecule.AtomID, len(elements))
	for i, el := range elements {
		ids[i] = b.AddAtom(el, 0)
	}
	for i, o := range orders {
		b.AddBond(ids[i], ids[i+1], o)
	}
	return MustBuild(tb, b)
}

// AceticAcid is CC(=O)O with explicit hydrogens.
func AceticAcid(tb testing.TB) *molecule.Graph {
	b := molecule.NewBuilder()
	me := b.AddAtom("C", 3)
	c := b.AddAtom("C", 0)
	o1 := b.AddAtom("O", 0)
	o2 := b.AddAtom("O", 1)
	b.AddBond(me, c, molecule.BondSingle)
	b.AddBond(c, o1, molecule.BondDouble)
	b.AddBond(c, o2, molecule.BondSingle)
	return MustBuild(tb, b)
}

// Pyridine is c1ccncc1.
func Pyridine(tb testing.TB) *molecule.Graph {
	b := molecule.NewBuilder()
	ids := make([]molecule.AtomID, 6)
	for i := range ids {
		if i == 3 {
			ids[i] = b.AddAtom("N", 0)
			continue
		}
		ids[i] = b.AddAtom("C", 1)
	}
	for i := range ids {
		b.AddBond(ids[i], ids[(i+1)%6], molecule.BondAromatic)
	}
	b.AddRing(ids...)
	return MustBuild(tb, b)
}

// Cyclohexene is C1=CCCCC1: an unsaturated non-aromatic carbocycle.
func Cyclohexene(tb testing.TB) *molecule.Graph {
	b := molecule.NewBuilder()
	ids := make([]molecule.AtomID, 6)
	for i := range ids {
		h := 2
		if i < 2 {
			h = 1
		}
		ids[i] = b.AddAtom("C", h)
	}
	for i := range ids {
		o := molecule.BondSingle
		if i == 0 {
			o = molecule.BondDouble
		}
		b.AddBond(ids[i], ids[(i+1)%6], o)
	}
	b.AddRing(ids...)
	return MustBuild(tb, b)
}
