package fingerprint

import (
	"strings"

	"github.com/turtacn/pcfp/internal/domain/molecule"
)

// ─────────────────────────────────────────────────────────────────────────────
// Section 3: simple atom pairs
// ─────────────────────────────────────────────────────────────────────────────

// atomPairNames is section 3 in bit order.
var atomPairNames = [...]string{
	"Li-H", "Li-Li", "Li-B", "Li-C", "Li-O", "Li-F", "Li-P", "Li-S", "Li-Cl",
	"B-H", "B-B", "B-C", "B-N", "B-O", "B-F", "B-Si", "B-P", "B-S", "B-Cl", "B-Br",
	"C-H", "C-C", "C-N", "C-O", "C-F", "C-Na", "C-Mg", "C-Al", "C-Si", "C-P",
	"C-S", "C-Cl", "C-As", "C-Se", "C-Br", "C-I",
	"N-H", "N-N", "N-O", "N-F", "N-Si", "N-P", "N-S", "N-Cl", "N-Br",
	"O-H", "O-O", "O-Mg", "O-Na", "O-Al", "O-Si", "O-P", "O-K",
	"F-P", "F-S", "Al-H", "Al-Cl", "Si-H", "Si-Si", "Si-Cl", "P-H", "P-P",
	"As-H", "As-As",
}

// multipleBondPairs maps order-specific pairs onto the section 3 bit they
// set. Double and triple bonds match only through this table.
var multipleBondPairs = map[string]string{
	"C=C":  "C-C",
	"C#C":  "C-C",
	"C=N":  "C-N",
	"C#N":  "C-N",
	"C=O":  "C-O",
	"C=S":  "C-S",
	"C=P":  "C-P",
	"C=Si": "C-Si",
	"N=N":  "N-N",
	"N=O":  "N-O",
	"O=P":  "O-P",
	"B=N":  "B-N",
}

type elementPair struct{ a, b string }

func newElementPair(a, b string) elementPair {
	if b < a {
		a, b = b, a
	}
	return elementPair{a: a, b: b}
}

type pairTables struct {
	single   map[elementPair]int
	multiple map[molecule.BondOrder]map[elementPair]int
}

var bondPairTables = func() pairTables {
	first, _ := SectionAtomPairs.Range()
	t := pairTables{
		single:   make(map[elementPair]int, len(atomPairNames)),
		multiple: map[molecule.BondOrder]map[elementPair]int{},
	}
	for i, name := range atomPairNames {
		parts := strings.SplitN(name, "-", 2)
		t.single[newElementPair(parts[0], parts[1])] = first + i
	}
	for pattern, target := range multipleBondPairs {
		sep := strings.IndexAny(pattern, "=#")
		order, _ := molecule.BondOrderFromSymbol(pattern[sep])
		if t.multiple[order] == nil {
			t.multiple[order] = map[elementPair]int{}
		}
		parts := strings.SplitN(target, "-", 2)
		t.multiple[order][newElementPair(pattern[:sep], pattern[sep+1:])] = t.single[newElementPair(parts[0], parts[1])]
	}
	return t
}()

// ─────────────────────────────────────────────────────────────────────────────
// Extractor
// ─────────────────────────────────────────────────────────────────────────────

// bondPairExtractor sets a presence bit per bonded element pair.
type bondPairExtractor struct{}

func (bondPairExtractor) Name() string { return "bond_pairs" }

func (bondPairExtractor) Extract(in *Input, fp *Fingerprint) error {
	g := in.Graph
	for i := range g.Bonds {
		b := &g.Bonds[i]
		pair := newElementPair(g.Atoms[b.Begin].Element, g.Atoms[b.End].Element)
		var (
			bit int
			ok  bool
		)
		switch b.Order {
		case molecule.BondSingle, molecule.BondAromatic:
			bit, ok = bondPairTables.single[pair]
		case molecule.BondDouble, molecule.BondTriple:
			bit, ok = bondPairTables.multiple[b.Order][pair]
		}
		if !ok {
			continue
		}
		fp.set(bit)
		if in.explaining() {
			in.witness(bit, Witness{Extractor: "bond_pairs", Atoms: []molecule.AtomID{b.Begin, b.End}})
		}
	}
	return nil
}
