package fingerprint

import (
	"fmt"

	"github.com/turtacn/pcfp/internal/domain/molecule"
)

// ─────────────────────────────────────────────────────────────────────────────
// Section 7: complex SMARTS patterns
// ─────────────────────────────────────────────────────────────────────────────

// substituents in classification priority. The first element found among
// a probe atom's outside neighbours names the substituent.
var substituents = [...]string{"C", "O", "S", "N", "Cl", "Br"}

const substituentPairs = len(substituents) * (len(substituents) + 1) / 2

// ringFamily is one substitution geometry: a ring kind, the two probe
// positions within a tuple, and the name template for the bit.
type ringFamily struct {
	kind     molecule.RingKind
	probes   [2]int
	template string
}

var ringFamilies = [...]ringFamily{
	{molecule.RingBenzene, [2]int{0, 3}, "%sc1ccc(%s)cc1"},
	{molecule.RingBenzene, [2]int{0, 2}, "%sc1cc(%s)ccc1"},
	{molecule.RingBenzene, [2]int{0, 1}, "%sc1c(%s)cccc1"},
	{molecule.RingCyclohexane, [2]int{0, 3}, "%sC1CCC(%s)CC1"},
	{molecule.RingCyclohexane, [2]int{0, 2}, "%sC1CC(%s)CCC1"},
	{molecule.RingCyclohexane, [2]int{0, 1}, "%sC1C(%s)CCCC1"},
	{molecule.RingCyclopentane, [2]int{0, 2}, "%sC1CC(%s)CC1"},
	{molecule.RingCyclopentane, [2]int{0, 1}, "%sC1C(%s)CCC1"},
}

// pairIndex maps an unordered substituent pair to 0..20.
func pairIndex(i, j int) int {
	if i > j {
		i, j = j, i
	}
	idx := 0
	for k := 0; k < i; k++ {
		idx += len(substituents) - k
	}
	return idx + j - i
}

func ringSubstitutionKeyNames() []string {
	names := make([]string, len(ringFamilies)*substituentPairs)
	for f, fam := range ringFamilies {
		for i := range substituents {
			for j := i; j < len(substituents); j++ {
				names[f*substituentPairs+pairIndex(i, j)] = fmt.Sprintf(fam.template, substituents[i], substituents[j])
			}
		}
	}
	return names
}

func ringSubstitutionBit(family, i, j int) int {
	first, _ := SectionRingSubstitution.Range()
	return first + family*substituentPairs + pairIndex(i, j)
}

// ─────────────────────────────────────────────────────────────────────────────
// Ring tuples
// ─────────────────────────────────────────────────────────────────────────────

// commonRing returns the single ring every tuple atom belongs to.
func commonRing(g *molecule.Graph, t molecule.RingTuple) (*molecule.Ring, bool) {
	tally := map[molecule.RingID]int{}
	for _, a := range t.Atoms {
		for _, rid := range g.Atoms[a].SharedRingIDs {
			tally[rid]++
		}
	}
	var found *molecule.Ring
	for rid, n := range tally {
		if n != len(t.Atoms) {
			continue
		}
		if found != nil {
			return nil, false
		}
		found = &g.Rings[rid]
	}
	return found, found != nil
}

func sharesRing(g *molecule.Graph, a, b molecule.AtomID) bool {
	for _, x := range g.Atoms[a].SharedRingIDs {
		for _, y := range g.Atoms[b].SharedRingIDs {
			if x == y {
				return true
			}
		}
	}
	return false
}

// substituentOf classifies what hangs off ring atom a. Neighbours that sit
// in another ring with a (fused partners) are not substituents.
func substituentOf(g *molecule.Graph, r *molecule.Ring, a molecule.AtomID) (int, bool) {
	var present [len(substituents)]bool
	for _, o := range r.Outside[a] {
		if sharesRing(g, a, o) {
			continue
		}
		for i, el := range substituents {
			if g.Atoms[o].Element == el {
				present[i] = true
			}
		}
	}
	for i, ok := range present {
		if ok {
			return i, true
		}
	}
	return 0, false
}

// ─────────────────────────────────────────────────────────────────────────────
// Extractor
// ─────────────────────────────────────────────────────────────────────────────

// ringSubstitutionExtractor probes ring tuples for substituent pairs.
type ringSubstitutionExtractor struct{}

func (ringSubstitutionExtractor) Name() string { return "ring_substitution" }

func (ringSubstitutionExtractor) Extract(in *Input, fp *Fingerprint) error {
	g := in.Graph
	tuples := in.Tuples
	if tuples == nil {
		tuples = molecule.EnumerateRingTuples(g)
	} else {
		for i, t := range tuples {
			if err := checkTuple(g, t); err != nil {
				return molecule.MalformedError("ring tuple", i, "%v", err)
			}
		}
	}
	for _, t := range tuples {
		ring, ok := commonRing(g, t)
		if !ok || ring.Kind != t.Kind {
			continue
		}
		for f, fam := range ringFamilies {
			if fam.kind != t.Kind {
				continue
			}
			a, b := t.Atoms[fam.probes[0]], t.Atoms[fam.probes[1]]
			si, ok := substituentOf(g, ring, a)
			if !ok {
				continue
			}
			sj, ok := substituentOf(g, ring, b)
			if !ok {
				continue
			}
			bit := ringSubstitutionBit(f, si, sj)
			fp.set(bit)
			if in.explaining() {
				in.witness(bit, Witness{
					Extractor: "ring_substitution",
					Atoms:     append([]molecule.AtomID(nil), t.Atoms...),
					Rings:     []molecule.RingID{ring.ID},
				})
			}
		}
	}
	return nil
}

func checkTuple(g *molecule.Graph, t molecule.RingTuple) error {
	size := molecule.TupleSize(t.Kind)
	if size == 0 {
		return fmt.Errorf("ring kind %s is not probed", t.Kind)
	}
	if len(t.Atoms) != size {
		return fmt.Errorf("%d atoms for a %s tuple, want %d", len(t.Atoms), t.Kind, size)
	}
	for _, a := range t.Atoms {
		if int(a) < 0 || int(a) >= len(g.Atoms) {
			return fmt.Errorf("unknown atom %d", a)
		}
	}
	return nil
}
