package fingerprint

import (
	"fmt"

	"github.com/turtacn/pcfp/internal/domain/molecule"
)

// ─────────────────────────────────────────────────────────────────────────────
// Section 2: rings in a canonical ESSSR ring set
// ─────────────────────────────────────────────────────────────────────────────

// Ring composition cells of section 2, in bit order within one threshold row.
const (
	cellAny = iota
	cellSatCarbon
	cellSatNitrogen
	cellSatHetero
	cellUnsatCarbon
	cellUnsatNitrogen
	cellUnsatHetero
	ringCellCount
)

var ringCellNames = [ringCellCount]string{
	"any ring",
	"saturated or aromatic carbon-only ring",
	"saturated or aromatic nitrogen-containing ring",
	"saturated or aromatic heteroatom-containing ring",
	"unsaturated non-aromatic carbon-only ring",
	"unsaturated non-aromatic nitrogen-containing ring",
	"unsaturated non-aromatic heteroatom-containing ring",
}

// ringLadders gives, per size bucket, how many ">= N" rows of cells exist.
var ringLadders = []struct {
	size, rows int
}{
	{3, 2}, {4, 2}, {5, 5}, {6, 5}, {7, 2}, {8, 2}, {9, 1}, {10, 1},
}

const (
	minRingBucket   = 3
	maxRingBucket   = 10
	aromaticLadders = 4
)

// ringRowBase[size] is the bit of the ">= 1" row, cell 0, for that size.
var ringRowBase = func() [maxRingBucket + 1]int {
	var base [maxRingBucket + 1]int
	next, _ := SectionRings.Range()
	for _, l := range ringLadders {
		base[l.size] = next
		next += l.rows * ringCellCount
	}
	return base
}()

func aromaticBase() int {
	_, last := SectionRings.Range()
	return last - 2*aromaticLadders + 1
}

func ringKeyNames() []string {
	var names []string
	for _, l := range ringLadders {
		for row := 1; row <= l.rows; row++ {
			for c := 0; c < ringCellCount; c++ {
				names = append(names, fmt.Sprintf(">= %d %s size %d", row, ringCellNames[c], l.size))
			}
		}
	}
	for row := 1; row <= aromaticLadders; row++ {
		plural := "s"
		if row == 1 {
			plural = ""
		}
		names = append(names,
			fmt.Sprintf(">= %d aromatic ring%s", row, plural),
			fmt.Sprintf(">= %d hetero-aromatic ring%s", row, plural))
	}
	return names
}

// ─────────────────────────────────────────────────────────────────────────────
// Ring classification
// ─────────────────────────────────────────────────────────────────────────────

// ringBucket maps a ring size onto its size bucket. Rings above the largest
// bucket are counted in it.
func ringBucket(size int) int {
	if size > maxRingBucket {
		return maxRingBucket
	}
	return size
}

// ringCells lists the composition cells a ring contributes to.
func ringCells(r *molecule.Ring) []int {
	cells := []int{cellAny}
	base := cellSatCarbon
	if !r.IsAromatic && r.DoubleBondCount > 0 {
		base = cellUnsatCarbon
	}
	if !r.IsHetero {
		cells = append(cells, base)
	}
	if r.NitrogenCount > 0 {
		cells = append(cells, base+1)
	}
	if r.IsHetero {
		cells = append(cells, base+2)
	}
	return cells
}

// ─────────────────────────────────────────────────────────────────────────────
// Extractor
// ─────────────────────────────────────────────────────────────────────────────

// ringStatisticsExtractor tallies rings per ring set, applies the count
// ladders to each set independently and ORs the per-set results.
type ringStatisticsExtractor struct{}

func (ringStatisticsExtractor) Name() string { return "ring_statistics" }

func (ringStatisticsExtractor) Extract(in *Input, fp *Fingerprint) error {
	g := in.Graph
	for si := range g.RingSets {
		set := &g.RingSets[si]
		var tally [maxRingBucket + 1][ringCellCount]int
		aromatic, heteroAromatic := 0, 0

		for _, rid := range set.Rings {
			r := &g.Rings[rid]
			bucket := ringBucket(r.Size())
			if bucket >= minRingBucket {
				for _, c := range ringCells(r) {
					tally[bucket][c]++
				}
			}
			if r.IsAromatic {
				aromatic++
				if r.IsHetero {
					heteroAromatic++
				}
			}
		}

		local := newBitVector()
		for _, l := range ringLadders {
			for c := 0; c < ringCellCount; c++ {
				for row := 1; row <= l.rows && row <= tally[l.size][c]; row++ {
					local.Set(uint(ringRowBase[l.size] + (row-1)*ringCellCount + c))
				}
			}
		}
		ab := aromaticBase()
		for row := 1; row <= aromaticLadders; row++ {
			if aromatic >= row {
				local.Set(uint(ab + 2*(row-1)))
			}
			if heteroAromatic >= row {
				local.Set(uint(ab + 2*(row-1) + 1))
			}
		}

		if in.explaining() {
			for i, ok := local.NextSet(0); ok; i, ok = local.NextSet(i + 1) {
				in.witness(int(i), Witness{
					Extractor: "ring_statistics",
					Rings:     append([]molecule.RingID(nil), set.Rings...),
					Detail:    fmt.Sprintf("ring set %d", set.ID),
				})
			}
		}
		fp.merge(local)
	}
	return nil
}
