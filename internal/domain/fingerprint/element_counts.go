package fingerprint

import (
	"fmt"
)

// ─────────────────────────────────────────────────────────────────────────────
// Section 1: hierarchic element counts
// ─────────────────────────────────────────────────────────────────────────────

type elementThreshold struct {
	element string
	min     int
}

// elementThresholds is section 1 in bit order: hierarchic count ladders
// for the common elements, then single presence bits.
var elementThresholds = func() []elementThreshold {
	ladders := []struct {
		element string
		mins    []int
	}{
		{"H", []int{4, 8, 16, 32}},
		{"Li", []int{1, 2}},
		{"B", []int{1, 2, 4}},
		{"C", []int{2, 4, 8, 16, 32}},
		{"N", []int{1, 2, 4, 8}},
		{"O", []int{1, 2, 4, 8, 16}},
		{"F", []int{1, 2, 4}},
		{"Na", []int{1, 2}},
		{"Si", []int{1, 2}},
		{"P", []int{1, 2, 4}},
		{"S", []int{1, 2, 4, 8}},
		{"Cl", []int{1, 2, 4, 8}},
		{"K", []int{1, 2}},
		{"Br", []int{1, 2, 4}},
		{"I", []int{1, 2, 4}},
	}
	presence := []string{
		"Be", "Mg", "Al", "Ca", "Sc", "Ti", "V", "Cr", "Mn", "Fe", "Co", "Ni",
		"Cu", "Zn", "Ga", "Ge", "As", "Se", "Kr", "Rb", "Sr", "Y", "Zr", "Nb",
		"Mo", "Ru", "Rh", "Pd", "Ag", "Cd", "In", "Sn", "Sb", "Te", "Xe", "Cs",
		"Ba", "Lu", "Hf", "Ta", "W", "Re", "Os", "Ir", "Pt", "Au", "Hg", "Tl",
		"Pb", "Bi", "La", "Ce", "Pr", "Nd", "Pm", "Sm", "Eu", "Gd", "Tb", "Dy",
		"Ho", "Er", "Tm", "Yb", "Tc", "U",
	}
	var out []elementThreshold
	for _, l := range ladders {
		for _, m := range l.mins {
			out = append(out, elementThreshold{element: l.element, min: m})
		}
	}
	for _, el := range presence {
		out = append(out, elementThreshold{element: el, min: 1})
	}
	return out
}()

func elementKeyNames() []string {
	names := make([]string, len(elementThresholds))
	for i, t := range elementThresholds {
		names[i] = fmt.Sprintf(">= %d %s", t.min, t.element)
	}
	return names
}

// ─────────────────────────────────────────────────────────────────────────────
// Extractor
// ─────────────────────────────────────────────────────────────────────────────

// elementCountExtractor thresholds whole-molecule element counts.
type elementCountExtractor struct{}

func (elementCountExtractor) Name() string { return "element_counts" }

func (elementCountExtractor) Extract(in *Input, fp *Fingerprint) error {
	first, _ := SectionElementCounts.Range()
	for i, t := range elementThresholds {
		if in.Graph.Formula.Count(t.element) >= t.min {
			fp.set(first + i)
			in.witness(first+i, Witness{Extractor: "element_counts"})
		}
	}
	return nil
}
