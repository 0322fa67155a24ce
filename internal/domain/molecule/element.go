package molecule

import (
	"strings"
)

// periodicTable lists every element symbol accepted in a molecule document.
var periodicTable = []string{
	"H", "He",
	"Li", "Be", "B", "C", "N", "O", "F", "Ne",
	"Na", "Mg", "Al", "Si", "P", "S", "Cl", "Ar",
	"K", "Ca", "Sc", "Ti", "V", "Cr", "Mn", "Fe", "Co", "Ni", "Cu", "Zn",
	"Ga", "Ge", "As", "Se", "Br", "Kr",
	"Rb", "Sr", "Y", "Zr", "Nb", "Mo", "Tc", "Ru", "Rh", "Pd", "Ag", "Cd",
	"In", "Sn", "Sb", "Te", "I", "Xe",
	"Cs", "Ba", "La", "Ce", "Pr", "Nd", "Pm", "Sm", "Eu", "Gd", "Tb", "Dy",
	"Ho", "Er", "Tm", "Yb", "Lu", "Hf", "Ta", "W", "Re", "Os", "Ir", "Pt",
	"Au", "Hg", "Tl", "Pb", "Bi", "Po", "At", "Rn",
	"Fr", "Ra", "Ac", "Th", "Pa", "U", "Np", "Pu", "Am", "Cm", "Bk", "Cf",
	"Es", "Fm", "Md", "No", "Lr", "Rf", "Db", "Sg", "Bh", "Hs", "Mt", "Ds",
	"Rg", "Cn", "Nh", "Fl", "Mc", "Lv", "Ts", "Og",
}

var knownElements = func() map[string]struct{} {
	m := make(map[string]struct{}, len(periodicTable))
	for _, s := range periodicTable {
		m[s] = struct{}{}
	}
	return m
}()

// Frequently compared symbols.
const (
	Hydrogen = "H"
	Carbon   = "C"
	Nitrogen = "N"
)

// NormalizeElement canonicalises an element symbol: surrounding space is
// trimmed and case is fixed, so the SMILES aromatic spellings "c" and "cl"
// become "C" and "Cl". The second result is false for unknown symbols.
func NormalizeElement(symbol string) (string, bool) {
	s := strings.TrimSpace(symbol)
	if s == "" {
		return "", false
	}
	s = strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
	_, ok := knownElements[s]
	return s, ok
}

// IsKnownElement reports whether symbol is an exact periodic-table symbol.
func IsKnownElement(symbol string) bool {
	_, ok := knownElements[symbol]
	return ok
}
