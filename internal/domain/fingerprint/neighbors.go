package fingerprint

import (
	"fmt"

	"github.com/turtacn/pcfp/internal/domain/molecule"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sections 4 and 5: atom neighbourhoods
// ─────────────────────────────────────────────────────────────────────────────

// neighborPatternNames is section 4 in bit order. "~" matches any bond
// order, ":" an aromatic bond; lowercase neighbours are aromatic atoms.
var neighborPatternNames = [...]string{
	"C(~Br)(~C)", "C(~Br)(~C)(~C)", "C(~Br)(~H)", "C(~Br)(:c)", "C(~Br)(:n)",
	"C(~C)(~C)", "C(~C)(~C)(~C)", "C(~C)(~C)(~C)(~C)", "C(~C)(~C)(~C)(~H)",
	"C(~C)(~C)(~C)(~N)", "C(~C)(~C)(~C)(~O)", "C(~C)(~C)(~H)(~N)", "C(~C)(~C)(~H)(~O)",
	"C(~C)(~C)(~N)", "C(~C)(~C)(~O)", "C(~C)(~Cl)", "C(~C)(~Cl)(~H)", "C(~C)(~H)",
	"C(~C)(~H)(~N)", "C(~C)(~H)(~O)", "C(~C)(~H)(~O)(~O)", "C(~C)(~H)(~P)",
	"C(~C)(~H)(~S)", "C(~C)(~I)", "C(~C)(~N)", "C(~C)(~N)(~N)", "C(~C)(~N)(~O)",
	"C(~C)(~O)", "C(~C)(~O)(~O)", "C(~C)(~P)", "C(~C)(~S)", "C(~C)(:c)",
	"C(~C)(:c)(:c)", "C(~C)(:c)(:n)", "C(~C)(:n)", "C(~C)(:n)(:n)", "C(~Cl)(~Cl)",
	"C(~Cl)(~H)", "C(~Cl)(:c)", "C(~F)(~F)", "C(~F)(:c)", "C(~H)(~N)", "C(~H)(~O)",
	"C(~H)(~O)(~O)", "C(~H)(~S)", "C(~H)(~Si)", "C(~H)(:c)", "C(~H)(:c)(:c)",
	"C(~H)(:c)(:n)", "C(~H)(:n)", "C(~H)(~H)(~H)", "C(~N)(~N)", "C(~N)(:c)",
	"C(~N)(:c)(:n)", "C(~N)(:n)", "C(~O)(~O)", "C(~O)(:c)", "C(~O)(:c)(:c)",
	"C(~S)(:c)", "C(:c)(:c)", "C(:c)(:c)(:c)", "C(:c)(:c)(:n)", "C(:c)(:n)",
	"C(:c)(:n)(:n)", "C(:n)(:n)",
	"N(~C)(~C)", "N(~C)(~C)(~C)", "N(~C)(~C)(~H)", "N(~C)(~H)", "N(~C)(~H)(~N)",
	"N(~C)(~O)", "N(~C)(:c)", "N(~C)(:c)(:c)", "N(~H)(~N)", "N(~H)(:c)",
	"N(~H)(:c)(:c)", "N(~O)(~O)", "N(~O)(:o)", "N(:c)(:c)",
	"O(~C)(~C)", "O(~C)(~H)", "O(~C)(~P)", "O(~H)(~S)", "O(:c)(:c)",
	"P(~C)(~C)", "P(~O)(~O)",
	"S(~C)(~C)", "S(~C)(~H)", "S(~C)(~O)",
}

// neighborhoodPatternNames is section 5 in bit order. Every bond is
// order-specific.
var neighborhoodPatternNames = [...]string{
	"C(-C)(-C)(=C)", "C(-C)(-C)(=N)", "C(-C)(-C)(=O)", "C(-C)(-Cl)(=O)",
	"C(-C)(-H)(=C)", "C(-C)(-H)(=N)", "C(-C)(-H)(=O)", "C(-C)(-N)(=C)",
	"C(-C)(-N)(=N)", "C(-C)(-N)(=O)", "C(-C)(-O)(=O)", "C(-C)(=C)", "C(-C)(=N)",
	"C(-C)(=O)", "C(-Cl)(=O)", "C(-H)(-N)(=C)", "C(-H)(=C)", "C(-H)(=N)",
	"C(-H)(=O)", "C(-N)(=C)", "C(-N)(=N)", "C(-N)(=O)", "C(-O)(=O)",
	"N(-C)(=C)", "N(-C)(=O)", "N(-O)(=O)", "P(-O)(=O)", "S(-C)(=O)",
	"S(-O)(=O)", "S(=O)(=O)",
	"C(-C)(#C)", "C(-C)(#N)", "C(-H)(#C)", "C(-N)(#N)", "C(=C)(=C)",
	"C(-C)(=S)", "C(-N)(=S)", "C(-S)(=O)", "C(-O)(=S)", "N(-N)(=N)",
	"N(-C)(=N)", "P(-C)(=O)", "P(-O)(=S)", "Si(-C)(-O)",
}

// ─────────────────────────────────────────────────────────────────────────────
// Pattern compilation
// ─────────────────────────────────────────────────────────────────────────────

type elementDemand struct {
	element string
	byOrder [5]int
}

// neighborPattern is a compiled "X(bond Y)(bond Z)..." pattern: a centre
// element plus minimum neighbour counts per element and bond order.
type neighborPattern struct {
	bit     int
	name    string
	center  string
	demands []elementDemand
}

func parseElementToken(s string, pos int) (string, int, error) {
	end := pos
	for end < len(s) && s[end] != ')' && s[end] != '(' {
		end++
	}
	el, ok := molecule.NormalizeElement(s[pos:end])
	if !ok {
		return "", pos, fmt.Errorf("unknown element %q", s[pos:end])
	}
	return el, end, nil
}

func parseNeighborPattern(bit int, name string) (neighborPattern, error) {
	p := neighborPattern{bit: bit, name: name}
	center, pos, err := parseElementToken(name, 0)
	if err != nil {
		return p, fmt.Errorf("pattern %q: %w", name, err)
	}
	p.center = center
	index := map[string]int{}
	for pos < len(name) {
		if name[pos] != '(' || pos+1 >= len(name) {
			return p, fmt.Errorf("pattern %q: expected '(' at %d", name, pos)
		}
		order, ok := molecule.BondOrderFromSymbol(name[pos+1])
		if !ok {
			return p, fmt.Errorf("pattern %q: bad bond symbol at %d", name, pos+1)
		}
		var el string
		el, pos, err = parseElementToken(name, pos+2)
		if err != nil {
			return p, fmt.Errorf("pattern %q: %w", name, err)
		}
		if pos >= len(name) || name[pos] != ')' {
			return p, fmt.Errorf("pattern %q: unterminated group", name)
		}
		pos++
		i, seen := index[el]
		if !seen {
			i = len(p.demands)
			index[el] = i
			p.demands = append(p.demands, elementDemand{element: el})
		}
		p.demands[i].byOrder[order]++
	}
	return p, nil
}

// matches reports whether the environment can supply distinct neighbours
// for every group. Order-specific groups draw from their own tally; "~"
// groups take whatever is left of the element's total.
func (p *neighborPattern) matches(a *molecule.Atom) bool {
	if a.Element != p.center {
		return false
	}
	env := a.Environment
	for _, d := range p.demands {
		total := d.byOrder[molecule.BondAny]
		for o := molecule.BondSingle; o <= molecule.BondAromatic; o++ {
			if d.byOrder[o] == 0 {
				continue
			}
			if env.Count(o, d.element) < d.byOrder[o] {
				return false
			}
			total += d.byOrder[o]
		}
		if env.Count(molecule.BondAny, d.element) < total {
			return false
		}
	}
	return true
}

// neighborPatternsByCenter dispatches compiled section 4 and 5 patterns by
// the centre atom's element.
var neighborPatternsByCenter = func() map[string][]neighborPattern {
	out := map[string][]neighborPattern{}
	add := func(section Section, names []string) {
		first, _ := section.Range()
		for i, name := range names {
			p, err := parseNeighborPattern(first+i, name)
			if err != nil {
				panic("fingerprint: " + err.Error())
			}
			out[p.center] = append(out[p.center], p)
		}
	}
	add(SectionNeighbors, neighborPatternNames[:])
	add(SectionNeighborhoods, neighborhoodPatternNames[:])
	return out
}()

// ─────────────────────────────────────────────────────────────────────────────
// Extractor
// ─────────────────────────────────────────────────────────────────────────────

// neighborhoodExtractor matches every atom against the patterns for its element.
type neighborhoodExtractor struct{}

func (neighborhoodExtractor) Name() string { return "atom_neighborhood" }

func (neighborhoodExtractor) Extract(in *Input, fp *Fingerprint) error {
	g := in.Graph
	for i := range g.Atoms {
		a := &g.Atoms[i]
		patterns := neighborPatternsByCenter[a.Element]
		for j := range patterns {
			if !patterns[j].matches(a) {
				continue
			}
			fp.set(patterns[j].bit)
			if in.explaining() {
				in.witness(patterns[j].bit, Witness{Extractor: "atom_neighborhood", Atoms: []molecule.AtomID{a.ID}})
			}
		}
	}
	return nil
}
