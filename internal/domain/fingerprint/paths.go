package fingerprint

import (
	"fmt"
	"strings"

	"github.com/turtacn/pcfp/internal/domain/molecule"
)

// ─────────────────────────────────────────────────────────────────────────────
// Section 6: simple SMARTS patterns
// ─────────────────────────────────────────────────────────────────────────────

// pathNames is section 6 in bit order, spelled as PubChem publishes it. A
// name is a walk of 4 to 8 atoms; a parenthesised group after an atom is an
// extra substituent that atom must carry beyond its neighbours on the walk.
// Hydrogen is written [#1] and arsenic [As]. A walk read in both directions
// may be two keys (C:C-C=C and C=C-C:C), and both bits are set.
var pathNames = [...]string{
	// 460
	"C-C-C#C", "O-C-C=N", "O-C-C=O", "N:C-S-[#1]", "N-C-C=C",
	"O=S-C-C", "N#C-C=C", "C=N-N-C", "O=S-C-N", "S-S-C:C",
	// 470
	"C:C-C=C", "S:C:C:C", "C:N:C-C", "S-C:N:C", "S:C:C:N",
	"S-C=N-C", "C-O-C=C", "N-N-C:C", "S-C=N-[#1]", "S-C-S-C",
	// 480
	"C:S:C-C", "O-S-C:C", "C:N-C:C", "N-S-C:C", "N-C:N:C",
	"N:C:C:N", "N-C:N:N", "N-C=N-C", "N-C=N-[#1]", "N-C-S-C",
	// 490
	"C-C-C=C", "C-N:C-[#1]", "N-C:O:C", "O=C-C:C", "O=C-C:N",
	"C-N-C:C", "N:N-C-[#1]", "O-C:C-N", "O-C=C-C", "N-C:C-N",
	// 500
	"C-S-C:C", "Cl-C:C-C", "N-C=C-[#1]", "Cl-C:C-[#1]", "N:C:N-C",
	"Cl-C:C-O", "C-C:N:C", "C-C-S-C", "S=C-N-C", "Br-C:C:C",
	// 510
	"[#1]-N-N-[#1]", "S=C-N-[#1]", "C-[As]-O-[#1]", "S:C:C-[#1]", "O-N-C-C",
	"N-N-C-C", "[#1]-C=C-[#1]", "N-N-C-N", "O=C-N-N", "N=C-N-C",
	// 520
	"C=C-C:C", "C:N-C-[#1]", "C-N-N-[#1]", "N:C:C-C", "C-C=C-C",
	"[As]-C:C-[#1]", "Cl-C:C-Cl", "C:C:N-[#1]", "[#1]-N-C-[#1]", "Cl-C-C-Cl",
	// 530
	"N:C-C:C", "S-C:C-C", "S-C:C-[#1]", "S-C:C-N", "S-C:C-O",
	"O=C-C-C", "O=C-C-N", "O=C-C-O", "N=C-C=C", "O=C-C=C",
	// 540
	"C:C-O-[#1]", "Cl-C-C-C", "Br-C-C-C", "O-C-C-O", "N-C-C-N",
	"O-C-C-N", "C-O-C-C", "C-N-C-C", "C-C-C-C", "O=C-O-C",
	// 550
	"O=C-O-[#1]", "O=C-N-C", "O=C-N-[#1]", "N#C-C-C", "N#C-C:C",
	"C-C-C-O", "C-C-C-N", "C-C-O-[#1]", "C-C-N-[#1]", "[#1]-C-C-[#1]",
	// 560
	"C:C:C:C", "C:C:C:N", "C:C:N:C", "C:N:C:N", "C:C:C-C",
	"C:C:C-N", "C:C:C-O", "C:C:C-Cl", "C:C:C-F", "C:C:C-[#1]",
	// 570
	"C:C-C:C", "C:C-N-[#1]", "C:C-O-C", "C:C-C-O", "C:C-C-N",
	"C:C-C-[#1]", "O=C-C-[#1]", "O=C-C=O", "O=N-C:C", "C-N=N-C",
	// 580
	"C=N-O-[#1]", "C-C=N-O", "C-C=N-N", "Cl-C-C-O", "O-C-C=C",
	"S-C-C-N", "S-C-C-O", "C-S-S-C", "O=C-S-C", "P-O-C-C",
	// 590
	"O=P-O-C", "O=P-O-[#1]", "N:C-N-[#1]", "C-C=C-[#1]", "[#1]-C:C-[#1]",
	"[#1]-C:C-C", "C:N:C-[#1]", "N:C-C-C", "C#C-C:C", "C=C-C=C",
	// 600
	"Cl-C-C=O", "Br-C:C-C", "N-C:C-C", "O=C-C-C=O", "C-C-C-C-C",
	"O-C-C-C-O", "N-C-C-C-N", "O=C-C-C-C", "O=C-C-C-N", "O=C-C-C-O",
	// 610
	"O=C-C=C-C", "O=C-N-C=O", "O=C-N-C-C", "O=C-O-C-C", "O=C-C-N-C",
	"O=C-C-O-C", "C-C-C-C=C", "C=C-C=C-C", "C=C-C-C=C", "C:C-C-C-C",
	// 620
	"C:C-C-C-N", "C:C-C-C-O", "C:C-C-C=O", "C:C-C-N-C", "C:C-C-O-C",
	"C:C-C=C-C", "C:C-C=N-N", "C:C-N-C=O", "C:C-O-C-C", "C:C-O-C=O",
	// 630
	"C:C-N-C-C", "C:C:C:C:C", "C:C:C:C-C", "C:C:C:C-N", "C:C:C:C-O",
	"C:C:C:C-Cl", "C:C:C:N:C", "C:C:N:C:N", "N:C:C:C:N", "C:C:C-C=O",
	// 640
	"C:C:C-C-C", "C:C:C-N-C", "C:C:C-O-C", "C:C:C-O-[#1]", "C:C:C-N-[#1]",
	"N-C-C-C-C", "O-C-C-C-C", "C-O-C-C-O", "C-N-C-C-O", "C-C-N-C-C",
	// 650
	"C-C-O-C-C", "C-C-S-C-C", "Cl-C-C-C-C", "Br-C-C-C-C", "N#C-C:C:C",
	"O=C-N-C-N", "C-O-C-O-C", "N-C-N-C-N", "C-C-C=C-C", "C-S-C-C-C",
	// 660
	"C-N-C-C-C", "C=C-C-C-O", "[#1]-N-C-C-C", "C-C-C-C-C-C", "C:C:C:C:C:C",
	"C:C:C:C:C-C", "O=C-C-C-C=O", "O=C-C-C-C-C", "O=C-C-C-C-N", "O=C-C-C-C-O",
	// 670
	"O=C-C=C-C=O", "O-C-C-C-C-O", "N-C-C-C-C-N", "C=C-C=C-C=C", "C=C-C-C-C=C",
	"C:C-C-C-C-C", "C:C-C-C-C:C", "C:C-C-N-C:C", "C:C-C-O-C:C", "C:C-O-C-C-O",
	// 680
	"C:C-N-C-C-N", "C-C-C-C-C(C)-C", "C-C-C-C(C)-C-C", "C-C-C(C)-C(C)-C-C", "C-C-C(=O)-C-C-C",
	"C:C:C:C-C=O", "N-C:C:C:C-C", "C-N-C-C-C-C", "C-O-C-C-O-C", "C-C-O-C-C-C",
	// 690
	"O=C-C-N-C=O", "C-C(C)-C-C-C(C)-C", "C-C-C-C-C(=O)-O", "C-C-C-C-C-C-C", "C-C-C-C-C-C(C)-C",
	"C-C-C-C-C(C)-C-C", "C-C-C-C(C)-C-C-C", "O=C-C-C-C-C=O", "O-C-C-C-C-C-O", "N-C-C-C-C-C-N",
	// 700
	"C:C-C-C-C-C:C", "C:C:C:C:C:C-C", "C:C-C-C-C-C-C", "O-C-C-C-C-C-C", "N-C-C-C-C-C-C",
	"C-C-C-C-C-C(=O)-O", "C=C-C=C-C=C-C", "C-C-C-C-C-C-C-C", "C-C-C-C-C-C(C)-C-C", "C-C-C-C-C(C)-C-C-C",
	// 710
	"C-C-C-C-C-C-C(C)-C", "O-C-C-C-C-C-C-O", "N-C-C-C-C-C-C-N",
}

func pathKeyNames() []string { return pathNames[:] }

// ─────────────────────────────────────────────────────────────────────────────
// Pattern compilation
// ─────────────────────────────────────────────────────────────────────────────

type pathGuard struct {
	position int
	order    molecule.BondOrder
	element  string
	count    int
}

// pathPattern is one orientation of a compiled path name.
type pathPattern struct {
	bit    int
	chain  string
	head   string
	atoms  []string
	orders []molecule.BondOrder
	guards []pathGuard
}

func splitPathToken(name string, pos int) (string, int) {
	if name[pos] == '[' {
		if end := strings.IndexByte(name[pos:], ']'); end > 0 {
			return name[pos : pos+end+1], pos + end + 1
		}
		return name[pos:], len(name)
	}
	end := pos + 1
	for end < len(name) && name[end] >= 'a' && name[end] <= 'z' {
		end++
	}
	return name[pos:end], end
}

// pathAtom resolves one atom token. Bracketed atoms carry either a symbol
// or, for hydrogen, the atomic number.
func pathAtom(tok string) (string, bool) {
	if strings.HasPrefix(tok, "[") && strings.HasSuffix(tok, "]") {
		tok = tok[1 : len(tok)-1]
		if tok == "#1" {
			return molecule.Hydrogen, true
		}
		if !molecule.IsKnownElement(tok) {
			return "", false
		}
		return tok, true
	}
	return molecule.NormalizeElement(tok)
}

// plainPathName rewrites the bracketed atoms of a published name to bare
// symbols, the spelling walks render with: "N:C-S-[#1]" becomes "N:C-S-H".
func plainPathName(name string) string {
	if !strings.Contains(name, "[") {
		return name
	}
	var sb strings.Builder
	for pos := 0; pos < len(name); {
		if name[pos] != '[' {
			sb.WriteByte(name[pos])
			pos++
			continue
		}
		tok, end := splitPathToken(name, pos)
		el, ok := pathAtom(tok)
		if !ok {
			el = tok
		}
		sb.WriteString(el)
		pos = end
	}
	return sb.String()
}

func parsePathPattern(bit int, name string) (pathPattern, error) {
	p := pathPattern{bit: bit}
	pos := 0
	for pos < len(name) {
		c := name[pos]
		switch {
		case c == '(':
			if len(p.atoms) == 0 {
				return p, fmt.Errorf("path %q: branch before first atom", name)
			}
			depth := strings.IndexByte(name[pos:], ')')
			if depth < 0 {
				return p, fmt.Errorf("path %q: unterminated branch", name)
			}
			body := name[pos+1 : pos+depth]
			order := molecule.BondSingle
			if o, ok := molecule.BondOrderFromSymbol(body[0]); ok && len(body) > 1 {
				order, body = o, body[1:]
			}
			el, ok := pathAtom(body)
			if !ok {
				return p, fmt.Errorf("path %q: unknown branch element %q", name, body)
			}
			p.addGuard(len(p.atoms)-1, order, el)
			pos += depth + 1
		case c >= 'A' && c <= 'Z' || c == '[':
			if len(p.atoms) != len(p.orders) {
				return p, fmt.Errorf("path %q: missing bond at %d", name, pos)
			}
			tok, end := splitPathToken(name, pos)
			el, ok := pathAtom(tok)
			if !ok {
				return p, fmt.Errorf("path %q: unknown element %q", name, tok)
			}
			p.atoms = append(p.atoms, el)
			pos = end
		default:
			o, ok := molecule.BondOrderFromSymbol(c)
			if !ok || o == molecule.BondAny || len(p.atoms) != len(p.orders)+1 {
				return p, fmt.Errorf("path %q: unexpected %q at %d", name, c, pos)
			}
			p.orders = append(p.orders, o)
			pos++
		}
	}
	if len(p.atoms) < molecule.MinWalkAtoms || len(p.atoms) > molecule.MaxWalkAtoms || len(p.orders) != len(p.atoms)-1 {
		return p, fmt.Errorf("path %q: %d atoms", name, len(p.atoms))
	}
	p.render()
	return p, nil
}

func (p *pathPattern) addGuard(position int, order molecule.BondOrder, el string) {
	for i := range p.guards {
		g := &p.guards[i]
		if g.position == position && g.order == order && g.element == el {
			g.count++
			return
		}
	}
	p.guards = append(p.guards, pathGuard{position: position, order: order, element: el, count: 1})
}

func (p *pathPattern) render() {
	var sb strings.Builder
	for i, el := range p.atoms {
		if i > 0 {
			sb.WriteByte(p.orders[i-1].Symbol())
		}
		sb.WriteString(el)
	}
	p.chain = sb.String()
	p.head = p.atoms[0] + string(p.orders[0].Symbol())
}

func (p pathPattern) reversed() pathPattern {
	n := len(p.atoms)
	r := pathPattern{bit: p.bit, atoms: make([]string, n), orders: make([]molecule.BondOrder, len(p.orders))}
	for i, a := range p.atoms {
		r.atoms[n-1-i] = a
	}
	for i, o := range p.orders {
		r.orders[len(p.orders)-1-i] = o
	}
	for _, g := range p.guards {
		g.position = n - 1 - g.position
		r.guards = append(r.guards, g)
	}
	r.render()
	return r
}

// guardsHold checks every branch demand against the interior atom's
// Environment, after discounting the atom's own neighbours on the walk.
func (p *pathPattern) guardsHold(g *molecule.Graph, w molecule.Walk) bool {
	for _, gd := range p.guards {
		id := w.Atoms[gd.position]
		onWalk := 0
		if gd.position > 0 && w.Orders[gd.position-1] == gd.order && g.Element(w.Atoms[gd.position-1]) == gd.element {
			onWalk++
		}
		if gd.position < len(w.Orders) && w.Orders[gd.position] == gd.order && g.Element(w.Atoms[gd.position+1]) == gd.element {
			onWalk++
		}
		if g.Atoms[id].Environment.Count(gd.order, gd.element) < onWalk+gd.count {
			return false
		}
	}
	return true
}

// ─────────────────────────────────────────────────────────────────────────────
// Walk index
// ─────────────────────────────────────────────────────────────────────────────

type pathIndex struct {
	byHead   map[string]map[string][]pathPattern
	prefixes map[string]struct{}
}

func (x *pathIndex) add(p pathPattern) {
	byChain, ok := x.byHead[p.head]
	if !ok {
		byChain = map[string][]pathPattern{}
		x.byHead[p.head] = byChain
	}
	byChain[p.chain] = append(byChain[p.chain], p)
	prefix := p.atoms[0]
	x.prefixes[prefix] = struct{}{}
	for i, o := range p.orders {
		prefix += string(o.Symbol()) + p.atoms[i+1]
		x.prefixes[prefix] = struct{}{}
	}
}

func (x *pathIndex) lookup(rendered string) []pathPattern {
	_, split := splitPathToken(rendered, 0)
	if split >= len(rendered) {
		return nil
	}
	return x.byHead[rendered[:split+1]][rendered]
}

func (x *pathIndex) keep(prefix string) bool {
	_, ok := x.prefixes[prefix]
	return ok
}

// paths holds both orientations of every section 6 pattern so a walk
// matches regardless of which end enumeration started from.
var paths = func() *pathIndex {
	x := &pathIndex{byHead: map[string]map[string][]pathPattern{}, prefixes: map[string]struct{}{}}
	first, _ := SectionPaths.Range()
	for i, name := range pathNames {
		p, err := parsePathPattern(first+i, name)
		if err != nil {
			panic("fingerprint: " + err.Error())
		}
		x.add(p)
		x.add(p.reversed())
	}
	return x
}()

// ─────────────────────────────────────────────────────────────────────────────
// Extractor
// ─────────────────────────────────────────────────────────────────────────────

// pathPatternExtractor classifies walks. Supplied walks are used as given;
// otherwise they are enumerated from the graph, pruned to catalogue prefixes.
type pathPatternExtractor struct{}

func (pathPatternExtractor) Name() string { return "path_patterns" }

func (e pathPatternExtractor) Extract(in *Input, fp *Fingerprint) error {
	g := in.Graph
	if in.Walks == nil {
		molecule.VisitWalks(g, molecule.MinWalkAtoms, molecule.MaxWalkAtoms, paths.keep, func(w molecule.Walk, rendered string) {
			e.classify(in, fp, w, rendered)
		})
		return nil
	}
	for i, w := range in.Walks {
		if err := checkWalk(g, w); err != nil {
			return molecule.MalformedError("walk", i, "%v", err)
		}
		e.classify(in, fp, w, w.Render(g))
	}
	return nil
}

func (pathPatternExtractor) classify(in *Input, fp *Fingerprint, w molecule.Walk, rendered string) {
	for _, p := range paths.lookup(rendered) {
		if fp.Has(p.bit) || !p.guardsHold(in.Graph, w) {
			continue
		}
		fp.set(p.bit)
		if in.explaining() {
			in.witness(p.bit, Witness{Extractor: "path_patterns", Atoms: append([]molecule.AtomID(nil), w.Atoms...)})
		}
	}
}

// checkWalk verifies a supplied walk is a simple path of the graph whose
// orders agree with its bonds.
func checkWalk(g *molecule.Graph, w molecule.Walk) error {
	if w.Len() < molecule.MinWalkAtoms || w.Len() > molecule.MaxWalkAtoms {
		return fmt.Errorf("%d atoms, want %d..%d", w.Len(), molecule.MinWalkAtoms, molecule.MaxWalkAtoms)
	}
	if len(w.Orders) != w.Len()-1 {
		return fmt.Errorf("%d bond orders for %d atoms", len(w.Orders), w.Len())
	}
	adj := g.Adjacency()
	seen := make(map[molecule.AtomID]bool, w.Len())
	for i, a := range w.Atoms {
		if int(a) < 0 || int(a) >= len(g.Atoms) {
			return fmt.Errorf("unknown atom %d", a)
		}
		if seen[a] {
			return fmt.Errorf("atom %d repeats", a)
		}
		seen[a] = true
		if i == 0 {
			continue
		}
		prev := w.Atoms[i-1]
		bonded := false
		for _, nb := range adj[prev] {
			if nb.Atom == a {
				bonded = g.Bonds[nb.Bond].Order == w.Orders[i-1]
				break
			}
		}
		if !bonded {
			return fmt.Errorf("no %s bond between atoms %d and %d", w.Orders[i-1], prev, a)
		}
	}
	return nil
}
