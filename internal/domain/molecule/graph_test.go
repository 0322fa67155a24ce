package molecule_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/pcfp/internal/domain/molecule"
	"github.com/turtacn/pcfp/internal/testutil"
	"github.com/turtacn/pcfp/pkg/errors"
)

func TestNormalizeElement(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"C", "C", true},
		{"c", "C", true},
		{"cl", "Cl", true},
		{" BR ", "Br", true},
		{"Xx", "Xx", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := molecule.NormalizeElement(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseBondOrder(t *testing.T) {
	tests := []struct {
		in   string
		want molecule.BondOrder
	}{
		{"single", molecule.BondSingle},
		{"=", molecule.BondDouble},
		{"3", molecule.BondTriple},
		{"1.5", molecule.BondAromatic},
		{"Aromatic", molecule.BondAromatic},
	}
	for _, tt := range tests {
		got, err := molecule.ParseBondOrder(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := molecule.ParseBondOrder("quadruple")
	assert.True(t, errors.IsCode(err, errors.ErrCodeMoleculeInvalidFormat))
}

func TestBondOrder_SymbolRoundTrip(t *testing.T) {
	for _, o := range []molecule.BondOrder{molecule.BondAny, molecule.BondSingle, molecule.BondDouble, molecule.BondTriple, molecule.BondAromatic} {
		back, ok := molecule.BondOrderFromSymbol(o.Symbol())
		require.True(t, ok)
		assert.Equal(t, o, back)
	}
}

func TestFormula_StringHillOrder(t *testing.T) {
	assert.Equal(t, "C7H7Cl", molecule.Formula{"Cl": 1, "H": 7, "C": 7}.String())
	assert.Equal(t, "ClH", molecule.Formula{"H": 1, "Cl": 1}.String())
	assert.Equal(t, "", molecule.Formula{}.String())
}

func TestBuilder_ParaChlorotoluene(t *testing.T) {
	g := testutil.ParaChlorotoluene(t)

	assert.Equal(t, "C7H7Cl", g.Formula.String())
	assert.Equal(t, 8, g.HeavyAtomCount())
	require.Len(t, g.Rings, 1)
	require.Len(t, g.RingSets, 1)

	ring := g.Rings[0]
	assert.Equal(t, molecule.RingBenzene, ring.Kind)
	assert.True(t, ring.IsAromatic)
	assert.False(t, ring.IsHetero)
	assert.Equal(t, 6, ring.CarbonCount)
	assert.Equal(t, 0, ring.DoubleBondCount)

	// Ring atom 0 carries the methyl, ring atom 3 the chlorine.
	assert.Equal(t, []molecule.AtomID{6}, ring.Outside[0])
	assert.Equal(t, []molecule.AtomID{7}, ring.Outside[3])

	c0 := g.Atoms[0]
	assert.True(t, c0.InRing)
	assert.Equal(t, []molecule.RingID{0}, c0.SharedRingIDs)
	assert.Equal(t, 3, c0.Environment.Count(molecule.BondAny, "C"))
	assert.Equal(t, 2, c0.Environment.Count(molecule.BondAromatic, "C"))
	assert.Equal(t, 1, c0.Environment.Count(molecule.BondSingle, "C"))
	assert.Equal(t, 3, c0.Environment.Degree())

	methyl := g.Atoms[6]
	assert.False(t, methyl.InRing)
	assert.Equal(t, 3, methyl.Environment.Count(molecule.BondSingle, "H"))
}

func TestBuilder_RingSets(t *testing.T) {
	tests := []struct {
		name  string
		graph func(testing.TB) *molecule.Graph
		sets  int
	}{
		{"fused naphthalene", testutil.Naphthalene, 1},
		{"fused bicyclo[3.3.0]octane", testutil.Bicyclo330, 1},
		{"bond-linked bicyclopentyl", testutil.Bicyclopentyl, 2},
		{"spiro atom only", testutil.Spiro55, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := tt.graph(t)
			assert.Len(t, g.RingSets, tt.sets)
		})
	}
}

func TestBuilder_NaphthaleneFusionAtom(t *testing.T) {
	g := testutil.Naphthalene(t)

	fusion := g.Atoms[4]
	assert.ElementsMatch(t, []molecule.RingID{0, 1}, fusion.SharedRingIDs)
	assert.Equal(t, []molecule.AtomID{5}, g.Rings[0].Outside[4])
	assert.Equal(t, []molecule.AtomID{3}, g.Rings[1].Outside[4])
}

func TestBuilder_RingKinds(t *testing.T) {
	assert.Equal(t, molecule.RingOther, testutil.Pyridine(t).Rings[0].Kind)
	assert.True(t, testutil.Pyridine(t).Rings[0].IsHetero)
	assert.Equal(t, 1, testutil.Pyridine(t).Rings[0].NitrogenCount)

	hexene := testutil.Cyclohexene(t).Rings[0]
	assert.Equal(t, molecule.RingOther, hexene.Kind)
	assert.Equal(t, 1, hexene.DoubleBondCount)
	assert.False(t, hexene.IsAromatic)

	assert.Equal(t, molecule.RingCyclopentane, testutil.Bicyclopentyl(t).Rings[1].Kind)
}

func TestBuilder_SetFormulaOverrides(t *testing.T) {
	b := molecule.NewBuilder()
	b.AddAtom("C", 4)
	b.SetFormula(molecule.Formula{"C": 1, "H": 4, "Br": 2})
	g, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, 2, g.Formula.Count("Br"))
}

func TestBuilder_Errors(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *molecule.Builder)
		code  errors.ErrorCode
	}{
		{"unknown element", func(b *molecule.Builder) { b.AddAtom("Qq", 0) }, errors.ErrCodeMoleculeInvalidFormat},
		{"negative hydrogens", func(b *molecule.Builder) { b.AddAtom("C", -1) }, errors.ErrCodeMalformedGraph},
		{"bond to unknown atom", func(b *molecule.Builder) {
			a := b.AddAtom("C", 0)
			b.AddBond(a, 9, molecule.BondSingle)
		}, errors.ErrCodeMalformedGraph},
		{"duplicate bond", func(b *molecule.Builder) {
			a, c := b.AddAtom("C", 0), b.AddAtom("C", 0)
			b.AddBond(a, c, molecule.BondSingle)
			b.AddBond(c, a, molecule.BondDouble)
		}, errors.ErrCodeMalformedGraph},
		{"ring members not bonded", func(b *molecule.Builder) {
			a, c, d := b.AddAtom("C", 0), b.AddAtom("C", 0), b.AddAtom("C", 0)
			b.AddBond(a, c, molecule.BondSingle)
			b.AddBond(c, d, molecule.BondSingle)
			b.AddRing(a, c, d)
		}, errors.ErrCodeMalformedGraph},
		{"two-member ring", func(b *molecule.Builder) {
			a, c := b.AddAtom("C", 0), b.AddAtom("C", 0)
			b.AddBond(a, c, molecule.BondSingle)
			b.AddRing(a, c)
		}, errors.ErrCodeMalformedGraph},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := molecule.NewBuilder()
			tt.build(b)
			g, err := b.Build()
			require.Error(t, err)
			assert.Nil(t, g)
			assert.True(t, errors.IsCode(err, tt.code), err.Error())
		})
	}
}
