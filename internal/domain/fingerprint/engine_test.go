package fingerprint

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/pcfp/internal/domain/molecule"
	"github.com/turtacn/pcfp/internal/testutil"
	"github.com/turtacn/pcfp/pkg/errors"
)

// reorderedChlorotoluene is Cc1ccc(Cl)cc1 with atoms, bonds and the ring
// listed in a different order from testutil.ParaChlorotoluene.
func reorderedChlorotoluene(t *testing.T) *molecule.Graph {
	b := molecule.NewBuilder()
	cl := b.AddAtom("Cl", 0)
	ring := make([]molecule.AtomID, 6)
	for i, h := range []int{1, 1, 0, 1, 1, 0} {
		ring[i] = b.AddAtom("C", h)
	}
	me := b.AddAtom("C", 3)
	b.AddBond(me, ring[2], molecule.BondSingle)
	for i := 5; i >= 0; i-- {
		b.AddBond(ring[i], ring[(i+1)%6], molecule.BondAromatic)
	}
	b.AddBond(cl, ring[5], molecule.BondSingle)
	b.AddRing(ring[3], ring[2], ring[1], ring[0], ring[5], ring[4])
	return testutil.MustBuild(t, b)
}

func TestCompute_Deterministic(t *testing.T) {
	g := testutil.ParaChlorotoluene(t)
	e := NewEngine()
	a, err := e.Compute(context.Background(), g)
	require.NoError(t, err)
	b, err := e.Compute(context.Background(), g)
	require.NoError(t, err)
	assert.True(t, a.Equal(b))

	c := compute(t, reorderedChlorotoluene(t))
	assert.Equal(t, a.OnBits(), c.OnBits())
}

func TestCompute_MalformedGraph(t *testing.T) {
	g := &molecule.Graph{
		Formula: molecule.Formula{"C": 1},
		Atoms:   []molecule.Atom{{ID: 0, Element: "C", InRing: true}},
	}
	fp, err := NewEngine().Compute(context.Background(), g)
	require.Error(t, err)
	assert.Nil(t, fp)
	assert.True(t, molecule.IsMalformedGraph(err))
	assert.True(t, errors.IsCode(err, errors.ErrCodeMalformedGraph))

	fp, err = NewEngine().Compute(context.Background(), nil)
	assert.Nil(t, fp)
	assert.True(t, molecule.IsMalformedGraph(err))

	_, err = NewEngine().ComputeCandidates(context.Background(), nil)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestComputeCandidates_RejectsForeignWalks(t *testing.T) {
	g := testutil.Chain(t, []string{"C", "C", "C", "C", "C"},
		[]molecule.BondOrder{molecule.BondSingle, molecule.BondSingle, molecule.BondSingle, molecule.BondSingle})
	single := []molecule.BondOrder{molecule.BondSingle, molecule.BondSingle, molecule.BondSingle}
	cases := map[string]molecule.Walk{
		"not bonded":  {Atoms: []molecule.AtomID{0, 1, 2, 4}, Orders: single},
		"wrong order": {Atoms: []molecule.AtomID{0, 1, 2, 3}, Orders: []molecule.BondOrder{molecule.BondSingle, molecule.BondDouble, molecule.BondSingle}},
		"too short":   {Atoms: []molecule.AtomID{0, 1, 2}, Orders: single[:2]},
		"repeats":     {Atoms: []molecule.AtomID{0, 1, 0, 1}, Orders: single},
		"unknown":     {Atoms: []molecule.AtomID{0, 1, 2, 9}, Orders: single},
	}
	for name, w := range cases {
		t.Run(name, func(t *testing.T) {
			fp, err := NewEngine().ComputeCandidates(context.Background(), &Input{Graph: g, Walks: []molecule.Walk{w}})
			assert.Nil(t, fp)
			assert.True(t, molecule.IsMalformedGraph(err), "%v", err)
		})
	}
}

func TestComputeCandidates_RejectsBadTuples(t *testing.T) {
	g := testutil.Benzene(t)
	_, err := NewEngine().ComputeCandidates(context.Background(), &Input{Graph: g, Tuples: []molecule.RingTuple{
		{Atoms: []molecule.AtomID{0, 1, 2}, Kind: molecule.RingBenzene},
	}})
	assert.True(t, molecule.IsMalformedGraph(err))
}

type failingExtractor struct{ err error }

func (failingExtractor) Name() string { return "failing" }

func (f failingExtractor) Extract(*Input, *Fingerprint) error { return f.err }

type countingExtractor struct{ calls *int }

func (countingExtractor) Name() string { return "counting" }

func (c countingExtractor) Extract(_ *Input, fp *Fingerprint) error {
	*c.calls++
	fp.set(0)
	return nil
}

func TestCompute_ExtractorFailure(t *testing.T) {
	calls := 0
	g := testutil.Benzene(t)

	e := NewEngine(WithExtractors(failingExtractor{err: stderrors.New("boom")}, countingExtractor{calls: &calls}))
	fp, err := e.Compute(context.Background(), g)
	require.Error(t, err)
	assert.Nil(t, fp)
	assert.Equal(t, 0, calls)
	assert.Equal(t, errors.CodeUnknown, errors.GetCode(err))

	e = NewEngine(WithExtractors(failingExtractor{err: errors.New(errors.ErrCodeTimeout, "slow")}))
	_, err = e.Compute(context.Background(), g)
	assert.True(t, errors.IsCode(err, errors.ErrCodeTimeout))
}

func TestCompute_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fp, err := NewEngine().Compute(ctx, testutil.Benzene(t))
	assert.Nil(t, fp)
	assert.True(t, errors.IsCode(err, errors.ErrCodeFingerprintGenerationFailed))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompute_LogsAtDebug(t *testing.T) {
	log := testutil.NewMockLogger()
	calls := 0
	_, err := NewEngine(WithLogger(log), WithExtractors(countingExtractor{calls: &calls})).
		Compute(context.Background(), testutil.Benzene(t))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, log.HasMessage("debug", "fingerprint computed"))
}

func TestExplain(t *testing.T) {
	e := NewEngine()
	g := testutil.ParaChlorotoluene(t)

	ex, err := e.Explain(context.Background(), g, 717)
	require.NoError(t, err)
	assert.True(t, ex.Set)
	assert.Equal(t, "Cc1ccc(Cl)cc1", ex.Key.Name)
	require.NotEmpty(t, ex.Witnesses)
	assert.Equal(t, "ring_substitution", ex.Witnesses[0].Extractor)
	assert.Len(t, ex.Witnesses[0].Atoms, 4)

	ex, err = e.Explain(context.Background(), g, mustIndex("C-Cl"))
	require.NoError(t, err)
	require.Len(t, ex.Witnesses, 1)
	assert.ElementsMatch(t, []molecule.AtomID{3, 7}, ex.Witnesses[0].Atoms)

	ex, err = e.Explain(context.Background(), g, mustIndex("C-N"))
	require.NoError(t, err)
	assert.False(t, ex.Set)
	assert.Empty(t, ex.Witnesses)

	_, err = e.Explain(context.Background(), g, Size)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnknownFingerprintKey))
}
