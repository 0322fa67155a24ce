package fingerprint

import (
	"context"

	"github.com/turtacn/pcfp/internal/domain/molecule"
)

// Explanation says whether a bit is set for a molecule and why.
type Explanation struct {
	Key       Key       `json:"key"`
	Set       bool      `json:"set"`
	Witnesses []Witness `json:"witnesses,omitempty"`
}

// Explain recomputes g with witness recording and reports on bit index.
func (e *Engine) Explain(ctx context.Context, g *molecule.Graph, index int) (*Explanation, error) {
	key, err := KeyAt(index)
	if err != nil {
		return nil, err
	}
	in := &Input{Graph: g, witnesses: map[int][]Witness{}}
	fp, err := e.ComputeCandidates(ctx, in)
	if err != nil {
		return nil, err
	}
	return &Explanation{Key: key, Set: fp.Has(index), Witnesses: in.witnesses[index]}, nil
}
