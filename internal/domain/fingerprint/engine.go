package fingerprint

import (
	"context"
	"time"

	"github.com/turtacn/pcfp/internal/domain/molecule"
	"github.com/turtacn/pcfp/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/pcfp/pkg/errors"
)

// Extractor sets the bits of one part of the layout.
type Extractor interface {
	Name() string
	Extract(in *Input, fp *Fingerprint) error
}

// Input is what extractors see for one molecule. Walks and Tuples are
// optional precomputed candidates; when nil they are derived from Graph.
type Input struct {
	Graph  *molecule.Graph
	Walks  []molecule.Walk
	Tuples []molecule.RingTuple

	witnesses map[int][]Witness
}

// Witness records the evidence an extractor had for setting a bit.
type Witness struct {
	Extractor string            `json:"extractor"`
	Atoms     []molecule.AtomID `json:"atoms,omitempty"`
	Rings     []molecule.RingID `json:"rings,omitempty"`
	Detail    string            `json:"detail,omitempty"`
}

func (in *Input) explaining() bool { return in.witnesses != nil }

func (in *Input) witness(bit int, w Witness) {
	if in.witnesses == nil {
		return
	}
	in.witnesses[bit] = append(in.witnesses[bit], w)
}

// DefaultExtractors returns the six extractors in layout order.
func DefaultExtractors() []Extractor {
	return []Extractor{
		elementCountExtractor{},
		ringStatisticsExtractor{},
		bondPairExtractor{},
		neighborhoodExtractor{},
		pathPatternExtractor{},
		ringSubstitutionExtractor{},
	}
}

// Engine computes fingerprints. It holds no per-molecule state and is safe
// for concurrent use.
type Engine struct {
	extractors []Extractor
	logger     logging.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithExtractors replaces the extractor list.
func WithExtractors(xs ...Extractor) Option {
	return func(e *Engine) { e.extractors = xs }
}

// NewEngine returns an engine running DefaultExtractors unless overridden.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{extractors: DefaultExtractors(), logger: logging.NewNopLogger()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compute fingerprints g, enumerating walks and ring tuples from the graph.
func (e *Engine) Compute(ctx context.Context, g *molecule.Graph) (*Fingerprint, error) {
	return e.ComputeCandidates(ctx, &Input{Graph: g})
}

// ComputeCandidates fingerprints in.Graph using the supplied candidates.
// The graph is validated first; on any error no fingerprint is returned.
func (e *Engine) ComputeCandidates(ctx context.Context, in *Input) (*Fingerprint, error) {
	if in == nil {
		return nil, errors.InvalidParam("fingerprint input is nil")
	}
	if err := in.Graph.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	fp := newFingerprint()
	for _, x := range e.extractors {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeFingerprintGenerationFailed, "fingerprint computation cancelled")
		}
		if err := x.Extract(in, fp); err != nil {
			e.logger.Debug("extractor failed", logging.String("extractor", x.Name()), logging.Err(err))
			return nil, errors.Wrap(err, errors.CodeUnknown, "extractor "+x.Name()+" failed")
		}
	}
	e.logger.Debug("fingerprint computed",
		logging.Int("atoms", len(in.Graph.Atoms)),
		logging.Int("on_bits", fp.Count()),
		logging.Duration("elapsed", time.Since(start)))
	return fp, nil
}
