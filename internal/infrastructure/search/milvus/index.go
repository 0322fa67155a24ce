package milvus

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/turtacn/pcfp/internal/domain/fingerprint"
	"github.com/turtacn/pcfp/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/pcfp/pkg/errors"
)

const fallbackTopK = 10

// Index is a fingerprint.Index over a Milvus binary vector collection.
type Index struct {
	c      *Client
	metric entity.MetricType
	topK   int
}

var _ fingerprint.Index = (*Index)(nil)

// NewIndex returns an index bound to the client's configured collection.
func NewIndex(c *Client) *Index {
	topK := c.cfg.DefaultTopK
	if topK <= 0 {
		topK = fallbackTopK
	}
	return &Index{c: c, metric: metricType(c.cfg.Metric), topK: topK}
}

// Upsert writes records keyed by digest. Records without a fingerprint are skipped.
func (x *Index) Upsert(ctx context.Context, records []*fingerprint.Record) error {
	digests := make([]string, 0, len(records))
	molIDs := make([]string, 0, len(records))
	vectors := make([][]byte, 0, len(records))
	for _, r := range records {
		if r == nil || r.Fingerprint == nil {
			continue
		}
		digests = append(digests, r.Digest)
		molIDs = append(molIDs, r.MoleculeID)
		vectors = append(vectors, r.Fingerprint.BinaryVector())
	}
	if len(digests) == 0 {
		return nil
	}

	_, err := x.c.SDK().Upsert(ctx, x.c.collection(), "",
		entity.NewColumnVarChar(FieldDigest, digests),
		entity.NewColumnVarChar(FieldMoleculeID, molIDs),
		entity.NewColumnBinaryVector(FieldFingerprint, fingerprint.VectorDim, vectors),
	)
	if err != nil {
		return errors.Wrap(err, errors.CodeSearchError, "failed to upsert fingerprints").
			WithDetail("count=" + strconv.Itoa(len(digests)))
	}
	x.c.logger.Debug("fingerprints indexed", logging.Int("count", len(digests)))
	return nil
}

// Search returns up to topK nearest records ordered by ascending distance.
func (x *Index) Search(ctx context.Context, query *fingerprint.Fingerprint, topK int) ([]fingerprint.Match, error) {
	if query == nil {
		return nil, errors.InvalidParam("query fingerprint is required")
	}
	if topK <= 0 {
		topK = x.topK
	}
	sp, err := entity.NewIndexBinFlatSearchParam(1)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSearchError, "failed to build search params")
	}

	start := time.Now()
	results, err := x.c.SDK().Search(ctx, x.c.collection(), nil, "",
		[]string{FieldMoleculeID},
		[]entity.Vector{entity.BinaryVector(query.BinaryVector())},
		FieldFingerprint, x.metric, topK, sp,
		client.WithSearchQueryConsistencyLevel(entity.ClBounded),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSearchError, "fingerprint search failed")
	}
	if len(results) == 0 {
		return nil, nil
	}

	matches, err := x.toMatches(results[0])
	if err != nil {
		return nil, err
	}
	x.c.logger.Debug("fingerprint search",
		logging.Int("hits", len(matches)),
		logging.Duration("took", time.Since(start)))
	return matches, nil
}

func (x *Index) toMatches(res client.SearchResult) ([]fingerprint.Match, error) {
	if res.Err != nil {
		return nil, errors.Wrap(res.Err, errors.CodeSearchError, "fingerprint search failed")
	}
	ids, ok := res.IDs.(*entity.ColumnVarChar)
	if !ok {
		return nil, errors.New(errors.CodeSearchError, "unexpected primary key column type")
	}
	var molCol *entity.ColumnVarChar
	if col := res.Fields.GetColumn(FieldMoleculeID); col != nil {
		molCol, _ = col.(*entity.ColumnVarChar)
	}

	out := make([]fingerprint.Match, 0, ids.Len())
	for i := 0; i < ids.Len() && i < len(res.Scores); i++ {
		digest, err := ids.ValueByIdx(i)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeSearchError, "failed to read search hit")
		}
		m := fingerprint.Match{
			Digest:   digest,
			Distance: res.Scores[i],
			Tanimoto: similarity(x.metric, res.Scores[i]),
		}
		if molCol != nil {
			m.MoleculeID, _ = molCol.ValueByIdx(i)
		}
		out = append(out, m)
	}
	return out, nil
}

// similarity converts a Milvus distance back to a Tanimoto coefficient.
// JACCARD distance is 1-T; TANIMOTO distance is -log2(T).
func similarity(metric entity.MetricType, distance float32) float64 {
	d := float64(distance)
	if metric == entity.TANIMOTO {
		return math.Exp2(-d)
	}
	return 1 - d
}

// Remove deletes the given digests from the collection.
func (x *Index) Remove(ctx context.Context, digests []string) error {
	if len(digests) == 0 {
		return nil
	}
	if err := x.c.SDK().Delete(ctx, x.c.collection(), "", digestExpr(digests)); err != nil {
		return errors.Wrap(err, errors.CodeSearchError, "failed to remove fingerprints").
			WithDetail("count=" + strconv.Itoa(len(digests)))
	}
	return nil
}

func digestExpr(digests []string) string {
	quoted := make([]string, len(digests))
	for i, d := range digests {
		quoted[i] = strconv.Quote(d)
	}
	return FieldDigest + " in [" + strings.Join(quoted, ",") + "]"
}
