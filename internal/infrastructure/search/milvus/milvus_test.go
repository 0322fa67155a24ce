package milvus

import (
	"context"
	"errors"
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/pcfp/internal/config"
	"github.com/turtacn/pcfp/internal/domain/fingerprint"
	"github.com/turtacn/pcfp/internal/testutil"
	apperrors "github.com/turtacn/pcfp/pkg/errors"
)

// mockSDK overrides the SDK calls used by this package; anything else panics
// through the nil embedded interface.
type mockSDK struct {
	client.Client

	healthFunc  func(ctx context.Context) (*entity.MilvusState, error)
	hasFunc     func(ctx context.Context, name string) (bool, error)
	createFunc  func(ctx context.Context, schema *entity.Schema, shards int32) error
	indexFunc   func(ctx context.Context, coll, field string, idx entity.Index, async bool) error
	loadFunc    func(ctx context.Context, coll string, async bool) error
	upsertFunc  func(ctx context.Context, coll, partition string, columns ...entity.Column) (entity.Column, error)
	searchFunc  func(ctx context.Context, coll string, vectors []entity.Vector, field string, metric entity.MetricType, topK int) ([]client.SearchResult, error)
	deleteFunc  func(ctx context.Context, coll, partition, expr string) error
	closeCalled int
}

func (m *mockSDK) CheckHealth(ctx context.Context) (*entity.MilvusState, error) {
	if m.healthFunc != nil {
		return m.healthFunc(ctx)
	}
	return &entity.MilvusState{IsHealthy: true}, nil
}

func (m *mockSDK) HasCollection(ctx context.Context, name string) (bool, error) {
	return m.hasFunc(ctx, name)
}

func (m *mockSDK) CreateCollection(ctx context.Context, schema *entity.Schema, shards int32, _ ...client.CreateCollectionOption) error {
	return m.createFunc(ctx, schema, shards)
}

func (m *mockSDK) CreateIndex(ctx context.Context, coll, field string, idx entity.Index, async bool, _ ...client.IndexOption) error {
	return m.indexFunc(ctx, coll, field, idx, async)
}

func (m *mockSDK) LoadCollection(ctx context.Context, coll string, async bool, _ ...client.LoadCollectionOption) error {
	return m.loadFunc(ctx, coll, async)
}

func (m *mockSDK) Upsert(ctx context.Context, coll, partition string, columns ...entity.Column) (entity.Column, error) {
	return m.upsertFunc(ctx, coll, partition, columns...)
}

func (m *mockSDK) Search(ctx context.Context, coll string, _ []string, _ string, _ []string, vectors []entity.Vector, field string, metric entity.MetricType, topK int, _ entity.SearchParam, _ ...client.SearchQueryOptionFunc) ([]client.SearchResult, error) {
	return m.searchFunc(ctx, coll, vectors, field, metric, topK)
}

func (m *mockSDK) Delete(ctx context.Context, coll, partition, expr string) error {
	return m.deleteFunc(ctx, coll, partition, expr)
}

func (m *mockSDK) Close() error {
	m.closeCalled++
	return nil
}

func testConfig() config.MilvusConfig {
	return config.MilvusConfig{Enabled: true, Addr: "localhost:19530", Collection: "fp_test", Metric: "JACCARD", DefaultTopK: 5}
}

func benzeneRecord(t *testing.T) *fingerprint.Record {
	t.Helper()
	g := testutil.Benzene(t)
	fp, err := fingerprint.NewEngine().Compute(context.Background(), g)
	require.NoError(t, err)
	return fingerprint.NewRecord("d-benzene", "benzene", g.Formula.String(), fp)
}

func TestNewClient(t *testing.T) {
	orig := newSDKClient
	defer func() { newSDKClient = orig }()

	t.Run("connects and probes", func(t *testing.T) {
		sdk := &mockSDK{}
		var dialed client.Config
		newSDKClient = func(_ context.Context, conf client.Config) (client.Client, error) {
			dialed = conf
			return sdk, nil
		}
		c, err := NewClient(context.Background(), testConfig(), nil)
		require.NoError(t, err)
		assert.True(t, c.IsHealthy())
		assert.Equal(t, "default", dialed.DBName)
		assert.Len(t, dialed.DialOptions, 2)
		require.NoError(t, c.Close())
		require.NoError(t, c.Close())
		assert.Equal(t, 1, sdk.closeCalled)
		assert.ErrorIs(t, c.CheckHealth(context.Background()), ErrClientClosed)
	})

	t.Run("dial failure", func(t *testing.T) {
		newSDKClient = func(context.Context, client.Config) (client.Client, error) {
			return nil, errors.New("dial failed")
		}
		_, err := NewClient(context.Background(), testConfig(), nil)
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeExternalService, apperrors.GetCode(err))
	})

	t.Run("unhealthy server", func(t *testing.T) {
		sdk := &mockSDK{healthFunc: func(context.Context) (*entity.MilvusState, error) {
			return &entity.MilvusState{IsHealthy: false, Reasons: []string{"querynode down"}}, nil
		}}
		newSDKClient = func(context.Context, client.Config) (client.Client, error) { return sdk, nil }
		_, err := NewClient(context.Background(), testConfig(), nil)
		assert.ErrorIs(t, err, ErrUnhealthy)
		assert.Equal(t, 1, sdk.closeCalled)
	})

	t.Run("missing addr", func(t *testing.T) {
		_, err := NewClient(context.Background(), config.MilvusConfig{}, nil)
		assert.Equal(t, apperrors.ErrCodeValidation, apperrors.GetCode(err))
	})
}

func TestSchema(t *testing.T) {
	s := Schema("fp")
	require.Len(t, s.Fields, 3)
	assert.Equal(t, FieldDigest, s.Fields[0].Name)
	assert.True(t, s.Fields[0].PrimaryKey)
	assert.Equal(t, entity.FieldTypeBinaryVector, s.Fields[2].DataType)
	assert.Equal(t, "888", s.Fields[2].TypeParams[entity.TypeParamDim])
}

func TestEnsureCollection(t *testing.T) {
	t.Run("creates missing collection", func(t *testing.T) {
		var created, indexed, loaded bool
		sdk := &mockSDK{
			hasFunc: func(_ context.Context, name string) (bool, error) {
				assert.Equal(t, "fp_test", name)
				return false, nil
			},
			createFunc: func(_ context.Context, s *entity.Schema, shards int32) error {
				created = true
				assert.Equal(t, "fp_test", s.CollectionName)
				assert.Equal(t, int32(1), shards)
				return nil
			},
			indexFunc: func(_ context.Context, _, field string, idx entity.Index, async bool) error {
				indexed = true
				assert.Equal(t, FieldFingerprint, field)
				assert.Equal(t, entity.BinFlat, idx.IndexType())
				assert.False(t, async)
				return nil
			},
			loadFunc: func(context.Context, string, bool) error { loaded = true; return nil },
		}
		c := NewClientWithSDK(sdk, testConfig(), nil)
		require.NoError(t, c.EnsureCollection(context.Background()))
		assert.True(t, created && indexed && loaded)
	})

	t.Run("existing collection is only loaded", func(t *testing.T) {
		loaded := false
		sdk := &mockSDK{
			hasFunc:  func(context.Context, string) (bool, error) { return true, nil },
			loadFunc: func(context.Context, string, bool) error { loaded = true; return nil },
		}
		c := NewClientWithSDK(sdk, config.MilvusConfig{}, nil)
		require.NoError(t, c.EnsureCollection(context.Background()))
		assert.True(t, loaded)
	})

	t.Run("load failure", func(t *testing.T) {
		sdk := &mockSDK{
			hasFunc:  func(context.Context, string) (bool, error) { return true, nil },
			loadFunc: func(context.Context, string, bool) error { return errors.New("no memory") },
		}
		c := NewClientWithSDK(sdk, testConfig(), nil)
		err := c.EnsureCollection(context.Background())
		assert.Equal(t, apperrors.CodeSearchError, apperrors.GetCode(err))
	})
}

func TestIndex_Upsert(t *testing.T) {
	rec := benzeneRecord(t)
	var got []entity.Column
	sdk := &mockSDK{upsertFunc: func(_ context.Context, coll, _ string, columns ...entity.Column) (entity.Column, error) {
		assert.Equal(t, "fp_test", coll)
		got = columns
		return entity.NewColumnVarChar(FieldDigest, []string{rec.Digest}), nil
	}}
	idx := NewIndex(NewClientWithSDK(sdk, testConfig(), nil))

	require.NoError(t, idx.Upsert(context.Background(), []*fingerprint.Record{rec, nil, {Digest: "empty"}}))
	require.Len(t, got, 3)
	assert.Equal(t, 1, got[0].Len())
	vec, ok := got[2].(*entity.ColumnBinaryVector)
	require.True(t, ok)
	assert.Equal(t, fingerprint.VectorDim, vec.Dim())
	assert.Equal(t, rec.Fingerprint.BinaryVector(), vec.Data()[0])

	// nothing to write
	require.NoError(t, idx.Upsert(context.Background(), nil))

	sdk.upsertFunc = func(context.Context, string, string, ...entity.Column) (entity.Column, error) {
		return nil, errors.New("rpc error")
	}
	err := idx.Upsert(context.Background(), []*fingerprint.Record{rec})
	assert.Equal(t, apperrors.CodeSearchError, apperrors.GetCode(err))
}

func TestIndex_Search(t *testing.T) {
	rec := benzeneRecord(t)
	sdk := &mockSDK{searchFunc: func(_ context.Context, _ string, vectors []entity.Vector, field string, metric entity.MetricType, topK int) ([]client.SearchResult, error) {
		require.Len(t, vectors, 1)
		assert.Equal(t, FieldFingerprint, field)
		assert.Equal(t, entity.JACCARD, metric)
		assert.Equal(t, 5, topK)
		return []client.SearchResult{{
			ResultCount: 2,
			IDs:         entity.NewColumnVarChar(FieldDigest, []string{"d-benzene", "d-toluene"}),
			Fields:      client.ResultSet{entity.NewColumnVarChar(FieldMoleculeID, []string{"benzene", "toluene"})},
			Scores:      []float32{0, 0.25},
		}}, nil
	}}
	idx := NewIndex(NewClientWithSDK(sdk, testConfig(), nil))

	matches, err := idx.Search(context.Background(), rec.Fingerprint, 0)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "d-benzene", matches[0].Digest)
	assert.Equal(t, "benzene", matches[0].MoleculeID)
	assert.InDelta(t, 1.0, matches[0].Tanimoto, 1e-9)
	assert.InDelta(t, 0.75, matches[1].Tanimoto, 1e-6)

	_, err = idx.Search(context.Background(), nil, 3)
	assert.Equal(t, apperrors.CodeInvalidParam, apperrors.GetCode(err))

	sdk.searchFunc = func(context.Context, string, []entity.Vector, string, entity.MetricType, int) ([]client.SearchResult, error) {
		return nil, errors.New("timeout")
	}
	_, err = idx.Search(context.Background(), rec.Fingerprint, 3)
	assert.Equal(t, apperrors.CodeSearchError, apperrors.GetCode(err))
}

func TestIndex_Remove(t *testing.T) {
	var expr string
	sdk := &mockSDK{deleteFunc: func(_ context.Context, _, _ string, e string) error {
		expr = e
		return nil
	}}
	idx := NewIndex(NewClientWithSDK(sdk, testConfig(), nil))

	require.NoError(t, idx.Remove(context.Background(), []string{"a1", "b2"}))
	assert.Equal(t, `digest in ["a1","b2"]`, expr)
	require.NoError(t, idx.Remove(context.Background(), nil))
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 0.6, similarity(entity.JACCARD, 0.4), 1e-6)
	assert.InDelta(t, 0.5, similarity(entity.TANIMOTO, 1), 1e-9)
	assert.Equal(t, entity.TANIMOTO, metricType("TANIMOTO"))
	assert.Equal(t, entity.JACCARD, metricType(""))
}
