package fingerprint

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/turtacn/pcfp/internal/config"
	domainFp "github.com/turtacn/pcfp/internal/domain/fingerprint"
	"github.com/turtacn/pcfp/internal/testutil"
	apperrors "github.com/turtacn/pcfp/pkg/errors"
	"github.com/turtacn/pcfp/pkg/types/common"
	moltypes "github.com/turtacn/pcfp/pkg/types/molecule"
)

// MockRepository is a mock implementation of domainFp.Repository.
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Save(ctx context.Context, r *domainFp.Record) error {
	return m.Called(ctx, r).Error(0)
}

func (m *MockRepository) SaveBatch(ctx context.Context, records []*domainFp.Record) error {
	return m.Called(ctx, records).Error(0)
}

func (m *MockRepository) FindByDigest(ctx context.Context, digest string) (*domainFp.Record, error) {
	args := m.Called(ctx, digest)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domainFp.Record), args.Error(1)
}

func (m *MockRepository) List(ctx context.Context, page common.Pagination) ([]*domainFp.Record, int64, error) {
	args := m.Called(ctx, page)
	return args.Get(0).([]*domainFp.Record), args.Get(1).(int64), args.Error(2)
}

func (m *MockRepository) Delete(ctx context.Context, digest string) error {
	return m.Called(ctx, digest).Error(0)
}

type MockIndex struct {
	mock.Mock
}

func (m *MockIndex) Upsert(ctx context.Context, records []*domainFp.Record) error {
	return m.Called(ctx, records).Error(0)
}

func (m *MockIndex) Search(ctx context.Context, query *domainFp.Fingerprint, topK int) ([]domainFp.Match, error) {
	args := m.Called(ctx, query, topK)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domainFp.Match), args.Error(1)
}

func (m *MockIndex) Remove(ctx context.Context, digests []string) error {
	return m.Called(ctx, digests).Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, records ...*domainFp.Record) error {
	return m.Called(ctx, records).Error(0)
}

type MockArchive struct {
	mock.Mock
	body string
}

func (m *MockArchive) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	b, _ := io.ReadAll(body)
	m.body = string(b)
	args := m.Called(ctx, key, size, contentType)
	return args.String(0), args.Error(1)
}

func (m *MockArchive) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

// memCache is a map-backed domainFp.Cache.
type memCache struct {
	mu      sync.Mutex
	entries map[string]*domainFp.Record
	sets    int
}

func newMemCache() *memCache { return &memCache{entries: map[string]*domainFp.Record{}} }

func (c *memCache) Get(_ context.Context, digest string) (*domainFp.Record, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[digest]
	return r, ok, nil
}

func (c *memCache) Set(_ context.Context, r *domainFp.Record, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[r.Digest] = r
	c.sets++
	return nil
}

func (c *memCache) Invalidate(_ context.Context, digest string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, digest)
	return nil
}

// loadingMemCache adds GetOrLoad.
type loadingMemCache struct {
	*memCache
	loads int
}

func (c *loadingMemCache) GetOrLoad(ctx context.Context, digest string, load func(context.Context) (*domainFp.Record, error)) (*domainFp.Record, bool, error) {
	if r, ok, _ := c.Get(ctx, digest); ok {
		return r, true, nil
	}
	c.loads++
	r, err := load(ctx)
	if err != nil {
		return nil, false, err
	}
	_ = c.Set(ctx, r, 0)
	return r, false, nil
}

func benzeneDoc(id string) *moltypes.Document {
	doc := &moltypes.Document{ID: id, Rings: [][]int{{0, 1, 2, 3, 4, 5}}}
	for i := 0; i < 6; i++ {
		doc.Atoms = append(doc.Atoms, moltypes.Atom{Element: "C", Hydrogens: 1})
		doc.Bonds = append(doc.Bonds, moltypes.Bond{Begin: i, End: (i + 1) % 6, Order: "aromatic"})
	}
	return doc
}

func ethanolDoc() *moltypes.Document {
	return &moltypes.Document{
		ID:    "ethanol",
		Atoms: []moltypes.Atom{{Element: "C", Hydrogens: 3}, {Element: "C", Hydrogens: 2}, {Element: "O", Hydrogens: 1}},
		Bonds: []moltypes.Bond{{Begin: 0, End: 1, Order: "single"}, {Begin: 1, End: 2, Order: "single"}},
	}
}

func badDoc() *moltypes.Document {
	return &moltypes.Document{ID: "bad", Atoms: []moltypes.Atom{{Element: "Xx"}}}
}

func notFound() error {
	return apperrors.New(apperrors.ErrCodeFingerprintNotFound, "not found")
}

func TestCompute_FreshRecordIsPersistedIndexedAndPublished(t *testing.T) {
	repo, idx, pub := new(MockRepository), new(MockIndex), new(MockPublisher)
	repo.On("FindByDigest", mock.Anything, mock.Anything).Return(nil, notFound())
	repo.On("Save", mock.Anything, mock.AnythingOfType("*fingerprint.Record")).Return(nil)
	idx.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	pub.On("Publish", mock.Anything, mock.Anything).Return(nil)

	svc := NewService(config.FingerprintConfig{}, nil, WithRepository(repo), WithIndex(idx), WithPublisher(pub))
	res, err := svc.Compute(context.Background(), &ComputeRequest{Document: benzeneDoc("benzene")})
	require.NoError(t, err)

	assert.Equal(t, SourceEngine, res.Source)
	assert.Equal(t, "benzene", res.Record.MoleculeID)
	assert.Equal(t, "C6H6", res.Record.Formula)
	assert.Len(t, res.Record.Digest, 64)
	assert.Equal(t, res.Record.Fingerprint.Count(), res.Record.OnBits)
	repo.AssertExpectations(t)
	idx.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestCompute_StoreHitSkipsEngineAndWrites(t *testing.T) {
	stored := &domainFp.Record{Digest: "x", OnBits: 10}
	repo := new(MockRepository)
	repo.On("FindByDigest", mock.Anything, mock.Anything).Return(stored, nil)

	svc := NewService(config.FingerprintConfig{}, nil, WithRepository(repo))
	res, err := svc.Compute(context.Background(), &ComputeRequest{Document: benzeneDoc("")})
	require.NoError(t, err)
	assert.Equal(t, SourceStore, res.Source)
	assert.Same(t, stored, res.Record)
	repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestCompute_CacheAside(t *testing.T) {
	cache := newMemCache()
	svc := NewService(config.FingerprintConfig{}, nil, WithCache(cache, time.Minute))

	first, err := svc.Compute(context.Background(), &ComputeRequest{Document: benzeneDoc("a")})
	require.NoError(t, err)
	assert.Equal(t, SourceEngine, first.Source)

	// a different id digests identically
	second, err := svc.Compute(context.Background(), &ComputeRequest{Document: benzeneDoc("b")})
	require.NoError(t, err)
	assert.Equal(t, SourceCache, second.Source)
	assert.True(t, first.Record.Fingerprint.Equal(second.Record.Fingerprint))

	refreshed, err := svc.Compute(context.Background(), &ComputeRequest{Document: benzeneDoc("b"), Refresh: true})
	require.NoError(t, err)
	assert.Equal(t, SourceEngine, refreshed.Source)
	assert.Equal(t, 2, cache.sets)
}

func TestCompute_LoadingCache(t *testing.T) {
	cache := &loadingMemCache{memCache: newMemCache()}
	svc := NewService(config.FingerprintConfig{}, nil, WithCache(cache, 0))

	for i := 0; i < 3; i++ {
		_, err := svc.Compute(context.Background(), &ComputeRequest{Document: ethanolDoc()})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, cache.loads)
}

func TestCompute_Errors(t *testing.T) {
	svc := NewService(config.FingerprintConfig{}, nil)

	_, err := svc.Compute(context.Background(), nil)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidParam))

	_, err = svc.Compute(context.Background(), &ComputeRequest{})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidParam))

	_, err = svc.Compute(context.Background(), &ComputeRequest{Document: badDoc()})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeMoleculeInvalidFormat))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.Compute(ctx, &ComputeRequest{Document: benzeneDoc("x")})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeFingerprintGenerationFailed))
}

func TestCompute_PersistFailureFailsRequest(t *testing.T) {
	repo := new(MockRepository)
	repo.On("FindByDigest", mock.Anything, mock.Anything).Return(nil, notFound())
	repo.On("Save", mock.Anything, mock.Anything).Return(apperrors.New(apperrors.ErrCodeDatabaseError, "down"))
	idx := new(MockIndex)

	svc := NewService(config.FingerprintConfig{}, nil, WithRepository(repo), WithIndex(idx))
	_, err := svc.Compute(context.Background(), &ComputeRequest{Document: benzeneDoc("x")})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeDatabaseError))
	idx.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestCompute_IndexFailureIsLogged(t *testing.T) {
	idx := new(MockIndex)
	idx.On("Upsert", mock.Anything, mock.Anything).Return(errors.New("milvus down"))
	log := testutil.NewMockLogger()

	svc := NewService(config.FingerprintConfig{}, log, WithIndex(idx))
	_, err := svc.Compute(context.Background(), &ComputeRequest{Document: benzeneDoc("x")})
	require.NoError(t, err)
	assert.True(t, log.HasMessage("error", "failed to index fingerprints"))
}

func TestComputeBatch_PerItemErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	repo := new(MockRepository)
	repo.On("FindByDigest", mock.Anything, mock.Anything).Return(nil, notFound())
	repo.On("SaveBatch", mock.Anything, mock.MatchedBy(func(rs []*domainFp.Record) bool { return len(rs) == 2 })).Return(nil)

	svc := NewService(config.FingerprintConfig{Concurrency: 2}, nil, WithRepository(repo))
	res, err := svc.ComputeBatch(context.Background(), &BatchRequest{
		Documents: []*moltypes.Document{benzeneDoc("benzene"), badDoc(), ethanolDoc()},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, res.JobID)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Items, 3)
	assert.Equal(t, "benzene", res.Items[0].Record.MoleculeID)
	assert.True(t, res.Items[1].Failed())
	assert.Equal(t, string(apperrors.ErrCodeMoleculeInvalidFormat), res.Items[1].ErrorCode)
	assert.Nil(t, res.Items[1].Record)
	assert.Equal(t, "ethanol", res.Items[2].Record.MoleculeID)
	repo.AssertExpectations(t)
}

func TestComputeBatch_FailFast(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc := NewService(config.FingerprintConfig{Concurrency: 1, FailFast: true}, nil)
	_, err := svc.ComputeBatch(context.Background(), &BatchRequest{
		Documents: []*moltypes.Document{badDoc(), benzeneDoc("a"), ethanolDoc()},
	})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeMoleculeInvalidFormat))
}

func TestComputeBatch_Limits(t *testing.T) {
	svc := NewService(config.FingerprintConfig{MaxBatch: 2}, nil)

	_, err := svc.ComputeBatch(context.Background(), &BatchRequest{})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidParam))

	_, err = svc.ComputeBatch(context.Background(), &BatchRequest{
		Documents: []*moltypes.Document{benzeneDoc("a"), benzeneDoc("b"), ethanolDoc()},
	})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidParam))
}

func TestComputeBatch_Archive(t *testing.T) {
	defer goleak.VerifyNone(t)

	archive := new(MockArchive)
	archive.On("Put", mock.Anything, "exports/job-1.ndjson", mock.AnythingOfType("int64"), "application/x-ndjson").
		Return("exports/job-1.ndjson", nil)

	svc := NewService(config.FingerprintConfig{}, nil, WithArchive(archive))
	res, err := svc.ComputeBatch(context.Background(), &BatchRequest{
		JobID:     "job-1",
		Documents: []*moltypes.Document{benzeneDoc("a"), badDoc()},
		Archive:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, "exports/job-1.ndjson", res.ArchiveKey)

	lines := strings.Split(strings.TrimSpace(archive.body), "\n")
	require.Len(t, lines, 1)
	rec := new(domainFp.Record)
	require.NoError(t, json.Unmarshal([]byte(lines[0]), rec))
	assert.Equal(t, res.Items[0].Record.Digest, rec.Digest)
	assert.True(t, res.Items[0].Record.Fingerprint.Equal(rec.Fingerprint))
}

func TestExport_RequiresArchive(t *testing.T) {
	svc := NewService(config.FingerprintConfig{}, nil)
	_, err := svc.Export(context.Background(), "", nil)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeServiceUnavailable))
}

func TestGet(t *testing.T) {
	cache := newMemCache()
	repo := new(MockRepository)
	stored := &domainFp.Record{Digest: "d1"}
	repo.On("FindByDigest", mock.Anything, "d1").Return(stored, nil).Once()
	repo.On("FindByDigest", mock.Anything, "missing").Return(nil, notFound())

	svc := NewService(config.FingerprintConfig{}, nil, WithRepository(repo), WithCache(cache, 0))

	got, err := svc.Get(context.Background(), "d1")
	require.NoError(t, err)
	assert.Same(t, stored, got)
	// second read is served by the cache
	got, err = svc.Get(context.Background(), "d1")
	require.NoError(t, err)
	assert.Same(t, stored, got)

	_, err = svc.Get(context.Background(), "missing")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeFingerprintNotFound))

	_, err = svc.Get(context.Background(), "")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidParam))
	repo.AssertExpectations(t)
}

func TestList(t *testing.T) {
	repo := new(MockRepository)
	page := common.Pagination{Page: 2, PageSize: 10}
	repo.On("List", mock.Anything, page).Return([]*domainFp.Record{{Digest: "a"}}, int64(11), nil)

	svc := NewService(config.FingerprintConfig{}, nil, WithRepository(repo))
	recs, total, err := svc.List(context.Background(), page)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Equal(t, int64(11), total)

	_, _, err = svc.List(context.Background(), common.Pagination{Page: 0, PageSize: 10})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidParam))
}

func TestDelete(t *testing.T) {
	repo, idx, cache := new(MockRepository), new(MockIndex), newMemCache()
	cache.entries["d1"] = &domainFp.Record{Digest: "d1"}
	repo.On("Delete", mock.Anything, "d1").Return(nil)
	idx.On("Remove", mock.Anything, []string{"d1"}).Return(nil)

	svc := NewService(config.FingerprintConfig{}, nil, WithRepository(repo), WithIndex(idx), WithCache(cache, 0))
	require.NoError(t, svc.Delete(context.Background(), "d1"))
	assert.Empty(t, cache.entries)
	repo.AssertExpectations(t)
	idx.AssertExpectations(t)
}

func TestSearch(t *testing.T) {
	idx := new(MockIndex)
	hits := []domainFp.Match{{Digest: "d1", Tanimoto: 1}}
	idx.On("Search", mock.Anything, mock.AnythingOfType("*fingerprint.Fingerprint"), 3).Return(hits, nil)
	idx.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	svc := NewService(config.FingerprintConfig{}, nil, WithIndex(idx))

	got, err := svc.Search(context.Background(), &SearchRequest{Document: benzeneDoc("q"), TopK: 3})
	require.NoError(t, err)
	assert.Equal(t, hits, got)

	res, err := svc.Compute(context.Background(), &ComputeRequest{Document: ethanolDoc()})
	require.NoError(t, err)
	got, err = svc.Search(context.Background(), &SearchRequest{Fingerprint: res.Record.Fingerprint.Base64(), TopK: 3})
	require.NoError(t, err)
	assert.Equal(t, hits, got)

	_, err = svc.Search(context.Background(), &SearchRequest{Fingerprint: "not-base64!"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidFingerprintEncoding))

	_, err = svc.Search(context.Background(), &SearchRequest{})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidParam))

	_, err = NewService(config.FingerprintConfig{}, nil).Search(context.Background(), &SearchRequest{})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeServiceUnavailable))
}

func TestExplain(t *testing.T) {
	svc := NewService(config.FingerprintConfig{}, nil)
	carbon, err := domainFp.Lookup(">= 4 C")
	require.NoError(t, err)

	exp, err := svc.Explain(context.Background(), benzeneDoc("b"), carbon.Index)
	require.NoError(t, err)
	assert.True(t, exp.Set)

	_, err = svc.Explain(context.Background(), badDoc(), 0)
	require.Error(t, err)
}
