// Package fingerprint provides the application service that turns molecule
// documents into stored, indexed fingerprints. HTTP handlers, the worker and
// the CLI all go through it.
package fingerprint

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/pcfp/internal/config"
	domainFp "github.com/turtacn/pcfp/internal/domain/fingerprint"
	"github.com/turtacn/pcfp/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/pcfp/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/pcfp/pkg/errors"
	"github.com/turtacn/pcfp/pkg/types/common"
	moltypes "github.com/turtacn/pcfp/pkg/types/molecule"
)

// Metric sources for fingerprints_total.
const (
	SourceEngine = "engine"
	SourceStore  = "store"
	SourceCache  = "cache"
)

const (
	defaultConcurrency = 4
	defaultMaxBatch    = 1000
	exportContentType  = "application/x-ndjson"
)

// Service defines the fingerprint application operations.
type Service interface {
	Compute(ctx context.Context, req *ComputeRequest) (*ComputeResult, error)
	ComputeBatch(ctx context.Context, req *BatchRequest) (*BatchResult, error)
	Get(ctx context.Context, digest string) (*domainFp.Record, error)
	List(ctx context.Context, page common.Pagination) ([]*domainFp.Record, int64, error)
	Delete(ctx context.Context, digest string) error
	Search(ctx context.Context, req *SearchRequest) ([]domainFp.Match, error)
	Explain(ctx context.Context, doc *moltypes.Document, bit int) (*domainFp.Explanation, error)
	Export(ctx context.Context, jobID string, records []*domainFp.Record) (string, error)
}

// ComputeRequest asks for the fingerprint of one document.
type ComputeRequest struct {
	Document *moltypes.Document
	// Refresh skips the cache and the store and recomputes.
	Refresh bool
}

// ComputeResult is a record plus where it came from.
type ComputeResult struct {
	Record *domainFp.Record
	Source string
}

// BatchRequest computes many documents under one job id.
type BatchRequest struct {
	JobID     string
	Documents []*moltypes.Document
	FailFast  bool
	// Archive writes the successful records to object storage as NDJSON.
	Archive bool
}

// BatchItem is the outcome for Documents[Index].
type BatchItem struct {
	Index        int              `json:"index"`
	Record       *domainFp.Record `json:"record,omitempty"`
	Source       string           `json:"source,omitempty"`
	ErrorCode    string           `json:"error_code,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

// Failed reports whether the item carries an error.
func (i BatchItem) Failed() bool { return i.ErrorCode != "" }

// BatchResult holds per-item outcomes in request order.
type BatchResult struct {
	JobID      string      `json:"job_id"`
	Items      []BatchItem `json:"items"`
	Succeeded  int         `json:"succeeded"`
	Failed     int         `json:"failed"`
	ArchiveKey string      `json:"archive_key,omitempty"`
}

// SearchRequest finds the nearest stored fingerprints to a document or to an
// encoded fingerprint. Document wins when both are set.
type SearchRequest struct {
	Document    *moltypes.Document
	Fingerprint string
	TopK        int
}

// loadingCache is implemented by caches that collapse concurrent loads.
type loadingCache interface {
	GetOrLoad(ctx context.Context, digest string, load func(context.Context) (*domainFp.Record, error)) (*domainFp.Record, bool, error)
}

// Option configures the service.
type Option func(*serviceImpl)

func WithRepository(r domainFp.Repository) Option { return func(s *serviceImpl) { s.repo = r } }

// WithCache sets the read-through cache; ttl 0 uses the cache default.
func WithCache(c domainFp.Cache, ttl time.Duration) Option {
	return func(s *serviceImpl) { s.cache, s.cacheTTL = c, ttl }
}

func WithIndex(x domainFp.Index) Option         { return func(s *serviceImpl) { s.index = x } }
func WithPublisher(p domainFp.Publisher) Option { return func(s *serviceImpl) { s.publisher = p } }
func WithArchive(a domainFp.Archive) Option     { return func(s *serviceImpl) { s.archive = a } }
func WithMetrics(m *prometheus.AppMetrics) Option {
	return func(s *serviceImpl) { s.metrics = m }
}
func WithEngine(e *domainFp.Engine) Option { return func(s *serviceImpl) { s.engine = e } }

type serviceImpl struct {
	cfg       config.FingerprintConfig
	engine    *domainFp.Engine
	repo      domainFp.Repository
	cache     domainFp.Cache
	cacheTTL  time.Duration
	index     domainFp.Index
	publisher domainFp.Publisher
	archive   domainFp.Archive
	metrics   *prometheus.AppMetrics
	logger    logging.Logger
}

// NewService creates the fingerprint service. Every collaborator is optional;
// without a repository results are computed but not stored.
func NewService(cfg config.FingerprintConfig, logger logging.Logger, opts ...Option) Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = defaultMaxBatch
	}
	s := &serviceImpl{cfg: cfg, logger: logger.Named("fingerprint")}
	for _, opt := range opts {
		opt(s)
	}
	if s.engine == nil {
		s.engine = domainFp.NewEngine(domainFp.WithLogger(s.logger))
	}
	if s.metrics == nil {
		s.metrics = prometheus.NewNoopMetrics()
	}
	return s
}

func (s *serviceImpl) Compute(ctx context.Context, req *ComputeRequest) (*ComputeResult, error) {
	if req == nil {
		return nil, errors.InvalidParam("compute request is required")
	}
	rec, source, err := s.resolve(ctx, req.Document, req.Refresh)
	if err != nil {
		return nil, err
	}
	if source == SourceEngine {
		if err := s.persist(ctx, rec); err != nil {
			return nil, err
		}
		s.propagate(ctx, rec)
	}
	return &ComputeResult{Record: rec, Source: source}, nil
}

func (s *serviceImpl) ComputeBatch(ctx context.Context, req *BatchRequest) (*BatchResult, error) {
	if req == nil || len(req.Documents) == 0 {
		return nil, errors.InvalidParam("batch has no documents")
	}
	if len(req.Documents) > s.cfg.MaxBatch {
		return nil, errors.Newf(errors.CodeInvalidParam, "batch has %d documents, limit is %d", len(req.Documents), s.cfg.MaxBatch)
	}
	jobID := req.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	}
	failFast := req.FailFast || s.cfg.FailFast
	log := s.logger.With(logging.String("job_id", jobID))

	s.metrics.BatchSize.WithLabelValues().Observe(float64(len(req.Documents)))
	inFlight := s.metrics.BatchInFlight.WithLabelValues()

	items := make([]BatchItem, len(req.Documents))
	sources := make([]string, len(req.Documents))

	var g *errgroup.Group
	gctx := ctx
	if failFast {
		g, gctx = errgroup.WithContext(ctx)
	} else {
		g = new(errgroup.Group)
	}
	g.SetLimit(s.cfg.Concurrency)

	for i, doc := range req.Documents {
		i, doc := i, doc
		items[i].Index = i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				items[i].fail(errors.Wrap(err, errors.ErrCodeFingerprintGenerationFailed, "batch cancelled"))
				return err
			}
			inFlight.Inc()
			defer inFlight.Dec()

			rec, source, err := s.resolve(gctx, doc, false)
			if err != nil {
				items[i].fail(err)
				if failFast {
					return err
				}
				return nil
			}
			items[i].Record, items[i].Source = rec, source
			sources[i] = source
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Warn("batch aborted", logging.Err(err))
		return nil, err
	}

	res := &BatchResult{JobID: jobID, Items: items}
	var fresh, done []*domainFp.Record
	for i := range items {
		if items[i].Failed() {
			res.Failed++
			continue
		}
		res.Succeeded++
		done = append(done, items[i].Record)
		if sources[i] == SourceEngine {
			fresh = append(fresh, items[i].Record)
		}
	}

	if len(fresh) > 0 {
		if err := s.persist(ctx, fresh...); err != nil {
			return nil, err
		}
		s.propagate(ctx, fresh...)
	}
	if req.Archive && len(done) > 0 {
		key, err := s.Export(ctx, jobID, done)
		if err != nil {
			return nil, err
		}
		res.ArchiveKey = key
	}

	log.Info("batch computed",
		logging.Int("documents", len(items)),
		logging.Int("succeeded", res.Succeeded),
		logging.Int("failed", res.Failed),
		logging.Int("computed", len(fresh)))
	return res, nil
}

func (it *BatchItem) fail(err error) {
	it.ErrorCode = string(errors.GetCode(err))
	it.ErrorMessage = err.Error()
}

// resolve returns the record for doc from the cache, the store or the engine.
func (s *serviceImpl) resolve(ctx context.Context, doc *moltypes.Document, refresh bool) (*domainFp.Record, string, error) {
	digest, err := doc.Digest()
	if err != nil {
		return nil, "", err
	}

	source := SourceEngine
	load := func(ctx context.Context) (*domainFp.Record, error) {
		if s.repo != nil && !refresh {
			rec, err := s.repo.FindByDigest(ctx, digest)
			if err == nil {
				source = SourceStore
				return rec, nil
			}
			if !errors.IsCode(err, errors.ErrCodeFingerprintNotFound) {
				s.logger.Warn("store lookup failed, computing", logging.String("digest", digest), logging.Err(err))
			}
		}
		return s.compute(ctx, digest, doc)
	}

	var rec *domainFp.Record
	switch c := s.cache.(type) {
	case nil:
		rec, err = load(ctx)
	case loadingCache:
		if refresh {
			rec, err = load(ctx)
			s.fill(ctx, rec, err)
			break
		}
		var hit bool
		rec, hit, err = c.GetOrLoad(ctx, digest, load)
		prometheus.RecordCacheAccess(s.metrics, "fingerprint", hit)
		if hit {
			source = SourceCache
		}
	default:
		if !refresh {
			cached, ok, cerr := c.Get(ctx, digest)
			if cerr != nil {
				s.logger.Warn("cache read failed", logging.String("digest", digest), logging.Err(cerr))
			}
			prometheus.RecordCacheAccess(s.metrics, "fingerprint", ok)
			if ok {
				return s.served(cached, SourceCache, 0), SourceCache, nil
			}
		}
		rec, err = load(ctx)
		s.fill(ctx, rec, err)
	}
	if err != nil {
		return nil, "", err
	}
	if source != SourceEngine {
		s.served(rec, source, 0)
	}
	return rec, source, nil
}

func (s *serviceImpl) fill(ctx context.Context, rec *domainFp.Record, err error) {
	if err != nil || s.cache == nil {
		return
	}
	if cerr := s.cache.Set(ctx, rec, s.cacheTTL); cerr != nil {
		s.logger.Warn("cache write failed", logging.String("digest", rec.Digest), logging.Err(cerr))
	}
}

func (s *serviceImpl) served(rec *domainFp.Record, source string, took time.Duration) *domainFp.Record {
	prometheus.RecordFingerprint(s.metrics, source, rec.OnBits, took)
	return rec
}

func (s *serviceImpl) compute(ctx context.Context, digest string, doc *moltypes.Document) (*domainFp.Record, error) {
	start := time.Now()
	g, err := doc.Build()
	if err != nil {
		prometheus.RecordFingerprintFailure(s.metrics, string(errors.GetCode(err)))
		return nil, err
	}
	fp, err := s.engine.Compute(ctx, g)
	if err != nil {
		prometheus.RecordFingerprintFailure(s.metrics, string(errors.GetCode(err)))
		return nil, err
	}
	rec := domainFp.NewRecord(digest, doc.ID, g.Formula.String(), fp)
	s.served(rec, SourceEngine, time.Since(start))
	return rec, nil
}

// persist writes fresh records to the repository; a failure fails the request.
func (s *serviceImpl) persist(ctx context.Context, records ...*domainFp.Record) error {
	if s.repo == nil {
		return nil
	}
	start := time.Now()
	var err error
	if len(records) == 1 {
		err = s.repo.Save(ctx, records[0])
	} else {
		err = s.repo.SaveBatch(ctx, records)
	}
	prometheus.RecordDBQuery(s.metrics, "postgres", "save_fingerprint", time.Since(start), err)
	return err
}

// propagate indexes and publishes records. Failures are logged and counted.
func (s *serviceImpl) propagate(ctx context.Context, records ...*domainFp.Record) {
	if s.index != nil {
		if err := s.index.Upsert(ctx, records); err != nil {
			prometheus.RecordError(s.metrics, "index", string(errors.GetCode(err)))
			s.logger.Error("failed to index fingerprints", logging.Int("count", len(records)), logging.Err(err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, records...); err != nil {
			prometheus.RecordError(s.metrics, "publisher", string(errors.GetCode(err)))
			s.logger.Error("failed to publish fingerprints", logging.Int("count", len(records)), logging.Err(err))
		}
	}
}

func (s *serviceImpl) Get(ctx context.Context, digest string) (*domainFp.Record, error) {
	if digest == "" {
		return nil, errors.InvalidParam("digest is required")
	}
	if s.cache != nil {
		rec, ok, err := s.cache.Get(ctx, digest)
		prometheus.RecordCacheAccess(s.metrics, "fingerprint", ok)
		if err == nil && ok {
			return rec, nil
		}
	}
	if s.repo == nil {
		return nil, errors.Newf(errors.ErrCodeFingerprintNotFound, "fingerprint %s not found", digest)
	}
	rec, err := s.repo.FindByDigest(ctx, digest)
	if err != nil {
		return nil, err
	}
	s.fill(ctx, rec, nil)
	return rec, nil
}

func (s *serviceImpl) List(ctx context.Context, page common.Pagination) ([]*domainFp.Record, int64, error) {
	if err := page.Validate(); err != nil {
		return nil, 0, errors.Wrap(err, errors.CodeInvalidParam, "invalid pagination")
	}
	if s.repo == nil {
		return nil, 0, nil
	}
	return s.repo.List(ctx, page)
}

func (s *serviceImpl) Delete(ctx context.Context, digest string) error {
	if digest == "" {
		return errors.InvalidParam("digest is required")
	}
	if s.repo != nil {
		if err := s.repo.Delete(ctx, digest); err != nil {
			return err
		}
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, digest); err != nil {
			s.logger.Warn("cache invalidate failed", logging.String("digest", digest), logging.Err(err))
		}
	}
	if s.index != nil {
		if err := s.index.Remove(ctx, []string{digest}); err != nil {
			s.logger.Warn("index remove failed", logging.String("digest", digest), logging.Err(err))
		}
	}
	return nil
}

func (s *serviceImpl) Search(ctx context.Context, req *SearchRequest) ([]domainFp.Match, error) {
	if s.index == nil {
		return nil, errors.Unavailable("similarity index is not configured")
	}
	if req == nil {
		return nil, errors.InvalidParam("search request is required")
	}
	var query *domainFp.Fingerprint
	switch {
	case req.Document != nil:
		rec, _, err := s.resolve(ctx, req.Document, false)
		if err != nil {
			return nil, err
		}
		query = rec.Fingerprint
	case req.Fingerprint != "":
		fp, err := domainFp.ParseBase64(req.Fingerprint)
		if err != nil {
			return nil, err
		}
		query = fp
	default:
		return nil, errors.InvalidParam("either document or fingerprint is required")
	}
	return s.index.Search(ctx, query, req.TopK)
}

func (s *serviceImpl) Explain(ctx context.Context, doc *moltypes.Document, bit int) (*domainFp.Explanation, error) {
	g, err := doc.Build()
	if err != nil {
		return nil, err
	}
	return s.engine.Explain(ctx, g, bit)
}

// Export writes records as NDJSON under exports/<jobID>.ndjson and returns the key.
func (s *serviceImpl) Export(ctx context.Context, jobID string, records []*domainFp.Record) (string, error) {
	if s.archive == nil {
		return "", errors.Unavailable("archive storage is not configured")
	}
	if jobID == "" {
		jobID = uuid.NewString()
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return "", errors.Wrap(err, errors.ErrCodeSerialization, "encode export record")
		}
	}
	key, err := s.archive.Put(ctx, "exports/"+jobID+".ndjson", &buf, int64(buf.Len()), exportContentType)
	if err != nil {
		return "", err
	}
	s.logger.Info("batch exported", logging.String("job_id", jobID), logging.String("key", key), logging.Int("records", len(records)))
	return key, nil
}
