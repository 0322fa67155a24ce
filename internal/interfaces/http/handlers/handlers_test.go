package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	appfp "github.com/turtacn/pcfp/internal/application/fingerprint"
	"github.com/turtacn/pcfp/internal/config"
	domainFp "github.com/turtacn/pcfp/internal/domain/fingerprint"
	"github.com/turtacn/pcfp/internal/interfaces/http/middleware"
	apperrors "github.com/turtacn/pcfp/pkg/errors"
	"github.com/turtacn/pcfp/pkg/types/common"
	moltypes "github.com/turtacn/pcfp/pkg/types/molecule"
)

const benzeneJSON = `{"id":"benzene","atoms":[
  {"element":"C","hydrogens":1},{"element":"C","hydrogens":1},{"element":"C","hydrogens":1},
  {"element":"C","hydrogens":1},{"element":"C","hydrogens":1},{"element":"C","hydrogens":1}],
 "bonds":[{"begin":0,"end":1,"order":"aromatic"},{"begin":1,"end":2,"order":"aromatic"},
  {"begin":2,"end":3,"order":"aromatic"},{"begin":3,"end":4,"order":"aromatic"},
  {"begin":4,"end":5,"order":"aromatic"},{"begin":5,"end":0,"order":"aromatic"}],
 "rings":[[0,1,2,3,4,5]]}`

const methaneJSON = `{"id":"methane","atoms":[{"element":"C","hydrogens":4}],"bonds":[]}`

// MockService is a mock implementation of appfp.Service.
type MockService struct {
	mock.Mock
}

func (m *MockService) Compute(ctx context.Context, req *appfp.ComputeRequest) (*appfp.ComputeResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appfp.ComputeResult), args.Error(1)
}

func (m *MockService) ComputeBatch(ctx context.Context, req *appfp.BatchRequest) (*appfp.BatchResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appfp.BatchResult), args.Error(1)
}

func (m *MockService) Get(ctx context.Context, digest string) (*domainFp.Record, error) {
	args := m.Called(ctx, digest)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domainFp.Record), args.Error(1)
}

func (m *MockService) List(ctx context.Context, page common.Pagination) ([]*domainFp.Record, int64, error) {
	args := m.Called(ctx, page)
	return args.Get(0).([]*domainFp.Record), args.Get(1).(int64), args.Error(2)
}

func (m *MockService) Delete(ctx context.Context, digest string) error {
	return m.Called(ctx, digest).Error(0)
}

func (m *MockService) Search(ctx context.Context, req *appfp.SearchRequest) ([]domainFp.Match, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domainFp.Match), args.Error(1)
}

func (m *MockService) Explain(ctx context.Context, doc *moltypes.Document, bit int) (*domainFp.Explanation, error) {
	args := m.Called(ctx, doc, bit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domainFp.Explanation), args.Error(1)
}

func (m *MockService) Export(ctx context.Context, jobID string, records []*domainFp.Record) (string, error) {
	args := m.Called(ctx, jobID, records)
	return args.String(0), args.Error(1)
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(svc appfp.Service) *gin.Engine {
	h := NewFingerprintHandler(svc, EncodingBase64, nil)
	k := NewKeysHandler()
	r := gin.New()
	r.Use(middleware.RequestID())
	r.POST("/fingerprints", h.Compute)
	r.POST("/fingerprints/batch", h.ComputeBatch)
	r.POST("/fingerprints/search", h.Search)
	r.POST("/fingerprints/explain", h.Explain)
	r.GET("/fingerprints", h.List)
	r.GET("/fingerprints/:digest", h.Get)
	r.DELETE("/fingerprints/:digest", h.Delete)
	r.GET("/keys", k.List)
	r.GET("/keys/sections", k.Sections)
	r.GET("/keys/:index", k.Get)
	return r
}

func do(r *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelope[T any] struct {
	Success    bool                `json:"success"`
	Data       T                   `json:"data"`
	Error      *common.ErrorDetail `json:"error"`
	Pagination *common.Pagination  `json:"pagination"`
	RequestID  string              `json:"request_id"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func TestCompute(t *testing.T) {
	r := newEngine(appfp.NewService(config.FingerprintConfig{}, nil))

	w := do(r, http.MethodPost, "/fingerprints?bits=true", benzeneJSON)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	env := decode[FingerprintResponse](t, w)
	assert.True(t, env.Success)
	assert.NotEmpty(t, env.RequestID)
	assert.Equal(t, "benzene", env.Data.MoleculeID)
	assert.Equal(t, "C6H6", env.Data.Formula)
	assert.Equal(t, EncodingBase64, env.Data.Encoding)
	assert.True(t, strings.HasPrefix(env.Data.Fingerprint, "AAADc"))
	assert.Len(t, env.Data.Bits, env.Data.OnBits)

	fp, err := domainFp.ParseBase64(env.Data.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, env.Data.OnBits, fp.Count())

	w = do(r, http.MethodPost, "/fingerprints?encoding=hex", methaneJSON)
	require.Equal(t, http.StatusCreated, w.Code)
	hexEnv := decode[FingerprintResponse](t, w)
	assert.Len(t, hexEnv.Data.Fingerprint, 2*domainFp.ByteLen)
	assert.Empty(t, hexEnv.Data.Bits)
}

func TestCompute_Errors(t *testing.T) {
	r := newEngine(appfp.NewService(config.FingerprintConfig{}, nil))

	tests := []struct {
		name   string
		target string
		body   string
		status int
		code   apperrors.ErrorCode
	}{
		{"bad encoding", "/fingerprints?encoding=b32", methaneJSON, http.StatusBadRequest, apperrors.CodeInvalidParam},
		{"not json", "/fingerprints", "{", http.StatusBadRequest, apperrors.ErrCodeMoleculeParsingFailed},
		{"unknown field", "/fingerprints", `{"atoms":[{"element":"C"}],"smiles":"C"}`, http.StatusBadRequest, apperrors.ErrCodeMoleculeParsingFailed},
		{"unknown element", "/fingerprints", `{"atoms":[{"element":"Qq"}]}`, http.StatusBadRequest, apperrors.ErrCodeMoleculeInvalidFormat},
		{"dangling bond", "/fingerprints", `{"atoms":[{"element":"C"}],"bonds":[{"begin":0,"end":3,"order":"single"}]}`, http.StatusUnprocessableEntity, apperrors.ErrCodeMalformedGraph},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			env := decode[any](t, w)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, string(tt.code), env.Error.Code)
		})
	}
}

func TestComputeBatch(t *testing.T) {
	r := newEngine(appfp.NewService(config.FingerprintConfig{}, nil))

	body := strings.ReplaceAll(benzeneJSON, "\n", "") + "\n" + `{"atoms":[{"element":"Qq"}]}` + "\n" + methaneJSON + "\n"
	w := do(r, http.MethodPost, "/fingerprints/batch?job_id=j1", body)
	require.Equal(t, http.StatusMultiStatus, w.Code, w.Body.String())

	env := decode[BatchResponse](t, w)
	assert.Equal(t, "j1", env.Data.JobID)
	assert.Equal(t, 2, env.Data.Succeeded)
	assert.Equal(t, 1, env.Data.Failed)
	require.Len(t, env.Data.Items, 3)
	assert.Equal(t, "benzene", env.Data.Items[0].Result.MoleculeID)
	assert.Equal(t, string(apperrors.ErrCodeMoleculeInvalidFormat), env.Data.Items[1].ErrorCode)
	assert.Nil(t, env.Data.Items[1].Result)

	w = do(r, http.MethodPost, "/fingerprints/batch", "["+benzeneJSON+"]")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGet(t *testing.T) {
	svc := new(MockService)
	rec := &domainFp.Record{Digest: "abc", OnBits: 0, ComputedAt: time.Unix(0, 0).UTC()}
	svc.On("Get", mock.Anything, "abc").Return(rec, nil)
	svc.On("Get", mock.Anything, "nope").Return(nil, apperrors.New(apperrors.ErrCodeFingerprintNotFound, "fingerprint not found"))
	r := newEngine(svc)

	w := do(r, http.MethodGet, "/fingerprints/abc", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc", decode[FingerprintResponse](t, w).Data.Digest)

	w = do(r, http.MethodGet, "/fingerprints/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "MOL_019", decode[any](t, w).Error.Code)
}

func TestList(t *testing.T) {
	svc := new(MockService)
	svc.On("List", mock.Anything, common.Pagination{Page: 2, PageSize: 5}).
		Return([]*domainFp.Record{{Digest: "a"}, {Digest: "b"}}, int64(7), nil)
	r := newEngine(svc)

	w := do(r, http.MethodGet, "/fingerprints?page=2&page_size=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	env := decode[[]FingerprintResponse](t, w)
	assert.Len(t, env.Data, 2)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, int64(7), env.Pagination.Total)
}

func TestDelete(t *testing.T) {
	svc := new(MockService)
	svc.On("Delete", mock.Anything, "abc").Return(nil)
	w := do(newEngine(svc), http.MethodDelete, "/fingerprints/abc", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	svc.AssertExpectations(t)
}

func TestSearch(t *testing.T) {
	svc := new(MockService)
	svc.On("Search", mock.Anything, mock.MatchedBy(func(r *appfp.SearchRequest) bool {
		return r.Fingerprint == "AAADc" && r.TopK == 3
	})).Return([]domainFp.Match{{Digest: "d1", Tanimoto: 0.9}}, nil)
	svc.On("Search", mock.Anything, mock.MatchedBy(func(r *appfp.SearchRequest) bool { return r.Fingerprint == "" })).
		Return(nil, apperrors.Unavailable("similarity index is not configured"))
	r := newEngine(svc)

	w := do(r, http.MethodPost, "/fingerprints/search", `{"fingerprint":"AAADc","top_k":3}`)
	require.Equal(t, http.StatusOK, w.Code)
	env := decode[[]domainFp.Match](t, w)
	require.Len(t, env.Data, 1)
	assert.Equal(t, "d1", env.Data[0].Digest)

	w = do(r, http.MethodPost, "/fingerprints/search", `{}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(r, http.MethodPost, "/fingerprints/search", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExplain(t *testing.T) {
	r := newEngine(appfp.NewService(config.FingerprintConfig{}, nil))

	w := do(r, http.MethodPost, "/fingerprints/explain?key="+url.QueryEscape(">= 4 C"), benzeneJSON)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	env := decode[domainFp.Explanation](t, w)
	assert.True(t, env.Data.Set)
	assert.Equal(t, ">= 4 C", env.Data.Key.Name)

	w = do(r, http.MethodPost, "/fingerprints/explain", benzeneJSON)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/fingerprints/explain?bit=9999", benzeneJSON)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestKeys(t *testing.T) {
	r := newEngine(new(MockService))

	w := do(r, http.MethodGet, "/keys", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]domainFp.Key](t, w).Data, domainFp.Size)

	w = do(r, http.MethodGet, "/keys?section=3", "")
	require.Equal(t, http.StatusOK, w.Code)
	keys := decode[[]domainFp.Key](t, w).Data
	require.Len(t, keys, 64)
	assert.Equal(t, 263, keys[0].Index)

	w = do(r, http.MethodGet, "/keys?section=8", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/keys/0", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decode[domainFp.Key](t, w).Data.Index)

	w = do(r, http.MethodGet, "/keys/881", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodGet, "/keys/sections", "")
	require.Equal(t, http.StatusOK, w.Code)
	secs := decode[[]SectionInfo](t, w).Data
	require.Len(t, secs, 7)
	assert.Equal(t, 713, secs[6].First)
	assert.Equal(t, 880, secs[6].Last)
}

func TestWriteAppError_MasksServerErrors(t *testing.T) {
	svc := new(MockService)
	svc.On("Get", mock.Anything, "x").Return(nil, errors.New("pq: password authentication failed"))
	w := do(newEngine(svc), http.MethodGet, "/fingerprints/x", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "password")
	assert.Equal(t, string(apperrors.ErrCodeInternal), decode[any](t, w).Error.Code)
}

func TestHealth(t *testing.T) {
	ok := CheckFunc{Component: "redis", Fn: func(context.Context) error { return nil }}
	bad := CheckFunc{Component: "postgres", Fn: func(context.Context) error { return errors.New("refused") }}

	r := gin.New()
	healthy := NewHealthHandler("v1", ok)
	sick := NewHealthHandler("v1", ok, bad)
	r.GET("/healthz", sick.Liveness)
	r.GET("/readyz", healthy.Readiness)
	r.GET("/readyz/sick", sick.Readiness)

	w := do(r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/readyz/sick", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, common.HealthDegraded, resp.Status)
	assert.Equal(t, common.HealthDown, resp.Components["postgres"].Status)
	assert.Equal(t, "refused", resp.Components["postgres"].Message)
}
