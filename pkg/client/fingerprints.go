package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/turtacn/pcfp/pkg/errors"
	"github.com/turtacn/pcfp/pkg/types/common"
	moltypes "github.com/turtacn/pcfp/pkg/types/molecule"
)

// Fingerprint is a computed or stored fingerprint record.
type Fingerprint struct {
	Digest      string    `json:"digest"`
	MoleculeID  string    `json:"molecule_id,omitempty"`
	Formula     string    `json:"formula,omitempty"`
	Encoding    string    `json:"encoding"`
	Fingerprint string    `json:"fingerprint"`
	OnBits      int       `json:"on_bits"`
	Bits        []int     `json:"bits,omitempty"`
	Source      string    `json:"source,omitempty"`
	ComputedAt  time.Time `json:"computed_at"`
}

// BatchItem is one document of a batch, either a result or an error.
type BatchItem struct {
	Index        int          `json:"index"`
	Result       *Fingerprint `json:"result,omitempty"`
	ErrorCode    string       `json:"error_code,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`
}

type BatchResult struct {
	JobID      string      `json:"job_id"`
	Succeeded  int         `json:"succeeded"`
	Failed     int         `json:"failed"`
	ArchiveKey string      `json:"archive_key,omitempty"`
	Items      []BatchItem `json:"items"`
}

// Match is one similarity search hit.
type Match struct {
	Digest     string  `json:"digest"`
	MoleculeID string  `json:"molecule_id,omitempty"`
	Distance   float32 `json:"distance"`
	Tanimoto   float64 `json:"tanimoto"`
}

// Witness records the atoms or rings that set a bit.
type Witness struct {
	Extractor string `json:"extractor"`
	Atoms     []int  `json:"atoms,omitempty"`
	Rings     []int  `json:"rings,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

type Explanation struct {
	Key       Key       `json:"key"`
	Set       bool      `json:"set"`
	Witnesses []Witness `json:"witnesses,omitempty"`
}

// ViewOptions select the wire encoding and whether bit indices are listed.
type ViewOptions struct {
	Encoding string
	Bits     bool
}

func (v ViewOptions) query() url.Values {
	q := url.Values{}
	if v.Encoding != "" {
		q.Set("encoding", v.Encoding)
	}
	if v.Bits {
		q.Set("bits", "true")
	}
	return q
}

type ComputeOptions struct {
	ViewOptions
	// Refresh recomputes even when the digest is already stored.
	Refresh bool
}

type BatchOptions struct {
	ViewOptions
	JobID    string
	FailFast bool
	Archive  bool
}

// SearchRequest queries by document or by encoded fingerprint.
type SearchRequest struct {
	Document    *moltypes.Document `json:"document,omitempty"`
	Fingerprint string             `json:"fingerprint,omitempty"`
	TopK        int                `json:"top_k,omitempty"`
}

// FingerprintsClient wraps /api/v1/fingerprints.
type FingerprintsClient struct {
	client *Client
}

const fingerprintsPath = "/api/v1/fingerprints"

// Compute fingerprints doc. Source on the result is "engine" for a fresh
// computation.
func (f *FingerprintsClient) Compute(ctx context.Context, doc *moltypes.Document, opts ComputeOptions) (*Fingerprint, error) {
	if doc == nil {
		return nil, errors.InvalidParam("document is required")
	}
	q := opts.query()
	if opts.Refresh {
		q.Set("refresh", "true")
	}
	var out Fingerprint
	_, err := f.client.do(ctx, request{
		method: http.MethodPost,
		path:   fingerprintsPath,
		query:  q,
		body:   doc,
		accept: []int{http.StatusCreated},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ComputeBatch sends docs as one JSON array. Per-document failures are
// reported in the items, not as an error.
func (f *FingerprintsClient) ComputeBatch(ctx context.Context, docs []*moltypes.Document, opts BatchOptions) (*BatchResult, error) {
	if len(docs) == 0 {
		return nil, errors.InvalidParam("at least one document is required")
	}
	q := opts.query()
	if opts.JobID != "" {
		q.Set("job_id", opts.JobID)
	}
	if opts.FailFast {
		q.Set("fail_fast", "true")
	}
	if opts.Archive {
		q.Set("archive", "true")
	}
	var out BatchResult
	_, err := f.client.do(ctx, request{
		method: http.MethodPost,
		path:   fingerprintsPath + "/batch",
		query:  q,
		body:   docs,
		accept: []int{http.StatusMultiStatus},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (f *FingerprintsClient) Get(ctx context.Context, digest string, opts ViewOptions) (*Fingerprint, error) {
	if digest == "" {
		return nil, errors.InvalidParam("digest is required")
	}
	var out Fingerprint
	if _, err := f.client.do(ctx, request{
		method: http.MethodGet,
		path:   fingerprintsPath + "/" + url.PathEscape(digest),
		query:  opts.query(),
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns one page of stored records and the pagination reported by
// the server.
func (f *FingerprintsClient) List(ctx context.Context, page, pageSize int, opts ViewOptions) ([]Fingerprint, common.Pagination, error) {
	q := opts.query()
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		q.Set("page_size", strconv.Itoa(pageSize))
	}
	var out []Fingerprint
	res, err := f.client.do(ctx, request{method: http.MethodGet, path: fingerprintsPath, query: q}, &out)
	if err != nil {
		return nil, common.Pagination{}, err
	}
	var p common.Pagination
	if res.env.Pagination != nil {
		p = *res.env.Pagination
	}
	return out, p, nil
}

func (f *FingerprintsClient) Delete(ctx context.Context, digest string) error {
	if digest == "" {
		return errors.InvalidParam("digest is required")
	}
	_, err := f.client.do(ctx, request{
		method: http.MethodDelete,
		path:   fingerprintsPath + "/" + url.PathEscape(digest),
		accept: []int{http.StatusNoContent},
	}, nil)
	return err
}

func (f *FingerprintsClient) Search(ctx context.Context, req SearchRequest) ([]Match, error) {
	if req.Document == nil && req.Fingerprint == "" {
		return nil, errors.InvalidParam("document or fingerprint is required")
	}
	var out []Match
	if _, err := f.client.do(ctx, request{
		method: http.MethodPost,
		path:   fingerprintsPath + "/search",
		body:   req,
	}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Explain reports why bit is (or is not) set for doc.
func (f *FingerprintsClient) Explain(ctx context.Context, doc *moltypes.Document, bit int) (*Explanation, error) {
	q := url.Values{}
	q.Set("bit", strconv.Itoa(bit))
	return f.explain(ctx, doc, q)
}

// ExplainKey is Explain with the bit named by its catalogue key.
func (f *FingerprintsClient) ExplainKey(ctx context.Context, doc *moltypes.Document, name string) (*Explanation, error) {
	q := url.Values{}
	q.Set("key", name)
	return f.explain(ctx, doc, q)
}

func (f *FingerprintsClient) explain(ctx context.Context, doc *moltypes.Document, q url.Values) (*Explanation, error) {
	if doc == nil {
		return nil, errors.InvalidParam("document is required")
	}
	var out Explanation
	if _, err := f.client.do(ctx, request{
		method: http.MethodPost,
		path:   fingerprintsPath + "/explain",
		query:  q,
		body:   doc,
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
