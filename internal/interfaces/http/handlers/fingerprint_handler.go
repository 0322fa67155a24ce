package handlers

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	appfp "github.com/turtacn/pcfp/internal/application/fingerprint"
	domainFp "github.com/turtacn/pcfp/internal/domain/fingerprint"
	"github.com/turtacn/pcfp/internal/infrastructure/monitoring/logging"
	moltypes "github.com/turtacn/pcfp/pkg/types/molecule"
)

// Wire encodings of a fingerprint.
const (
	EncodingBase64 = "base64"
	EncodingHex    = "hex"
)

// FingerprintHandler serves /api/v1/fingerprints.
type FingerprintHandler struct {
	svc      appfp.Service
	encoding string
	logger   logging.Logger
}

// NewFingerprintHandler creates a handler; encoding is the default wire form.
func NewFingerprintHandler(svc appfp.Service, encoding string, logger logging.Logger) *FingerprintHandler {
	if encoding != EncodingHex {
		encoding = EncodingBase64
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &FingerprintHandler{svc: svc, encoding: encoding, logger: logger}
}

// FingerprintResponse is the API form of a stored record.
type FingerprintResponse struct {
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

// BatchItemResponse is one entry of a batch response.
type BatchItemResponse struct {
	Index        int                  `json:"index"`
	Result       *FingerprintResponse `json:"result,omitempty"`
	ErrorCode    string               `json:"error_code,omitempty"`
	ErrorMessage string               `json:"error_message,omitempty"`
}

// BatchResponse summarises a batch computation.
type BatchResponse struct {
	JobID      string              `json:"job_id"`
	Succeeded  int                 `json:"succeeded"`
	Failed     int                 `json:"failed"`
	ArchiveKey string              `json:"archive_key,omitempty"`
	Items      []BatchItemResponse `json:"items"`
}

// SearchRequest is the body of POST /fingerprints/search.
type SearchRequest struct {
	Document    *moltypes.Document `json:"document,omitempty"`
	Fingerprint string             `json:"fingerprint,omitempty"`
	TopK        int                `json:"top_k,omitempty"`
}

type view struct {
	encoding string
	bits     bool
}

func (h *FingerprintHandler) view(c *gin.Context) (view, bool) {
	v := view{encoding: h.encoding, bits: c.Query("bits") == "true"}
	switch enc := c.Query("encoding"); enc {
	case "":
	case EncodingBase64, EncodingHex:
		v.encoding = enc
	default:
		badRequest(c, "encoding must be base64 or hex")
		return v, false
	}
	return v, true
}

func (v view) render(rec *domainFp.Record, source string) *FingerprintResponse {
	out := &FingerprintResponse{
		Digest:     rec.Digest,
		MoleculeID: rec.MoleculeID,
		Formula:    rec.Formula,
		Encoding:   v.encoding,
		OnBits:     rec.OnBits,
		Source:     source,
		ComputedAt: rec.ComputedAt,
	}
	if rec.Fingerprint != nil {
		if v.encoding == EncodingHex {
			out.Fingerprint = rec.Fingerprint.Hex()
		} else {
			out.Fingerprint = rec.Fingerprint.Base64()
		}
		if v.bits {
			out.Bits = rec.Fingerprint.OnBits()
		}
	}
	return out
}

// Compute handles POST /fingerprints with a molecule document body.
func (h *FingerprintHandler) Compute(c *gin.Context) {
	v, ok := h.view(c)
	if !ok {
		return
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		badRequest(c, "failed to read request body")
		return
	}
	doc, err := moltypes.ParseDocument(body)
	if err != nil {
		writeAppError(c, err)
		return
	}

	res, err := h.svc.Compute(c.Request.Context(), &appfp.ComputeRequest{
		Document: doc,
		Refresh:  c.Query("refresh") == "true",
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	status := http.StatusOK
	if res.Source == appfp.SourceEngine {
		status = http.StatusCreated
	}
	writeData(c, status, v.render(res.Record, res.Source))
}

// ComputeBatch handles POST /fingerprints/batch with a JSON array or NDJSON body.
func (h *FingerprintHandler) ComputeBatch(c *gin.Context) {
	v, ok := h.view(c)
	if !ok {
		return
	}
	docs, err := moltypes.ReadDocuments(c.Request.Body)
	if err != nil {
		writeAppError(c, err)
		return
	}

	res, err := h.svc.ComputeBatch(c.Request.Context(), &appfp.BatchRequest{
		JobID:     c.Query("job_id"),
		Documents: docs,
		FailFast:  c.Query("fail_fast") == "true",
		Archive:   c.Query("archive") == "true",
	})
	if err != nil {
		writeAppError(c, err)
		return
	}

	out := BatchResponse{
		JobID:      res.JobID,
		Succeeded:  res.Succeeded,
		Failed:     res.Failed,
		ArchiveKey: res.ArchiveKey,
		Items:      make([]BatchItemResponse, len(res.Items)),
	}
	for i, it := range res.Items {
		out.Items[i] = BatchItemResponse{Index: it.Index, ErrorCode: it.ErrorCode, ErrorMessage: it.ErrorMessage}
		if it.Record != nil {
			out.Items[i].Result = v.render(it.Record, it.Source)
		}
	}
	status := http.StatusOK
	if res.Failed > 0 {
		status = http.StatusMultiStatus
	}
	writeData(c, status, out)
}

// Get handles GET /fingerprints/:digest.
func (h *FingerprintHandler) Get(c *gin.Context) {
	v, ok := h.view(c)
	if !ok {
		return
	}
	rec, err := h.svc.Get(c.Request.Context(), c.Param("digest"))
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeData(c, http.StatusOK, v.render(rec, ""))
}

// List handles GET /fingerprints.
func (h *FingerprintHandler) List(c *gin.Context) {
	v, ok := h.view(c)
	if !ok {
		return
	}
	page := parsePagination(c)
	recs, total, err := h.svc.List(c.Request.Context(), page)
	if err != nil {
		writeAppError(c, err)
		return
	}
	out := make([]*FingerprintResponse, len(recs))
	for i, r := range recs {
		out[i] = v.render(r, "")
	}
	page.Total = total
	writePage(c, out, page)
}

// Delete handles DELETE /fingerprints/:digest.
func (h *FingerprintHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("digest")); err != nil {
		writeAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Search handles POST /fingerprints/search.
func (h *FingerprintHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid search request: "+err.Error())
		return
	}
	matches, err := h.svc.Search(c.Request.Context(), &appfp.SearchRequest{
		Document:    req.Document,
		Fingerprint: req.Fingerprint,
		TopK:        req.TopK,
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	if matches == nil {
		matches = []domainFp.Match{}
	}
	writeData(c, http.StatusOK, matches)
}

// Explain handles POST /fingerprints/explain?bit=N (or ?key=name) with a
// molecule document body.
func (h *FingerprintHandler) Explain(c *gin.Context) {
	bit, ok := bitParam(c)
	if !ok {
		return
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		badRequest(c, "failed to read request body")
		return
	}
	doc, err := moltypes.ParseDocument(body)
	if err != nil {
		writeAppError(c, err)
		return
	}
	exp, err := h.svc.Explain(c.Request.Context(), doc, bit)
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeData(c, http.StatusOK, exp)
}

// bitParam resolves ?bit=N or ?key=name to a bit index.
func bitParam(c *gin.Context) (int, bool) {
	if name := c.Query("key"); name != "" {
		k, err := domainFp.Lookup(name)
		if err != nil {
			writeAppError(c, err)
			return 0, false
		}
		return k.Index, true
	}
	bit, err := strconv.Atoi(c.Query("bit"))
	if err != nil {
		badRequest(c, "bit or key query parameter is required")
		return 0, false
	}
	return bit, true
}
