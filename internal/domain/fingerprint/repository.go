package fingerprint

import (
	"context"
	"io"
	"time"

	"github.com/turtacn/pcfp/pkg/types/common"
)

// Record is a computed fingerprint keyed by the digest of the molecule
// document it was computed from.
type Record struct {
	Digest      string       `json:"digest"`
	MoleculeID  string       `json:"molecule_id,omitempty"`
	Formula     string       `json:"formula,omitempty"`
	Fingerprint *Fingerprint `json:"fingerprint"`
	OnBits      int          `json:"on_bits"`
	ComputedAt  time.Time    `json:"computed_at"`
}

// NewRecord stamps a fingerprint with its digest.
func NewRecord(digest, moleculeID, formula string, fp *Fingerprint) *Record {
	return &Record{
		Digest:      digest,
		MoleculeID:  moleculeID,
		Formula:     formula,
		Fingerprint: fp,
		OnBits:      fp.Count(),
		ComputedAt:  time.Now().UTC(),
	}
}

// Repository persists fingerprint records.
type Repository interface {
	// Save inserts or replaces the record stored under r.Digest.
	Save(ctx context.Context, r *Record) error

	// SaveBatch stores all records in one transaction.
	SaveBatch(ctx context.Context, records []*Record) error

	// FindByDigest returns errors.ErrCodeFingerprintNotFound when absent.
	FindByDigest(ctx context.Context, digest string) (*Record, error)

	// List returns records ordered by computed_at descending.
	List(ctx context.Context, page common.Pagination) ([]*Record, int64, error)

	Delete(ctx context.Context, digest string) error
}

// Cache is a read-through cache in front of the Repository.
type Cache interface {
	Get(ctx context.Context, digest string) (*Record, bool, error)
	Set(ctx context.Context, r *Record, ttl time.Duration) error
	Invalidate(ctx context.Context, digest string) error
}

// Match is one similarity search hit.
type Match struct {
	Digest     string  `json:"digest"`
	MoleculeID string  `json:"molecule_id,omitempty"`
	Distance   float32 `json:"distance"`
	Tanimoto   float64 `json:"tanimoto"`
}

// Index is a binary vector index over fingerprints.
type Index interface {
	Upsert(ctx context.Context, records []*Record) error
	Search(ctx context.Context, query *Fingerprint, topK int) ([]Match, error)
	Remove(ctx context.Context, digests []string) error
}

// Publisher emits computed records to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, records ...*Record) error
}

// Archive stores batch exports.
type Archive interface {
	// Put writes an object and returns its key.
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}
