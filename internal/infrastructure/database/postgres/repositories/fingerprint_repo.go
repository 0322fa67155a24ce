// Package repositories holds the PostgreSQL implementations of the domain
// repository contracts.
package repositories

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/turtacn/pcfp/internal/domain/fingerprint"
	"github.com/turtacn/pcfp/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/pcfp/pkg/errors"
	"github.com/turtacn/pcfp/pkg/types/common"
)

const (
	upsertFingerprintSQL = `
		INSERT INTO fingerprints (digest, molecule_id, formula, bits, on_bits, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (digest) DO UPDATE SET
			molecule_id = EXCLUDED.molecule_id,
			formula     = EXCLUDED.formula,
			bits        = EXCLUDED.bits,
			on_bits     = EXCLUDED.on_bits,
			computed_at = EXCLUDED.computed_at`

	selectFingerprintColumns = `SELECT digest, molecule_id, formula, bits, on_bits, computed_at FROM fingerprints`
)

// FingerprintRepository stores one row per molecule digest with the raw
// 111-byte vector.
type FingerprintRepository struct {
	db     *sql.DB
	logger logging.Logger
}

var _ fingerprint.Repository = (*FingerprintRepository)(nil)

func NewFingerprintRepository(db *sql.DB, log logging.Logger) *FingerprintRepository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &FingerprintRepository{db: db, logger: log.Named("fingerprint_repo")}
}

func (r *FingerprintRepository) Save(ctx context.Context, rec *fingerprint.Record) error {
	if err := checkRecord(rec); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, upsertFingerprintSQL, upsertArgs(rec)...); err != nil {
		r.logger.Error("Failed to save fingerprint", logging.String("digest", rec.Digest), logging.Err(err))
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to save fingerprint")
	}
	return nil
}

// SaveBatch upserts every record inside one transaction.
func (r *FingerprintRepository) SaveBatch(ctx context.Context, records []*fingerprint.Record) (err error) {
	if len(records) == 0 {
		return nil
	}
	for _, rec := range records {
		if err := checkRecord(rec); err != nil {
			return err
		}
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, upsertFingerprintSQL)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to prepare fingerprint upsert")
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err = stmt.ExecContext(ctx, upsertArgs(rec)...); err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to save fingerprint").WithDetail(rec.Digest)
		}
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to commit fingerprint batch")
	}
	r.logger.Debug("Saved fingerprint batch", logging.Int("count", len(records)))
	return nil
}

func (r *FingerprintRepository) FindByDigest(ctx context.Context, digest string) (*fingerprint.Record, error) {
	row := r.db.QueryRowContext(ctx, selectFingerprintColumns+` WHERE digest = $1`, digest)
	rec, err := scanRecord(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.New(errors.ErrCodeFingerprintNotFound, "fingerprint not found").WithDetail(digest)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *FingerprintRepository) List(ctx context.Context, page common.Pagination) ([]*fingerprint.Record, int64, error) {
	if err := page.Validate(); err != nil {
		return nil, 0, errors.Wrap(err, errors.CodeInvalidParam, "invalid pagination")
	}
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fingerprints`).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to count fingerprints")
	}
	rows, err := r.db.QueryContext(ctx,
		selectFingerprintColumns+` ORDER BY computed_at DESC, digest LIMIT $1 OFFSET $2`,
		page.PageSize, page.Offset())
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list fingerprints")
	}
	defer rows.Close()

	var out []*fingerprint.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate fingerprints")
	}
	return out, total, nil
}

func (r *FingerprintRepository) Delete(ctx context.Context, digest string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM fingerprints WHERE digest = $1`, digest)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to delete fingerprint")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.New(errors.ErrCodeFingerprintNotFound, "fingerprint not found").WithDetail(digest)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (*fingerprint.Record, error) {
	var (
		rec    fingerprint.Record
		bits   []byte
		onBits int
		at     time.Time
	)
	if err := s.Scan(&rec.Digest, &rec.MoleculeID, &rec.Formula, &bits, &onBits, &at); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan fingerprint")
	}
	fp, err := fingerprint.FromBytes(bits)
	if err != nil {
		return nil, err
	}
	rec.Fingerprint = fp
	rec.OnBits = onBits
	rec.ComputedAt = at.UTC()
	return &rec, nil
}

func checkRecord(rec *fingerprint.Record) error {
	if rec == nil || rec.Digest == "" || rec.Fingerprint == nil {
		return errors.InvalidParam("fingerprint record requires digest and fingerprint")
	}
	return nil
}

func upsertArgs(rec *fingerprint.Record) []interface{} {
	at := rec.ComputedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return []interface{}{rec.Digest, rec.MoleculeID, rec.Formula, rec.Fingerprint.Bytes(), rec.Fingerprint.Count(), at}
}
