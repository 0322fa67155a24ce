package milvus

import (
	"context"
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/turtacn/pcfp/internal/domain/fingerprint"
	"github.com/turtacn/pcfp/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/pcfp/pkg/errors"
)

// Field names of the fingerprint collection.
const (
	FieldDigest      = "digest"
	FieldMoleculeID  = "molecule_id"
	FieldFingerprint = "fingerprint"
)

const (
	defaultCollection = "pubchem_fingerprints"
	defaultShards     = int32(1)
	digestMaxLen      = 64
	moleculeIDMaxLen  = 256
)

// Schema returns the collection schema: the record digest as primary key and
// the 888-bit packed fingerprint as a binary vector.
func Schema(name string) *entity.Schema {
	return &entity.Schema{
		CollectionName: name,
		Description:    "PubChem substructure fingerprints",
		Fields: []*entity.Field{
			{
				Name:       FieldDigest,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				TypeParams: map[string]string{entity.TypeParamMaxLength: strconv.Itoa(digestMaxLen)},
			},
			{
				Name:       FieldMoleculeID,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{entity.TypeParamMaxLength: strconv.Itoa(moleculeIDMaxLen)},
			},
			{
				Name:       FieldFingerprint,
				DataType:   entity.FieldTypeBinaryVector,
				TypeParams: map[string]string{entity.TypeParamDim: strconv.Itoa(fingerprint.VectorDim)},
			},
		},
	}
}

// metricType maps the configured metric name; JACCARD is the default.
func metricType(name string) entity.MetricType {
	if name == string(entity.TANIMOTO) {
		return entity.TANIMOTO
	}
	return entity.JACCARD
}

// EnsureCollection creates, indexes and loads the fingerprint collection.
// An existing collection is only loaded.
func (c *Client) EnsureCollection(ctx context.Context) error {
	name := c.collection()
	mc := c.SDK()

	has, err := mc.HasCollection(ctx, name)
	if err != nil {
		return errors.Wrap(err, errors.CodeSearchError, "failed to check collection").WithDetail("collection=" + name)
	}
	if !has {
		if err := mc.CreateCollection(ctx, Schema(name), defaultShards); err != nil {
			return errors.Wrap(err, errors.CodeSearchError, "failed to create collection").WithDetail("collection=" + name)
		}
		idx, err := entity.NewIndexBinFlat(metricType(c.cfg.Metric), 1)
		if err != nil {
			return errors.Wrap(err, errors.CodeSearchError, "failed to build index params")
		}
		if err := mc.CreateIndex(ctx, name, FieldFingerprint, idx, false); err != nil {
			return errors.Wrap(err, errors.CodeSearchError, "failed to create index").WithDetail("collection=" + name)
		}
		c.logger.Info("milvus collection created",
			logging.String("collection", name),
			logging.String("metric", string(metricType(c.cfg.Metric))))
	}

	if err := mc.LoadCollection(ctx, name, false); err != nil {
		return errors.Wrap(err, errors.CodeSearchError, "failed to load collection").WithDetail("collection=" + name)
	}
	return nil
}

func (c *Client) collection() string {
	if c.cfg.Collection == "" {
		return defaultCollection
	}
	return c.cfg.Collection
}
