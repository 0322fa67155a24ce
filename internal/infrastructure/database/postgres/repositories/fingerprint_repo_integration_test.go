//go:build integration

package repositories_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turtacn/pcfp/internal/config"
	"github.com/turtacn/pcfp/internal/domain/fingerprint"
	"github.com/turtacn/pcfp/internal/infrastructure/database/postgres"
	"github.com/turtacn/pcfp/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/pcfp/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/pcfp/internal/testutil"
	"github.com/turtacn/pcfp/pkg/errors"
	"github.com/turtacn/pcfp/pkg/types/common"
)

const migrationsURL = "file://../../../../../migrations"

func startPostgres(t *testing.T) *postgres.Connection {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "pcfp_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	cfg := config.DatabaseConfig{Host: host, Port: portNum, User: "test", Password: "test", DBName: "pcfp_test", SSLMode: "disable"}

	m, err := postgres.NewMigrator(cfg.DSN(), migrationsURL, logging.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, m.Up())
	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
	require.NoError(t, m.Close())

	conn, err := postgres.NewConnection(ctx, cfg, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestFingerprintRepository_Postgres(t *testing.T) {
	conn := startPostgres(t)
	repo := repositories.NewFingerprintRepository(conn.DB(), logging.NewNopLogger())
	ctx := context.Background()

	engine := fingerprint.NewEngine()
	benzene, err := engine.Compute(ctx, testutil.Benzene(t))
	require.NoError(t, err)
	naph, err := engine.Compute(ctx, testutil.Naphthalene(t))
	require.NoError(t, err)

	a := fingerprint.NewRecord("a", "benzene", "C6H6", benzene)
	b := fingerprint.NewRecord("b", "naphthalene", "C10H8", naph)
	require.NoError(t, repo.SaveBatch(ctx, []*fingerprint.Record{a, b}))

	got, err := repo.FindByDigest(ctx, "b")
	require.NoError(t, err)
	assert.True(t, naph.Equal(got.Fingerprint))
	assert.Equal(t, naph.Count(), got.OnBits)

	a.MoleculeID = "benzene-v2"
	require.NoError(t, repo.Save(ctx, a))
	got, err = repo.FindByDigest(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "benzene-v2", got.MoleculeID)

	recs, total, err := repo.List(ctx, common.Pagination{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, recs, 2)

	require.NoError(t, repo.Delete(ctx, "a"))
	_, err = repo.FindByDigest(ctx, "a")
	assert.True(t, errors.IsCode(err, errors.ErrCodeFingerprintNotFound))

	require.NoError(t, conn.HealthCheck(ctx))
}
