package postgres_test

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentzero/graphmem-go/pkg/recordlog"
	postgresLog "github.com/agentzero/graphmem-go/pkg/recordlog/postgres"
)

// setupPostgresTest connects to the PostgreSQL instance configured via the
// environment, skipping the test when none is reachable.
func setupPostgresTest(t *testing.T) recordlog.Log {
	t.Helper()
	_ = godotenv.Load("../../../.env")

	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		t.Skip("Skipping PostgreSQL test: POSTGRES_HOST not set")
	}

	port := 5432
	if portStr := os.Getenv("POSTGRES_PORT"); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			t.Skipf("Skipping PostgreSQL test: invalid POSTGRES_PORT: %s", portStr)
		}
		port = p
	}

	user := os.Getenv("POSTGRES_USER")
	if user == "" {
		user = "postgres"
	}

	store, err := postgresLog.NewClient(&postgresLog.Config{
		Host:      host,
		Port:      port,
		User:      user,
		Password:  os.Getenv("POSTGRES_PASSWORD"),
		DBName:    os.Getenv("POSTGRES_DATABASE"),
		TableName: "records_test",
	})
	if err != nil {
		t.Skipf("Skipping PostgreSQL test: %v", err)
	}

	ctx := context.Background()
	require.NoError(t, store.Replace(ctx, nil))
	t.Cleanup(func() {
		_ = store.Replace(ctx, nil)
		_ = store.Close()
	})
	return store
}

func TestPostgresClient_AppendAndReadAll(t *testing.T) {
	store := setupPostgresTest(t)
	ctx := context.Background()

	now := time.Now().UTC()
	rec := &recordlog.Record{
		TS:   now,
		Kind: recordlog.KindEntity,
		Entity: &recordlog.EntityUpsert{
			ID:        "alpha",
			Name:      "alpha",
			Kind:      "concept",
			CreatedAt: now,
			UpdatedAt: now,
		},
	}

	seq, err := store.Append(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)

	var got []*recordlog.Record
	err = store.ReadAll(ctx, func(r *recordlog.Record) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "alpha", got[0].Entity.ID)
}
