//go:build integration

package testhelpers

import (
	"context"
	"testing"
)

func TestTestDB_CatalogMigrated(t *testing.T) {
	testDB := GetTestDB(t)

	ctx := context.Background()

	var tableCount int
	err := testDB.DB.QueryRow(ctx,
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = 'rag'").
		Scan(&tableCount)
	if err != nil {
		t.Fatalf("failed to count catalog tables: %v", err)
	}
	if tableCount == 0 {
		t.Error("expected rag catalog tables after migration")
	}
}

func TestTestDB_VectorExtension(t *testing.T) {
	testDB := GetTestDB(t)

	ctx := context.Background()

	var installed bool
	err := testDB.DB.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')").
		Scan(&installed)
	if err != nil {
		t.Fatalf("failed to check vector extension: %v", err)
	}
	if !installed {
		t.Error("expected pgvector extension to be installed")
	}
}
