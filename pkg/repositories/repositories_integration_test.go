package repositories

import (
	"context"
	"testing"

	"github.com/hrida-ai/hrida-engine/pkg/testhelpers"
)

const testDim = 768

// testVector builds a deterministic unit-ish vector whose direction is
// controlled by seed, so cosine ordering in tests is predictable.
func testVector(seed int) []float32 {
	v := make([]float32, testDim)
	v[seed%testDim] = 1
	v[(seed+1)%testDim] = 0.25
	return v
}

func seedCatalog(t *testing.T, db *testhelpers.TestDB) {
	t.Helper()
	ctx := context.Background()

	stmts := []string{
		`DELETE FROM rag.schema_embeddings WHERE table_schema = 'it'`,
		`DELETE FROM rag.schema_fks WHERE table_schema = 'it'`,
		`DELETE FROM rag.schema_tables WHERE table_schema = 'it'`,
		`INSERT INTO rag.schema_tables (table_schema, table_name, module, table_gloss, is_hub, fk_degree)
		 VALUES ('it', 'companies', 'registry', 'Registered companies', TRUE, 2),
		        ('it', 'filings', 'compliance', 'Regulatory filings', FALSE, 1)`,
		`INSERT INTO rag.schema_columns (table_schema, table_name, column_name, ordinal_pos, data_type, is_pk, is_fk, fk_target_table, fk_target_column)
		 VALUES ('it', 'companies', 'id', 1, 'uuid', TRUE, FALSE, NULL, NULL),
		        ('it', 'companies', 'name', 2, 'text', FALSE, FALSE, NULL, NULL),
		        ('it', 'filings', 'id', 1, 'uuid', TRUE, FALSE, NULL, NULL),
		        ('it', 'filings', 'company_id', 2, 'uuid', FALSE, TRUE, 'companies', 'id')`,
		`INSERT INTO rag.schema_fks (table_schema, table_name, column_name, ref_table_name, ref_column_name)
		 VALUES ('it', 'filings', 'company_id', 'companies', 'id')`,
	}
	for _, s := range stmts {
		if _, err := db.DB.Exec(ctx, s); err != nil {
			t.Fatalf("seed failed: %v\n%s", err, s)
		}
	}
}

func TestCatalogRepository(t *testing.T) {
	tdb := testhelpers.GetTestDB(t)
	seedCatalog(t, tdb)
	ctx := context.Background()
	repo := NewCatalogRepository(tdb.DB)

	t.Run("ListTables", func(t *testing.T) {
		tables, err := repo.ListTables(ctx, "it")
		if err != nil {
			t.Fatalf("ListTables: %v", err)
		}
		if len(tables) != 2 {
			t.Fatalf("got %d tables", len(tables))
		}
		if tables[0].Name != "companies" || !tables[0].IsHub || tables[0].Module != "registry" {
			t.Errorf("companies entry = %+v", tables[0])
		}
	})

	t.Run("ListColumns", func(t *testing.T) {
		cols, err := repo.ListColumns(ctx, "it", []string{"filings"})
		if err != nil {
			t.Fatalf("ListColumns: %v", err)
		}
		fc := cols["filings"]
		if len(fc) != 2 {
			t.Fatalf("got %d columns", len(fc))
		}
		if fc[1].Name != "company_id" || !fc[1].IsForeignKey || fc[1].FKTargetTable != "companies" {
			t.Errorf("company_id entry = %+v", fc[1])
		}
	})

	t.Run("ListFKEdges both endpoints required", func(t *testing.T) {
		edges, err := repo.ListFKEdges(ctx, "it", []string{"filings", "companies"})
		if err != nil {
			t.Fatalf("ListFKEdges: %v", err)
		}
		if len(edges) != 1 || edges[0].ToTable != "companies" {
			t.Errorf("edges = %+v", edges)
		}

		partial, err := repo.ListFKEdges(ctx, "it", []string{"filings"})
		if err != nil {
			t.Fatalf("ListFKEdges: %v", err)
		}
		if len(partial) != 0 {
			t.Errorf("edge with missing endpoint returned: %+v", partial)
		}
	})

	t.Run("FKNeighbors is symmetric", func(t *testing.T) {
		n1, err := repo.FKNeighbors(ctx, "it", "filings")
		if err != nil {
			t.Fatalf("FKNeighbors: %v", err)
		}
		if len(n1) != 1 || n1[0].Name != "companies" {
			t.Errorf("filings neighbors = %+v", n1)
		}
		n2, err := repo.FKNeighbors(ctx, "it", "companies")
		if err != nil {
			t.Fatalf("FKNeighbors: %v", err)
		}
		if len(n2) != 1 || n2[0].Name != "filings" {
			t.Errorf("companies neighbors = %+v", n2)
		}
	})

	t.Run("ListModules", func(t *testing.T) {
		modules, err := repo.ListModules(ctx, "it")
		if err != nil {
			t.Fatalf("ListModules: %v", err)
		}
		if len(modules) != 2 || modules[0] != "compliance" || modules[1] != "registry" {
			t.Errorf("modules = %v", modules)
		}
	})
}

func TestEmbeddingRepository(t *testing.T) {
	tdb := testhelpers.GetTestDB(t)
	seedCatalog(t, tdb)
	ctx := context.Background()
	repo := NewEmbeddingRepository(tdb.DB)

	upsert := func(entityType, table, column, text string, seed int) {
		t.Helper()
		err := repo.Upsert(ctx, &EmbeddingEntry{
			EntityType: entityType,
			Schema:     "it",
			Table:      table,
			Column:     column,
			Model:      "test-model",
			Dim:        testDim,
			EmbedText:  text,
			Embedding:  testVector(seed),
		})
		if err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	upsert("table", "companies", "", "Table companies holds registered company records", 0)
	upsert("table", "filings", "", "Table filings holds regulatory filing records", 10)
	upsert("column", "companies", "name", "Column name is the registered company name", 20)

	t.Run("dense search ranks nearest first", func(t *testing.T) {
		hits, err := repo.SearchTables(ctx, "it", testVector(0), 0.1, 10)
		if err != nil {
			t.Fatalf("SearchTables: %v", err)
		}
		if len(hits) == 0 || hits[0].Table != "companies" {
			t.Errorf("hits = %+v", hits)
		}
		if hits[0].Score < 0.9 {
			t.Errorf("self-similarity too low: %v", hits[0].Score)
		}
	})

	t.Run("threshold excludes far tables", func(t *testing.T) {
		hits, err := repo.SearchTables(ctx, "it", testVector(0), 0.95, 10)
		if err != nil {
			t.Fatalf("SearchTables: %v", err)
		}
		for _, h := range hits {
			if h.Table == "filings" {
				t.Errorf("filings above 0.95 threshold: %+v", h)
			}
		}
	})

	t.Run("keyword search", func(t *testing.T) {
		hits, err := repo.SearchTablesKeyword(ctx, "it", "regulatory filing", 10)
		if err != nil {
			t.Fatalf("SearchTablesKeyword: %v", err)
		}
		if len(hits) == 0 || hits[0].Table != "filings" {
			t.Errorf("hits = %+v", hits)
		}
	})

	t.Run("column search restricted to tables", func(t *testing.T) {
		hits, err := repo.SearchColumnsInTables(ctx, "it", testVector(20), []string{"companies"}, 5)
		if err != nil {
			t.Fatalf("SearchColumnsInTables: %v", err)
		}
		if len(hits) != 1 || hits[0].Column != "name" {
			t.Errorf("hits = %+v", hits)
		}

		none, err := repo.SearchColumnsInTables(ctx, "it", testVector(20), nil, 5)
		if err != nil || none != nil {
			t.Errorf("empty table list: hits=%v err=%v", none, err)
		}
	})

	t.Run("table similarities include below-threshold tables", func(t *testing.T) {
		sims, err := repo.TableSimilarities(ctx, "it", testVector(0), []string{"companies", "filings"})
		if err != nil {
			t.Fatalf("TableSimilarities: %v", err)
		}
		if len(sims) != 2 {
			t.Fatalf("sims = %v", sims)
		}
		if sims["companies"] <= sims["filings"] {
			t.Errorf("expected companies closer than filings: %v", sims)
		}
	})

	t.Run("upsert is idempotent", func(t *testing.T) {
		upsert("table", "companies", "", "Table companies holds registered company records, updated", 0)
		counts, err := repo.CountByType(ctx, "it")
		if err != nil {
			t.Fatalf("CountByType: %v", err)
		}
		if counts["table"] != 2 || counts["column"] != 1 {
			t.Errorf("counts = %v", counts)
		}
	})

	t.Run("dangling audit", func(t *testing.T) {
		upsert("table", "dropped_table", "", "Table dropped_table no longer exists", 30)
		dangling, err := repo.DanglingTexts(ctx, "it")
		if err != nil {
			t.Fatalf("DanglingTexts: %v", err)
		}
		if len(dangling) != 1 || dangling[0] != "table:dropped_table" {
			t.Errorf("dangling = %v", dangling)
		}
	})
}

func TestVectorLiteral(t *testing.T) {
	got := VectorLiteral([]float32{1, -0.5, 0})
	if got != "[1,-0.5,0]" {
		t.Errorf("got %q", got)
	}
	if VectorLiteral(nil) != "[]" {
		t.Errorf("nil vector = %q", VectorLiteral(nil))
	}
}
