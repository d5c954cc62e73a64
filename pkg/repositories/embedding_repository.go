package repositories

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hrida-ai/hrida-engine/pkg/database"
)

// EmbeddingEntry is one row of the dense index, keyed by
// (entity_type, schema, table, column, model, dim).
type EmbeddingEntry struct {
	EntityType string // table, column, module
	Schema     string
	Table      string
	Column     string
	Model      string
	Dim        int
	EmbedText  string
	Embedding  []float32
}

// SimilarityHit is one ranked result from dense or keyword search.
type SimilarityHit struct {
	EntityType string
	Table      string
	Column     string
	Score      float64
}

// EmbeddingRepository serves the dense (pgvector cosine) and keyword
// (tsvector) indexes over schema glosses, plus the ingestion upsert.
type EmbeddingRepository interface {
	// SearchTables ranks table embeddings by cosine similarity >= threshold.
	SearchTables(ctx context.Context, schema string, embedding []float32, threshold float64, limit int) ([]SimilarityHit, error)
	// SearchTablesKeyword ranks table embeddings by ts_rank over embed_text.
	SearchTablesKeyword(ctx context.Context, schema, question string, limit int) ([]SimilarityHit, error)
	// SearchColumns ranks column embeddings by cosine similarity.
	SearchColumns(ctx context.Context, schema string, embedding []float32, threshold float64, limit int) ([]SimilarityHit, error)
	// SearchColumnsInTables ranks column embeddings restricted to tables.
	SearchColumnsInTables(ctx context.Context, schema string, embedding []float32, tables []string, limit int) ([]SimilarityHit, error)
	// TableSimilarities returns each named table's similarity to embedding,
	// including tables below any threshold. Used for the FK near-miss band.
	TableSimilarities(ctx context.Context, schema string, embedding []float32, tables []string) (map[string]float64, error)
	// Upsert writes one embedding row; idempotent on unchanged input.
	Upsert(ctx context.Context, entry *EmbeddingEntry) error
	// UpsertModule writes one module embedding row.
	UpsertModule(ctx context.Context, module string, entry *EmbeddingEntry) error
	// CountByType returns row counts keyed by entity_type, for verify.
	CountByType(ctx context.Context, schema string) (map[string]int, error)
	// DanglingTexts returns embed rows whose table or column no longer
	// exists in the catalog, for verify.
	DanglingTexts(ctx context.Context, schema string) ([]string, error)
}

type embeddingRepository struct {
	db *database.DB
}

// NewEmbeddingRepository creates an EmbeddingRepository backed by the pool.
func NewEmbeddingRepository(db *database.DB) EmbeddingRepository {
	return &embeddingRepository{db: db}
}

// VectorLiteral renders a pgvector input literal: "[f1,f2,...]". The
// driver binds it as text and the query casts with ::vector.
func VectorLiteral(embedding []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range embedding {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func (r *embeddingRepository) SearchTables(ctx context.Context, schema string, embedding []float32, threshold float64, limit int) ([]SimilarityHit, error) {
	rows, err := r.db.Query(ctx, `
		SELECT entity_type, table_name, COALESCE(column_name, ''),
		       1 - (embedding <=> $2::vector) AS similarity
		FROM rag.schema_embeddings
		WHERE table_schema = $1 AND entity_type = 'table'
		  AND 1 - (embedding <=> $2::vector) >= $3
		ORDER BY embedding <=> $2::vector
		LIMIT $4`, schema, VectorLiteral(embedding), threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("dense table search: %w", err)
	}
	defer rows.Close()
	return scanHits(rows)
}

func (r *embeddingRepository) SearchTablesKeyword(ctx context.Context, schema, question string, limit int) ([]SimilarityHit, error) {
	rows, err := r.db.Query(ctx, `
		SELECT entity_type, table_name, COALESCE(column_name, ''),
		       ts_rank(search_vector, plainto_tsquery('english', $2)) AS rank
		FROM rag.schema_embeddings
		WHERE table_schema = $1 AND entity_type = 'table'
		  AND search_vector @@ plainto_tsquery('english', $2)
		ORDER BY rank DESC
		LIMIT $3`, schema, question, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword table search: %w", err)
	}
	defer rows.Close()
	return scanHits(rows)
}

func (r *embeddingRepository) SearchColumns(ctx context.Context, schema string, embedding []float32, threshold float64, limit int) ([]SimilarityHit, error) {
	rows, err := r.db.Query(ctx, `
		SELECT entity_type, table_name, COALESCE(column_name, ''),
		       1 - (embedding <=> $2::vector) AS similarity
		FROM rag.schema_embeddings
		WHERE table_schema = $1 AND entity_type = 'column'
		  AND 1 - (embedding <=> $2::vector) >= $3
		ORDER BY embedding <=> $2::vector
		LIMIT $4`, schema, VectorLiteral(embedding), threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("dense column search: %w", err)
	}
	defer rows.Close()
	return scanHits(rows)
}

func (r *embeddingRepository) SearchColumnsInTables(ctx context.Context, schema string, embedding []float32, tables []string, limit int) ([]SimilarityHit, error) {
	if len(tables) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT entity_type, table_name, COALESCE(column_name, ''),
		       1 - (embedding <=> $2::vector) AS similarity
		FROM rag.schema_embeddings
		WHERE table_schema = $1 AND entity_type = 'column' AND table_name = ANY($3)
		ORDER BY embedding <=> $2::vector
		LIMIT $4`, schema, VectorLiteral(embedding), tables, limit)
	if err != nil {
		return nil, fmt.Errorf("restricted column search: %w", err)
	}
	defer rows.Close()
	return scanHits(rows)
}

func (r *embeddingRepository) TableSimilarities(ctx context.Context, schema string, embedding []float32, tables []string) (map[string]float64, error) {
	if len(tables) == 0 {
		return map[string]float64{}, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT table_name, 1 - (embedding <=> $2::vector) AS similarity
		FROM rag.schema_embeddings
		WHERE table_schema = $1 AND entity_type = 'table' AND table_name = ANY($3)`,
		schema, VectorLiteral(embedding), tables)
	if err != nil {
		return nil, fmt.Errorf("table similarities: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64, len(tables))
	for rows.Next() {
		var name string
		var sim float64
		if err := rows.Scan(&name, &sim); err != nil {
			return nil, fmt.Errorf("scan similarity: %w", err)
		}
		out[name] = sim
	}
	return out, rows.Err()
}

func (r *embeddingRepository) Upsert(ctx context.Context, entry *EmbeddingEntry) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO rag.schema_embeddings
		    (entity_type, table_schema, table_name, column_name, embed_model,
		     embed_dim, embed_text, embedding, search_vector, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::vector,
		        to_tsvector('english', $7), NOW())
		ON CONFLICT (entity_type, table_schema, table_name, column_name, embed_model, embed_dim)
		DO UPDATE SET
		    embed_text = EXCLUDED.embed_text,
		    embedding = EXCLUDED.embedding,
		    search_vector = EXCLUDED.search_vector,
		    updated_at = NOW()`,
		entry.EntityType, entry.Schema, entry.Table, entry.Column,
		entry.Model, entry.Dim, entry.EmbedText, VectorLiteral(entry.Embedding))
	if err != nil {
		return fmt.Errorf("upsert embedding %s/%s.%s: %w", entry.EntityType, entry.Table, entry.Column, err)
	}
	return nil
}

func (r *embeddingRepository) UpsertModule(ctx context.Context, module string, entry *EmbeddingEntry) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO rag.module_embeddings
		    (module_name, embed_model, embed_dim, embed_text, embedding, updated_at)
		VALUES ($1, $2, $3, $4, $5::vector, NOW())
		ON CONFLICT (module_name)
		DO UPDATE SET
		    embed_model = EXCLUDED.embed_model,
		    embed_dim = EXCLUDED.embed_dim,
		    embed_text = EXCLUDED.embed_text,
		    embedding = EXCLUDED.embedding,
		    updated_at = NOW()`,
		module, entry.Model, entry.Dim, entry.EmbedText, VectorLiteral(entry.Embedding))
	if err != nil {
		return fmt.Errorf("upsert module embedding %s: %w", module, err)
	}
	return nil
}

func (r *embeddingRepository) CountByType(ctx context.Context, schema string) (map[string]int, error) {
	rows, err := r.db.Query(ctx, `
		SELECT entity_type, COUNT(*)
		FROM rag.schema_embeddings
		WHERE table_schema = $1
		GROUP BY entity_type`, schema)
	if err != nil {
		return nil, fmt.Errorf("count embeddings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[t] = n
	}
	return out, rows.Err()
}

func (r *embeddingRepository) DanglingTexts(ctx context.Context, schema string) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT e.entity_type || ':' || e.table_name ||
		       CASE WHEN e.column_name <> '' THEN '.' || e.column_name ELSE '' END
		FROM rag.schema_embeddings e
		WHERE e.table_schema = $1
		  AND e.entity_type IN ('table', 'column')
		  AND NOT EXISTS (
		      SELECT 1 FROM rag.schema_tables t
		      WHERE t.table_schema = e.table_schema AND t.table_name = e.table_name)
		ORDER BY 1`, schema)
	if err != nil {
		return nil, fmt.Errorf("dangling audit: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan dangling: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanHits(rows pgxRows) ([]SimilarityHit, error) {
	var hits []SimilarityHit
	for rows.Next() {
		var h SimilarityHit
		if err := rows.Scan(&h.EntityType, &h.Table, &h.Column, &h.Score); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
