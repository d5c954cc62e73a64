// Package repositories provides pgx data access to the rag catalog: table,
// column, and FK metadata plus the dense/keyword embedding indexes.
package repositories

import (
	"context"
	"fmt"

	"github.com/hrida-ai/hrida-engine/pkg/database"
	"github.com/hrida-ai/hrida-engine/pkg/models"
)

// CatalogRepository reads the schema catalog. The catalog is read-only
// during query serving; it changes only when the schema is re-ingested.
type CatalogRepository interface {
	// ListTables returns every catalog table in schema.
	ListTables(ctx context.Context, schema string) ([]models.TableEntry, error)
	// GetTables returns catalog entries for the named tables.
	GetTables(ctx context.Context, schema string, names []string) ([]models.TableEntry, error)
	// ListColumns returns the columns of the named tables in ordinal order.
	ListColumns(ctx context.Context, schema string, tables []string) (map[string][]models.ColumnEntry, error)
	// ListFKEdges returns the FK edges with both endpoints in tables.
	ListFKEdges(ctx context.Context, schema string, tables []string) ([]models.FKEdge, error)
	// FKNeighbors returns tables one FK hop away from table, inbound or
	// outbound, excluding table itself.
	FKNeighbors(ctx context.Context, schema, table string) ([]models.TableEntry, error)
	// ListModules returns the distinct module names in schema.
	ListModules(ctx context.Context, schema string) ([]string, error)
}

type catalogRepository struct {
	db *database.DB
}

// NewCatalogRepository creates a CatalogRepository backed by the pool.
func NewCatalogRepository(db *database.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

func (r *catalogRepository) ListTables(ctx context.Context, schema string) ([]models.TableEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT table_schema, table_name, module, COALESCE(table_gloss, ''), is_hub, fk_degree
		FROM rag.schema_tables
		WHERE table_schema = $1
		ORDER BY table_name`, schema)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()
	return scanTables(rows)
}

func (r *catalogRepository) GetTables(ctx context.Context, schema string, names []string) ([]models.TableEntry, error) {
	if len(names) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT table_schema, table_name, module, COALESCE(table_gloss, ''), is_hub, fk_degree
		FROM rag.schema_tables
		WHERE table_schema = $1 AND table_name = ANY($2)
		ORDER BY table_name`, schema, names)
	if err != nil {
		return nil, fmt.Errorf("get tables: %w", err)
	}
	defer rows.Close()
	return scanTables(rows)
}

func (r *catalogRepository) ListColumns(ctx context.Context, schema string, tables []string) (map[string][]models.ColumnEntry, error) {
	if len(tables) == 0 {
		return map[string][]models.ColumnEntry{}, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT table_name, column_name, ordinal_pos, data_type, is_pk, is_fk,
		       COALESCE(fk_target_table, ''), COALESCE(fk_target_column, ''),
		       COALESCE(inferred_gloss, '')
		FROM rag.schema_columns
		WHERE table_schema = $1 AND table_name = ANY($2)
		ORDER BY table_name, ordinal_pos`, schema, tables)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]models.ColumnEntry, len(tables))
	for rows.Next() {
		var c models.ColumnEntry
		if err := rows.Scan(&c.Table, &c.Name, &c.Ordinal, &c.DataType,
			&c.IsPrimaryKey, &c.IsForeignKey, &c.FKTargetTable, &c.FKTargetColumn, &c.Gloss); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		out[c.Table] = append(out[c.Table], c)
	}
	return out, rows.Err()
}

func (r *catalogRepository) ListFKEdges(ctx context.Context, schema string, tables []string) ([]models.FKEdge, error) {
	if len(tables) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT table_name, column_name, ref_table_name, ref_column_name
		FROM rag.schema_fks
		WHERE table_schema = $1 AND table_name = ANY($2) AND ref_table_name = ANY($2)
		ORDER BY table_name, column_name`, schema, tables)
	if err != nil {
		return nil, fmt.Errorf("list fk edges: %w", err)
	}
	defer rows.Close()

	var edges []models.FKEdge
	for rows.Next() {
		var e models.FKEdge
		if err := rows.Scan(&e.FromTable, &e.FromColumn, &e.ToTable, &e.ToColumn); err != nil {
			return nil, fmt.Errorf("scan fk edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

func (r *catalogRepository) FKNeighbors(ctx context.Context, schema, table string) ([]models.TableEntry, error) {
	// FK edges are stored once and queried symmetrically.
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT t.table_schema, t.table_name, t.module,
		       COALESCE(t.table_gloss, ''), t.is_hub, t.fk_degree
		FROM rag.schema_tables t
		JOIN rag.schema_fks f
		  ON (f.table_schema = t.table_schema AND f.ref_table_name = t.table_name AND f.table_name = $2)
		  OR (f.table_schema = t.table_schema AND f.table_name = t.table_name AND f.ref_table_name = $2)
		WHERE t.table_schema = $1 AND t.table_name <> $2
		ORDER BY t.table_name`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("fk neighbors: %w", err)
	}
	defer rows.Close()
	return scanTables(rows)
}

func (r *catalogRepository) ListModules(ctx context.Context, schema string) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT module FROM rag.schema_tables
		WHERE table_schema = $1
		ORDER BY module`, schema)
	if err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	defer rows.Close()

	var modules []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("scan module: %w", err)
		}
		modules = append(modules, m)
	}
	return modules, rows.Err()
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanTables(rows pgxRows) ([]models.TableEntry, error) {
	var tables []models.TableEntry
	for rows.Next() {
		var t models.TableEntry
		if err := rows.Scan(&t.Schema, &t.Name, &t.Module, &t.Gloss, &t.IsHub, &t.FKDegree); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}
