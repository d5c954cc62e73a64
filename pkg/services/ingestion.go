package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hrida-ai/hrida-engine/pkg/llm"
	"github.com/hrida-ai/hrida-engine/pkg/models"
	"github.com/hrida-ai/hrida-engine/pkg/repositories"
	"github.com/hrida-ai/hrida-engine/pkg/retry"
)

// Ingestor rebuilds the embedding index from the schema catalog. Runs
// offline via hridactl; the server never writes embeddings.
type Ingestor struct {
	catalog    repositories.CatalogRepository
	embeddings repositories.EmbeddingRepository
	llm        llm.Client
	pool       *llm.WorkerPool
	embedModel string
	embedDim   int
	logger     *zap.Logger
}

// IngestStats summarizes one rebuild.
type IngestStats struct {
	Tables  int
	Columns int
	Modules int
	Skipped int
	Failed  []string
}

// NewIngestor creates an Ingestor.
func NewIngestor(
	catalog repositories.CatalogRepository,
	embeddings repositories.EmbeddingRepository,
	client llm.Client,
	pool *llm.WorkerPool,
	embedModel string,
	embedDim int,
	logger *zap.Logger,
) *Ingestor {
	return &Ingestor{
		catalog:    catalog,
		embeddings: embeddings,
		llm:        client,
		pool:       pool,
		embedModel: embedModel,
		embedDim:   embedDim,
		logger:     logger.Named("ingestion"),
	}
}

// skippedColumns are bookkeeping timestamps with no retrieval value.
var skippedColumns = map[string]bool{
	"created_at": true,
	"updated_at": true,
}

type embedJob struct {
	entityType string
	table      string
	column     string
	module     string
	text       string
}

// Rebuild embeds every table, column, and module in schema and upserts
// the rows. Upserts are idempotent, so a partial failure leaves the
// index usable and a re-run completes it. onlyModules, when non-empty,
// restricts the rebuild to those modules.
func (g *Ingestor) Rebuild(ctx context.Context, schema string, onlyModules []string) (*IngestStats, error) {
	tables, err := g.catalog.ListTables(ctx, schema)
	if err != nil {
		return nil, fmt.Errorf("load catalog tables: %w", err)
	}
	if len(onlyModules) > 0 {
		keep := make(map[string]bool, len(onlyModules))
		for _, m := range onlyModules {
			keep[m] = true
		}
		filtered := tables[:0]
		for _, t := range tables {
			if keep[t.Module] {
				filtered = append(filtered, t)
			}
		}
		tables = filtered
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("no catalog tables in schema %q", schema)
	}

	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name
	}
	columns, err := g.catalog.ListColumns(ctx, schema, names)
	if err != nil {
		return nil, fmt.Errorf("load catalog columns: %w", err)
	}
	edges, err := g.catalog.ListFKEdges(ctx, schema, names)
	if err != nil {
		return nil, fmt.Errorf("load catalog fks: %w", err)
	}
	outEdges := make(map[string][]models.FKEdge)
	for _, e := range edges {
		outEdges[e.FromTable] = append(outEdges[e.FromTable], e)
	}

	stats := &IngestStats{}
	var jobs []embedJob
	moduleTables := make(map[string][]string)

	for _, t := range tables {
		moduleTables[t.Module] = append(moduleTables[t.Module], t.Name)
		jobs = append(jobs, embedJob{
			entityType: "table",
			table:      t.Name,
			text:       tableEmbedText(t, columns[t.Name], outEdges[t.Name]),
		})
		for _, c := range columns[t.Name] {
			if skippedColumns[c.Name] {
				stats.Skipped++
				continue
			}
			jobs = append(jobs, embedJob{
				entityType: "column",
				table:      t.Name,
				column:     c.Name,
				text:       columnEmbedText(t, c),
			})
		}
	}
	for module, tableNames := range moduleTables {
		jobs = append(jobs, embedJob{
			entityType: "module",
			module:     module,
			text:       moduleEmbedText(module, tableNames),
		})
	}

	g.logger.Info("rebuilding embeddings",
		zap.String("schema", schema),
		zap.Int("jobs", len(jobs)))

	items := make([]llm.WorkItem[*repositories.EmbeddingEntry], len(jobs))
	for i, job := range jobs {
		job := job
		items[i] = llm.WorkItem[*repositories.EmbeddingEntry]{
			ID:      jobID(job),
			Execute: func(ctx context.Context) (*repositories.EmbeddingEntry, error) { return g.embedJob(ctx, schema, job) },
		}
	}
	results := llm.Process(ctx, g.pool, items, func(completed, total int) {
		if completed%50 == 0 || completed == total {
			g.logger.Info("embedding progress", zap.Int("completed", completed), zap.Int("total", total))
		}
	})

	for _, r := range results {
		if r.Err != nil {
			stats.Failed = append(stats.Failed, fmt.Sprintf("%s: %v", r.ID, r.Err))
			continue
		}
		switch r.Result.EntityType {
		case "table":
			stats.Tables++
		case "column":
			stats.Columns++
		case "module":
			stats.Modules++
		}
	}
	if len(stats.Failed) > 0 {
		g.logger.Warn("rebuild completed with failures", zap.Int("failed", len(stats.Failed)))
	}
	return stats, nil
}

// embedJob embeds one text with retry and upserts the row.
func (g *Ingestor) embedJob(ctx context.Context, schema string, job embedJob) (*repositories.EmbeddingEntry, error) {
	vec, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() ([]float32, error) {
		return g.llm.CreateEmbedding(ctx, job.text)
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vec) != g.embedDim {
		return nil, fmt.Errorf("embedding dim %d, want %d", len(vec), g.embedDim)
	}

	entry := &repositories.EmbeddingEntry{
		EntityType: job.entityType,
		Schema:     schema,
		Table:      job.table,
		Column:     job.column,
		Model:      g.embedModel,
		Dim:        g.embedDim,
		EmbedText:  job.text,
		Embedding:  vec,
	}
	if job.entityType == "module" {
		if err := g.embeddings.UpsertModule(ctx, job.module, entry); err != nil {
			return nil, err
		}
		return entry, nil
	}
	if err := g.embeddings.Upsert(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func jobID(job embedJob) string {
	switch job.entityType {
	case "module":
		return "module:" + job.module
	case "column":
		return "column:" + job.table + "." + job.column
	default:
		return "table:" + job.table
	}
}

// tableEmbedText renders the table's retrieval document: name, module,
// gloss, column inventory, and outbound FKs.
func tableEmbedText(t models.TableEntry, cols []models.ColumnEntry, fks []models.FKEdge) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Table: %s\n", t.Name)
	fmt.Fprintf(&b, "Module: %s\n", t.Module)
	fmt.Fprintf(&b, "Description: %s\n", t.Gloss)
	b.WriteString("Columns:\n")
	for _, c := range cols {
		fmt.Fprintf(&b, "  %s (%s)", c.Name, c.DataType)
		if c.IsPrimaryKey {
			b.WriteString(" [PK]")
		}
		if c.IsForeignKey && c.FKTargetTable != "" {
			fmt.Fprintf(&b, " [FK -> %s.%s]", c.FKTargetTable, c.FKTargetColumn)
		}
		b.WriteByte('\n')
	}
	if len(fks) > 0 {
		b.WriteString("Foreign Keys:\n")
		for _, e := range fks {
			fmt.Fprintf(&b, "  %s -> %s.%s\n", e.FromColumn, e.ToTable, e.ToColumn)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func columnEmbedText(t models.TableEntry, c models.ColumnEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Column: %s.%s (%s)", t.Name, c.Name, c.DataType)
	if c.IsPrimaryKey {
		b.WriteString(" [Primary Key]")
	}
	if c.IsForeignKey && c.FKTargetTable != "" {
		fmt.Fprintf(&b, " [Foreign Key -> %s.%s]", c.FKTargetTable, c.FKTargetColumn)
	}
	fmt.Fprintf(&b, " in %s module", t.Module)
	if c.Gloss != "" {
		fmt.Fprintf(&b, ". %s", c.Gloss)
	}
	return b.String()
}

const maxModuleTableNames = 20

func moduleEmbedText(module string, tables []string) string {
	if len(tables) > maxModuleTableNames {
		tables = tables[:maxModuleTableNames]
	}
	return fmt.Sprintf("Module: %s. Tables: %s", module, strings.Join(tables, ", "))
}
