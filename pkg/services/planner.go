package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/hrida-ai/hrida-engine/pkg/database"
	"github.com/hrida-ai/hrida-engine/pkg/models"
	"github.com/hrida-ai/hrida-engine/pkg/repositories"
)

const plannerTimeout = 5 * time.Second

// Planner dry-runs candidate SQL through the Postgres planner. EXPLAIN
// parses and plans without touching data, so schema mistakes the
// structural validator cannot see (type mismatches, bad casts, columns
// that exist in the packet but not in the live table) surface before
// execution.
type Planner struct {
	db         *database.DB
	embeddings repositories.EmbeddingRepository
	llm        embedder
	logger     *zap.Logger
}

type embedder interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// NewPlanner creates a Planner. embeddings and llm may be nil, which
// disables the embedding fallback for column candidates.
func NewPlanner(db *database.DB, embeddings repositories.EmbeddingRepository, llm embedder, logger *zap.Logger) *Planner {
	return &Planner{
		db:         db,
		embeddings: embeddings,
		llm:        llm,
		logger:     logger.Named("planner"),
	}
}

// Explain runs EXPLAIN (FORMAT JSON) on sql inside a read-only
// transaction. A nil return means the planner accepted the statement.
// Planner rejections come back as *models.PostgresError with candidate
// columns attached for undefined-column failures.
func (p *Planner) Explain(ctx context.Context, sql string, packet *models.SchemaContextPacket) (*models.PostgresError, error) {
	ctx, cancel := context.WithTimeout(ctx, plannerTimeout)
	defer cancel()

	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin planner tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, "EXPLAIN (FORMAT JSON) "+strings.TrimSuffix(strings.TrimSpace(sql), ";"))
	if err == nil {
		rows.Close()
		err = rows.Err()
	}
	if err == nil {
		return nil, nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return nil, fmt.Errorf("planner check: %w", err)
	}

	result := &models.PostgresError{
		SQLState: pgErr.Code,
		Message:  pgErr.Message,
		Hint:     pgErr.Hint,
	}
	switch pgErr.Code {
	case "42703":
		result.UndefinedColumn = parseUndefinedName(pgErr.Message, "column")
		if result.UndefinedColumn != "" && packet != nil {
			result.Candidates = p.columnCandidates(ctx, result.UndefinedColumn, packet)
		}
	case "42P01":
		result.UndefinedTable = parseUndefinedName(pgErr.Message, "relation")
	}
	p.logger.Debug("planner rejected statement",
		zap.String("sqlstate", pgErr.Code),
		zap.String("message", pgErr.Message))
	return result, nil
}

// undefinedRe matches `column "x" does not exist` and
// `relation "x" does not exist`, with an optional table qualifier.
var undefinedRe = regexp.MustCompile(`(column|relation) "?([\w.]+)"? does not exist`)

func parseUndefinedName(message, kind string) string {
	m := undefinedRe.FindStringSubmatch(message)
	if m == nil || m[1] != kind {
		return ""
	}
	name := m[2]
	// Postgres reports qualified names like t.col; keep the last segment.
	if i := strings.LastIndexByte(name, '.'); i >= 0 && kind == "column" {
		name = name[i+1:]
	}
	return name
}

const maxColumnCandidates = 5

// columnCandidates ranks packet columns as replacements for the missing
// name. Name-based matching runs first; when it finds nothing, the
// embedding index breaks the tie.
func (p *Planner) columnCandidates(ctx context.Context, missing string, packet *models.SchemaContextPacket) []models.ColumnCandidate {
	lower := strings.ToLower(missing)
	singular := strings.ToLower(inflection.Singular(missing))
	plural := strings.ToLower(inflection.Plural(missing))

	var out []models.ColumnCandidate
	for _, table := range packet.Tables {
		for _, col := range table.Columns {
			name := strings.ToLower(col.Name)
			cand := models.ColumnCandidate{
				Table:    table.Name,
				Column:   col.Name,
				DataType: col.DataType,
				Gloss:    col.Gloss,
			}
			switch {
			case name == lower:
				cand.MatchType, cand.MatchScore = "exact", 1.0
			case strings.HasPrefix(name, lower) || strings.HasPrefix(lower, name),
				strings.HasSuffix(name, lower) || strings.HasSuffix(lower, name):
				cand.MatchType, cand.MatchScore = "prefix", 0.8
			case name == singular || name == plural:
				cand.MatchType, cand.MatchScore = "inflection", 0.75
			default:
				if d := levenshtein(name, lower); d <= 2 {
					cand.MatchType, cand.MatchScore = "fuzzy", 0.7-0.1*float64(d)
				} else {
					continue
				}
			}
			out = append(out, cand)
		}
	}

	if len(out) == 0 {
		out = p.embeddingCandidates(ctx, missing, packet)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].MatchScore != out[j].MatchScore {
			return out[i].MatchScore > out[j].MatchScore
		}
		if out[i].Table != out[j].Table {
			return out[i].Table < out[j].Table
		}
		return out[i].Column < out[j].Column
	})
	if len(out) > maxColumnCandidates {
		out = out[:maxColumnCandidates]
	}
	return out
}

// embeddingCandidates falls back to the column embedding index when no
// column name resembles the missing one.
func (p *Planner) embeddingCandidates(ctx context.Context, missing string, packet *models.SchemaContextPacket) []models.ColumnCandidate {
	if p.embeddings == nil || p.llm == nil {
		return nil
	}
	vec, err := p.llm.CreateEmbedding(ctx, missing)
	if err != nil {
		p.logger.Debug("candidate embedding failed", zap.Error(err))
		return nil
	}
	hits, err := p.embeddings.SearchColumnsInTables(ctx, packet.DatabaseID, vec, packet.TableNames(), maxColumnCandidates)
	if err != nil {
		p.logger.Debug("candidate search failed", zap.Error(err))
		return nil
	}

	var out []models.ColumnCandidate
	for _, h := range hits {
		table := packet.Table(h.Table)
		if table == nil {
			continue
		}
		for _, col := range table.Columns {
			if col.Name != h.Column {
				continue
			}
			out = append(out, models.ColumnCandidate{
				Table:      h.Table,
				Column:     h.Column,
				DataType:   col.DataType,
				Gloss:      col.Gloss,
				MatchType:  "embedding",
				MatchScore: h.Score,
			})
		}
	}
	return out
}

// levenshtein computes edit distance with a two-row table. Candidate
// names are short identifiers, so the quadratic cost is negligible.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
