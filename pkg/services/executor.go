package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"

	"github.com/hrida-ai/hrida-engine/pkg/apperrors"
	"github.com/hrida-ai/hrida-engine/pkg/database"
	"github.com/hrida-ai/hrida-engine/pkg/models"
)

// ExecutorConfig bounds a single query run.
type ExecutorConfig struct {
	DefaultTimeout time.Duration
	MaxRowsCap     int
}

// Executor runs validated SQL inside a read-only transaction with a
// statement timeout. The transaction access mode is the final guard:
// even if a write slipped past validation, Postgres refuses it here.
type Executor struct {
	db     *database.DB
	cfg    ExecutorConfig
	logger *zap.Logger
}

// ExecResult is one bounded result set.
type ExecResult struct {
	Columns  []models.ColumnInfo
	Rows     []map[string]any
	RowCount int
	// Truncated reports that the row cap cut the result short.
	Truncated bool
}

// NewExecutor creates an Executor.
func NewExecutor(db *database.DB, cfg ExecutorConfig, logger *zap.Logger) *Executor {
	return &Executor{db: db, cfg: cfg, logger: logger.Named("executor")}
}

// Execute runs sql read-only and returns at most maxRows rows. timeout
// and maxRows of zero fall back to the configured defaults; maxRows is
// always capped at MaxRowsCap. Postgres failures come back as a
// *models.PostgresError wrapped in an ExecutionFailed pipeline error.
func (e *Executor) Execute(ctx context.Context, sql string, maxRows int, timeout time.Duration) (*ExecResult, *models.PostgresError, error) {
	if timeout <= 0 {
		timeout = e.cfg.DefaultTimeout
	}
	if maxRows <= 0 || maxRows > e.cfg.MaxRowsCap {
		maxRows = e.cfg.MaxRowsCap
	}

	ctx, cancel := context.WithTimeout(ctx, timeout+time.Second)
	defer cancel()

	tx, err := e.db.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.KindUnreachable, apperrors.StageExecution, "begin read-only tx", err)
	}
	defer tx.Rollback(ctx)

	// SET LOCAL scopes the timeout to this transaction only.
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", timeout.Milliseconds())); err != nil {
		return nil, nil, apperrors.Wrap(apperrors.KindUnreachable, apperrors.StageExecution, "set statement timeout", err)
	}

	start := time.Now()
	rows, err := tx.Query(ctx, sql)
	if err != nil {
		return nil, pgFailure(err), nil
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]models.ColumnInfo, len(fields))
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
		columns[i] = models.ColumnInfo{Name: f.Name, Type: typeName(f.DataTypeOID)}
	}

	result := &ExecResult{Columns: columns}
	for rows.Next() {
		if result.RowCount >= maxRows {
			result.Truncated = true
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, pgFailure(err), nil
		}
		row := make(map[string]any, len(names))
		for i, name := range names {
			row[name] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, row)
		result.RowCount++
	}
	if err := rows.Err(); err != nil {
		return nil, pgFailure(err), nil
	}

	e.logger.Debug("query executed",
		zap.Int("rows", result.RowCount),
		zap.Bool("truncated", result.Truncated),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil, nil
}

// pgFailure converts a pgx error to the wire failure shape; SQLSTATE
// 57014 marks statement-timeout cancellation.
func pgFailure(err error) *models.PostgresError {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &models.PostgresError{
			SQLState: pgErr.Code,
			Message:  pgErr.Message,
			Hint:     pgErr.Hint,
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &models.PostgresError{SQLState: "57014", Message: "query timed out"}
	}
	return &models.PostgresError{Message: err.Error()}
}

var resultTypeMap = pgtype.NewMap()

func typeName(oid uint32) string {
	if t, ok := resultTypeMap.TypeForOID(oid); ok {
		return t.Name
	}
	return ""
}

// normalizeValue flattens driver-specific values into JSON-friendly ones.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case [16]byte: // uuid
		return fmt.Sprintf("%x-%x-%x-%x-%x", val[0:4], val[4:6], val[6:8], val[8:10], val[10:16])
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return v
	}
}
