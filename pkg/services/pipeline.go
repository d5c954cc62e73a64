package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hrida-ai/hrida-engine/pkg/apperrors"
	"github.com/hrida-ai/hrida-engine/pkg/models"
	"github.com/hrida-ai/hrida-engine/pkg/prompts"
	sqlcheck "github.com/hrida-ai/hrida-engine/pkg/sql"
)

// Pipeline states, logged per transition.
const (
	stateGenerating        = "GENERATING"
	stateValidatingStruct  = "VALIDATING_STRUCT"
	stateValidatingSemText = "VALIDATING_SEMANTIC"
	statePlanning          = "PLANNING"
	stateExecuting         = "EXECUTING"
	stateDone              = "DONE"
	stateFailed            = "FAILED"
)

// repairableSQLStates are the planner/execution failures worth another
// generation attempt. Everything else (permissions, transport) is final.
var repairableSQLStates = map[string]bool{
	"42P01": true, // undefined table
	"42703": true, // undefined column
	"42601": true, // syntax error
	"42P10": true, // invalid column reference
	"42804": true, // datatype mismatch
	"42883": true, // undefined function
}

// PipelineConfig bounds the repair loop and prompt assembly.
type PipelineConfig struct {
	MaxAttempts     int
	ConfidenceFloor float64
	JoinHintFormat  prompts.JoinHintFormat
	DefaultMaxRows  int
	DefaultTimeout  time.Duration
}

// The stage seams. Retriever, Planner, and Executor are the production
// implementations.
type schemaRetriever interface {
	Retrieve(ctx context.Context, queryID uuid.UUID, databaseID, question string) (*models.SchemaContextPacket, error)
}

type plannerGate interface {
	Explain(ctx context.Context, sql string, packet *models.SchemaContextPacket) (*models.PostgresError, error)
}

type sqlRunner interface {
	Execute(ctx context.Context, sql string, maxRows int, timeout time.Duration) (*ExecResult, *models.PostgresError, error)
}

// Pipeline drives one question through retrieval, generation, validation,
// planner check, bounded repair, and optional execution.
type Pipeline struct {
	retriever schemaRetriever
	generator *Generator
	validator *sqlcheck.Validator
	semantic  *SemanticValidator
	planner   plannerGate
	executor  sqlRunner
	cfg       PipelineConfig
	logger    *zap.Logger
}

// NewPipeline wires the pipeline stages.
func NewPipeline(
	retriever schemaRetriever,
	generator *Generator,
	validator *sqlcheck.Validator,
	semantic *SemanticValidator,
	planner plannerGate,
	executor sqlRunner,
	cfg PipelineConfig,
	logger *zap.Logger,
) *Pipeline {
	if cfg.DefaultMaxRows <= 0 {
		cfg.DefaultMaxRows = 100
	}
	if cfg.ConfidenceFloor <= 0 {
		cfg.ConfidenceFloor = 0.4
	}
	return &Pipeline{
		retriever: retriever,
		generator: generator,
		validator: validator,
		semantic:  semantic,
		planner:   planner,
		executor:  executor,
		cfg:       cfg,
		logger:    logger.Named("pipeline"),
	}
}

// Run answers a question. execute false stops after the planner check
// (generate_sql); execute true runs the statement and returns rows
// (run_sql).
func (p *Pipeline) Run(ctx context.Context, req *models.QueryRequest, execute bool) *models.QueryResponse {
	queryID := uuid.New()
	resp := &models.QueryResponse{QueryID: queryID.String()}
	trace := &models.Trace{}
	start := time.Now()
	log := p.logger.With(zap.String("query_id", queryID.String()))

	if strings.TrimSpace(req.Question) == "" {
		resp.Error = &models.ErrorInfo{Type: "InvalidRequest", Message: apperrors.ErrEmptyQuestion.Error()}
		return resp
	}

	maxRows := req.MaxRows
	if maxRows <= 0 {
		maxRows = p.cfg.DefaultMaxRows
	}
	timeout := time.Duration(req.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = p.cfg.DefaultTimeout
	}

	packet := req.SchemaContext
	if packet == nil {
		t0 := time.Now()
		retrieved, err := p.retriever.Retrieve(ctx, queryID, req.DatabaseID, req.Question)
		trace.RetrievalMs = sinceMs(t0)
		if err != nil {
			return p.fail(resp, trace, req, "", err, 0, start, log)
		}
		packet = retrieved
	} else {
		packet.QueryID = queryID
	}
	trace.TablesSelected = packet.TableNames()

	base := prompts.Base(packet, req.Question, p.cfg.JoinHintFormat)
	trace.PromptLength = len(base)

	var (
		confidence float64
		deltas     []string
		lastErr    error
		lastSQL    string
		intent     Intent
		notes      []string
		attempt    int
	)

	for attempt = 0; attempt <= p.cfg.MaxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			lastErr = cancelCause(ctxErr, apperrors.StageGeneration)
			break
		}
		log.Debug("pipeline state", zap.String("state", stateGenerating), zap.Int("attempt", attempt))

		genStart := time.Now()
		var cand *Candidate
		var err error
		if attempt == 0 && req.NCandidates > 1 {
			var cands []Candidate
			cands, err = p.generator.GenerateK(ctx, base, req.NCandidates)
			if err == nil {
				c := cands[0]
				cand = &c
			}
		} else {
			cand, err = p.generator.GenerateOne(ctx, prompts.Repair(base, deltas))
		}
		trace.GenerationMs += sinceMs(genStart)
		if err != nil {
			lastErr = err
			if !apperrors.IsRecoverable(err) {
				break
			}
			deltas = []string{prompts.GenerationDelta(lastSQL, errMessage(err))}
			confidence = p.degrade(confidence, attempt)
			continue
		}
		trace.PromptEvalCount += cand.PromptEval
		trace.EvalCount += cand.EvalCount
		if attempt == 0 {
			confidence = cand.Confidence
		}

		log.Debug("pipeline state", zap.String("state", stateValidatingStruct), zap.Int("attempt", attempt))
		valStart := time.Now()
		vres := p.validator.Validate(cand.SQL, packet, maxRows)
		sqlText := vres.SQL
		lastSQL = sqlText
		notes = appendIssueNotes(notes, vres.Issues)
		if !vres.Valid() {
			trace.ValidationMs += sinceMs(valStart)
			errIssues := models.Errors(vres.Issues)
			if !vres.Repairable() {
				lastErr = apperrors.New(apperrors.KindStructuralError, apperrors.StageStructural, errIssues[0].Message)
				break
			}
			lastErr = apperrors.New(structuralKind(errIssues), apperrors.StageStructural, errIssues[0].Message)
			deltas = []string{prompts.StructuralDelta(sqlText, errIssues, packet)}
			confidence = p.degrade(confidence, attempt)
			continue
		}

		log.Debug("pipeline state", zap.String("state", stateValidatingSemText), zap.Int("attempt", attempt))
		var semIssues []models.Issue
		intent, semIssues = p.semantic.Check(req.Question, sqlText)
		trace.ValidationMs += sinceMs(valStart)
		trace.IntentClassified = string(intent)
		notes = appendIssueNotes(notes, semIssues)
		if models.HasErrors(semIssues) {
			errIssues := models.Errors(semIssues)
			lastErr = apperrors.New(apperrors.KindGenerationInvalid, apperrors.StageSemantic, errIssues[0].Message).
				WithRecoverable(true)
			deltas = []string{prompts.SemanticDelta(sqlText, errIssues)}
			confidence = p.degrade(confidence, attempt)
			continue
		}

		log.Debug("pipeline state", zap.String("state", statePlanning), zap.Int("attempt", attempt))
		planStart := time.Now()
		pgErr, err := p.planner.Explain(ctx, sqlText, packet)
		trace.PlannerMs += sinceMs(planStart)
		if err != nil {
			lastErr = coalesceCancel(ctx, err, apperrors.StagePlanning)
			break
		}
		if pgErr != nil {
			lastErr = plannerError(pgErr, apperrors.StagePlanning)
			if !repairableSQLStates[pgErr.SQLState] {
				break
			}
			deltas = []string{prompts.PlannerDelta(sqlText, pgErr, packet)}
			confidence = p.degrade(confidence, attempt)
			continue
		}

		if execute {
			log.Debug("pipeline state", zap.String("state", stateExecuting), zap.Int("attempt", attempt))
			execStart := time.Now()
			result, execFail, err := p.executor.Execute(ctx, sqlText, maxRows, timeout)
			trace.ExecutionMs += sinceMs(execStart)
			if err != nil {
				lastErr = coalesceCancel(ctx, err, apperrors.StageExecution)
				break
			}
			if execFail != nil {
				lastErr = plannerError(execFail, apperrors.StageExecution)
				if !repairableSQLStates[execFail.SQLState] {
					break
				}
				deltas = []string{prompts.PlannerDelta(sqlText, execFail, packet)}
				confidence = p.degrade(confidence, attempt)
				continue
			}
			resp.Columns = result.Columns
			resp.Rows = result.Rows
			if result.Truncated {
				notes = append(notes, "result truncated at row limit")
			}
		}

		// Repaired success is capped below the first-shot ceiling.
		resp.SQLGenerated = sqlText
		resp.ConfidenceScore = math.Min(confidence, 1.0-0.1*float64(attempt))
		resp.TablesSelected = packet.TableNames()
		resp.Intent = string(intent)
		resp.Notes = strings.Join(notes, "; ")
		trace.AttemptCount = attempt + 1
		trace.TotalMs = sinceMs(start)
		if req.Trace {
			resp.Trace = trace
		}
		log.Info("pipeline state", zap.String("state", stateDone),
			zap.Int("attempts", attempt+1),
			zap.Float64("confidence", resp.ConfidenceScore))
		return resp
	}

	return p.fail(resp, trace, req, lastSQL, lastErr, attempt, start, log)
}

// fail finalizes a FAILED response from the last pipeline error.
func (p *Pipeline) fail(resp *models.QueryResponse, trace *models.Trace, req *models.QueryRequest,
	lastSQL string, err error, attempts int, start time.Time, log *zap.Logger) *models.QueryResponse {
	resp.SQLGenerated = lastSQL
	resp.ConfidenceScore = 0
	resp.Error = &models.ErrorInfo{
		Type:        string(apperrors.KindOf(err)),
		Message:     errMessage(err),
		Recoverable: apperrors.IsRecoverable(err),
	}
	trace.AttemptCount = attempts
	trace.TotalMs = sinceMs(start)
	if req.Trace {
		resp.Trace = trace
	}
	log.Warn("pipeline state", zap.String("state", stateFailed),
		zap.Int("attempts", attempts),
		zap.String("error_type", resp.Error.Type),
		zap.String("error", resp.Error.Message))
	return resp
}

// RepairRequest is the repair_sql input: the client supplies the failure
// evidence from its own previous attempt and owns the retry loop.
type RepairRequest struct {
	Question        string
	PreviousSQL     string
	DatabaseID      string
	Attempt         int
	MaxAttempts     int
	MaxRows         int
	ValidatorIssues []models.Issue
	SemanticIssues  []models.Issue
	PostgresError   *models.PostgresError
	SchemaContext   *models.SchemaContextPacket
	Trace           bool
}

// Repair produces one repaired candidate for a previously failed SQL.
// Unlike Run, the caller drives the loop: each call is a single
// generation gated by structural, semantic, and planner checks.
func (p *Pipeline) Repair(ctx context.Context, req *RepairRequest) *models.QueryResponse {
	queryID := uuid.New()
	resp := &models.QueryResponse{QueryID: queryID.String()}
	trace := &models.Trace{AttemptCount: req.Attempt + 1}
	start := time.Now()
	log := p.logger.With(zap.String("query_id", queryID.String()))

	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = p.cfg.MaxAttempts
	}
	if req.Attempt >= maxAttempts {
		resp.SQLGenerated = req.PreviousSQL
		resp.Error = &models.ErrorInfo{
			Type:    string(apperrors.KindGenerationInvalid),
			Message: "repair attempt budget exhausted",
		}
		return resp
	}
	maxRows := req.MaxRows
	if maxRows <= 0 {
		maxRows = p.cfg.DefaultMaxRows
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return p.fail(resp, trace, &models.QueryRequest{Trace: req.Trace}, req.PreviousSQL,
			cancelCause(ctxErr, apperrors.StageGeneration), req.Attempt, start, log)
	}

	packet := req.SchemaContext
	if packet == nil {
		t0 := time.Now()
		retrieved, err := p.retriever.Retrieve(ctx, queryID, req.DatabaseID, req.Question)
		trace.RetrievalMs = sinceMs(t0)
		if err != nil {
			return p.fail(resp, trace, &models.QueryRequest{Trace: req.Trace}, req.PreviousSQL, err, req.Attempt, start, log)
		}
		packet = retrieved
	} else {
		packet.QueryID = queryID
	}
	trace.TablesSelected = packet.TableNames()

	// Delta priority: semantic, then structural, then planner.
	var deltas []string
	if errIssues := models.Errors(req.SemanticIssues); len(errIssues) > 0 {
		deltas = append(deltas, prompts.SemanticDelta(req.PreviousSQL, errIssues))
	}
	if errIssues := models.Errors(req.ValidatorIssues); len(errIssues) > 0 {
		deltas = append(deltas, prompts.StructuralDelta(req.PreviousSQL, errIssues, packet))
	}
	if req.PostgresError != nil {
		deltas = append(deltas, prompts.PlannerDelta(req.PreviousSQL, req.PostgresError, packet))
	}

	base := prompts.Base(packet, req.Question, p.cfg.JoinHintFormat)
	trace.PromptLength = len(base)

	genStart := time.Now()
	cand, err := p.generator.GenerateOne(ctx, prompts.Repair(base, deltas))
	trace.GenerationMs = sinceMs(genStart)
	if err != nil {
		return p.fail(resp, trace, &models.QueryRequest{Trace: req.Trace}, req.PreviousSQL, err, req.Attempt, start, log)
	}
	trace.PromptEvalCount = cand.PromptEval
	trace.EvalCount = cand.EvalCount

	valStart := time.Now()
	vres := p.validator.Validate(cand.SQL, packet, maxRows)
	sqlText := vres.SQL
	if !vres.Valid() {
		trace.ValidationMs = sinceMs(valStart)
		errIssues := models.Errors(vres.Issues)
		failErr := apperrors.New(structuralKind(errIssues), apperrors.StageStructural, errIssues[0].Message).
			WithRecoverable(vres.Repairable())
		return p.fail(resp, trace, &models.QueryRequest{Trace: req.Trace}, sqlText, failErr, req.Attempt, start, log)
	}

	intent, semIssues := p.semantic.Check(req.Question, sqlText)
	trace.ValidationMs = sinceMs(valStart)
	trace.IntentClassified = string(intent)
	if models.HasErrors(semIssues) {
		errIssues := models.Errors(semIssues)
		failErr := apperrors.New(apperrors.KindGenerationInvalid, apperrors.StageSemantic, errIssues[0].Message).
			WithRecoverable(true)
		return p.fail(resp, trace, &models.QueryRequest{Trace: req.Trace}, sqlText, failErr, req.Attempt, start, log)
	}

	planStart := time.Now()
	pgErr, err := p.planner.Explain(ctx, sqlText, packet)
	trace.PlannerMs = sinceMs(planStart)
	if err != nil {
		return p.fail(resp, trace, &models.QueryRequest{Trace: req.Trace}, sqlText, err, req.Attempt, start, log)
	}
	if pgErr != nil {
		return p.fail(resp, trace, &models.QueryRequest{Trace: req.Trace}, sqlText,
			plannerError(pgErr, apperrors.StagePlanning), req.Attempt, start, log)
	}

	resp.SQLGenerated = sqlText
	resp.ConfidenceScore = math.Max(0.5, cand.Confidence-0.1*float64(req.Attempt+1))
	resp.TablesSelected = packet.TableNames()
	resp.Intent = string(intent)
	trace.TotalMs = sinceMs(start)
	if req.Trace {
		resp.Trace = trace
	}
	return resp
}

// degrade lowers confidence after a failed attempt. The first repair costs
// 0.1 with a 0.5 floor; a repair that itself failed costs 0.3 down to the
// configured floor. Confidence never increases within a request.
func (p *Pipeline) degrade(confidence float64, attempt int) float64 {
	if attempt == 0 {
		return math.Max(0.5, confidence-0.1)
	}
	return math.Max(p.cfg.ConfidenceFloor, confidence-0.3)
}

// structuralKind maps the dominant structural issue to an error kind.
func structuralKind(issues []models.Issue) apperrors.Kind {
	for _, issue := range issues {
		switch issue.Code {
		case models.IssueUnknownTable:
			return apperrors.KindUnknownTable
		case models.IssueUnknownColumn:
			return apperrors.KindUnknownColumn
		}
	}
	return apperrors.KindStructuralError
}

// cancelCause converts a dead request context into a terminal pipeline
// error: the repair loop must not keep generating against it.
func cancelCause(err error, stage apperrors.Stage) error {
	msg := "request cancelled"
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "request deadline exceeded"
	}
	return apperrors.Wrap(apperrors.KindCancelled, stage, msg, err)
}

// coalesceCancel prefers the request context's cancellation over whatever
// downstream error it caused.
func coalesceCancel(ctx context.Context, err error, stage apperrors.Stage) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return cancelCause(ctxErr, stage)
	}
	return err
}

// plannerError converts a Postgres failure into the pipeline taxonomy.
func plannerError(pgErr *models.PostgresError, stage apperrors.Stage) error {
	kind := apperrors.KindPlannerError
	if stage == apperrors.StageExecution {
		kind = apperrors.KindExecutionError
	}
	if pgErr.SQLState == "42501" {
		kind = apperrors.KindPermissionDenied
	}
	return apperrors.New(kind, stage, pgErr.Message).
		WithSQLState(pgErr.SQLState).
		WithRecoverable(repairableSQLStates[pgErr.SQLState])
}

func appendIssueNotes(notes []string, issues []models.Issue) []string {
	for _, issue := range issues {
		if issue.Severity == models.SeverityError {
			continue
		}
		notes = append(notes, string(issue.Code)+": "+issue.Message)
	}
	return notes
}

func errMessage(err error) string {
	if err == nil {
		return "repair attempt budget exhausted"
	}
	var pe *apperrors.PipelineError
	if errors.As(err, &pe) {
		return pe.Message
	}
	return err.Error()
}

func sinceMs(t time.Time) int64 {
	return time.Since(t).Milliseconds()
}
