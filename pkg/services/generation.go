package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hrida-ai/hrida-engine/pkg/apperrors"
	"github.com/hrida-ai/hrida-engine/pkg/llm"
	"github.com/hrida-ai/hrida-engine/pkg/prompts"
)

// GeneratorConfig controls SQL candidate generation.
type GeneratorConfig struct {
	MaxTokens            int
	KDefault             int
	BaseSeed             int
	SequentialCandidates bool
	MaxConcurrent        int
}

// Candidate is one post-processed SQL candidate with its shape confidence.
type Candidate struct {
	SQL        string
	Confidence float64
	PromptEval int
	EvalCount  int
}

// Generator drives the LLM to produce SQL candidates, normalizes the
// output, rejects gibberish, and scores shape confidence.
type Generator struct {
	client llm.Client
	pool   *llm.WorkerPool
	cfg    GeneratorConfig
	logger *zap.Logger
}

// NewGenerator creates a Generator sharing the process-wide worker pool.
func NewGenerator(client llm.Client, pool *llm.WorkerPool, cfg GeneratorConfig, logger *zap.Logger) *Generator {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 256
	}
	if cfg.KDefault <= 0 {
		cfg.KDefault = 3
	}
	return &Generator{
		client: client,
		pool:   pool,
		cfg:    cfg,
		logger: logger.Named("generator"),
	}
}

// singleStop ends single-candidate generation at the statement boundary.
var singleStop = []string{";", "\n\n"}

// GenerateOne produces a single deterministic candidate: temperature 0,
// fixed seed, statement-boundary stop tokens.
func (g *Generator) GenerateOne(ctx context.Context, prompt string) (*Candidate, error) {
	seed := g.cfg.BaseSeed
	resp, err := g.client.Generate(ctx, llm.GenerateRequest{
		Prompt:      prompt,
		Temperature: 0,
		MaxTokens:   g.cfg.MaxTokens,
		Stop:        singleStop,
		Seed:        &seed,
	})
	if err != nil {
		return nil, classifyGeneration(err)
	}
	candidate, err := postprocess(resp.Text, false)
	if err != nil {
		return nil, err
	}
	candidate.PromptEval = resp.PromptEvalCount
	candidate.EvalCount = resp.EvalCount
	return candidate, nil
}

// GenerateK produces up to k deduplicated candidates. Parallel mode fans
// out one request per candidate with seeds base+i at temperature 0 for
// reproducible diversity; sequential mode (memory-constrained endpoints)
// uses temperature 0.3 instead. Per-candidate failures are logged and
// skipped; the batch fails only when nothing survives.
func (g *Generator) GenerateK(ctx context.Context, basePrompt string, k int) ([]Candidate, error) {
	if k <= 1 {
		c, err := g.GenerateOne(ctx, basePrompt)
		if err != nil {
			return nil, err
		}
		return []Candidate{*c}, nil
	}

	prompt := prompts.MultiCandidate(basePrompt, k)
	var raw []string
	var err error
	if g.cfg.SequentialCandidates {
		raw, err = g.generateSequential(ctx, prompt, k)
	} else {
		raw, err = g.generateParallel(ctx, prompt, k)
	}
	if err != nil {
		return nil, err
	}

	candidates := dedupeAndScore(raw, g.logger)
	if len(candidates) == 0 {
		return nil, apperrors.New(apperrors.KindGenerationInvalid, apperrors.StageGeneration,
			"no candidate survived post-processing")
	}
	return candidates, nil
}

// multiStop omits ";" so an output with several statements can be split on
// the candidate delimiter.
var multiStop = []string{"\n\n\n"}

func (g *Generator) generateParallel(ctx context.Context, prompt string, k int) ([]string, error) {
	items := make([]llm.WorkItem[string], 0, k)
	for i := 0; i < k; i++ {
		seed := g.cfg.BaseSeed + i
		items = append(items, llm.WorkItem[string]{
			ID: fmt.Sprintf("candidate-%d", i),
			Execute: func(ctx context.Context) (string, error) {
				resp, err := g.client.Generate(ctx, llm.GenerateRequest{
					Prompt:      prompt,
					Temperature: 0,
					MaxTokens:   g.cfg.MaxTokens * k,
					Stop:        multiStop,
					Seed:        &seed,
				})
				if err != nil {
					return "", err
				}
				return resp.Text, nil
			},
		})
	}

	results := llm.Process(ctx, g.pool, items, nil)
	var texts []string
	var lastErr error
	for _, res := range results {
		if res.Err != nil {
			lastErr = res.Err
			g.logger.Warn("candidate generation failed", zap.String("id", res.ID), zap.Error(res.Err))
			continue
		}
		texts = append(texts, splitCandidates(res.Result)...)
	}
	if len(texts) == 0 {
		if lastErr != nil {
			return nil, classifyGeneration(lastErr)
		}
		return nil, apperrors.New(apperrors.KindGenerationInvalid, apperrors.StageGeneration, "empty batch")
	}
	return texts, nil
}

func (g *Generator) generateSequential(ctx context.Context, prompt string, k int) ([]string, error) {
	var texts []string
	var lastErr error
	for i := 0; i < k; i++ {
		seed := g.cfg.BaseSeed + i
		resp, err := g.client.Generate(ctx, llm.GenerateRequest{
			Prompt:      prompt,
			Temperature: 0.3,
			MaxTokens:   g.cfg.MaxTokens * k,
			Stop:        multiStop,
			Seed:        &seed,
		})
		if err != nil {
			lastErr = err
			g.logger.Warn("sequential candidate failed", zap.Int("index", i), zap.Error(err))
			continue
		}
		texts = append(texts, splitCandidates(resp.Text)...)
	}
	if len(texts) == 0 {
		if lastErr != nil {
			return nil, classifyGeneration(lastErr)
		}
		return nil, apperrors.New(apperrors.KindGenerationInvalid, apperrors.StageGeneration, "empty batch")
	}
	return texts, nil
}

func splitCandidates(text string) []string {
	parts := strings.Split(text, prompts.CandidateDelimiter)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

// dedupeAndScore re-runs single-candidate post-processing on every raw
// candidate and drops duplicates by normalized form, keeping the highest
// confidence first.
func dedupeAndScore(raw []string, logger *zap.Logger) []Candidate {
	seen := make(map[string]bool)
	var out []Candidate
	for _, text := range raw {
		c, err := postprocess(text, true)
		if err != nil {
			logger.Debug("candidate rejected", zap.Error(err))
			continue
		}
		key := normalizeSQL(c.SQL)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, *c)
	}
	// Highest confidence first; lexical SQL as a stable tie-break.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].SQL < out[j].SQL
	})
	return out
}

// normalizeSQL lowercases and collapses whitespace for deduplication.
func normalizeSQL(sql string) string {
	return strings.Join(strings.Fields(strings.ToLower(sql)), " ")
}

var (
	fenceRe        = regexp.MustCompile("(?s)```(?:sql)?\\s*(.*?)```")
	noiseRe        = regexp.MustCompile(`\d{2,4}er\d+`)
	tripleQuoteRe  = regexp.MustCompile(`'[a-zA-Z]'\s*'[a-zA-Z]'\s*'[a-zA-Z]'`)
	degenerateRe   = regexp.MustCompile(`(?i)INSERT\(ta\s*\(insert`)
	selectStartRe  = regexp.MustCompile(`(?is)\bSELECT\b.*`)
	windowFnRe     = regexp.MustCompile(`(?i)\bOVER\s*\(`)
	nestedSelectRe = regexp.MustCompile(`(?i)\(\s*SELECT\b`)
	joinRe         = regexp.MustCompile(`(?i)\bJOIN\b`)
)

// postprocess normalizes one raw completion into a Candidate. multi
// loosens the bracket-flood limits because a multi-candidate response
// legitimately holds several statements.
func postprocess(text string, multi bool) (*Candidate, error) {
	sql := strings.TrimSpace(text)

	if m := fenceRe.FindStringSubmatch(sql); m != nil {
		sql = strings.TrimSpace(m[1])
	} else if m := selectStartRe.FindString(sql); m != "" && !strings.HasPrefix(strings.ToUpper(sql), "SELECT") && !strings.HasPrefix(strings.ToUpper(sql), "WITH") {
		sql = strings.TrimSpace(m)
	}

	if reason := gibberishReason(sql, multi); reason != "" {
		return nil, apperrors.New(apperrors.KindGenerationInvalid, apperrors.StageGeneration, reason)
	}

	first := firstKeyword(sql)
	if first != "SELECT" && first != "WITH" {
		return nil, apperrors.New(apperrors.KindGenerationInvalid, apperrors.StageGeneration,
			fmt.Sprintf("output does not begin with SELECT (got %q)", first))
	}

	if !strings.HasSuffix(strings.TrimRight(sql, " \t\n\r"), ";") {
		sql = strings.TrimRight(sql, " \t\n\r") + ";"
	}

	return &Candidate{SQL: sql, Confidence: shapeConfidence(sql)}, nil
}

// gibberishReason applies the heuristic rejection rules; empty means pass.
func gibberishReason(sql string, multi bool) string {
	if strings.Contains(sql, "CANNOT_GENERATE") {
		return "model reported it cannot generate SQL"
	}
	if sql == "" {
		return "empty output"
	}
	if noiseRe.MatchString(sql) {
		return "digit-letter noise pattern"
	}
	if tripleQuoteRe.MatchString(sql) {
		return "triply quoted single letters"
	}
	if degenerateRe.MatchString(sql) {
		return "degenerate INSERT loop"
	}
	maxParens, maxBrackets := 10, 5
	if multi {
		maxParens, maxBrackets = 60, 30
	}
	if strings.Count(sql, "(") >= maxParens {
		return "excessive parenthesis count"
	}
	if strings.Count(sql, "[") >= maxBrackets {
		return "excessive bracket count"
	}
	if len(sql) < 20 && !strings.HasPrefix(strings.ToUpper(sql), "SELECT") {
		return "short non-SELECT output"
	}
	return ""
}

func firstKeyword(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(strings.Trim(fields[0], "(;"))
}

// shapeConfidence scores a candidate from its structure alone. Start at
// 1.0; penalize join depth, HAVING, window functions, length, and nesting;
// reward trivially simple queries; clamp to [0,1].
func shapeConfidence(sql string) float64 {
	confidence := 1.0
	joins := len(joinRe.FindAllString(sql, -1))
	if joins > 2 {
		confidence -= 0.2
	}
	if strings.Contains(strings.ToUpper(sql), "HAVING") {
		confidence -= 0.1
	}
	if windowFnRe.MatchString(sql) {
		confidence -= 0.1
	}
	if len(sql) > 500 {
		confidence -= 0.2
	}
	if len(nestedSelectRe.FindAllString(sql, -1)) > 1 {
		confidence -= 0.15
	}
	if joins == 0 && len(sql) < 100 {
		confidence += 0.1
	}
	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

// classifyGeneration maps an LLM client failure to the pipeline taxonomy:
// timeouts are repairable, cancellation and connection failures are not.
func classifyGeneration(err error) error {
	var pipelineErr *apperrors.PipelineError
	if errors.As(err, &pipelineErr) {
		return err
	}
	// A cancelled request must not look like a retryable timeout.
	if errors.Is(err, context.Canceled) {
		return apperrors.Wrap(apperrors.KindCancelled, apperrors.StageGeneration, "request cancelled", err)
	}
	classified := llm.ClassifyError(err)
	msg := classified.Message
	switch {
	case strings.Contains(msg, "timeout"):
		return apperrors.Wrap(apperrors.KindGenerationTimeout, apperrors.StageGeneration, "llm deadline missed", err)
	case strings.Contains(msg, "connection") || strings.Contains(msg, "circuit"):
		return apperrors.Wrap(apperrors.KindUnreachable, apperrors.StageGeneration, "llm endpoint unreachable", err)
	default:
		return apperrors.Wrap(apperrors.KindGenerationInvalid, apperrors.StageGeneration, "llm call failed", err)
	}
}
