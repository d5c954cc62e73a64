package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hrida-ai/hrida-engine/pkg/apperrors"
	"github.com/hrida-ai/hrida-engine/pkg/llm"
	"github.com/hrida-ai/hrida-engine/pkg/models"
	"github.com/hrida-ai/hrida-engine/pkg/repositories"
)

// RetrieverConfig bounds hybrid retrieval.
type RetrieverConfig struct {
	TopK                int
	SimilarityThreshold float64
	FKExpansionDelta    float64
	MaxTables           int
}

// columnBoostFactor discounts a column hit's similarity when it promotes
// its owning table into the candidate set.
const columnBoostFactor = 0.9

// hubExpansionMargin: tables this far above the threshold also seed FK
// expansion even when not hubs.
const hubExpansionMargin = 0.15

// Retriever selects the schema slice for a question: hybrid dense+keyword
// table ranking, column-to-table boosting, FK expansion over near-miss
// neighbors, and join-path enumeration. Output is deterministic given
// identical inputs and catalog state.
type Retriever struct {
	client     llm.Client
	catalog    repositories.CatalogRepository
	embeddings repositories.EmbeddingRepository
	cache      *ContextCache
	cfg        RetrieverConfig
	logger     *zap.Logger
}

// NewRetriever creates a Retriever. cache may be a disabled cache.
func NewRetriever(
	client llm.Client,
	catalog repositories.CatalogRepository,
	embeddings repositories.EmbeddingRepository,
	cache *ContextCache,
	cfg RetrieverConfig,
	logger *zap.Logger,
) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = 12
	}
	if cfg.MaxTables <= 0 {
		cfg.MaxTables = 10
	}
	return &Retriever{
		client:     client,
		catalog:    catalog,
		embeddings: embeddings,
		cache:      cache,
		cfg:        cfg,
		logger:     logger.Named("retriever"),
	}
}

type scoredTable struct {
	entry      models.TableEntry
	similarity float64
	provenance models.Provenance
}

// Retrieve builds the schema-context packet for a question. databaseID
// names the catalog schema holding the business tables. An empty result
// is a non-repairable NoRelevantSchema error.
func (r *Retriever) Retrieve(ctx context.Context, queryID uuid.UUID, databaseID, question string) (*models.SchemaContextPacket, error) {
	if cached := r.cache.GetPacket(ctx, databaseID, question); cached != nil {
		cached.QueryID = queryID
		r.logger.Debug("packet cache hit", zap.String("query_id", queryID.String()))
		return cached, nil
	}

	embedding, err := r.embedQuestion(ctx, question)
	if err != nil {
		return nil, err
	}

	candidates, err := r.rankTables(ctx, databaseID, question, embedding)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, apperrors.New(apperrors.KindNoRelevantSchema, apperrors.StageRetrieval,
			fmt.Sprintf("no schema matched question for database %q", databaseID))
	}

	candidates, err = r.expandFK(ctx, databaseID, embedding, candidates)
	if err != nil {
		return nil, err
	}

	selected := capTables(candidates, r.cfg.MaxTables)

	packet, err := r.buildPacket(ctx, queryID, databaseID, question, selected)
	if err != nil {
		return nil, err
	}

	r.cache.PutPacket(ctx, packet)
	return packet, nil
}

func (r *Retriever) embedQuestion(ctx context.Context, question string) ([]float32, error) {
	if vec := r.cache.GetEmbedding(ctx, r.client.Model(), question); vec != nil {
		return vec, nil
	}
	vec, err := r.client.CreateEmbedding(ctx, question)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUnreachable, apperrors.StageEmbedding,
			"embed question", err)
	}
	r.cache.PutEmbedding(ctx, r.client.Model(), question, vec)
	return vec, nil
}

// rankTables merges dense, keyword, and column-level retrieval into one
// per-table score map. Dense and keyword queries run concurrently.
func (r *Retriever) rankTables(ctx context.Context, schema, question string, embedding []float32) (map[string]*scoredTable, error) {
	var wg sync.WaitGroup
	var dense, keyword []repositories.SimilarityHit
	var denseErr, keywordErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		dense, denseErr = r.embeddings.SearchTables(ctx, schema, embedding, r.cfg.SimilarityThreshold, r.cfg.TopK)
	}()
	go func() {
		defer wg.Done()
		keyword, keywordErr = r.embeddings.SearchTablesKeyword(ctx, schema, question, r.cfg.TopK)
	}()
	wg.Wait()
	if denseErr != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, apperrors.StageRetrieval, "dense search", denseErr)
	}
	if keywordErr != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, apperrors.StageRetrieval, "keyword search", keywordErr)
	}

	scores := make(map[string]float64)
	for _, h := range dense {
		if h.Score > scores[h.Table] {
			scores[h.Table] = h.Score
		}
	}
	// ts_rank scores live on a different scale: min-max normalize into
	// [0,1] before merging by max.
	for table, score := range normalizeKeyword(keyword) {
		if score >= r.cfg.SimilarityThreshold && score > scores[table] {
			scores[table] = score
		}
	}

	// Column-level hits promote their owning tables at a discount.
	columns, err := r.embeddings.SearchColumns(ctx, schema, embedding, r.cfg.SimilarityThreshold, r.cfg.TopK)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, apperrors.StageRetrieval, "column search", err)
	}
	for _, h := range columns {
		boosted := h.Score * columnBoostFactor
		if boosted >= r.cfg.SimilarityThreshold && boosted > scores[h.Table] {
			scores[h.Table] = boosted
		}
	}

	if len(scores) == 0 {
		return map[string]*scoredTable{}, nil
	}

	names := make([]string, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	entries, err := r.catalog.GetTables(ctx, schema, names)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, apperrors.StageRetrieval, "load table entries", err)
	}

	out := make(map[string]*scoredTable, len(entries))
	for _, e := range entries {
		out[e.Name] = &scoredTable{
			entry:      e,
			similarity: scores[e.Name],
			provenance: models.ProvenanceRetrieval,
		}
	}
	return out, nil
}

func normalizeKeyword(hits []repositories.SimilarityHit) map[string]float64 {
	out := make(map[string]float64, len(hits))
	if len(hits) == 0 {
		return out
	}
	lo, hi := hits[0].Score, hits[0].Score
	for _, h := range hits {
		if h.Score < lo {
			lo = h.Score
		}
		if h.Score > hi {
			hi = h.Score
		}
	}
	for _, h := range hits {
		if hi == lo {
			out[h.Table] = 1
			continue
		}
		out[h.Table] = (h.Score - lo) / (hi - lo)
	}
	return out
}

// expandFK pulls in one-hop FK neighbors of hub or high-similarity tables
// when the neighbor's own similarity sits in the near-miss band just below
// the threshold. Same-module neighbors win similarity ties.
func (r *Retriever) expandFK(ctx context.Context, schema string, embedding []float32, candidates map[string]*scoredTable) (map[string]*scoredTable, error) {
	bandLow := r.cfg.SimilarityThreshold - r.cfg.FKExpansionDelta

	type neighborCandidate struct {
		entry      models.TableEntry
		similarity float64
		sameModule bool
	}
	var neighbors []neighborCandidate

	for _, st := range candidates {
		if !st.entry.IsHub && st.similarity < r.cfg.SimilarityThreshold+hubExpansionMargin {
			continue
		}
		hop, err := r.catalog.FKNeighbors(ctx, schema, st.entry.Name)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, apperrors.StageRetrieval, "fk neighbors", err)
		}
		var names []string
		byName := make(map[string]models.TableEntry)
		for _, n := range hop {
			if _, ok := candidates[n.Name]; ok {
				continue
			}
			names = append(names, n.Name)
			byName[n.Name] = n
		}
		if len(names) == 0 {
			continue
		}
		sims, err := r.embeddings.TableSimilarities(ctx, schema, embedding, names)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, apperrors.StageRetrieval, "near-miss similarities", err)
		}
		for name, sim := range sims {
			if sim < bandLow || sim >= r.cfg.SimilarityThreshold {
				continue
			}
			neighbors = append(neighbors, neighborCandidate{
				entry:      byName[name],
				similarity: sim,
				sameModule: byName[name].Module == st.entry.Module,
			})
		}
	}

	// Deterministic admission order: similarity desc, same-module
	// neighbors preferred on ties, then lexical name.
	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].similarity != neighbors[j].similarity {
			return neighbors[i].similarity > neighbors[j].similarity
		}
		if neighbors[i].sameModule != neighbors[j].sameModule {
			return neighbors[i].sameModule
		}
		return neighbors[i].entry.Name < neighbors[j].entry.Name
	})
	for _, n := range neighbors {
		if _, ok := candidates[n.entry.Name]; ok {
			continue
		}
		candidates[n.entry.Name] = &scoredTable{
			entry:      n.entry,
			similarity: n.similarity,
			provenance: models.ProvenanceFKExpansion,
		}
	}
	return candidates, nil
}

// capTables orders candidates (similarity desc, hubs first on ties, then
// lexical name) and keeps at most max.
func capTables(candidates map[string]*scoredTable, max int) []*scoredTable {
	out := make([]*scoredTable, 0, len(candidates))
	for _, st := range candidates {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].similarity != out[j].similarity {
			return out[i].similarity > out[j].similarity
		}
		if out[i].entry.IsHub != out[j].entry.IsHub {
			return out[i].entry.IsHub
		}
		return out[i].entry.Name < out[j].entry.Name
	})
	if len(out) > max {
		out = out[:max]
	}
	return out
}

func (r *Retriever) buildPacket(ctx context.Context, queryID uuid.UUID, databaseID, question string, selected []*scoredTable) (*models.SchemaContextPacket, error) {
	names := make([]string, 0, len(selected))
	for _, st := range selected {
		names = append(names, st.entry.Name)
	}

	columns, err := r.catalog.ListColumns(ctx, databaseID, names)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, apperrors.StageRetrieval, "load columns", err)
	}
	edges, err := r.catalog.ListFKEdges(ctx, databaseID, names)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, apperrors.StageRetrieval, "load fk edges", err)
	}

	packet := &models.SchemaContextPacket{
		QueryID:    queryID,
		DatabaseID: databaseID,
		Question:   question,
		FKEdges:    edges,
	}

	moduleSet := make(map[string]bool)
	for _, st := range selected {
		tc := models.TableContext{
			Schema:     st.entry.Schema,
			Name:       st.entry.Name,
			Module:     st.entry.Module,
			Gloss:      st.entry.Gloss,
			Similarity: st.similarity,
			Provenance: st.provenance,
			IsHub:      st.entry.IsHub,
			Columns:    columns[st.entry.Name],
		}
		tc.MSchema = tc.RenderMSchema()
		packet.Tables = append(packet.Tables, tc)
		if !moduleSet[st.entry.Module] {
			moduleSet[st.entry.Module] = true
			packet.Modules = append(packet.Modules, st.entry.Module)
		}
	}
	sort.Strings(packet.Modules)

	for _, e := range edges {
		packet.JoinHints = append(packet.JoinHints,
			fmt.Sprintf("%s.%s -> %s.%s", e.FromTable, e.FromColumn, e.ToTable, e.ToColumn))
	}
	packet.JoinPaths = enumerateJoinPaths(edges, 3, 3)

	return packet, nil
}

// enumerateJoinPaths runs a bounded DFS over the FK edges, emitting up to
// maxPaths chained join conditions of at most maxLen edges.
func enumerateJoinPaths(edges []models.FKEdge, maxLen, maxPaths int) []string {
	adjacency := make(map[string][]models.FKEdge)
	for _, e := range edges {
		adjacency[e.FromTable] = append(adjacency[e.FromTable], e)
		// Walk edges in both directions.
		adjacency[e.ToTable] = append(adjacency[e.ToTable], models.FKEdge{
			FromTable: e.ToTable, FromColumn: e.ToColumn,
			ToTable: e.FromTable, ToColumn: e.FromColumn,
		})
	}

	starts := make([]string, 0, len(adjacency))
	for t := range adjacency {
		starts = append(starts, t)
	}
	sort.Strings(starts)

	var paths []string
	seen := make(map[string]bool)
	var dfs func(table string, visited map[string]bool, chain []string)
	dfs = func(table string, visited map[string]bool, chain []string) {
		if len(paths) >= maxPaths {
			return
		}
		if len(chain) >= 2 && len(chain) <= maxLen {
			p := strings.Join(chain, " AND ")
			if !seen[p] {
				seen[p] = true
				paths = append(paths, p)
			}
		}
		if len(chain) >= maxLen {
			return
		}
		next := adjacency[table]
		sort.Slice(next, func(i, j int) bool { return next[i].ToTable < next[j].ToTable })
		for _, e := range next {
			if visited[e.ToTable] {
				continue
			}
			visited[e.ToTable] = true
			dfs(e.ToTable, visited, append(chain,
				fmt.Sprintf("%s.%s = %s.%s", e.FromTable, e.FromColumn, e.ToTable, e.ToColumn)))
			delete(visited, e.ToTable)
		}
	}
	for _, start := range starts {
		if len(paths) >= maxPaths {
			break
		}
		dfs(start, map[string]bool{start: true}, nil)
	}
	return paths
}
