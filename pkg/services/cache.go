// Package services implements the NL-to-SQL pipeline: retrieval,
// generation, validation, planner check, repair control, and execution.
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hrida-ai/hrida-engine/pkg/models"
)

// ContextCache caches question embeddings and schema-context packets in
// Redis. Every method is nil-safe: with no Redis client configured the
// cache is a no-op and the pipeline computes directly. Redis errors
// degrade to direct computation and are logged at debug.
type ContextCache struct {
	client       *redis.Client
	embeddingTTL time.Duration
	contextTTL   time.Duration
	logger       *zap.Logger
}

// NewContextCache creates a cache. client may be nil (caching disabled).
func NewContextCache(client *redis.Client, embeddingTTL, contextTTL time.Duration, logger *zap.Logger) *ContextCache {
	return &ContextCache{
		client:       client,
		embeddingTTL: embeddingTTL,
		contextTTL:   contextTTL,
		logger:       logger.Named("cache"),
	}
}

// Enabled reports whether a Redis backend is configured.
func (c *ContextCache) Enabled() bool {
	return c != nil && c.client != nil
}

func embeddingKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("hrida:emb:%s:%s", model, hex.EncodeToString(sum[:]))
}

func contextKey(databaseID, question string) string {
	sum := sha256.Sum256([]byte(question))
	return fmt.Sprintf("hrida:ctx:%s:%s", databaseID, hex.EncodeToString(sum[:]))
}

// GetEmbedding returns a cached question embedding, or nil on miss.
func (c *ContextCache) GetEmbedding(ctx context.Context, model, text string) []float32 {
	if !c.Enabled() {
		return nil
	}
	data, err := c.client.Get(ctx, embeddingKey(model, text)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("embedding cache get failed", zap.Error(err))
		}
		return nil
	}
	var vec []float32
	if err := json.Unmarshal(data, &vec); err != nil {
		return nil
	}
	return vec
}

// PutEmbedding stores a question embedding.
func (c *ContextCache) PutEmbedding(ctx context.Context, model, text string, vec []float32) {
	if !c.Enabled() {
		return
	}
	data, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, embeddingKey(model, text), data, c.embeddingTTL).Err(); err != nil {
		c.logger.Debug("embedding cache set failed", zap.Error(err))
	}
}

// GetPacket returns a cached schema-context packet, or nil on miss.
func (c *ContextCache) GetPacket(ctx context.Context, databaseID, question string) *models.SchemaContextPacket {
	if !c.Enabled() {
		return nil
	}
	data, err := c.client.Get(ctx, contextKey(databaseID, question)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("packet cache get failed", zap.Error(err))
		}
		return nil
	}
	var packet models.SchemaContextPacket
	if err := json.Unmarshal(data, &packet); err != nil {
		return nil
	}
	return &packet
}

// PutPacket stores a schema-context packet.
func (c *ContextCache) PutPacket(ctx context.Context, packet *models.SchemaContextPacket) {
	if !c.Enabled() {
		return
	}
	data, err := json.Marshal(packet)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, contextKey(packet.DatabaseID, packet.Question), data, c.contextTTL).Err(); err != nil {
		c.logger.Debug("packet cache set failed", zap.Error(err))
	}
}

// Invalidate removes every cached packet for databaseID via SCAN+DEL and
// returns the number of keys removed. A disabled cache returns 0, nil:
// invalidation is a permitted no-op.
func (c *ContextCache) Invalidate(ctx context.Context, databaseID string) (int, error) {
	if !c.Enabled() {
		return 0, nil
	}
	pattern := fmt.Sprintf("hrida:ctx:%s:*", databaseID)
	var removed int
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return removed, fmt.Errorf("delete %s: %w", iter.Val(), err)
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("scan %s: %w", pattern, err)
	}
	return removed, nil
}
