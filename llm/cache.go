package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CacheConfig configures the redis-backed invocation cache.
type CacheConfig struct {
	TTL       time.Duration `yaml:"ttl" json:"ttl"`
	KeyPrefix string        `yaml:"key_prefix" json:"key_prefix"`
}

// DefaultCacheConfig returns the default cache settings.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:       1 * time.Hour,
		KeyPrefix: "consortium:invoke:",
	}
}

// CachedInvoker memoizes raw agent responses in redis, keyed by a hash of
// (agent, system prompt, prompt). Identical-model ensembling still works:
// the cache sits below instance fan-out only when the deployment opts in,
// and deterministic prompts per round keep instances distinct via their
// refined prompts, not via the cache key.
//
// Cache failures degrade to a direct invocation; they never fail the call.
type CachedInvoker struct {
	next   Invoker
	client *redis.Client
	cfg    CacheConfig
	logger *zap.Logger
}

// NewCachedInvoker creates the caching wrapper.
func NewCachedInvoker(next Invoker, client *redis.Client, cfg CacheConfig, logger *zap.Logger) *CachedInvoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 1 * time.Hour
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "consortium:invoke:"
	}
	return &CachedInvoker{
		next:   next,
		client: client,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "cached_invoker")),
	}
}

// Key returns the cache key for one invocation.
func (c *CachedInvoker) Key(agentID, prompt, systemPrompt string) string {
	h := sha256.New()
	h.Write([]byte(agentID))
	h.Write([]byte{0})
	h.Write([]byte(systemPrompt))
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	return c.cfg.KeyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Invoke implements Invoker.
func (c *CachedInvoker) Invoke(ctx context.Context, agentID, prompt, systemPrompt string) (string, error) {
	key := c.Key(agentID, prompt, systemPrompt)

	cached, err := c.client.Get(ctx, key).Result()
	if err == nil {
		c.logger.Debug("invocation cache hit", zap.String("agent_id", agentID))
		return cached, nil
	}
	if err != redis.Nil {
		c.logger.Warn("cache read failed, invoking directly",
			zap.String("agent_id", agentID),
			zap.Error(err),
		)
	}

	out, err := c.next.Invoke(ctx, agentID, prompt, systemPrompt)
	if err != nil {
		return "", err
	}

	if setErr := c.client.Set(ctx, key, out, c.cfg.TTL).Err(); setErr != nil {
		c.logger.Warn("cache write failed",
			zap.String("agent_id", agentID),
			zap.Error(setErr),
		)
	}
	return out, nil
}
