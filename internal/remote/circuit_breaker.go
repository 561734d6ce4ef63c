package remote

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Breaker tracks converters that recently failed transiently.
type Breaker interface {
	IsOpen(ctx context.Context, provider string) bool
	Open(ctx context.Context, provider string)
	Close(ctx context.Context, provider string)
}

// RedisBreaker keeps breaker state in Redis so several processes share cool-downs.
type RedisBreaker struct {
	redis       *redis.Client
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

// NewRedisBreaker creates a breaker; backoff doubles from base up to max.
func NewRedisBreaker(client *redis.Client, baseBackoff, maxBackoff time.Duration) *RedisBreaker {
	if baseBackoff <= 0 {
		baseBackoff = 30 * time.Second
	}
	if maxBackoff <= 0 {
		maxBackoff = 5 * time.Minute
	}
	return &RedisBreaker{redis: client, baseBackoff: baseBackoff, maxBackoff: maxBackoff}
}

func breakerKey(provider string) string { return fmt.Sprintf("cb:remote:%s", provider) }

// Open opens the breaker for provider with exponential backoff
func (cb *RedisBreaker) Open(ctx context.Context, provider string) {
	key := breakerKey(provider)

	failuresStr, _ := cb.redis.HGet(ctx, key, "failures").Result()
	failures, _ := strconv.Atoi(failuresStr)
	failures++

	backoff := nextBackoff(cb.baseBackoff, cb.maxBackoff, failures)
	retryAt := time.Now().Add(backoff).Unix()

	cb.redis.HSet(ctx, key, map[string]interface{}{
		"state":     "open",
		"retry_at":  retryAt,
		"failures":  failures,
		"opened_at": time.Now().Unix(),
	})
	cb.redis.Expire(ctx, key, 10*time.Minute)

	log.Warn().
		Str("provider", provider).
		Dur("cooldown", backoff).
		Int("failures", failures).
		Msg("circuit breaker OPENED")
}

// IsOpen checks whether provider is still cooling down
func (cb *RedisBreaker) IsOpen(ctx context.Context, provider string) bool {
	key := breakerKey(provider)

	state, err := cb.redis.HGet(ctx, key, "state").Result()
	if err != nil || state != "open" {
		// No breaker record → closed by default
		return false
	}

	retryAtStr, _ := cb.redis.HGet(ctx, key, "retry_at").Result()
	retryAt, _ := strconv.ParseInt(retryAtStr, 10, 64)
	if time.Now().Unix() >= retryAt {
		cb.redis.HSet(ctx, key, "state", "half_open")
		log.Info().Str("provider", provider).Msg("circuit breaker moved to HALF-OPEN")
		return false
	}
	return true
}

// Close resets the breaker on success
func (cb *RedisBreaker) Close(ctx context.Context, provider string) {
	key := breakerKey(provider)
	state, _ := cb.redis.HGet(ctx, key, "state").Result()
	if state == "" || state == "closed" {
		return
	}
	cb.redis.Del(ctx, key)
	log.Info().Str("provider", provider).Msg("circuit breaker CLOSED (reset)")
}

// MemoryBreaker is an in-process Breaker for single-binary use and tests.
type MemoryBreaker struct {
	mu          sync.Mutex
	baseBackoff time.Duration
	maxBackoff  time.Duration
	now         func() time.Time
	state       map[string]memoryState
}

type memoryState struct {
	failures int
	retryAt  time.Time
}

// NewMemoryBreaker creates an in-process breaker.
func NewMemoryBreaker(baseBackoff, maxBackoff time.Duration) *MemoryBreaker {
	return &MemoryBreaker{
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
		now:         time.Now,
		state:       map[string]memoryState{},
	}
}

func (m *MemoryBreaker) IsOpen(_ context.Context, provider string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.state[provider]
	return ok && m.now().Before(st.retryAt)
}

func (m *MemoryBreaker) Open(_ context.Context, provider string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.state[provider]
	st.failures++
	st.retryAt = m.now().Add(nextBackoff(m.baseBackoff, m.maxBackoff, st.failures))
	m.state[provider] = st
}

func (m *MemoryBreaker) Close(_ context.Context, provider string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state, provider)
}

// nextBackoff: base, 2*base, 4*base ... capped at max
func nextBackoff(base, ceiling time.Duration, failures int) time.Duration {
	backoff := base
	for i := 1; i < failures; i++ {
		backoff *= 2
		if backoff > ceiling {
			return ceiling
		}
	}
	return backoff
}
