// internal/middleware/rate_limit.go
package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/fieldbook/ppv-settlement/internal/utils"
)

// RateStore decides whether one more request under key fits the budget.
type RateStore interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisRateStore counts requests per fixed window in Redis so every replica
// shares the budget.
type RedisRateStore struct {
	client *redis.Client
	limit  int64
	window time.Duration
	now    func() time.Time
}

func NewRedisRateStore(client *redis.Client, limit int, window time.Duration) *RedisRateStore {
	return &RedisRateStore{client: client, limit: int64(limit), window: window, now: time.Now}
}

func (s *RedisRateStore) Allow(ctx context.Context, key string) (bool, error) {
	bucket := s.now().UnixNano() / int64(s.window)
	redisKey := fmt.Sprintf("ratelimit:%s:%d", key, bucket)

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, s.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return incr.Val() <= s.limit, nil
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalRateStore keeps a token bucket per key in process memory. It is used
// only when no Redis address is configured.
type LocalRateStore struct {
	visitors map[string]*visitor
	mtx      sync.Mutex
	rate     rate.Limit
	burst    int
	idle     time.Duration
}

func NewLocalRateStore(limit int, window time.Duration) *LocalRateStore {
	return &LocalRateStore{
		visitors: make(map[string]*visitor),
		rate:     rate.Every(window / time.Duration(limit)),
		burst:    limit,
		idle:     3 * window,
	}
}

func (s *LocalRateStore) Allow(_ context.Context, key string) (bool, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	now := time.Now()
	v, exists := s.visitors[key]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(s.rate, s.burst)}
		s.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1), nil
}

// Cleanup drops visitors idle for longer than three windows until ctx ends.
func (s *LocalRateStore) Cleanup(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mtx.Lock()
			for key, v := range s.visitors {
				if time.Since(v.lastSeen) > s.idle {
					delete(s.visitors, key)
				}
			}
			s.mtx.Unlock()
		}
	}
}

// RateLimit throttles by scope and caller. Authenticated callers are keyed by
// user id, everyone else by client IP. A failing store lets traffic through.
func RateLimit(store RateStore, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := scope + ":ip:" + c.ClientIP()
		if userID, ok := utils.GetUserIDFromContext(c); ok {
			key = scope + ":user:" + userID.String()
		}

		allowed, err := store.Allow(c.Request.Context(), key)
		if err != nil {
			logrus.WithError(err).WithField("scope", scope).Warn("Rate limit store unavailable")
			c.Next()
			return
		}
		if !allowed {
			utils.TooManyRequestsResponse(c)
			return
		}
		c.Next()
	}
}
