package llm

import (
	"context"
	"sync"
	"time"
)

// TokenBucketRateLimiter реализует алгоритм token bucket для rate limiting
// запросов к провайдеру.
type TokenBucketRateLimiter struct {
	capacity     int           // Максимальное количество токенов
	tokens       int           // Текущее количество токенов
	refillRate   time.Duration // Интервал пополнения
	refillAmount int           // Количество токенов при пополнении
	lastRefill   time.Time
	now          func() time.Time
	mu           sync.Mutex
}

// NewTokenBucketRateLimiter создает новый rate limiter.
// capacity: максимальное количество токенов
// refillInterval: интервал пополнения токенов
// refillAmount: количество токенов, добавляемых за каждый интервал
func NewTokenBucketRateLimiter(capacity int, refillInterval time.Duration, refillAmount int) *TokenBucketRateLimiter {
	return newRateLimiter(capacity, refillInterval, refillAmount, time.Now)
}

// NewPerMinuteLimiter returns a limiter admitting n requests per minute, or
// nil when n is not positive.
func NewPerMinuteLimiter(n int) *TokenBucketRateLimiter {
	if n <= 0 {
		return nil
	}
	return NewTokenBucketRateLimiter(n, time.Minute/time.Duration(n), 1)
}

func newRateLimiter(capacity int, refillInterval time.Duration, refillAmount int, now func() time.Time) *TokenBucketRateLimiter {
	return &TokenBucketRateLimiter{
		capacity:     capacity,
		tokens:       capacity,
		refillRate:   refillInterval,
		refillAmount: refillAmount,
		lastRefill:   now(),
		now:          now,
	}
}

// TryAcquire пытается получить токен. Если токенов нет, возвращает false и
// время ожидания до следующего пополнения.
func (r *TokenBucketRateLimiter) TryAcquire() (bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	elapsed := now.Sub(r.lastRefill)

	if elapsed >= r.refillRate {
		intervals := int(elapsed / r.refillRate)
		r.tokens = min(r.capacity, r.tokens+intervals*r.refillAmount)
		// Сохраняем остаток времени для точности
		r.lastRefill = now.Add(-elapsed % r.refillRate)
	}

	if r.tokens > 0 {
		r.tokens--
		return true, 0
	}

	return false, r.refillRate - (now.Sub(r.lastRefill) % r.refillRate)
}

// Wait блокирует до получения токена или отмены ctx. A nil limiter never
// blocks.
func (r *TokenBucketRateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return nil
	}
	for {
		allowed, wait := r.TryAcquire()
		if allowed {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// GetAvailableTokens возвращает текущее количество доступных токенов
func (r *TokenBucketRateLimiter) GetAvailableTokens() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.tokens
}
