package middleware

import (
	"sync/atomic"
	"time"
)

// RateLimiter is a small token bucket used per connection to damp
// message floods. Refill happens lazily on Allow.
type RateLimiter struct {
	tokens   int32
	burst    int32
	rate     time.Duration
	lastTick int64
}

func NewRatelimiter(burst int32, rate time.Duration) *RateLimiter {
	return &RateLimiter{
		tokens:   burst,
		burst:    burst,
		rate:     rate,
		lastTick: time.Now().UnixNano(),
	}
}

func (l *RateLimiter) Allow() bool {
	now := time.Now().UnixNano()
	last := atomic.LoadInt64(&l.lastTick)

	generated := int32((now - last) / int64(l.rate))
	if generated > 0 {
		if atomic.CompareAndSwapInt64(&l.lastTick, last, now) {
			balance := atomic.LoadInt32(&l.tokens) + generated
			if balance > l.burst {
				balance = l.burst
			}
			atomic.StoreInt32(&l.tokens, balance)
		}
	}

	for {
		current := atomic.LoadInt32(&l.tokens)
		if current <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt32(&l.tokens, current, current-1) {
			return true
		}
	}
}
