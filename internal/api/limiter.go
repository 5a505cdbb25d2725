package api

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long an unused subject's bucket is kept.
const limiterIdleTTL = 10 * time.Minute

// SubjectLimiter applies an independent token bucket to each subject.
// A nil *SubjectLimiter allows everything.
type SubjectLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets *cache.Cache
}

// NewSubjectLimiter returns a limiter allowing perSecond requests per subject
// with the given burst. A non-positive rate disables limiting and returns nil.
func NewSubjectLimiter(perSecond float64, burst int) *SubjectLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &SubjectLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		buckets: cache.New(limiterIdleTTL, limiterIdleTTL),
	}
}

// Allow reports whether subject may make a request now.
func (l *SubjectLimiter) Allow(subject string) bool {
	if l == nil {
		return true
	}
	return l.bucket(subject).Allow()
}

func (l *SubjectLimiter) bucket(subject string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if v, ok := l.buckets.Get(subject); ok {
		b := v.(*rate.Limiter)
		// Touch so active subjects are not evicted mid-burst.
		l.buckets.SetDefault(subject, b)
		return b
	}
	b := rate.NewLimiter(l.limit, l.burst)
	l.buckets.SetDefault(subject, b)
	return b
}
