package memory

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/artpar/procgate/ports"
	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterShard is a single shard of the limiter store.
type limiterShard struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
}

// Limiter is a sharded set of token buckets, one per key. It implements
// ports.Limiter. Sharding keeps lock contention low under high throughput.
type Limiter struct {
	shards []*limiterShard
	clock  ports.Clock

	mu    sync.RWMutex
	limit rate.Limit
	burst int

	idle    time.Duration
	cleanup *time.Ticker
	done    chan struct{}
	once    sync.Once
}

// LimiterConfig configures a Limiter.
type LimiterConfig struct {
	RequestsPerSecond float64
	Burst             int           // default: ceil(RequestsPerSecond), at least 1
	NumShards         int           // default: 32
	IdleTimeout       time.Duration // buckets unused this long are dropped (default: 10m)
}

// NewLimiter creates a limiter and starts its cleanup loop. Call Close to
// stop it.
func NewLimiter(cfg LimiterConfig, clock ports.Clock) *Limiter {
	if cfg.NumShards <= 0 {
		cfg.NumShards = 32
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 10 * time.Minute
	}

	l := &Limiter{
		shards: make([]*limiterShard, cfg.NumShards),
		clock:  clock,
		idle:   cfg.IdleTimeout,
		done:   make(chan struct{}),
	}
	for i := range l.shards {
		l.shards[i] = &limiterShard{entries: make(map[string]*limiterEntry)}
	}
	l.SetRate(cfg.RequestsPerSecond, cfg.Burst)

	l.cleanup = time.NewTicker(cfg.IdleTimeout / 2)
	go l.cleanupLoop()
	return l
}

// SetRate changes the rate of every bucket, existing and future.
func (l *Limiter) SetRate(rps float64, burst int) {
	if burst <= 0 {
		burst = int(rps)
		if float64(burst) < rps {
			burst++
		}
		if burst < 1 {
			burst = 1
		}
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}

	l.mu.Lock()
	l.limit, l.burst = limit, burst
	l.mu.Unlock()

	now := l.clock.Now()
	for _, shard := range l.shards {
		shard.mu.Lock()
		for _, e := range shard.entries {
			e.limiter.SetLimitAt(now, limit)
			e.limiter.SetBurstAt(now, burst)
		}
		shard.mu.Unlock()
	}
}

func (l *Limiter) shard(key string) *limiterShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return l.shards[h.Sum32()%uint32(len(l.shards))]
}

// Allow consumes one token from key's bucket.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	now := l.clock.Now()

	l.mu.RLock()
	limit, burst := l.limit, l.burst
	l.mu.RUnlock()

	shard := l.shard(key)
	shard.mu.Lock()
	e, ok := shard.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(limit, burst)}
		shard.entries[key] = e
	}
	e.lastSeen = now
	defer shard.mu.Unlock()

	r := e.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, 0
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (l *Limiter) cleanupLoop() {
	for {
		select {
		case <-l.cleanup.C:
			l.sweep()
		case <-l.done:
			return
		}
	}
}

// sweep drops buckets idle longer than the idle timeout.
func (l *Limiter) sweep() {
	cutoff := l.clock.Now().Add(-l.idle)
	for _, shard := range l.shards {
		shard.mu.Lock()
		for key, e := range shard.entries {
			if e.lastSeen.Before(cutoff) {
				delete(shard.entries, key)
			}
		}
		shard.mu.Unlock()
	}
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	total := 0
	for _, shard := range l.shards {
		shard.mu.Lock()
		total += len(shard.entries)
		shard.mu.Unlock()
	}
	return total
}

// Close stops the cleanup loop.
func (l *Limiter) Close() error {
	l.once.Do(func() {
		close(l.done)
		l.cleanup.Stop()
	})
	return nil
}

var _ ports.Limiter = (*Limiter)(nil)
