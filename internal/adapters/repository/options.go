package repository

import "time"

const (
	defaultMaxRetries            = 25
	defaultShardCount            = 16
	defaultMetricsUpdateInterval = 5 * time.Second
)

type settings struct {
	maxRetries            int
	shardCount            int
	metricsUpdateInterval time.Duration
	keyPrefix             string
}

func newSettings(opts []Option) settings {
	s := settings{
		maxRetries:            defaultMaxRetries,
		shardCount:            defaultShardCount,
		metricsUpdateInterval: defaultMetricsUpdateInterval,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Option applies a configuration option to a Store.
type Option func(*settings)

// WithMaxRetries caps how many times Transact re-runs a transform.
func WithMaxRetries(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithShardCount sets the number of shards of the MemoryStore.
func WithShardCount(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *settings) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}

// WithKeyPrefix namespaces every key of the RedisStore.
func WithKeyPrefix(prefix string) Option {
	return func(s *settings) {
		s.keyPrefix = prefix
	}
}
