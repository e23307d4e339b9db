package queue

import "time"

type config struct {
	maxRetries        int
	retryBaseDelay    time.Duration
	retryMaxDelay     time.Duration
	messageTTL        time.Duration
	processingTimeout time.Duration
	cleanupInterval   time.Duration
	pollInterval      time.Duration
}

func defaultConfig() config {
	return config{
		maxRetries:        3,
		retryBaseDelay:    500 * time.Millisecond,
		retryMaxDelay:     30 * time.Second,
		messageTTL:        5 * time.Minute,
		processingTimeout: 30 * time.Second,
		cleanupInterval:   time.Minute,
		pollInterval:      50 * time.Millisecond,
	}
}

// Option defines a functional configuration type for the PriorityQueue.
type Option func(*config)

// WithMaxRetries bounds delivery attempts: a message is dead-lettered after
// maxRetries+1 total attempts.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

// WithRetryBaseDelay sets the first retry delay; attempt n waits
// base * 2^n, capped by WithRetryMaxDelay.
func WithRetryBaseDelay(d time.Duration) Option {
	return func(c *config) { c.retryBaseDelay = d }
}

func WithRetryMaxDelay(d time.Duration) Option {
	return func(c *config) { c.retryMaxDelay = d }
}

// WithMessageTTL sets the age past which a message is dropped, never
// delivered, in any state.
func WithMessageTTL(d time.Duration) Option {
	return func(c *config) { c.messageTTL = d }
}

// WithProcessingTimeout sets how long a dequeued message may stay
// unacknowledged before the cleanup sweep rejects it with retry.
func WithProcessingTimeout(d time.Duration) Option {
	return func(c *config) { c.processingTimeout = d }
}

func WithCleanupInterval(d time.Duration) Option {
	return func(c *config) { c.cleanupInterval = d }
}

// WithPollInterval sets the idle sleep between dequeue polling rounds.
func WithPollInterval(d time.Duration) Option {
	return func(c *config) { c.pollInterval = d }
}
