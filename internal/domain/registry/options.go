package registry

import "time"

type config struct {
	nodeID                   string
	maxConnections           int
	heartbeatInterval        time.Duration
	heartbeatTimeoutMultiple int
	healthInterval           time.Duration
	utilizationHighWater     float64
}

func defaultConfig() config {
	return config{
		nodeID:                   "rt-delivery-0",
		maxConnections:           10000,
		heartbeatInterval:        30 * time.Second,
		heartbeatTimeoutMultiple: 3,
		healthInterval:           time.Minute,
		utilizationHighWater:     0.9,
	}
}

// Option defines a functional configuration type for the Broker.
type Option func(*config)

// WithNodeID tags durable connection records with this node's identity.
func WithNodeID(id string) Option {
	return func(c *config) { c.nodeID = id }
}

// WithMaxConnections bounds the active registry; Connect fails with a
// capacity error at the limit.
func WithMaxConnections(n int) Option {
	return func(c *config) { c.maxConnections = n }
}

// WithHeartbeatInterval sets the cadence of the heartbeat sweep.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *config) { c.heartbeatInterval = d }
}

// WithHeartbeatTimeoutMultiple sets how many silent intervals a connection
// survives before it is reclaimed.
func WithHeartbeatTimeoutMultiple(n int) Option {
	return func(c *config) { c.heartbeatTimeoutMultiple = n }
}

// WithHealthInterval sets the cadence of the utilization check.
func WithHealthInterval(d time.Duration) Option {
	return func(c *config) { c.healthInterval = d }
}

// WithUtilizationHighWater sets the utilization fraction above which the
// health loop alerts the operations room.
func WithUtilizationHighWater(f float64) Option {
	return func(c *config) { c.utilizationHighWater = f }
}
