package amqp

// Inbound event payloads produced by the rest of the platform. The core
// only routes them; business interpretation stays with the producers.

type QuoteUpdateV1 struct {
	QuoteID   string  `json:"quote_id"`
	Status    string  `json:"status"`
	Premium   float64 `json:"premium,omitempty"`
	UpdatedBy string  `json:"updated_by,omitempty"`
}

type AdminAlertV1 struct {
	AlertID  string `json:"alert_id"`
	Severity string `json:"severity"`
	Title    string `json:"title"`
	Text     string `json:"text,omitempty"`
	// TargetID scopes the alert to one admin room; empty plus a critical
	// severity escalates to a broadcast.
	TargetID string `json:"target_id,omitempty"`
}

type AnalyticsTickV1 struct {
	DashboardID string             `json:"dashboard_id"`
	Metrics     map[string]float64 `json:"metrics"`
}

// DeliveryReceiptV1 is published back after a successful room fan-out.
type DeliveryReceiptV1 struct {
	QuoteID   string `json:"quote_id"`
	Delivered int    `json:"delivered"`
	NodeID    string `json:"node_id,omitempty"`
}
