package models

// Anomaly types
const (
	AnomalyTemporal   = "temporal"
	AnomalyContent    = "content"
	AnomalyStructural = "structural"
)

// Anomaly severities
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Risk levels produced by anomaly aggregation
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// Anomaly represents a single detected deviation on a certificate.
// Anomalies are derived at verification time and never persisted.
type Anomaly struct {
	Type        string  `json:"type"`
	Severity    string  `json:"severity"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description"`
}
