package domain

// Assessment is the combined pipeline output for one transaction. The risk
// report and the behavioral result are kept side by side, never merged.
type Assessment struct {
	TransactionID string             `json:"transactionId"`
	UserID        string             `json:"userId"`
	Report        *Report            `json:"report"`
	Anomaly       AnomalyResult      `json:"anomaly"`
	TrustScore    int                `json:"trustScore"`
	Alert         bool               `json:"alert"`
	Metadata      AssessmentMetadata `json:"metadata"`
}

// AssessmentMetadata contains processing information.
type AssessmentMetadata struct {
	TraceID     string `json:"traceId,omitempty"`
	RulesHit    int    `json:"rulesHit"`
	VelocityObs int    `json:"velocityCount"`
	TotalMs     int64  `json:"totalMs"`
	Version     string `json:"version"`
}

// ShouldAlert decides whether an assessment raises an alert.
func ShouldAlert(report *Report, anomaly AnomalyResult) bool {
	if report != nil && report.Analysis.RiskLevel == RiskHigh {
		return true
	}
	return anomaly.IsAnomalous
}
