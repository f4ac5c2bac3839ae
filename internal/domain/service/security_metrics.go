package service

// Outcome labels recorded by SecurityMetrics.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeRejected = "rejected"
)

// SecurityMetrics records authentication outcomes for monitoring.
type SecurityMetrics interface {
	ObserveLogin(outcome string)
	ObserveRefresh(outcome string)
	ObserveReuseDetected()
	ObservePolicyChange(action string)
	ObserveEventPublishFailure(eventType string)
}

// NopSecurityMetrics discards every observation.
type NopSecurityMetrics struct{}

func (NopSecurityMetrics) ObserveLogin(string) {}
func (NopSecurityMetrics) ObserveRefresh(string) {}
func (NopSecurityMetrics) ObserveReuseDetected() {}
func (NopSecurityMetrics) ObservePolicyChange(string) {}
func (NopSecurityMetrics) ObserveEventPublishFailure(string) {}
