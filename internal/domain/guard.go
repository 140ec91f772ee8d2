package domain

// GuardResult is returned by collaborator guards (circuit breaker, dedupe).
type GuardResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Guard   string `json:"guard,omitempty"`
}
