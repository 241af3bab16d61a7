package resilience

import "time"

// Policy bundles the per-dependency settings of every stage.
type Policy struct {
	// Timeout bounds one attempt. Zero disables the stage.
	Timeout        time.Duration  `yaml:"timeout"`
	Retry          RetryPolicy    `yaml:"retry"`
	CircuitBreaker BreakerConfig  `yaml:"circuit_breaker"`
	Bulkhead       BulkheadConfig `yaml:"bulkhead"`
}

// DefaultPolicy is applied to dependencies without an explicit policy.
func DefaultPolicy() Policy {
	return Policy{
		Timeout: 2 * time.Second,
		Retry: RetryPolicy{
			MaxRetries:  3,
			Delay:       200 * time.Millisecond,
			Jitter:      50 * time.Millisecond,
			MaxDuration: 10 * time.Second,
		},
		CircuitBreaker: BreakerConfig{
			WindowSize:       10,
			FailureRatio:     0.6,
			Delay:            5 * time.Second,
			SuccessThreshold: 2,
		},
		Bulkhead: BulkheadConfig{MaxConcurrent: 10},
	}
}
