package retry

import (
	"context"

	"github.com/cenkalti/backoff/v4"
)

// Executor runs operations under a retry policy with exponential
// backoff. Retries stop when the context is cancelled.
type Executor struct {
	policy *Policy
}

// NewExecutor creates an executor for the given policy
func NewExecutor(policy *Policy) *Executor {
	if policy == nil {
		policy = NewPolicy()
	}
	return &Executor{policy: policy}
}

// Execute runs operation, retrying transient failures per the policy
func (e *Executor) Execute(ctx context.Context, operation func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.policy.InitialInterval
	b.Multiplier = e.policy.BackoffCoefficient
	b.MaxInterval = e.policy.MaximumInterval

	var strategy backoff.BackOff = b
	if e.policy.MaximumAttempts > 0 {
		// MaximumAttempts counts the initial try, WithMaxRetries only
		// the retries after it.
		strategy = backoff.WithMaxRetries(b, uint64(e.policy.MaximumAttempts-1))
	}

	return backoff.Retry(operation, backoff.WithContext(strategy, ctx))
}
