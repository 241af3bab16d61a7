package resilience

import (
	"context"
	"time"
)

// Fallback inspects the final error of a pipeline run and either returns a
// substitute value with a nil error, or a non-nil error to propagate.
type Fallback[T any] func(ctx context.Context, err error) (T, error)

// AttemptObserver is told about every attempt that reached the breaker,
// including short-circuited ones.
type AttemptObserver func(name string, kind Kind, elapsed time.Duration)

// PipelineOption customises a Pipeline.
type PipelineOption func(*pipelineOptions)

type pipelineOptions struct {
	observers []AttemptObserver
}

// WithAttemptObserver registers fn for attempt outcomes.
func WithAttemptObserver(fn AttemptObserver) PipelineOption {
	return func(o *pipelineOptions) {
		if fn != nil {
			o.observers = append(o.observers, fn)
		}
	}
}

// Pipeline composes the stages for one named dependency. It is safe for
// concurrent use; the only shared mutable state is the breaker and bulkhead.
type Pipeline[T any] struct {
	name     string
	policy   Policy
	breaker  *CircuitBreaker
	bulkhead *Bulkhead
	opts     pipelineOptions
}

// NewPipeline builds a pipeline for name. The circuit breaker is taken from
// breakers so every pipeline for the same dependency shares one circuit.
func NewPipeline[T any](name string, policy Policy, breakers *Registry, opts ...PipelineOption) *Pipeline[T] {
	p := &Pipeline[T]{
		name:     name,
		policy:   policy,
		breaker:  breakers.Breaker(name, policy.CircuitBreaker),
		bulkhead: NewBulkhead(policy.Bulkhead),
	}
	for _, opt := range opts {
		opt(&p.opts)
	}
	return p
}

// Name returns the dependency name.
func (p *Pipeline[T]) Name() string { return p.name }

// Breaker returns the circuit shared by this pipeline.
func (p *Pipeline[T]) Breaker() *CircuitBreaker { return p.breaker }

// Execute runs fn through retry, breaker, timeout and bulkhead. If the
// outcome is still an error and fallback is non-nil, fallback decides the result.
func (p *Pipeline[T]) Execute(ctx context.Context, fn func(context.Context) (T, error), fallback Fallback[T]) (T, error) {
	var result T
	err := p.policy.Retry.Do(ctx, func(ctx context.Context) error {
		start := time.Now()
		err := p.breaker.Execute(ctx, func(ctx context.Context) error {
			v, err := callWithTimeout(ctx, p.policy.Timeout, func(ctx context.Context) (T, error) {
				if err := p.bulkhead.TryAcquire(); err != nil {
					var zero T
					return zero, err
				}
				defer p.bulkhead.Release()
				return fn(ctx)
			})
			if err == nil {
				result = v
			}
			return err
		})
		p.observe(KindOf(err), time.Since(start))
		return err
	}, IsRetryable)

	if err == nil {
		return result, nil
	}
	if fallback == nil {
		var zero T
		return zero, err
	}
	return fallback(ctx, err)
}

func (p *Pipeline[T]) observe(kind Kind, elapsed time.Duration) {
	for _, fn := range p.opts.observers {
		fn(p.name, kind, elapsed)
	}
}
