package resilience

import "golang.org/x/sync/semaphore"

// BulkheadConfig caps concurrent in-flight calls. MaxConcurrent <= 0 disables it.
type BulkheadConfig struct {
	MaxConcurrent int `yaml:"max_concurrent"`
}

// Bulkhead rejects calls beyond its capacity instead of queueing them.
// A nil *Bulkhead admits everything.
type Bulkhead struct {
	sem *semaphore.Weighted
}

// NewBulkhead returns nil when cfg disables the bulkhead.
func NewBulkhead(cfg BulkheadConfig) *Bulkhead {
	if cfg.MaxConcurrent <= 0 {
		return nil
	}
	return &Bulkhead{sem: semaphore.NewWeighted(int64(cfg.MaxConcurrent))}
}

// TryAcquire takes a slot or fails with ErrBulkheadFull.
func (b *Bulkhead) TryAcquire() error {
	if b == nil {
		return nil
	}
	if !b.sem.TryAcquire(1) {
		return ErrBulkheadFull
	}
	return nil
}

// Release returns a slot taken by TryAcquire.
func (b *Bulkhead) Release() {
	if b == nil {
		return
	}
	b.sem.Release(1)
}
