package resource

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimitExceeded is returned when memory limit would be exceeded.
var ErrMemoryLimitExceeded = errors.New("memory limit exceeded")

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes is the hard limit for in-memory volumes.
	// If 0, usage is only tracked.
	MemoryLimitBytes int64

	// MaxMaintenanceWorkers bounds concurrent index rebuilds. Defaults to 1.
	MaxMaintenanceWorkers int64

	// IOLimitBytesPerSec throttles backup streams. If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller manages shared resources.
type Controller struct {
	cfg Config

	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	maintenance *semaphore.Weighted

	ioLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxMaintenanceWorkers <= 0 {
		cfg.MaxMaintenanceWorkers = 1
	}

	c := &Controller{
		cfg:         cfg,
		maintenance: semaphore.NewWeighted(cfg.MaxMaintenanceWorkers),
	}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// AcquireMemory reserves bytes or returns ErrMemoryLimitExceeded.
// It never blocks; callers decide on retry.
func (c *Controller) AcquireMemory(bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}
	if c.memSem != nil && !c.memSem.TryAcquire(bytes) {
		return ErrMemoryLimitExceeded
	}
	c.memUsed.Add(bytes)
	return nil
}

// ReleaseMemory returns reserved bytes.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}
	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the reserved bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// MemoryLimit returns the configured limit (0 if unlimited).
func (c *Controller) MemoryLimit() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.MemoryLimitBytes
}

// AcquireMaintenance blocks until a maintenance slot is free or ctx is done.
func (c *Controller) AcquireMaintenance(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.maintenance.Acquire(ctx, 1)
}

// TryAcquireMaintenance reserves a maintenance slot without blocking.
func (c *Controller) TryAcquireMaintenance() bool {
	if c == nil {
		return true
	}
	return c.maintenance.TryAcquire(1)
}

// ReleaseMaintenance frees a maintenance slot.
func (c *Controller) ReleaseMaintenance() {
	if c == nil {
		return
	}
	c.maintenance.Release(1)
}

// AcquireIO waits until the IO budget allows n bytes.
// Requests larger than the burst are split so they never fail outright.
func (c *Controller) AcquireIO(ctx context.Context, n int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	burst := c.ioLimiter.Burst()
	for n > 0 {
		chunk := min(n, burst)
		if err := c.ioLimiter.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}
