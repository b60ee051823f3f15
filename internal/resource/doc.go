// Package resource implements the Controller that governs shared engine resources.
//
//   - Memory: byte budget for in-memory volumes (non-blocking, fail-fast)
//   - Maintenance workers: bounded slots for index rebuilds
//   - IO: token-bucket limit for backup streams so exports do not starve map traffic
//
// Memory:
//
//	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1 << 30})
//	if err := rc.AcquireMemory(sliceSize); err != nil {
//	    // ErrMemoryLimitExceeded
//	}
//	defer rc.ReleaseMemory(sliceSize)
//
// IO:
//
//	w := resource.NewRateLimitedWriter(ctx, blob, rc)
//
// All methods are safe for concurrent use and a nil *Controller is a valid,
// unlimited controller.
package resource
