package burrow

import (
	"log/slog"

	"github.com/hupe1980/burrow/blobstore"
	"github.com/hupe1980/burrow/codec"
	"github.com/hupe1980/burrow/diskmap"
)

type options struct {
	sliceSize          int64
	registry           *codec.Registry
	compressThreshold  int
	stripes            int
	temporaryMaps      int
	memoryLimit        int64
	ioLimit            int64
	maintenanceWorkers int64
	restoreFrom        blobstore.BlobStore
	restoreName        string
	metricsCollector   MetricsCollector
	logger             *Logger
}

// Option configures Open.
type Option func(*options)

// WithSliceSize sets the slice size of new volumes. Existing volumes keep
// the slice size they were created with.
func WithSliceSize(n int64) Option {
	return func(o *options) {
		o.sliceSize = n
	}
}

// WithRegistry shares a type registry, e.g. one with custom codecs
// registered up front. The registry is loaded from and persisted to the
// volume.
func WithRegistry(reg *codec.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithCompressThreshold enables lz4 compression of strings and byte slices
// longer than n bytes.
func WithCompressThreshold(n int) Option {
	return func(o *options) {
		o.compressThreshold = n
	}
}

// WithLockStripes sets the number of bucket lock stripes per map.
func WithLockStripes(n int) Option {
	return func(o *options) {
		o.stripes = n
	}
}

// WithTemporaryMaps bounds the number of temporary maps borrowed at once.
func WithTemporaryMaps(n int) Option {
	return func(o *options) {
		o.temporaryMaps = n
	}
}

// WithMemoryLimit caps the size of in-memory volumes.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithIOLimit throttles backup and restore streams to bytesPerSec.
func WithIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.ioLimit = bytesPerSec
	}
}

// WithMaintenanceWorkers bounds concurrent index rebuilds.
func WithMaintenanceWorkers(n int64) Option {
	return func(o *options) {
		o.maintenanceWorkers = n
	}
}

// WithRestore restores the backup name from bs when the opened volume is
// empty. An empty name restores the published LATEST backup.
//
// Example:
//
//	db, _ := burrow.Open(ctx, burrow.Memory(),
//	    burrow.WithRestore(blobstore.NewLocalStore("/backups"), ""))
func WithRestore(bs blobstore.BlobStore, name string) Option {
	return func(o *options) {
		o.restoreFrom = bs
		o.restoreName = name
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &burrow.BasicMetricsCollector{}
//	db, _ := burrow.Open(ctx, burrow.Memory(), burrow.WithMetricsCollector(metrics))
//	// ... use db ...
//	stats := metrics.GetStats()
//	fmt.Printf("Puts: %d, Avg latency: %dns\n", stats.PutCount, stats.PutAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		stripes:          diskmap.DefaultStripes,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	return o
}
