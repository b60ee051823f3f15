package burrow

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    putCounter   prometheus.Counter
//	    getHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordPut(duration time.Duration, err error) {
//	    p.putCounter.Inc()
//	}
type MetricsCollector interface {
	// RecordPut is called after each Put or PutIfAbsent.
	RecordPut(duration time.Duration, err error)

	// RecordGet is called after each Get; hit reports whether the key existed.
	RecordGet(duration time.Duration, hit bool, err error)

	// RecordRemove is called after each Remove.
	RecordRemove(duration time.Duration, err error)

	// RecordCompute is called after each Compute.
	RecordCompute(duration time.Duration, err error)

	// RecordCommit is called after each Commit.
	RecordCommit(duration time.Duration, err error)

	// RecordBackup is called after each Backup with the stored size.
	RecordBackup(bytes int64, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordPut(time.Duration, error)           {}
func (NoopMetricsCollector) RecordGet(time.Duration, bool, error)     {}
func (NoopMetricsCollector) RecordRemove(time.Duration, error)        {}
func (NoopMetricsCollector) RecordCompute(time.Duration, error)       {}
func (NoopMetricsCollector) RecordCommit(time.Duration, error)        {}
func (NoopMetricsCollector) RecordBackup(int64, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	PutCount      atomic.Int64
	PutErrors     atomic.Int64
	PutTotalNanos atomic.Int64
	GetCount      atomic.Int64
	GetHits       atomic.Int64
	GetErrors     atomic.Int64
	GetTotalNanos atomic.Int64
	RemoveCount   atomic.Int64
	RemoveErrors  atomic.Int64
	ComputeCount  atomic.Int64
	ComputeErrors atomic.Int64
	CommitCount   atomic.Int64
	CommitErrors  atomic.Int64
	BackupCount   atomic.Int64
	BackupErrors  atomic.Int64
	BackupBytes   atomic.Int64
}

// RecordPut implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPut(duration time.Duration, err error) {
	b.PutCount.Add(1)
	b.PutTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.PutErrors.Add(1)
	}
}

// RecordGet implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGet(duration time.Duration, hit bool, err error) {
	b.GetCount.Add(1)
	b.GetTotalNanos.Add(duration.Nanoseconds())
	if hit {
		b.GetHits.Add(1)
	}
	if err != nil {
		b.GetErrors.Add(1)
	}
}

// RecordRemove implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRemove(_ time.Duration, err error) {
	b.RemoveCount.Add(1)
	if err != nil {
		b.RemoveErrors.Add(1)
	}
}

// RecordCompute implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCompute(_ time.Duration, err error) {
	b.ComputeCount.Add(1)
	if err != nil {
		b.ComputeErrors.Add(1)
	}
}

// RecordCommit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCommit(_ time.Duration, err error) {
	b.CommitCount.Add(1)
	if err != nil {
		b.CommitErrors.Add(1)
	}
}

// RecordBackup implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBackup(bytes int64, _ time.Duration, err error) {
	b.BackupCount.Add(1)
	if err != nil {
		b.BackupErrors.Add(1)
		return
	}
	b.BackupBytes.Add(bytes)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		PutCount:      b.PutCount.Load(),
		PutErrors:     b.PutErrors.Load(),
		PutAvgNanos:   avg(b.PutTotalNanos.Load(), b.PutCount.Load()),
		GetCount:      b.GetCount.Load(),
		GetHits:       b.GetHits.Load(),
		GetErrors:     b.GetErrors.Load(),
		GetAvgNanos:   avg(b.GetTotalNanos.Load(), b.GetCount.Load()),
		RemoveCount:   b.RemoveCount.Load(),
		RemoveErrors:  b.RemoveErrors.Load(),
		ComputeCount:  b.ComputeCount.Load(),
		ComputeErrors: b.ComputeErrors.Load(),
		CommitCount:   b.CommitCount.Load(),
		CommitErrors:  b.CommitErrors.Load(),
		BackupCount:   b.BackupCount.Load(),
		BackupErrors:  b.BackupErrors.Load(),
		BackupBytes:   b.BackupBytes.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	PutCount      int64
	PutErrors     int64
	PutAvgNanos   int64
	GetCount      int64
	GetHits       int64
	GetErrors     int64
	GetAvgNanos   int64
	RemoveCount   int64
	RemoveErrors  int64
	ComputeCount  int64
	ComputeErrors int64
	CommitCount   int64
	CommitErrors  int64
	BackupCount   int64
	BackupErrors  int64
	BackupBytes   int64
}
