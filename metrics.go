package dexgo

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems, or use
// PrometheusMetricsCollector for a ready-made Prometheus implementation.
type MetricsCollector interface {
	// RecordSubmit is called after each indexing job submission.
	// duration is the total time taken, err is nil if successful.
	RecordSubmit(duration time.Duration, err error)

	// RecordStatus is called after each status resolution.
	// status is the resolved state wire name ("unknown job", "active",
	// "ready", "dead").
	RecordStatus(status string, duration time.Duration, err error)

	// RecordMaterialize is called after a completed job's outputs are
	// collapsed into a local artifact. ichunks is the number of chunk
	// locators persisted.
	RecordMaterialize(ichunks int, duration time.Duration, err error)

	// RecordExtract is called after each ephemeral keys/values/query job.
	// kind is one of "keys", "values", "query"; records is the number of
	// collected records.
	RecordExtract(kind string, records int, duration time.Duration, err error)

	// RecordReplace is called after each artifact upload/replace.
	RecordReplace(duration time.Duration, err error)

	// RecordDelete is called after each index deletion.
	RecordDelete(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordSubmit(time.Duration, error)               {}
func (NoopMetricsCollector) RecordStatus(string, time.Duration, error)       {}
func (NoopMetricsCollector) RecordMaterialize(int, time.Duration, error)     {}
func (NoopMetricsCollector) RecordExtract(string, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordReplace(time.Duration, error)              {}
func (NoopMetricsCollector) RecordDelete(time.Duration, error)               {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	SubmitCount         atomic.Int64
	SubmitErrors        atomic.Int64
	StatusCount         atomic.Int64
	StatusErrors        atomic.Int64
	StatusTotalNanos    atomic.Int64
	MaterializeCount    atomic.Int64
	MaterializeErrors   atomic.Int64
	MaterializedIChunks atomic.Int64
	ExtractCount        atomic.Int64
	ExtractErrors       atomic.Int64
	ExtractRecords      atomic.Int64
	ExtractTotalNanos   atomic.Int64
	ReplaceCount        atomic.Int64
	ReplaceErrors       atomic.Int64
	DeleteCount         atomic.Int64
	DeleteErrors        atomic.Int64
}

// RecordSubmit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSubmit(duration time.Duration, err error) {
	b.SubmitCount.Add(1)
	if err != nil {
		b.SubmitErrors.Add(1)
	}
}

// RecordStatus implements MetricsCollector.
func (b *BasicMetricsCollector) RecordStatus(status string, duration time.Duration, err error) {
	b.StatusCount.Add(1)
	b.StatusTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.StatusErrors.Add(1)
	}
}

// RecordMaterialize implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMaterialize(ichunks int, duration time.Duration, err error) {
	b.MaterializeCount.Add(1)
	if err != nil {
		b.MaterializeErrors.Add(1)
		return
	}
	b.MaterializedIChunks.Add(int64(ichunks))
}

// RecordExtract implements MetricsCollector.
func (b *BasicMetricsCollector) RecordExtract(kind string, records int, duration time.Duration, err error) {
	b.ExtractCount.Add(1)
	b.ExtractTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ExtractErrors.Add(1)
		return
	}
	b.ExtractRecords.Add(int64(records))
}

// RecordReplace implements MetricsCollector.
func (b *BasicMetricsCollector) RecordReplace(duration time.Duration, err error) {
	b.ReplaceCount.Add(1)
	if err != nil {
		b.ReplaceErrors.Add(1)
	}
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(duration time.Duration, err error) {
	b.DeleteCount.Add(1)
	if err != nil {
		b.DeleteErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		SubmitCount:         b.SubmitCount.Load(),
		SubmitErrors:        b.SubmitErrors.Load(),
		StatusCount:         b.StatusCount.Load(),
		StatusErrors:        b.StatusErrors.Load(),
		StatusAvgNanos:      b.getAvgStatusNanos(),
		MaterializeCount:    b.MaterializeCount.Load(),
		MaterializeErrors:   b.MaterializeErrors.Load(),
		MaterializedIChunks: b.MaterializedIChunks.Load(),
		ExtractCount:        b.ExtractCount.Load(),
		ExtractErrors:       b.ExtractErrors.Load(),
		ExtractRecords:      b.ExtractRecords.Load(),
		ExtractAvgNanos:     b.getAvgExtractNanos(),
		ReplaceCount:        b.ReplaceCount.Load(),
		ReplaceErrors:       b.ReplaceErrors.Load(),
		DeleteCount:         b.DeleteCount.Load(),
		DeleteErrors:        b.DeleteErrors.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgStatusNanos() int64 {
	count := b.StatusCount.Load()
	if count == 0 {
		return 0
	}
	return b.StatusTotalNanos.Load() / count
}

func (b *BasicMetricsCollector) getAvgExtractNanos() int64 {
	count := b.ExtractCount.Load()
	if count == 0 {
		return 0
	}
	return b.ExtractTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	SubmitCount         int64
	SubmitErrors        int64
	StatusCount         int64
	StatusErrors        int64
	StatusAvgNanos      int64
	MaterializeCount    int64
	MaterializeErrors   int64
	MaterializedIChunks int64
	ExtractCount        int64
	ExtractErrors       int64
	ExtractRecords      int64
	ExtractAvgNanos     int64
	ReplaceCount        int64
	ReplaceErrors       int64
	DeleteCount         int64
	DeleteErrors        int64
}
