package dexgo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/dexgo/artifact"
	"github.com/hupe1980/dexgo/cluster"
)

// DataSet describes the inputs of an indexing job: where the raw data lives
// and how the cluster should parse and partition it. It is transient and not
// persisted beyond job submission.
type DataSet struct {
	// Input lists the input locations read by the indexing job.
	Input []string `json:"input"`

	// NrIChunks is the desired number of index chunks. Zero means
	// cluster.DefaultNrIChunks.
	NrIChunks int `json:"nr_ichunks,omitempty"`

	// Parser, Demuxer and Balancer name the cluster-side directives that
	// split inputs into records, route records to chunks and spread chunk
	// construction over nodes. Empty selects the cluster defaults.
	Parser   string `json:"parser,omitempty"`
	Demuxer  string `json:"demuxer,omitempty"`
	Balancer string `json:"balancer,omitempty"`
}

// Dexgo orchestrates named key-value indices. It tracks the lifecycle of an
// index from submitted cluster job to materialized local artifact, persists
// artifacts atomically, and runs ephemeral cluster jobs to answer keys,
// values and query requests against ready indices.
//
// All methods are safe for concurrent use.
type Dexgo struct {
	store   *artifact.Store
	cluster cluster.Client

	metrics       MetricsCollector
	logger        *Logger
	jobPrefix     string
	pollInterval  time.Duration
	remoteTimeout time.Duration

	group *singleflight.Group // nil when materialization dedup is disabled
}

// New creates a Dexgo instance over an artifact store and a cluster client.
func New(store *artifact.Store, client cluster.Client, optFns ...Option) (*Dexgo, error) {
	if store == nil {
		return nil, fmt.Errorf("dexgo: artifact store must not be nil")
	}
	if client == nil {
		return nil, fmt.Errorf("dexgo: cluster client must not be nil")
	}

	opts := applyOptions(optFns)

	d := &Dexgo{
		store:         store,
		cluster:       client,
		metrics:       opts.metricsCollector,
		logger:        opts.logger,
		jobPrefix:     opts.jobPrefix,
		pollInterval:  opts.pollInterval,
		remoteTimeout: opts.remoteTimeout,
	}
	if opts.singleflight {
		d.group = new(singleflight.Group)
	}

	return d, nil
}

// List returns the names of all materialized indices, sorted.
func (d *Dexgo) List() ([]string, error) {
	names, err := d.store.List()
	return names, translateError(err)
}

// Submit hands a DataSet to the cluster as a new indexing job and returns
// the job name. The name doubles as the index name: once the job completes,
// the first status resolution under that name materializes the artifact.
// Submission failures create no local state.
func (d *Dexgo) Submit(ctx context.Context, ds DataSet) (string, error) {
	start := time.Now()

	nrIChunks := ds.NrIChunks
	if nrIChunks <= 0 {
		nrIChunks = cluster.DefaultNrIChunks
	}
	spec := cluster.JobSpec{
		Name:      d.jobName(cluster.KindIndex),
		Kind:      cluster.KindIndex,
		Inputs:    ds.Input,
		NrIChunks: nrIChunks,
		Parser:    ds.Parser,
		Demuxer:   ds.Demuxer,
		Balancer:  ds.Balancer,
	}

	rctx, cancel := d.remoteCtx(ctx)
	defer cancel()

	name, err := d.cluster.Submit(rctx, spec)
	if err != nil {
		err = &ErrSubmission{cause: err}
		name = spec.Name
	}
	d.metrics.RecordSubmit(time.Since(start), err)
	d.logger.LogSubmit(ctx, name, len(ds.Input), err)
	if err != nil {
		return "", err
	}
	return name, nil
}

// Replace persists a precomputed chunk list under the given name, replacing
// any existing artifact. The write is atomic: concurrent readers observe
// either the previous artifact or the new one, never a partial write.
func (d *Dexgo) Replace(ctx context.Context, name string, ichunks []string) error {
	start := time.Now()
	ix := &artifact.Index{
		Name:    name,
		BuiltAt: time.Now().UTC(),
		IChunks: ichunks,
	}
	err := translateError(d.store.Write(name, ix))
	d.metrics.RecordReplace(time.Since(start), err)
	d.logger.LogReplace(ctx, name, len(ichunks), err)
	return err
}

// Delete removes the artifact for name, returning ErrNotFound if absent. If
// the name denotes a cluster-submitted index, remote job state is purged
// best-effort; purge failures never fail the deletion, since removing the
// local artifact is the authoritative part.
func (d *Dexgo) Delete(ctx context.Context, name string) error {
	start := time.Now()
	err := d.store.Delete(name)
	if err == nil && d.isJob(name) {
		d.purgeJob(ctx, name)
	}
	err = translateError(err)
	d.metrics.RecordDelete(time.Since(start), err)
	d.logger.LogDelete(ctx, name, err)
	return err
}

// jobName derives the name of a new cluster job from the configured prefix.
func (d *Dexgo) jobName(kind cluster.JobKind) string {
	return fmt.Sprintf("%s:%s@%s", d.jobPrefix, kind, uuid.NewString()[:8])
}

// isJob reports whether name follows the naming convention of
// cluster-submitted indices.
func (d *Dexgo) isJob(name string) bool {
	return strings.HasPrefix(name, d.jobPrefix)
}

// remoteCtx bounds a cluster call with the configured remote timeout.
func (d *Dexgo) remoteCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.remoteTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d.remoteTimeout)
}

// purgeJob releases remote job state. It runs even when the request context
// is already canceled, so abandoned requests do not leak jobs.
func (d *Dexgo) purgeJob(ctx context.Context, job string) {
	pctx, cancel := d.remoteCtx(context.WithoutCancel(ctx))
	defer cancel()
	err := d.cluster.Purge(pctx, job)
	d.logger.LogPurge(ctx, job, err)
}
