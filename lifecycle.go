package dexgo

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/hupe1980/dexgo/artifact"
	"github.com/hupe1980/dexgo/cluster"
)

// Status resolves the current lifecycle state of an index name.
//
// The artifact store is authoritative: a persisted artifact means ready. For
// names following the cluster job convention the remote job is consulted
// next, with a local re-check after the remote call to tolerate a concurrent
// materialization. The first resolution to observe a ready job collapses its
// outputs into a local artifact before reporting ready. Names unknown to
// both sides resolve to StatusUnknown without error.
func (d *Dexgo) Status(ctx context.Context, name string) (cluster.JobStatus, error) {
	start := time.Now()
	st, err := d.resolve(ctx, name)
	err = translateError(err)
	d.metrics.RecordStatus(st.String(), time.Since(start), err)
	d.logger.LogStatus(ctx, name, st.String(), err)
	return st, err
}

// Read returns the raw persisted artifact for a ready index. Any other state
// maps to its error class: ErrNotReady while the indexing job is active,
// ErrIndexingFailed for a dead job, ErrNotFound otherwise.
func (d *Dexgo) Read(ctx context.Context, name string) ([]byte, error) {
	st, err := d.resolve(ctx, name)
	if err != nil {
		return nil, translateError(err)
	}
	if err := statusError(name, st); err != nil {
		return nil, err
	}
	data, err := d.store.Read(name)
	return data, translateError(err)
}

// ReadIndex returns the decoded artifact for a ready index. Non-ready states
// map to errors the same way as Read.
func (d *Dexgo) ReadIndex(ctx context.Context, name string) (*artifact.Index, error) {
	st, err := d.resolve(ctx, name)
	if err != nil {
		return nil, translateError(err)
	}
	if err := statusError(name, st); err != nil {
		return nil, err
	}
	ix, err := d.store.ReadIndex(name)
	return ix, translateError(err)
}

// WaitReady polls Status until the index leaves the active state and returns
// the final status. Polls are paced by the configured poll interval.
func (d *Dexgo) WaitReady(ctx context.Context, name string) (cluster.JobStatus, error) {
	limiter := rate.NewLimiter(rate.Every(d.pollInterval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return cluster.StatusUnknown, err
		}
		st, err := d.Status(ctx, name)
		if err != nil || st != cluster.StatusActive {
			return st, err
		}
	}
}

// resolve implements the status state machine. Status is derived on every
// call, never cached: stale state cannot outlive the stores it is derived
// from.
func (d *Dexgo) resolve(ctx context.Context, name string) (cluster.JobStatus, error) {
	ok, err := d.store.Exists(name)
	if err != nil {
		return cluster.StatusUnknown, err
	}
	if ok {
		return cluster.StatusReady, nil
	}

	if !d.isJob(name) {
		return cluster.StatusUnknown, nil
	}

	rctx, cancel := d.remoteCtx(ctx)
	res, err := d.cluster.Results(rctx, name)
	cancel()
	if err != nil {
		return cluster.StatusUnknown, err
	}

	// A concurrent request may have materialized the artifact while the
	// remote call was in flight.
	ok, err = d.store.Exists(name)
	if err != nil {
		return cluster.StatusUnknown, err
	}
	if ok {
		return cluster.StatusReady, nil
	}

	if res.Status == cluster.StatusReady {
		if err := d.materialize(ctx, name, res.Locations); err != nil {
			return res.Status, err
		}
	}
	return res.Status, nil
}

// statusError maps a non-ready status to its error class.
func statusError(name string, st cluster.JobStatus) error {
	switch st {
	case cluster.StatusReady:
		return nil
	case cluster.StatusActive:
		return &ErrNotReady{Name: name, RetryAfter: DefaultRetryAfter}
	case cluster.StatusDead:
		return &ErrIndexingFailed{Name: name}
	default:
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
}

// materialize collapses a completed job's result locations into a persisted
// artifact. Concurrent materializations of the same name are collapsed via
// singleflight when enabled; correctness never depends on the dedup, since
// racing writers persist identical content and the losing rename is simply
// overwritten.
func (d *Dexgo) materialize(ctx context.Context, name string, locations []string) error {
	if d.group == nil {
		return d.materializeOnce(ctx, name, locations)
	}
	_, err, _ := d.group.Do(name, func() (any, error) {
		return nil, d.materializeOnce(ctx, name, locations)
	})
	return err
}

// materializeOnce expands each result location into its ordered chunk
// locators, persists the flattened list atomically, and forgets the job's
// bookkeeping. The order of the chunk list is the enumeration order of the
// result locations, then the intra-location order.
func (d *Dexgo) materializeOnce(ctx context.Context, name string, locations []string) (err error) {
	start := time.Now()
	ichunks := make([]string, 0, len(locations))
	defer func() {
		d.metrics.RecordMaterialize(len(ichunks), time.Since(start), err)
		d.logger.LogMaterialize(ctx, name, len(ichunks), err)
	}()

	for _, location := range locations {
		rctx, cancel := d.remoteCtx(ctx)
		expanded, err := d.cluster.Expand(rctx, location)
		cancel()
		if err != nil {
			return fmt.Errorf("expand %q: %w", location, err)
		}
		ichunks = append(ichunks, expanded...)
	}

	ix := &artifact.Index{
		Name:    name,
		BuiltAt: time.Now().UTC(),
		IChunks: ichunks,
	}
	if err := d.store.Write(name, ix); err != nil {
		return err
	}

	// Clean, not purge: the job's result blobs are now referenced by the
	// artifact and must survive. Only the bookkeeping goes.
	cctx, cancel := d.remoteCtx(context.WithoutCancel(ctx))
	defer cancel()
	cleanErr := d.cluster.Clean(cctx, name)
	d.logger.LogClean(ctx, name, cleanErr)

	return nil
}
