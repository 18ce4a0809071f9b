package dexgo

import (
	"context"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/dexgo/cluster"
	"github.com/hupe1980/dexgo/query"
)

// Keys enumerates the keys across all chunks of a ready index by running an
// ephemeral cluster job. Each chunk contributes its own key set; a key
// stored in several chunks appears once per chunk. This is enumeration, not
// deduplication.
func (d *Dexgo) Keys(ctx context.Context, name string) ([]string, error) {
	return d.extract(ctx, name, cluster.KindKeys, "")
}

// Values enumerates every value across all chunks of a ready index.
func (d *Dexgo) Values(ctx context.Context, name string) ([]string, error) {
	return d.extract(ctx, name, cluster.KindValues, "")
}

// Query evaluates a boolean key expression against a ready index and returns
// the values of matching records.
func (d *Dexgo) Query(ctx context.Context, name string, q query.Q) ([]string, error) {
	return d.extract(ctx, name, cluster.KindQuery, q.String())
}

// extract runs one ephemeral job over the chunk list of a ready index and
// collects the emitted records. Once submission has succeeded, the job's
// remote state is purged on every exit path, including request cancellation.
func (d *Dexgo) extract(ctx context.Context, name string, kind cluster.JobKind, q string) (values []string, err error) {
	start := time.Now()
	defer func() {
		d.metrics.RecordExtract(string(kind), len(values), time.Since(start), err)
		d.logger.LogExtract(ctx, name, string(kind), len(values), err)
	}()

	ix, err := d.ReadIndex(ctx, name)
	if err != nil {
		return nil, err
	}

	spec := cluster.JobSpec{
		Name:   d.jobName(kind),
		Kind:   kind,
		Inputs: ix.IChunks,
		Query:  q,
	}

	rctx, cancel := d.remoteCtx(ctx)
	job, err := d.cluster.Submit(rctx, spec)
	cancel()
	if err != nil {
		return nil, &ErrSubmission{cause: err}
	}
	defer d.purgeJob(ctx, job)

	res, err := cluster.Wait(ctx, d.cluster, job, d.pollInterval)
	if err != nil {
		return nil, &ErrJobFailed{Job: job, cause: err}
	}
	if res.Status != cluster.StatusReady {
		return nil, &ErrJobFailed{Job: job, cause: fmt.Errorf("job status %s", res.Status)}
	}

	values, err = d.collect(ctx, res.Locations)
	if err != nil {
		return nil, &ErrJobFailed{Job: job, cause: err}
	}
	return values, nil
}

// collect fetches all result locations concurrently and flattens the decoded
// record values in location order.
func (d *Dexgo) collect(ctx context.Context, locations []string) ([]string, error) {
	chunks := make([][]string, len(locations))

	g, gctx := errgroup.WithContext(ctx)
	for i, location := range locations {
		g.Go(func() error {
			rc, err := d.cluster.Fetch(gctx, location)
			if err != nil {
				return err
			}
			defer rc.Close()

			data, err := io.ReadAll(rc)
			if err != nil {
				return err
			}

			var vals []string
			if err := cluster.ReadRecords(data, func(_, value []byte) error {
				vals = append(vals, string(value))
				return nil
			}); err != nil {
				return err
			}
			chunks[i] = vals
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, vals := range chunks {
		total += len(vals)
	}
	values := make([]string, 0, total)
	for _, vals := range chunks {
		values = append(values, vals...)
	}
	return values, nil
}
