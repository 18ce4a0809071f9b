package local

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/dexgo/chunk"
	"github.com/hupe1980/dexgo/cluster"
)

// runIndex parses every input in order, distributes records over NrIChunks
// chunk builders and writes the finished chunk files plus a listing blob.
// The single result location is the listing in dir:// form.
func (r *Runner) runIndex(ctx context.Context, j *job, parse Parser, demux Demuxer) ([]string, error) {
	n := j.spec.NrIChunks
	if n <= 0 {
		n = cluster.DefaultNrIChunks
	}

	builders := make([]*chunk.Builder, n)
	for i := range builders {
		builders[i] = chunk.NewBuilder(r.compression)
	}

	for _, input := range j.spec.Inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := r.readBlob(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("read input %q: %w", input, err)
		}
		if err := parse(data, func(key string, value []byte) error {
			builders[demux(key, n)].Add(key, value)
			return nil
		}); err != nil {
			return nil, fmt.Errorf("parse input %q: %w", input, err)
		}
	}

	// Chunks are independent from here on; finish and upload them in
	// parallel. Empty chunks are written too, keeping the count stable.
	locations := make([]string, n)
	g, gctx := errgroup.WithContext(ctx)
	for i, b := range builders {
		g.Go(func() error {
			data, err := b.Finish()
			if err != nil {
				return fmt.Errorf("build chunk %d: %w", i, err)
			}

			location := fmt.Sprintf("%s/chunk-%05d", r.jobOutPrefix(j.name), i)
			if err := r.store.Put(gctx, location, data); err != nil {
				return fmt.Errorf("write chunk %d: %w", i, err)
			}
			locations[i] = location
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	listing := r.jobOutPrefix(j.name) + "/chunks"
	if err := r.store.Put(ctx, listing, []byte(strings.Join(locations, "\n")+"\n")); err != nil {
		return nil, fmt.Errorf("write chunk listing: %w", err)
	}

	return []string{dirScheme + listing}, nil
}
