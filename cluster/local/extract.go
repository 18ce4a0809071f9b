package local

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/dexgo/chunk"
	"github.com/hupe1980/dexgo/cluster"
	"github.com/hupe1980/dexgo/query"
)

// extractor emits the records one chunk contributes to an extraction job.
type extractor func(c *chunk.Chunk, emit func(key, value []byte)) error

func extractorFor(spec cluster.JobSpec) (extractor, error) {
	switch spec.Kind {
	case cluster.KindKeys:
		return extractKeys, nil
	case cluster.KindValues:
		return extractValues, nil
	case cluster.KindQuery:
		q, err := query.Parse(spec.Query)
		if err != nil {
			return nil, fmt.Errorf("bad query %q: %v", spec.Query, err)
		}
		return extractQuery(q), nil
	default:
		return nil, fmt.Errorf("kind %q is not an extraction", spec.Kind)
	}
}

// extractKeys emits each distinct key once, as both fields of the pair.
func extractKeys(c *chunk.Chunk, emit func(key, value []byte)) error {
	c.Keys(func(key string) bool {
		emit([]byte(key), []byte(key))
		return true
	})
	return nil
}

func extractValues(c *chunk.Chunk, emit func(key, value []byte)) error {
	return c.Entries(func(key string, value []byte) bool {
		emit([]byte(key), value)
		return true
	})
}

func extractQuery(q query.Q) extractor {
	return func(c *chunk.Chunk, emit func(key, value []byte)) error {
		return c.QueryEntries(q, func(key string, value []byte) bool {
			emit([]byte(key), value)
			return true
		})
	}
}

// runExtract opens every input chunk, writes one result blob of TLV pair
// records per chunk and returns the blob locations in input order.
func (r *Runner) runExtract(ctx context.Context, j *job, extract extractor) ([]string, error) {
	locations := make([]string, len(j.spec.Inputs))

	g, gctx := errgroup.WithContext(ctx)
	for i, input := range j.spec.Inputs {
		g.Go(func() error {
			c, err := r.openChunk(gctx, input)
			if err != nil {
				return fmt.Errorf("open chunk %q: %w", input, err)
			}

			var buf []byte
			if err := extract(c, func(key, value []byte) {
				buf = cluster.AppendRecord(buf, key, value)
			}); err != nil {
				return fmt.Errorf("extract from %q: %w", input, err)
			}

			location := fmt.Sprintf("%s/out-%05d", r.jobOutPrefix(j.name), i)
			if err := r.store.Put(gctx, location, buf); err != nil {
				return fmt.Errorf("write result %q: %w", location, err)
			}
			locations[i] = location
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return locations, nil
}
