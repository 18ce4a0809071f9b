package cluster

import (
	"context"
	"io"
)

// Client is the remote execution boundary. Implementations must be safe for
// concurrent use.
//
// Jobs are ephemeral: whoever submits a job owns its handle, polls it, and
// purges it. Handles are never shared or reused across requests.
type Client interface {
	// Submit starts a job and returns its effective name. An error means
	// nothing is running (cluster unreachable, spec rejected).
	Submit(ctx context.Context, spec JobSpec) (string, error)

	// Results reports the job's status and, when ready, its result
	// locations. Polling a name the cluster never saw yields StatusUnknown,
	// not an error.
	Results(ctx context.Context, name string) (JobResults, error)

	// Expand flattens a result location into the chunk locations it stands
	// for, in intra-location order. Plain locations expand to themselves.
	Expand(ctx context.Context, location string) ([]string, error)

	// Fetch opens a result location for reading. The caller closes it.
	Fetch(ctx context.Context, location string) (io.ReadCloser, error)

	// Clean forgets the job's bookkeeping entry but leaves its result blobs
	// in place. Used after materializing an index, whose chunks are the
	// job's results.
	Clean(ctx context.Context, name string) error

	// Purge releases all cluster-side state of a job: its bookkeeping entry
	// and its result blobs. Purging an unknown name is not an error.
	Purge(ctx context.Context, name string) error
}
