package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/dexgo/blobstore"
	"github.com/hupe1980/dexgo/chunk"
	"github.com/hupe1980/dexgo/cluster"
)

// ErrClosed is returned by operations on a closed runner.
var ErrClosed = errors.New("local: runner closed")

const dirScheme = "dir://"

// job is one table entry. Status fields are guarded by mu; the executing
// goroutine is the only writer after submission.
type job struct {
	name string
	spec cluster.JobSpec

	mu        sync.Mutex
	status    cluster.JobStatus
	locations []string
	err       error
}

func (j *job) results() cluster.JobResults {
	j.mu.Lock()
	defer j.mu.Unlock()
	return cluster.JobResults{
		Status:    j.status,
		Locations: append([]string(nil), j.locations...),
	}
}

func (j *job) finish(locations []string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = cluster.StatusReady
	j.locations = locations
}

func (j *job) fail(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = cluster.StatusDead
	j.err = err
}

// executor runs one prepared job and returns its result locations.
type executor func(ctx context.Context, j *job) ([]string, error)

// Runner executes jobs in-process against a blob store. It implements
// cluster.Client and is safe for concurrent use.
type Runner struct {
	store       blobstore.Store
	outPrefix   string
	compression chunk.Compression
	maxWorkers  int64
	cacheSize   int
	logger      *slog.Logger

	jobs   *xsync.MapOf[string, *job]
	chunks *lru.Cache[string, *chunk.Chunk]
	sem    *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// Option defines a configuration option for the Runner.
type Option func(*Runner)

// WithLogger sets the logger for the runner.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithOutPrefix sets the blob location prefix job outputs are written under.
func WithOutPrefix(prefix string) Option {
	return func(r *Runner) {
		r.outPrefix = strings.Trim(prefix, "/")
	}
}

// WithMaxWorkers bounds the number of concurrently executing jobs.
func WithMaxWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxWorkers = int64(n)
		}
	}
}

// WithChunkCacheSize sets the number of parsed chunks kept in memory.
func WithChunkCacheSize(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.cacheSize = n
		}
	}
}

// WithCompression selects the block compression of chunk files written by
// index jobs.
func WithCompression(c chunk.Compression) Option {
	return func(r *Runner) {
		r.compression = c
	}
}

// New creates a runner that reads inputs from and writes outputs to store.
func New(store blobstore.Store, opts ...Option) (*Runner, error) {
	if store == nil {
		return nil, errors.New("local: nil store")
	}

	r := &Runner{
		store:       store,
		outPrefix:   "jobs",
		compression: chunk.CompressionLZ4,
		maxWorkers:  int64(runtime.GOMAXPROCS(0)),
		cacheSize:   64,
		jobs:        xsync.NewMapOf[string, *job](),
	}
	for _, opt := range opts {
		opt(r)
	}

	cache, err := lru.New[string, *chunk.Chunk](r.cacheSize)
	if err != nil {
		return nil, err
	}
	r.chunks = cache
	r.sem = semaphore.NewWeighted(r.maxWorkers)
	r.ctx, r.cancel = context.WithCancel(context.Background())

	return r, nil
}

// Close stops accepting jobs, cancels running ones and waits for them to
// settle. Job table and outputs are left as they are.
func (r *Runner) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	r.cancel()
	r.wg.Wait()
	r.chunks.Purge()
	return nil
}

// Submit validates the spec, registers the job and starts executing it in
// the background. The returned name is the effective job name; it differs
// from spec.Name when the requested name is already taken.
func (r *Runner) Submit(ctx context.Context, spec cluster.JobSpec) (string, error) {
	if r.closed.Load() {
		return "", ErrClosed
	}
	if err := spec.Validate(); err != nil {
		return "", err
	}

	exec, err := r.prepare(spec)
	if err != nil {
		return "", err
	}

	for attempt := 0; attempt < 2; attempt++ {
		name := spec.Name
		if attempt > 0 {
			name = spec.Name + "@" + uuid.NewString()[:8]
		}

		j := &job{name: name, spec: spec, status: cluster.StatusActive}
		if _, taken := r.jobs.LoadOrStore(name, j); taken {
			continue
		}

		r.start(j, exec)
		if r.logger != nil {
			r.logger.Info("job submitted", "job", name, "kind", string(spec.Kind), "inputs", len(spec.Inputs))
		}
		return name, nil
	}

	return "", fmt.Errorf("local: job name %q already taken", spec.Name)
}

func (r *Runner) start(j *job, exec executor) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		if err := r.sem.Acquire(r.ctx, 1); err != nil {
			j.fail(err)
			return
		}
		defer r.sem.Release(1)

		locations, err := exec(r.ctx, j)
		if err != nil {
			j.fail(err)
			if r.logger != nil {
				r.logger.Error("job failed", "job", j.name, "kind", string(j.spec.Kind), "error", err)
			}
			return
		}

		j.finish(locations)
		if r.logger != nil {
			r.logger.Info("job ready", "job", j.name, "locations", len(locations))
		}
	}()
}

// prepare resolves the spec into an executor, surfacing bad pipelines and
// bad queries at submission time.
func (r *Runner) prepare(spec cluster.JobSpec) (executor, error) {
	switch spec.Kind {
	case cluster.KindIndex:
		parse, err := parserByName(spec.Parser)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", cluster.ErrInvalidSpec, err)
		}
		demux, err := demuxerByName(spec.Demuxer)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", cluster.ErrInvalidSpec, err)
		}
		if err := checkBalancer(spec.Balancer); err != nil {
			return nil, fmt.Errorf("%w: %v", cluster.ErrInvalidSpec, err)
		}
		return func(ctx context.Context, j *job) ([]string, error) {
			return r.runIndex(ctx, j, parse, demux)
		}, nil

	case cluster.KindKeys, cluster.KindValues, cluster.KindQuery:
		extract, err := extractorFor(spec)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", cluster.ErrInvalidSpec, err)
		}
		return func(ctx context.Context, j *job) ([]string, error) {
			return r.runExtract(ctx, j, extract)
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown kind %q", cluster.ErrInvalidSpec, spec.Kind)
	}
}

// Results reports the job's current status. Unknown names yield
// StatusUnknown, not an error.
func (r *Runner) Results(ctx context.Context, name string) (cluster.JobResults, error) {
	j, ok := r.jobs.Load(name)
	if !ok {
		return cluster.JobResults{Status: cluster.StatusUnknown}, nil
	}
	return j.results(), nil
}

// Expand flattens a dir:// location by reading its listing blob, one
// location per line. Plain locations expand to themselves.
func (r *Runner) Expand(ctx context.Context, location string) ([]string, error) {
	listing, ok := strings.CutPrefix(location, dirScheme)
	if !ok {
		return []string{location}, nil
	}

	data, err := r.readBlob(ctx, listing)
	if err != nil {
		return nil, fmt.Errorf("expand %q: %w", location, err)
	}

	var locations []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			locations = append(locations, line)
		}
	}
	return locations, nil
}

// Fetch opens a result location for reading.
func (r *Runner) Fetch(ctx context.Context, location string) (io.ReadCloser, error) {
	blob, err := r.store.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	return &blobReader{
		SectionReader: io.NewSectionReader(blob, 0, blob.Size()),
		blob:          blob,
	}, nil
}

type blobReader struct {
	*io.SectionReader
	blob blobstore.Blob
}

func (br *blobReader) Close() error { return br.blob.Close() }

// Clean forgets the job but leaves its output blobs in place.
func (r *Runner) Clean(ctx context.Context, name string) error {
	r.jobs.Delete(name)
	if r.logger != nil {
		r.logger.Debug("job cleaned", "job", name)
	}
	return nil
}

// Purge forgets the job and deletes every blob under its output prefix.
// Purging an unknown name only sweeps leftovers, which may be none.
func (r *Runner) Purge(ctx context.Context, name string) error {
	r.jobs.Delete(name)

	prefix := r.jobOutPrefix(name) + "/"
	names, err := r.store.List(ctx, prefix)
	if err != nil {
		return fmt.Errorf("purge %q: %w", name, err)
	}
	for _, n := range names {
		r.chunks.Remove(n)
		if err := r.store.Delete(ctx, n); err != nil {
			return fmt.Errorf("purge %q: %w", name, err)
		}
	}

	if r.logger != nil {
		r.logger.Debug("job purged", "job", name, "blobs", len(names))
	}
	return nil
}

func (r *Runner) jobOutPrefix(name string) string {
	return r.outPrefix + "/" + name
}

func (r *Runner) readBlob(ctx context.Context, location string) ([]byte, error) {
	blob, err := r.store.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer blob.Close()
	return blobstore.ReadAll(blob)
}

// openChunk returns a parsed chunk for the location, from cache when
// possible. Cached chunks are byte-backed, so eviction needs no Close.
func (r *Runner) openChunk(ctx context.Context, location string) (*chunk.Chunk, error) {
	if c, ok := r.chunks.Get(location); ok {
		return c, nil
	}

	data, err := r.readBlob(ctx, location)
	if err != nil {
		return nil, err
	}
	c, err := chunk.Load(data)
	if err != nil {
		return nil, err
	}

	r.chunks.Add(location, c)
	return c, nil
}
