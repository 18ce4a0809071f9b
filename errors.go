package dexgo

import (
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/dexgo/artifact"
	"github.com/hupe1980/dexgo/cluster"
)

// DefaultRetryAfter is the retry delay suggested to callers while an index
// is still being built. It matches the Retry-After hint served over HTTP.
const DefaultRetryAfter = 100 * time.Second

var (
	// ErrNotFound is returned when an index name is unknown to both the
	// artifact store and the cluster.
	ErrNotFound = errors.New("index not found")
)

// ErrNotReady indicates that the indexing job behind an index is still
// running. Callers should retry after RetryAfter.
type ErrNotReady struct {
	Name       string
	RetryAfter time.Duration
}

func (e *ErrNotReady) Error() string {
	return fmt.Sprintf("index %q not ready", e.Name)
}

// ErrIndexingFailed indicates that the indexing job behind an index reached
// the dead state. The index will not become ready without a new submission.
type ErrIndexingFailed struct {
	Name string
}

func (e *ErrIndexingFailed) Error() string {
	return fmt.Sprintf("indexing failed for %q", e.Name)
}

// ErrSubmission indicates that handing a job to the cluster failed. No local
// or remote state was created.
//
// The original underlying error can be accessed via errors.Unwrap.
type ErrSubmission struct {
	cause error
}

func (e *ErrSubmission) Error() string {
	return fmt.Sprintf("job submission failed: %v", e.cause)
}

func (e *ErrSubmission) Unwrap() error { return e.cause }

// ErrJobFailed indicates that an ephemeral job against a ready index failed
// while running. This is a different failure class from an absent or unready
// index: the artifact exists, but the cluster could not read its chunks.
//
// The original underlying error can be accessed via errors.Unwrap.
type ErrJobFailed struct {
	Job   string
	cause error
}

func (e *ErrJobFailed) Error() string {
	return fmt.Sprintf("job %q failed: %v", e.Job, e.cause)
}

func (e *ErrJobFailed) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, artifact.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if errors.Is(err, cluster.ErrInvalidSpec) {
		return &ErrSubmission{cause: err}
	}

	return err
}
