package cluster

import (
	"errors"
	"fmt"
)

// JobKind selects the routine a job runs.
type JobKind string

const (
	// KindIndex builds chunk files from raw inputs.
	KindIndex JobKind = "index"
	// KindKeys emits every key of the given chunks.
	KindKeys JobKind = "keys"
	// KindValues emits every value of the given chunks.
	KindValues JobKind = "values"
	// KindQuery emits the values of records matching a boolean key query.
	KindQuery JobKind = "query"
)

// ErrInvalidSpec is wrapped by all JobSpec validation failures.
var ErrInvalidSpec = errors.New("invalid job spec")

// DefaultNrIChunks is the chunk count index jobs fall back to when the spec
// leaves NrIChunks at zero.
const DefaultNrIChunks = 10

// JobSpec describes a job submission.
type JobSpec struct {
	// Name is the requested job name. Backends may suffix it to make the
	// effective name unique; Submit returns the effective name.
	Name string `json:"name"`

	// Kind selects the routine.
	Kind JobKind `json:"kind"`

	// Inputs are raw data locations for index jobs and chunk locations for
	// keys/values/query jobs.
	Inputs []string `json:"inputs"`

	// NrIChunks is the number of chunks an index job distributes records
	// over. Ignored by other kinds.
	NrIChunks int `json:"nr_ichunks,omitempty"`

	// Parser, Demuxer and Balancer name the record pipeline stages of an
	// index job. Empty selects the backend defaults.
	Parser   string `json:"parser,omitempty"`
	Demuxer  string `json:"demuxer,omitempty"`
	Balancer string `json:"balancer,omitempty"`

	// Query is the urlscan form of the boolean key expression a query job
	// evaluates. Required for KindQuery, ignored otherwise.
	Query string `json:"query,omitempty"`
}

// Validate reports whether the spec describes a runnable job.
func (s JobSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidSpec)
	}
	if len(s.Inputs) == 0 {
		return fmt.Errorf("%w: no inputs", ErrInvalidSpec)
	}

	switch s.Kind {
	case KindIndex:
		if s.NrIChunks < 0 {
			return fmt.Errorf("%w: negative nr_ichunks", ErrInvalidSpec)
		}
	case KindKeys, KindValues:
	case KindQuery:
		if s.Query == "" {
			return fmt.Errorf("%w: query job without query", ErrInvalidSpec)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSpec, s.Kind)
	}

	return nil
}

// JobResults is the answer to a status poll: the job's current status and,
// once ready, the locations of its outputs in enumeration order.
type JobResults struct {
	Status    JobStatus `json:"status"`
	Locations []string  `json:"locations,omitempty"`
}
