package cluster

import "fmt"

// JobStatus is the cluster's view of a job.
type JobStatus int

const (
	// StatusUnknown means the cluster has no job under the name.
	StatusUnknown JobStatus = iota
	// StatusActive means the job is still running.
	StatusActive
	// StatusReady means the job finished and its results are available.
	StatusReady
	// StatusDead means the job failed.
	StatusDead
)

// statusNames holds the wire vocabulary, shared with the HTTP API.
var statusNames = map[JobStatus]string{
	StatusUnknown: "unknown job",
	StatusActive:  "active",
	StatusReady:   "ready",
	StatusDead:    "dead",
}

func (s JobStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("JobStatus(%d)", int(s))
}

// Terminal reports whether the status can still change. Only an active job
// is worth polling again.
func (s JobStatus) Terminal() bool {
	return s != StatusActive
}

// ParseStatus converts the wire form back into a JobStatus.
func ParseStatus(name string) (JobStatus, error) {
	for s, n := range statusNames {
		if n == name {
			return s, nil
		}
	}
	return StatusUnknown, fmt.Errorf("unknown job status %q", name)
}

// MarshalText implements encoding.TextMarshaler so JobStatus round-trips
// through JSON as its wire name.
func (s JobStatus) MarshalText() ([]byte, error) {
	name, ok := statusNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown job status %d", int(s))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *JobStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
