// Package remote implements cluster.Client against a master speaking JSON
// over HTTP:
//
//	POST   /jobs              submit a JobSpec, returns {"name": ...}
//	GET    /jobs/{name}       poll status, returns a JobResults document
//	POST   /jobs/{name}/clean forget the job, keep its results
//	DELETE /jobs/{name}       purge the job and its results
//
// Result locations are URLs. dir:// locations name a listing served by a
// node's HTTP port (one location per line); Expand rewrites the scheme and
// fetches it. Relative locations resolve against the master URL.
//
// All calls are paced by a shared rate limiter and bounded by a per-call
// timeout on top of the caller's context.
package remote
