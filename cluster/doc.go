// Package cluster defines the boundary to the remote execution cluster:
// the job vocabulary (JobSpec, JobStatus, JobResults), the Client interface
// every backend implements, the TLV framing of job result records, and a
// rate-paced Wait helper for polling a job to completion.
//
// Backends live in subpackages: cluster/remote speaks JSON over HTTP to a
// master; cluster/local runs jobs in-process.
package cluster
