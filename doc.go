// Package dexgo orchestrates named, queryable key-value indices that are
// built by a distributed compute cluster and served from local artifacts.
//
// An index starts life as a cluster indexing job over raw input data. Once
// the job completes, the first status resolution collapses its outputs into
// an ordered chunk list and persists it atomically as a local artifact; from
// then on the artifact is authoritative. Keys, values and boolean key-query
// requests against a ready index run as short-lived cluster jobs over the
// index's chunks; their remote state is purged as soon as the results are
// collected, whether the job succeeded or not.
//
// # Quick Start
//
//	ctx := context.Background()
//
//	store, err := artifact.NewStore(nil, "/var/lib/dexgo/indices", nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	runner, err := local.New(blobstore.NewLocalStore(nil, "/var/lib/dexgo/blobs"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer runner.Close()
//
//	dx, err := dexgo.New(store, runner)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	name, err := dx.Submit(ctx, dexgo.DataSet{
//		Input:     []string{"data/pets.tsv"},
//		NrIChunks: 4,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	if _, err := dx.WaitReady(ctx, name); err != nil {
//		log.Fatal(err)
//	}
//
//	keys, err := dx.Keys(ctx, name)
//
// Against a real cluster master, swap the local runner for a
// cluster/remote.Client; the facade only depends on the cluster.Client
// interface.
//
// # Status Model
//
// An index name resolves to one of four states: unknown (no artifact, no
// job), active (the indexing job is still running), ready (artifact
// persisted, or job completed and materialized on the spot) and dead (the
// indexing job failed). Status is derived on every call, never cached; the
// artifact store always wins over the cluster's answer.
package dexgo
