// Package artifact persists index artifacts: small documents naming the
// ordered chunk locations that constitute a materialized index.
//
// The store keeps one file per index name in a single flat directory. Writes
// always go to a uniquely named temp file in the same directory followed by
// an atomic rename over the final path, so a reader never observes a
// partially written artifact and a crash mid-write leaves the previous
// artifact (or none) intact. Concurrent writers are safe without locking;
// whichever rename lands last wins.
package artifact
