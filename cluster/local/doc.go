// Package local runs cluster jobs in-process. It implements cluster.Client
// against a blob store: index jobs parse raw input blobs and distribute
// records over chunk files, extraction jobs (keys, values, query) stream TLV
// pair records from the chunks of an index into result blobs.
//
// The runner keeps a concurrent job table, bounds concurrent executions with
// a weighted semaphore, and caches parsed chunks in an LRU so repeated
// extraction over the same index skips re-decoding.
package local
