package local

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dexgo/blobstore"
	"github.com/hupe1980/dexgo/chunk"
	"github.com/hupe1980/dexgo/cluster"
)

type pair struct{ k, v string }

func newTestRunner(t *testing.T, store blobstore.Store) *Runner {
	t.Helper()

	r, err := New(store, WithMaxWorkers(2), WithChunkCacheSize(8))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	return r
}

// buildIndex submits an index job over the given inputs and returns the
// job name and its expanded chunk locations.
func buildIndex(t *testing.T, r *Runner, nrIChunks int, inputs ...string) (string, []string) {
	t.Helper()
	ctx := context.Background()

	name, err := r.Submit(ctx, cluster.JobSpec{
		Name:      "dexgo:index@test",
		Kind:      cluster.KindIndex,
		Inputs:    inputs,
		NrIChunks: nrIChunks,
	})
	require.NoError(t, err)

	res, err := cluster.Wait(ctx, r, name, time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, cluster.StatusReady, res.Status)
	require.Len(t, res.Locations, 1)
	require.True(t, strings.HasPrefix(res.Locations[0], dirScheme))

	ichunks, err := r.Expand(ctx, res.Locations[0])
	require.NoError(t, err)
	require.Len(t, ichunks, nrIChunks)

	return name, ichunks
}

// collectPairs fetches every result location of a ready job in order and
// decodes the TLV records.
func collectPairs(t *testing.T, r *Runner, name string) []pair {
	t.Helper()
	ctx := context.Background()

	res, err := cluster.Wait(ctx, r, name, time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, cluster.StatusReady, res.Status)

	var pairs []pair
	for _, location := range res.Locations {
		rc, err := r.Fetch(ctx, location)
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())

		require.NoError(t, cluster.ReadRecords(data, func(key, value []byte) error {
			pairs = append(pairs, pair{string(key), string(value)})
			return nil
		}))
	}
	return pairs
}

func submitExtract(t *testing.T, r *Runner, kind cluster.JobKind, ichunks []string, q string) string {
	t.Helper()

	name, err := r.Submit(context.Background(), cluster.JobSpec{
		Name:   "dexgo:" + string(kind) + "@test",
		Kind:   kind,
		Inputs: ichunks,
		Query:  q,
	})
	require.NoError(t, err)
	return name
}

func TestIndexJob(t *testing.T) {
	store := blobstore.NewMemoryStore()
	r := newTestRunner(t, store)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "in/part-0", []byte("apple\tred\nbanana\tyellow\n")))
	require.NoError(t, store.Put(ctx, "in/part-1", []byte("cherry\tdark red\napple\tgreen\n")))

	_, ichunks := buildIndex(t, r, 2, "in/part-0", "in/part-1")

	// Every record lands in exactly one chunk; same key, same chunk.
	byKey := map[string][]string{}
	total := 0
	for _, location := range ichunks {
		blob, err := store.Open(ctx, location)
		require.NoError(t, err)
		data, err := blobstore.ReadAll(blob)
		require.NoError(t, err)
		require.NoError(t, blob.Close())

		c, err := chunk.Load(data)
		require.NoError(t, err)
		require.NoError(t, c.Entries(func(key string, value []byte) bool {
			byKey[key] = append(byKey[key], string(value))
			total++
			return true
		}))
	}

	assert.Equal(t, 4, total)
	assert.Equal(t, []string{"red", "green"}, byKey["apple"], "values keep input order")
	assert.Equal(t, []string{"yellow"}, byKey["banana"])
	assert.Equal(t, []string{"dark red"}, byKey["cherry"])
}

func TestIndexJobRecordsParser(t *testing.T) {
	store := blobstore.NewMemoryStore()
	r := newTestRunner(t, store)
	ctx := context.Background()

	var buf []byte
	buf = cluster.AppendRecord(buf, []byte("k1"), []byte{0x00, 0x01})
	buf = cluster.AppendRecord(buf, []byte("k2"), []byte("plain"))
	require.NoError(t, store.Put(ctx, "in/tlv", buf))

	name, err := r.Submit(ctx, cluster.JobSpec{
		Name:      "dexgo:index@tlv",
		Kind:      cluster.KindIndex,
		Inputs:    []string{"in/tlv"},
		NrIChunks: 1,
		Parser:    ParserRecords,
	})
	require.NoError(t, err)

	res, err := cluster.Wait(ctx, r, name, time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, cluster.StatusReady, res.Status)

	ichunks, err := r.Expand(ctx, res.Locations[0])
	require.NoError(t, err)

	valuesJob := submitExtract(t, r, cluster.KindValues, ichunks, "")
	pairs := collectPairs(t, r, valuesJob)
	assert.ElementsMatch(t, []pair{
		{"k1", string([]byte{0x00, 0x01})},
		{"k2", "plain"},
	}, pairs)
}

func TestKeysJob(t *testing.T) {
	store := blobstore.NewMemoryStore()
	r := newTestRunner(t, store)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "in/part-0", []byte("apple\tred\nbanana\tyellow\ncherry\tdark red\napple\tgreen\n")))
	_, ichunks := buildIndex(t, r, 2, "in/part-0")

	name := submitExtract(t, r, cluster.KindKeys, ichunks, "")
	pairs := collectPairs(t, r, name)

	var keys []string
	for _, p := range pairs {
		assert.Equal(t, p.k, p.v, "keys jobs emit the key as the emission field")
		keys = append(keys, p.v)
	}
	assert.ElementsMatch(t, []string{"apple", "banana", "cherry"}, keys, "distinct keys, no duplicates")
}

func TestValuesJob(t *testing.T) {
	store := blobstore.NewMemoryStore()
	r := newTestRunner(t, store)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "in/part-0", []byte("apple\tred\nbanana\tyellow\napple\tgreen\n")))
	_, ichunks := buildIndex(t, r, 2, "in/part-0")

	name := submitExtract(t, r, cluster.KindValues, ichunks, "")
	pairs := collectPairs(t, r, name)

	var values []string
	for _, p := range pairs {
		values = append(values, p.v)
	}
	assert.ElementsMatch(t, []string{"red", "yellow", "green"}, values)
}

func TestQueryJob(t *testing.T) {
	store := blobstore.NewMemoryStore()
	r := newTestRunner(t, store)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "in/part-0", []byte("apple\tred\nbanana\tyellow\ncherry\tdark red\n")))
	_, ichunks := buildIndex(t, r, 2, "in/part-0")

	tests := []struct {
		q    string
		want []string
	}{
		{q: "apple", want: []string{"red"}},
		{q: "apple|banana", want: []string{"red", "yellow"}},
		{q: "apple/banana", want: nil},
		{q: "~apple", want: []string{"yellow", "dark red"}},
		{q: "durian", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.q, func(t *testing.T) {
			name := submitExtract(t, r, cluster.KindQuery, ichunks, tt.q)
			pairs := collectPairs(t, r, name)

			var values []string
			for _, p := range pairs {
				values = append(values, p.v)
			}
			assert.ElementsMatch(t, tt.want, values)
		})
	}
}

func TestPurgeRemovesOutputs(t *testing.T) {
	store := blobstore.NewMemoryStore()
	r := newTestRunner(t, store)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "in/part-0", []byte("apple\tred\n")))
	_, ichunks := buildIndex(t, r, 1, "in/part-0")

	name := submitExtract(t, r, cluster.KindKeys, ichunks, "")
	collectPairs(t, r, name)

	require.NoError(t, r.Purge(ctx, name))

	res, err := r.Results(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, cluster.StatusUnknown, res.Status)

	leftovers, err := store.List(ctx, r.jobOutPrefix(name)+"/")
	require.NoError(t, err)
	assert.Empty(t, leftovers)

	// Purging again is harmless.
	require.NoError(t, r.Purge(ctx, name))
}

func TestCleanKeepsOutputs(t *testing.T) {
	store := blobstore.NewMemoryStore()
	r := newTestRunner(t, store)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "in/part-0", []byte("apple\tred\n")))
	name, ichunks := buildIndex(t, r, 1, "in/part-0")

	require.NoError(t, r.Clean(ctx, name))

	res, err := r.Results(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, cluster.StatusUnknown, res.Status)

	// The chunks survive and stay readable: they now belong to the index.
	keysJob := submitExtract(t, r, cluster.KindKeys, ichunks, "")
	pairs := collectPairs(t, r, keysJob)
	assert.Equal(t, []pair{{"apple", "apple"}}, pairs)
}

func TestPurgeAfterCleanRemovesChunks(t *testing.T) {
	store := blobstore.NewMemoryStore()
	r := newTestRunner(t, store)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "in/part-0", []byte("apple\tred\n")))
	name, _ := buildIndex(t, r, 1, "in/part-0")

	require.NoError(t, r.Clean(ctx, name))
	require.NoError(t, r.Purge(ctx, name))

	leftovers, err := store.List(ctx, r.jobOutPrefix(name)+"/")
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestSubmitRejectsBadSpecs(t *testing.T) {
	store := blobstore.NewMemoryStore()
	r := newTestRunner(t, store)
	ctx := context.Background()

	tests := []struct {
		name string
		spec cluster.JobSpec
	}{
		{
			name: "unknown parser",
			spec: cluster.JobSpec{Name: "j", Kind: cluster.KindIndex, Inputs: []string{"in"}, Parser: "csv"},
		},
		{
			name: "unknown demuxer",
			spec: cluster.JobSpec{Name: "j", Kind: cluster.KindIndex, Inputs: []string{"in"}, Demuxer: "mod"},
		},
		{
			name: "unknown balancer",
			spec: cluster.JobSpec{Name: "j", Kind: cluster.KindIndex, Inputs: []string{"in"}, Balancer: "spread"},
		},
		{
			name: "malformed query",
			spec: cluster.JobSpec{Name: "j", Kind: cluster.KindQuery, Inputs: []string{"c"}, Query: "a//b"},
		},
		{
			name: "missing inputs",
			spec: cluster.JobSpec{Name: "j", Kind: cluster.KindKeys},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Submit(ctx, tt.spec)
			require.ErrorIs(t, err, cluster.ErrInvalidSpec)

			// Failed submissions leave no job behind.
			res, err := r.Results(ctx, "j")
			require.NoError(t, err)
			assert.Equal(t, cluster.StatusUnknown, res.Status)
		})
	}
}

func TestSubmitDuplicateNameGetsSuffixed(t *testing.T) {
	store := blobstore.NewMemoryStore()
	r := newTestRunner(t, store)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "in/part-0", []byte("apple\tred\n")))
	spec := cluster.JobSpec{Name: "dexgo:index@same", Kind: cluster.KindIndex, Inputs: []string{"in/part-0"}, NrIChunks: 1}

	first, err := r.Submit(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, "dexgo:index@same", first)

	second, err := r.Submit(ctx, spec)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.True(t, strings.HasPrefix(second, "dexgo:index@same@"))

	// Both jobs complete independently.
	for _, name := range []string{first, second} {
		res, err := cluster.Wait(ctx, r, name, time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, cluster.StatusReady, res.Status)
	}
}

func TestJobDiesOnMissingInput(t *testing.T) {
	store := blobstore.NewMemoryStore()
	r := newTestRunner(t, store)
	ctx := context.Background()

	name, err := r.Submit(ctx, cluster.JobSpec{
		Name:      "dexgo:index@missing",
		Kind:      cluster.KindIndex,
		Inputs:    []string{"in/nope"},
		NrIChunks: 1,
	})
	require.NoError(t, err)

	res, err := cluster.Wait(ctx, r, name, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, cluster.StatusDead, res.Status)
	assert.Empty(t, res.Locations)
}

func TestExpandPlainLocation(t *testing.T) {
	store := blobstore.NewMemoryStore()
	r := newTestRunner(t, store)

	locations, err := r.Expand(context.Background(), "some/plain/location")
	require.NoError(t, err)
	assert.Equal(t, []string{"some/plain/location"}, locations)
}

func TestExpandMissingListing(t *testing.T) {
	store := blobstore.NewMemoryStore()
	r := newTestRunner(t, store)

	_, err := r.Expand(context.Background(), dirScheme+"gone/chunks")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestRunnerClosed(t *testing.T) {
	store := blobstore.NewMemoryStore()
	r, err := New(store)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	_, err = r.Submit(context.Background(), cluster.JobSpec{
		Name: "j", Kind: cluster.KindKeys, Inputs: []string{"c"},
	})
	assert.ErrorIs(t, err, ErrClosed)

	// Close is idempotent.
	require.NoError(t, r.Close())
}

func TestResultsUnknownName(t *testing.T) {
	store := blobstore.NewMemoryStore()
	r := newTestRunner(t, store)

	res, err := r.Results(context.Background(), "never-submitted")
	require.NoError(t, err)
	assert.Equal(t, cluster.StatusUnknown, res.Status)
}
