package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dexgo"
	"github.com/hupe1980/dexgo/artifact"
	"github.com/hupe1980/dexgo/blobstore"
	"github.com/hupe1980/dexgo/cluster"
	"github.com/hupe1980/dexgo/cluster/local"
)

// scriptedClient answers every poll with a fixed result. Submissions echo
// the requested name back after validation.
type scriptedClient struct {
	res cluster.JobResults
	err error
}

func (c *scriptedClient) Submit(_ context.Context, spec cluster.JobSpec) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	if err := spec.Validate(); err != nil {
		return "", err
	}
	return spec.Name, nil
}

func (c *scriptedClient) Results(context.Context, string) (cluster.JobResults, error) {
	return c.res, nil
}

func (c *scriptedClient) Expand(_ context.Context, location string) ([]string, error) {
	return []string{location}, nil
}

func (c *scriptedClient) Fetch(context.Context, string) (io.ReadCloser, error) {
	return nil, os.ErrNotExist
}

func (c *scriptedClient) Clean(context.Context, string) error { return nil }
func (c *scriptedClient) Purge(context.Context, string) error { return nil }

func newTestServer(t *testing.T, client cluster.Client) *httptest.Server {
	t.Helper()

	store, err := artifact.NewStore(nil, t.TempDir(), nil)
	require.NoError(t, err)

	d, err := dexgo.New(store, client, dexgo.WithPollInterval(time.Millisecond))
	require.NoError(t, err)

	h := NewHandler(d, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func doRequest(t *testing.T, method, url, body string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func errorMessage(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	decodeBody(t, resp, &body)
	return body.Error.Message
}

func TestIndexLifecycleOverHTTP(t *testing.T) {
	ctx := context.Background()

	blobs := blobstore.NewMemoryStore()
	require.NoError(t, blobs.Put(ctx, "data/pets.tsv", []byte("cat\tblack\ndog\tbrown\ncat\twhite\nfish\tgold\n")))

	runner, err := local.New(blobs)
	require.NoError(t, err)
	t.Cleanup(func() { _ = runner.Close() })

	ts := newTestServer(t, runner)

	// Submit.
	resp := doRequest(t, http.MethodPost, ts.URL+"/indices", `{"input":["data/pets.tsv"],"nr_ichunks":2}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var submitted struct {
		Status string `json:"status"`
		Name   string `json:"name"`
	}
	decodeBody(t, resp, &submitted)
	assert.Equal(t, "accepted", submitted.Status)
	require.NotEmpty(t, submitted.Name)
	name := submitted.Name

	// Poll until the artifact materializes. While the job runs the API
	// answers 503 with a retry hint.
	deadline := time.Now().Add(10 * time.Second)
	var ix struct {
		Name    string   `json:"name"`
		IChunks []string `json:"ichunks"`
	}
	for {
		resp = doRequest(t, http.MethodGet, ts.URL+"/indices/"+name, "")
		if resp.StatusCode == http.StatusOK {
			decodeBody(t, resp, &ix)
			break
		}
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "100", resp.Header.Get("Retry-After"))
		resp.Body.Close()
		require.True(t, time.Now().Before(deadline), "index never became ready")
		time.Sleep(2 * time.Millisecond)
	}
	assert.Equal(t, name, ix.Name)
	assert.Len(t, ix.IChunks, 2)

	// Keys.
	resp = doRequest(t, http.MethodGet, ts.URL+"/indices/"+name+"/keys", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var keys []string
	decodeBody(t, resp, &keys)
	sort.Strings(keys)
	assert.Equal(t, []string{"cat", "dog", "fish"}, keys)

	// Query. The '|' operator is pre-escaped for URL transport.
	resp = doRequest(t, http.MethodGet, ts.URL+"/indices/"+name+"/query/cat%7Cfish", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var values []string
	decodeBody(t, resp, &values)
	sort.Strings(values)
	assert.Equal(t, []string{"black", "gold", "white"}, values)

	// Delete.
	resp = doRequest(t, http.MethodDelete, ts.URL+"/indices/"+name, "")
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, ts.URL+"/indices/"+name, "")
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, ts.URL+"/indices", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listing struct {
		Indices []string `json:"indices"`
	}
	decodeBody(t, resp, &listing)
	assert.Empty(t, listing.Indices)
}

func TestGetIndexStates(t *testing.T) {
	jobName := "dexgo:index@cafe1234"

	t.Run("active", func(t *testing.T) {
		ts := newTestServer(t, &scriptedClient{res: cluster.JobResults{Status: cluster.StatusActive}})

		resp := doRequest(t, http.MethodGet, ts.URL+"/indices/"+jobName, "")
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "100", resp.Header.Get("Retry-After"))
		assert.Contains(t, errorMessage(t, resp), "not ready")
	})

	t.Run("dead", func(t *testing.T) {
		ts := newTestServer(t, &scriptedClient{res: cluster.JobResults{Status: cluster.StatusDead}})

		resp := doRequest(t, http.MethodGet, ts.URL+"/indices/"+jobName, "")
		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, "Indexing failed.", errorMessage(t, resp))
	})

	t.Run("unknown", func(t *testing.T) {
		ts := newTestServer(t, &scriptedClient{})

		resp := doRequest(t, http.MethodGet, ts.URL+"/indices/nonesuch", "")
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("keys on unknown", func(t *testing.T) {
		ts := newTestServer(t, &scriptedClient{})

		resp := doRequest(t, http.MethodGet, ts.URL+"/indices/nonesuch/keys", "")
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
		resp.Body.Close()
	})
}

func TestReplaceAndList(t *testing.T) {
	ts := newTestServer(t, &scriptedClient{})

	resp := doRequest(t, http.MethodPut, ts.URL+"/indices/pets", `{"ichunks":["chunks/pets-00000"]}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = doRequest(t, http.MethodGet, ts.URL+"/indices", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listing struct {
		Indices []string `json:"indices"`
	}
	decodeBody(t, resp, &listing)
	assert.Equal(t, []string{"pets"}, listing.Indices)

	resp = doRequest(t, http.MethodGet, ts.URL+"/indices/pets", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ix struct {
		IChunks []string `json:"ichunks"`
	}
	decodeBody(t, resp, &ix)
	assert.Equal(t, []string{"chunks/pets-00000"}, ix.IChunks)
}

func TestReplaceInvalidName(t *testing.T) {
	ts := newTestServer(t, &scriptedClient{})

	resp := doRequest(t, http.MethodPut, ts.URL+"/indices/.hidden", `{"ichunks":["chunks/0"]}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestSubmitErrors(t *testing.T) {
	t.Run("malformed body", func(t *testing.T) {
		ts := newTestServer(t, &scriptedClient{})

		resp := doRequest(t, http.MethodPost, ts.URL+"/indices", "not json")
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("invalid dataset", func(t *testing.T) {
		ts := newTestServer(t, &scriptedClient{})

		resp := doRequest(t, http.MethodPost, ts.URL+"/indices", `{"input":[]}`)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("cluster unreachable", func(t *testing.T) {
		ts := newTestServer(t, &scriptedClient{err: io.ErrUnexpectedEOF})

		resp := doRequest(t, http.MethodPost, ts.URL+"/indices", `{"input":["data/a"]}`)
		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		resp.Body.Close()
	})
}

func TestQueryBadExpression(t *testing.T) {
	ts := newTestServer(t, &scriptedClient{})

	resp := doRequest(t, http.MethodGet, ts.URL+"/indices/pets/query/a%7C%7Cb", "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = doRequest(t, http.MethodGet, ts.URL+"/indices/pets/query/", "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestDeleteNotFound(t *testing.T) {
	ts := newTestServer(t, &scriptedClient{})

	resp := doRequest(t, http.MethodDelete, ts.URL+"/indices/nonesuch", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}
