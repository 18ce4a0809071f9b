package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hupe1980/dexgo/codec"
)

var (
	HelpSubmit = errors.New("submit [-n N] data/pets.tsv [data/more.tsv ...]")
	HelpStatus = errors.New("status <name>")
	HelpWait   = errors.New("wait <name>")
	HelpGet    = errors.New("get <name>")
	HelpPut    = errors.New("put <name> <ichunk> [ichunk ...]")
	HelpRemove = errors.New("rm <name>")
	HelpKeys   = errors.New("keys <name>")
	HelpValues = errors.New("values <name>")
	HelpQuery  = errors.New("query <name> <expr>")
)

func (repl *REPL) CommandList(args []string) error {
	names, err := repl.api.list()
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

func (repl *REPL) CommandSubmit(args []string) error {
	n := 0
	if len(args) >= 2 && args[0] == "-n" {
		v, err := strconv.Atoi(args[1])
		if err != nil || v < 1 {
			return HelpSubmit
		}
		n = v
		args = args[2:]
	}
	if len(args) == 0 {
		return HelpSubmit
	}

	name, err := repl.api.submit(args, n)
	if err != nil {
		return err
	}
	fmt.Printf("accepted %s\n", name)
	return nil
}

func (repl *REPL) CommandStatus(args []string) error {
	if len(args) != 1 {
		return HelpStatus
	}
	st, err := repl.api.status(args[0])
	if err != nil {
		return err
	}
	fmt.Println(st)
	return nil
}

func (repl *REPL) CommandWait(args []string) error {
	if len(args) != 1 {
		return HelpWait
	}
	for {
		st, err := repl.api.status(args[0])
		if err != nil {
			return err
		}
		if st != "active" {
			fmt.Println(st)
			return nil
		}
		time.Sleep(2 * time.Second)
	}
}

func (repl *REPL) CommandGet(args []string) error {
	if len(args) != 1 {
		return HelpGet
	}
	ix, err := repl.api.get(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("%s built %s\n", ix.Name, ix.BuiltAt.Format(time.RFC3339))
	for _, c := range ix.IChunks {
		fmt.Printf("  %s\n", c)
	}
	return nil
}

func (repl *REPL) CommandPut(args []string) error {
	if len(args) < 2 {
		return HelpPut
	}
	if err := repl.api.put(args[0], args[1:]); err != nil {
		return err
	}
	fmt.Printf("created %s\n", args[0])
	return nil
}

func (repl *REPL) CommandRemove(args []string) error {
	if len(args) != 1 {
		return HelpRemove
	}
	if err := repl.api.remove(args[0]); err != nil {
		return err
	}
	fmt.Printf("deleted %s\n", args[0])
	return nil
}

func (repl *REPL) CommandKeys(args []string) error {
	if len(args) != 1 {
		return HelpKeys
	}
	return repl.printStrings(repl.api.extract(args[0], "keys"))
}

func (repl *REPL) CommandValues(args []string) error {
	if len(args) != 1 {
		return HelpValues
	}
	return repl.printStrings(repl.api.extract(args[0], "values"))
}

func (repl *REPL) CommandQuery(args []string) error {
	if len(args) != 2 {
		return HelpQuery
	}
	return repl.printStrings(repl.api.query(args[0], args[1]))
}

func (repl *REPL) printStrings(values []string, err error) error {
	if err != nil {
		return err
	}
	for _, v := range values {
		fmt.Println(v)
	}
	return nil
}

// apiClient is a minimal client for the dexgod HTTP API.
type apiClient struct {
	base  string
	httpc *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{base: base, httpc: &http.Client{Timeout: 5 * time.Minute}}
}

// apiError carries a non-2xx response. Message is the server's error text.
type apiError struct {
	Code    int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Code, http.StatusText(e.Code), e.Message)
}

func (c *apiClient) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := codec.Default.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		message := ""
		if err := codec.Default.Unmarshal(data, &envelope); err == nil {
			message = envelope.Error.Message
		}
		return &apiError{Code: resp.StatusCode, Message: message}
	}
	if out != nil && len(data) > 0 {
		return codec.Default.Unmarshal(data, out)
	}
	return nil
}

func (c *apiClient) list() ([]string, error) {
	var resp struct {
		Indices []string `json:"indices"`
	}
	if err := c.do(http.MethodGet, "/indices", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Indices, nil
}

func (c *apiClient) submit(inputs []string, nrIChunks int) (string, error) {
	body := struct {
		Input     []string `json:"input"`
		NrIChunks int      `json:"nr_ichunks,omitempty"`
	}{Input: inputs, NrIChunks: nrIChunks}

	var resp struct {
		Name string `json:"name"`
	}
	if err := c.do(http.MethodPost, "/indices", body, &resp); err != nil {
		return "", err
	}
	return resp.Name, nil
}

// status maps the lifecycle response codes back to the status vocabulary.
func (c *apiClient) status(name string) (string, error) {
	err := c.do(http.MethodGet, "/indices/"+url.PathEscape(name), nil, nil)
	if err == nil {
		return "ready", nil
	}

	var ae *apiError
	if !errors.As(err, &ae) {
		return "", err
	}
	switch {
	case ae.Code == http.StatusServiceUnavailable:
		return "active", nil
	case ae.Code == http.StatusNotFound:
		return "unknown job", nil
	case ae.Code == http.StatusInternalServerError && ae.Message == "Indexing failed.":
		return "dead", nil
	}
	return "", err
}

type indexDoc struct {
	Name    string    `json:"name"`
	BuiltAt time.Time `json:"built_at"`
	IChunks []string  `json:"ichunks"`
}

func (c *apiClient) get(name string) (*indexDoc, error) {
	var ix indexDoc
	if err := c.do(http.MethodGet, "/indices/"+url.PathEscape(name), nil, &ix); err != nil {
		return nil, err
	}
	return &ix, nil
}

func (c *apiClient) put(name string, ichunks []string) error {
	body := struct {
		IChunks []string `json:"ichunks"`
	}{IChunks: ichunks}
	return c.do(http.MethodPut, "/indices/"+url.PathEscape(name), body, nil)
}

func (c *apiClient) remove(name string) error {
	return c.do(http.MethodDelete, "/indices/"+url.PathEscape(name), nil, nil)
}

func (c *apiClient) extract(name, kind string) ([]string, error) {
	var values []string
	if err := c.do(http.MethodGet, "/indices/"+url.PathEscape(name)+"/"+kind, nil, &values); err != nil {
		return nil, err
	}
	return values, nil
}

// query passes the expression through unescaped: '/' and '|' are operators
// and must reach the server as path structure, not as literals.
func (c *apiClient) query(name, expr string) ([]string, error) {
	var values []string
	if err := c.do(http.MethodGet, "/indices/"+url.PathEscape(name)+"/query/"+expr, nil, &values); err != nil {
		return nil, err
	}
	return values, nil
}
