package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDoc struct {
	Name   string   `json:"name"`
	Chunks []string `json:"chunks"`
	Count  int      `json:"count"`
}

func TestByName(t *testing.T) {
	for _, name := range []string{"json", "go-json"} {
		c, ok := ByName(name)
		require.True(t, ok, name)
		assert.Equal(t, name, c.Name())
	}

	_, ok := ByName("msgpack")
	assert.False(t, ok)
}

func TestCodecsInterchangeable(t *testing.T) {
	doc := testDoc{
		Name:   "dexgo:index@5f1e",
		Chunks: []string{"disco://host/x/0", "disco://host/x/1"},
		Count:  2,
	}

	std, err := JSON{}.Marshal(doc)
	require.NoError(t, err)

	fast, err := GoJSON{}.Marshal(doc)
	require.NoError(t, err)

	assert.JSONEq(t, string(std), string(fast))

	var out testDoc
	require.NoError(t, GoJSON{}.Unmarshal(std, &out))
	assert.Equal(t, doc, out)

	out = testDoc{}
	require.NoError(t, JSON{}.Unmarshal(fast, &out))
	assert.Equal(t, doc, out)
}

func TestMustMarshal(t *testing.T) {
	b := MustMarshal(nil, map[string]int{"a": 1})
	assert.JSONEq(t, `{"a":1}`, string(b))

	assert.Panics(t, func() {
		MustMarshal(JSON{}, make(chan int))
	})
}
