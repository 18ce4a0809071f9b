package cluster

import (
	"bytes"
	"errors"
	"testing"

	"github.com/learn-decentralized-systems/toytlv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRecord(&buf, []byte("alpha"), []byte("1")))
	require.NoError(t, WriteRecord(&buf, []byte("beta"), []byte{0x00, 0xff, 0x7f}))
	require.NoError(t, WriteRecord(&buf, []byte(""), []byte("empty key")))

	type pair struct{ k, v string }
	var got []pair
	err := ReadRecords(buf.Bytes(), func(key, value []byte) error {
		got = append(got, pair{string(key), string(value)})
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []pair{
		{"alpha", "1"},
		{"beta", string([]byte{0x00, 0xff, 0x7f})},
		{"", "empty key"},
	}, got)
}

func TestAppendRecordMatchesWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRecord(&buf, []byte("k"), []byte("v")))

	appended := AppendRecord(nil, []byte("k"), []byte("v"))
	assert.Equal(t, buf.Bytes(), appended)
}

func TestReadRecordsEmpty(t *testing.T) {
	err := ReadRecords(nil, func(key, value []byte) error {
		t.Fatal("callback on empty input")
		return nil
	})
	assert.NoError(t, err)
}

func TestReadRecordsMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "truncated", data: AppendRecord(nil, []byte("k"), []byte("v"))[:3]},
		{name: "wrong outer type", data: toytlv.Record('X', []byte("body"))},
		{name: "missing value field", data: toytlv.Record('P', toytlv.Record('K', []byte("k")))},
		{
			name: "trailing bytes in pair",
			data: toytlv.Record('P',
				toytlv.Record('K', []byte("k")),
				toytlv.Record('V', []byte("v")),
				toytlv.Record('Z', []byte("junk"))),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ReadRecords(tt.data, func(key, value []byte) error { return nil })
			assert.ErrorIs(t, err, ErrBadRecord)
		})
	}
}

func TestReadRecordsCallbackError(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRecord(&buf, []byte("a"), []byte("1")))
	require.NoError(t, WriteRecord(&buf, []byte("b"), []byte("2")))

	boom := errors.New("boom")
	seen := 0
	err := ReadRecords(buf.Bytes(), func(key, value []byte) error {
		seen++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, seen)
}
