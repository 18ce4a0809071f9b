package local

import (
	"bytes"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/hupe1980/dexgo/cluster"
)

// Parser feeds the records of one raw input blob into emit.
type Parser func(data []byte, emit func(key string, value []byte) error) error

// Demuxer picks which of n chunks an indexed record lands in.
type Demuxer func(key string, n int) int

// Pipeline stage names accepted in a JobSpec. Empty selects the default.
const (
	ParserLines   = "lines"
	ParserRecords = "records"
	DemuxerHash   = "hash"
)

func parserByName(name string) (Parser, error) {
	switch name {
	case "", ParserLines:
		return parseLines, nil
	case ParserRecords:
		return parseRecords, nil
	default:
		return nil, fmt.Errorf("unknown parser %q", name)
	}
}

func demuxerByName(name string) (Demuxer, error) {
	switch name {
	case "", DemuxerHash:
		return demuxHash, nil
	default:
		return nil, fmt.Errorf("unknown demuxer %q", name)
	}
}

// checkBalancer validates the balancer name. Balancing spreads chunks over
// nodes, which an in-process runner has nothing to do for; the field is
// carried for wire compatibility with remote backends.
func checkBalancer(name string) error {
	switch name {
	case "", "default":
		return nil
	default:
		return fmt.Errorf("unknown balancer %q", name)
	}
}

// parseLines reads one record per line: the key runs up to the first tab,
// the rest is the value. A line without a tab is a key with an empty value.
// Blank lines are skipped.
func parseLines(data []byte, emit func(key string, value []byte) error) error {
	for len(data) > 0 {
		line := data
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			line, data = data[:i], data[i+1:]
		} else {
			data = nil
		}
		line = bytes.TrimSuffix(line, []byte{'\r'})
		if len(line) == 0 {
			continue
		}

		key, value, _ := bytes.Cut(line, []byte{'\t'})
		if err := emit(string(key), value); err != nil {
			return err
		}
	}
	return nil
}

// parseRecords reads TLV pair records, the same framing job results use.
func parseRecords(data []byte, emit func(key string, value []byte) error) error {
	return cluster.ReadRecords(data, func(key, value []byte) error {
		return emit(string(key), value)
	})
}

func demuxHash(key string, n int) int {
	return int(xxhash.Sum64String(key) % uint64(n))
}
