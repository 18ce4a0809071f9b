package chunk

import (
	"encoding/binary"
	"errors"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Builder accumulates key-value pairs and serializes them into a chunk.
// Keys may repeat; values of a key keep their insertion order. The zero
// value is not usable, use NewBuilder.
type Builder struct {
	compression Compression
	byKey       map[string][][]byte
	numEntries  int
	finished    bool
}

// NewBuilder creates a Builder that compresses sections with the given
// algorithm.
func NewBuilder(compression Compression) *Builder {
	return &Builder{
		compression: compression,
		byKey:       make(map[string][][]byte),
	}
}

// Add appends a value under key. The value is copied.
func (b *Builder) Add(key string, value []byte) {
	v := make([]byte, len(value))
	copy(v, value)
	b.byKey[key] = append(b.byKey[key], v)
	b.numEntries++
}

// Len returns the number of entries added so far.
func (b *Builder) Len() int { return b.numEntries }

// Finish serializes the chunk. The Builder must not be reused afterwards.
func (b *Builder) Finish() ([]byte, error) {
	if b.finished {
		return nil, errors.New("chunk: builder already finished")
	}
	b.finished = true

	keys := make([]string, 0, len(b.byKey))
	for k := range b.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var data []byte
	offsets := make(map[string]int, len(keys))
	var scratch [binary.MaxVarintLen64]byte
	for _, k := range keys {
		offsets[k] = len(data)
		for _, v := range b.byKey[k] {
			n := binary.PutUvarint(scratch[:], uint64(len(v)))
			data = append(data, scratch[:n]...)
			data = append(data, v...)
		}
	}

	var dir []byte
	for _, k := range keys {
		n := binary.PutUvarint(scratch[:], uint64(len(k)))
		dir = append(dir, scratch[:n]...)
		dir = append(dir, k...)
		n = binary.PutUvarint(scratch[:], uint64(len(b.byKey[k])))
		dir = append(dir, scratch[:n]...)
		n = binary.PutUvarint(scratch[:], uint64(offsets[k]))
		dir = append(dir, scratch[:n]...)
	}

	storedDir, err := compressBlock(dir, b.compression)
	if err != nil {
		return nil, err
	}
	storedData, err := compressBlock(data, b.compression)
	if err != nil {
		return nil, err
	}

	out := make([]byte, headerSize, headerSize+len(storedDir)+len(storedData))
	copy(out[0:4], magic[:])
	out[4] = formatVersion
	out[5] = byte(b.compression)
	binary.LittleEndian.PutUint32(out[8:], uint32(len(keys)))
	binary.LittleEndian.PutUint64(out[12:], uint64(b.numEntries))
	binary.LittleEndian.PutUint64(out[20:], uint64(len(storedDir)))
	binary.LittleEndian.PutUint64(out[28:], uint64(len(storedData)))
	binary.LittleEndian.PutUint64(out[36:], xxhash.Sum64(storedDir))
	binary.LittleEndian.PutUint64(out[44:], xxhash.Sum64(storedData))

	out = append(out, storedDir...)
	out = append(out, storedData...)
	return out, nil
}
