// Package chunk implements the immutable key-value chunk files an index is
// built from.
//
// A chunk holds a sorted multimap from string keys to byte-string values. It
// is written once by a [Builder], usually as the output of an indexing job,
// and read many times by query jobs. Chunks are self-describing and verified:
// both sections carry xxhash64 checksums, and sections may be LZ4 or ZSTD
// compressed.
//
// # File format
//
//	offset  0: magic "DXC1"
//	offset  4: format version (uint8, currently 1)
//	offset  5: compression (uint8, see Compression)
//	offset  6: reserved (uint16, zero)
//	offset  8: number of distinct keys (uint32)
//	offset 12: number of entries (uint64)
//	offset 20: stored directory section length (uint64)
//	offset 28: stored data section length (uint64)
//	offset 36: xxhash64 of stored directory section
//	offset 44: xxhash64 of stored data section
//	offset 52: directory section, then data section
//
// The directory lists keys in sorted order, each with its value count and the
// offset of its first value in the uncompressed data section. The data
// section concatenates length-prefixed values in key order.
package chunk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cespare/xxhash/v2"

	"github.com/hupe1980/dexgo/internal/mmap"
	"github.com/hupe1980/dexgo/query"
)

var (
	// ErrBadMagic is returned when the file does not start with the chunk magic.
	ErrBadMagic = errors.New("chunk: bad magic")
	// ErrBadVersion is returned for unsupported format versions.
	ErrBadVersion = errors.New("chunk: unsupported format version")
	// ErrChecksum is returned when a section fails checksum verification.
	ErrChecksum = errors.New("chunk: checksum mismatch")
	// ErrCorrupt is returned when the file structure is inconsistent.
	ErrCorrupt = errors.New("chunk: corrupt file")
)

var magic = [4]byte{'D', 'X', 'C', '1'}

const (
	formatVersion = 1
	headerSize    = 52
)

type dirEntry struct {
	key     string
	nvals   int
	dataOff int
}

// Chunk is a loaded, immutable key-value chunk.
// It is safe for concurrent reads. Byte slices returned by reads alias the
// chunk's backing memory and remain valid only until Close.
type Chunk struct {
	entries     []dirEntry
	data        []byte
	numEntries  int
	compression Compression

	mapping *mmap.Mapping // non-nil when opened from a local file
}

// Load parses a chunk from bytes. The returned Chunk may retain buf.
func Load(buf []byte) (*Chunk, error) {
	return load(buf, nil)
}

// Open maps the chunk file at path and parses it.
// Close releases the mapping.
func Open(path string) (*Chunk, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	_ = m.Advise(mmap.AccessSequential)

	c, err := load(m.Bytes(), m)
	if err != nil {
		m.Close()
		return nil, err
	}
	return c, nil
}

func load(buf []byte, m *mmap.Mapping) (*Chunk, error) {
	if len(buf) < headerSize {
		return nil, ErrCorrupt
	}
	if [4]byte(buf[0:4]) != magic {
		return nil, ErrBadMagic
	}
	if buf[4] != formatVersion {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, buf[4])
	}

	compression := Compression(buf[5])
	numKeys := binary.LittleEndian.Uint32(buf[8:])
	numEntries := binary.LittleEndian.Uint64(buf[12:])
	dirLen := binary.LittleEndian.Uint64(buf[20:])
	dataLen := binary.LittleEndian.Uint64(buf[28:])
	dirHash := binary.LittleEndian.Uint64(buf[36:])
	dataHash := binary.LittleEndian.Uint64(buf[44:])

	if uint64(len(buf)) != headerSize+dirLen+dataLen {
		return nil, fmt.Errorf("%w: size %d, want %d", ErrCorrupt, len(buf), headerSize+dirLen+dataLen)
	}

	storedDir := buf[headerSize : headerSize+dirLen]
	storedData := buf[headerSize+dirLen:]

	if xxhash.Sum64(storedDir) != dirHash {
		return nil, fmt.Errorf("%w: directory section", ErrChecksum)
	}
	if xxhash.Sum64(storedData) != dataHash {
		return nil, fmt.Errorf("%w: data section", ErrChecksum)
	}

	dir, err := decompressBlock(storedDir, compression)
	if err != nil {
		return nil, err
	}
	data, err := decompressBlock(storedData, compression)
	if err != nil {
		return nil, err
	}

	entries, err := parseDirectory(dir, int(numKeys), len(data))
	if err != nil {
		return nil, err
	}

	return &Chunk{
		entries:     entries,
		data:        data,
		numEntries:  int(numEntries),
		compression: compression,
		mapping:     m,
	}, nil
}

func parseDirectory(dir []byte, numKeys, dataLen int) ([]dirEntry, error) {
	// A directory entry takes at least three bytes, which bounds numKeys
	// before anything is allocated for it.
	if uint64(numKeys)*3 > uint64(len(dir)) {
		return nil, fmt.Errorf("%w: directory too small for %d keys", ErrCorrupt, numKeys)
	}

	entries := make([]dirEntry, 0, numKeys)
	off := 0
	prev := ""
	for i := 0; i < numKeys; i++ {
		klen, n := binary.Uvarint(dir[off:])
		if n <= 0 {
			return nil, fmt.Errorf("%w: directory entry %d", ErrCorrupt, i)
		}
		off += n
		// Compare lengths in uint64: int conversion of a crafted length
		// can wrap negative and slip past a converted bounds check.
		if klen > uint64(len(dir)-off) {
			return nil, fmt.Errorf("%w: key %d out of bounds", ErrCorrupt, i)
		}
		key := string(dir[off : off+int(klen)])
		off += int(klen)

		// Every value carries at least a length byte, so a count beyond
		// the data section cannot be honest.
		nvals, n := binary.Uvarint(dir[off:])
		if n <= 0 || nvals == 0 || nvals > uint64(dataLen) {
			return nil, fmt.Errorf("%w: value count for key %q", ErrCorrupt, key)
		}
		off += n

		dataOff, n := binary.Uvarint(dir[off:])
		if n <= 0 || dataOff > uint64(dataLen) {
			return nil, fmt.Errorf("%w: data offset for key %q", ErrCorrupt, key)
		}
		off += n

		if i > 0 && key <= prev {
			return nil, fmt.Errorf("%w: keys out of order at %q", ErrCorrupt, key)
		}
		prev = key

		entries = append(entries, dirEntry{key: key, nvals: int(nvals), dataOff: int(dataOff)})
	}
	if off != len(dir) {
		return nil, fmt.Errorf("%w: %d trailing directory bytes", ErrCorrupt, len(dir)-off)
	}
	return entries, nil
}

// Close releases the underlying mapping, if any.
func (c *Chunk) Close() error {
	if c.mapping != nil {
		return c.mapping.Close()
	}
	return nil
}

// Len returns the number of entries (key-value pairs).
func (c *Chunk) Len() int { return c.numEntries }

// NumKeys returns the number of distinct keys.
func (c *Chunk) NumKeys() int { return len(c.entries) }

// Compression returns the compression the chunk was stored with.
func (c *Chunk) Compression() Compression { return c.compression }

func (c *Chunk) find(key string) (int, bool) {
	i := sort.Search(len(c.entries), func(i int) bool {
		return c.entries[i].key >= key
	})
	if i < len(c.entries) && c.entries[i].key == key {
		return i, true
	}
	return 0, false
}

// Has reports whether the chunk contains key.
func (c *Chunk) Has(key string) bool {
	_, ok := c.find(key)
	return ok
}

// Values returns the values stored under key, in insertion order.
func (c *Chunk) Values(key string) ([][]byte, error) {
	i, ok := c.find(key)
	if !ok {
		return nil, nil
	}
	return c.valuesAt(i)
}

func (c *Chunk) valuesAt(i int) ([][]byte, error) {
	e := c.entries[i]
	vals := make([][]byte, 0, e.nvals)
	off := e.dataOff
	for j := 0; j < e.nvals; j++ {
		vlen, n := binary.Uvarint(c.data[off:])
		if n <= 0 || vlen > uint64(len(c.data)-off-n) {
			return nil, fmt.Errorf("%w: value %d of key %q", ErrCorrupt, j, e.key)
		}
		off += n
		end := off + int(vlen)
		vals = append(vals, c.data[off:end:end])
		off = end
	}
	return vals, nil
}

// Keys calls fn for each distinct key in sorted order until fn returns false.
func (c *Chunk) Keys(fn func(key string) bool) {
	for _, e := range c.entries {
		if !fn(e.key) {
			return
		}
	}
}

// Entries calls fn for each key-value pair, keys in sorted order, values in
// insertion order, until fn returns false.
func (c *Chunk) Entries(fn func(key string, value []byte) bool) error {
	for i := range c.entries {
		vals, err := c.valuesAt(i)
		if err != nil {
			return err
		}
		for _, v := range vals {
			if !fn(c.entries[i].key, v) {
				return nil
			}
		}
	}
	return nil
}

// Query returns the values of all entries whose key satisfies q.
func (c *Chunk) Query(q query.Q) ([][]byte, error) {
	var out [][]byte
	err := c.QueryEntries(q, func(_ string, value []byte) bool {
		out = append(out, value)
		return true
	})
	return out, err
}

// QueryEntries calls fn for each key-value pair whose key satisfies q, keys
// in sorted order, until fn returns false.
//
// Clause sets are evaluated over key ordinals with roaring bitmaps: a clause
// becomes the union of its literals' ordinal sets (a negated literal is the
// complement of a singleton), and clauses intersect.
func (c *Chunk) QueryEntries(q query.Q, fn func(key string, value []byte) bool) error {
	if len(c.entries) == 0 {
		return nil
	}

	it := c.matchOrdinals(q).Iterator()
	for it.HasNext() {
		i := int(it.Next())
		vals, err := c.valuesAt(i)
		if err != nil {
			return err
		}
		for _, v := range vals {
			if !fn(c.entries[i].key, v) {
				return nil
			}
		}
	}
	return nil
}

func (c *Chunk) matchOrdinals(q query.Q) *roaring.Bitmap {
	full := roaring.New()
	full.AddRange(0, uint64(len(c.entries)))

	match := full.Clone()
	for _, clause := range q {
		cb := roaring.New()
		for _, lit := range clause {
			i, ok := c.find(lit.Key)
			if lit.Negated {
				nb := full.Clone()
				if ok {
					nb.Remove(uint32(i))
				}
				cb.Or(nb)
			} else if ok {
				cb.Add(uint32(i))
			}
		}
		match.And(cb)
		if match.IsEmpty() {
			break
		}
	}
	return match
}
