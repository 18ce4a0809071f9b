package cluster

import (
	"errors"
	"fmt"
	"io"

	"github.com/learn-decentralized-systems/toytlv"
)

// Job outputs are streams of TLV records: one 'P' record per key/value pair,
// whose body is a 'K' record followed by a 'V' record. The framing is
// self-delimiting, so result blobs concatenate without separators.

// ErrBadRecord is wrapped by all result decoding failures.
var ErrBadRecord = errors.New("malformed result record")

// AppendRecord appends one key/value pair record to buf.
func AppendRecord(buf, key, value []byte) []byte {
	return toytlv.Append(buf, 'P', toytlv.Record('K', key), toytlv.Record('V', value))
}

// WriteRecord writes one key/value pair record to w.
func WriteRecord(w io.Writer, key, value []byte) error {
	_, err := w.Write(toytlv.Record('P', toytlv.Record('K', key), toytlv.Record('V', value)))
	return err
}

// ReadRecords decodes every pair record in data, invoking fn for each. The
// byte slices passed to fn alias data and are only valid during the call.
// Decoding stops at the first error, including an error returned by fn.
func ReadRecords(data []byte, fn func(key, value []byte) error) error {
	rest := data
	for len(rest) > 0 {
		lit, body, tail, err := toytlv.TakeAnyWary(rest)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadRecord, err)
		}
		if lit != 'P' {
			return fmt.Errorf("%w: unexpected record type %q", ErrBadRecord, lit)
		}
		rest = tail

		key, vrest, err := toytlv.TakeWary('K', body)
		if err != nil {
			return fmt.Errorf("%w: missing key field: %v", ErrBadRecord, err)
		}
		value, prest, err := toytlv.TakeWary('V', vrest)
		if err != nil {
			return fmt.Errorf("%w: missing value field: %v", ErrBadRecord, err)
		}
		if len(prest) != 0 {
			return fmt.Errorf("%w: %d trailing bytes in pair", ErrBadRecord, len(prest))
		}

		if err := fn(key, value); err != nil {
			return err
		}
	}
	return nil
}
