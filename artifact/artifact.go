package artifact

import "time"

// Index describes a materialized index: the ordered list of chunk locations
// that constitute it, plus a small metadata wrapper. An Index is immutable
// once persisted; replacement swaps the whole document.
type Index struct {
	Name    string    `json:"name"`
	BuiltAt time.Time `json:"built_at"`
	IChunks []string  `json:"ichunks"`
}
