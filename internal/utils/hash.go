package utils

import (
	"fmt"
	"hash/fnv"
)

// Hash64 is fnv-1a over parts joined with '|'.
func Hash64(parts ...string) uint64 {
	h := fnv.New64a()
	for i, p := range parts {
		if i > 0 {
			_, _ = h.Write([]byte{'|'})
		}
		_, _ = h.Write([]byte(p))
	}
	return h.Sum64()
}

// HexKey renders Hash64 as 16 hex digits. Used for task dedupe keys and
// model response cache keys.
func HexKey(parts ...string) string {
	return fmt.Sprintf("%016x", Hash64(parts...))
}
