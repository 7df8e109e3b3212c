package badger

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/poiesic/cinevec/core"
	"github.com/poiesic/cinevec/storage"
)

// Key prefixes for different data types
const (
	collectionPrefix = "col"
	pointPrefix      = "pt"
)

// validateCollectionName rejects names that would break key parsing.
func validateCollectionName(name string) error {
	if name == "" || strings.ContainsAny(name, ":/\\") {
		return fmt.Errorf("%w: invalid collection name %q", storage.ErrInvalidQuery, name)
	}
	return nil
}

// makeCollectionKey generates the key holding a collection's schema.
func makeCollectionKey(collection string) []byte {
	return []byte(collectionPrefix + ":" + collection)
}

// makePointPrefix generates the prefix shared by every point of a collection.
// Format: prefix:collection:
func makePointPrefix(collection string) []byte {
	return []byte(pointPrefix + ":" + collection + ":")
}

// makePointKey generates a key for a point by ID.
// Format: prefix:collection:id
func makePointKey(collection string, id core.PointID) []byte {
	prefix := makePointPrefix(collection)
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	// Write in BigEndian order so lexicographic sort matches ID order
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// pointIDFromKey extracts the point ID from a point key.
func pointIDFromKey(key []byte) core.PointID {
	if len(key) < 8 {
		return 0
	}
	return core.PointID(binary.BigEndian.Uint64(key[len(key)-8:]))
}
