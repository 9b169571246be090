package image

import (
	"crypto/sha256"
	"encoding/hex"
)

// IDLength is the length of an encoded image id in hex characters.
const IDLength = 32

// NewID derives the image id from its storage path: the first 128 bits of
// SHA-256 over the path, hex encoded. The same path always yields the same id.
func NewID(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:IDLength/2])
}

// StorageKey is the path an id is derived from at ingestion.
func StorageKey(bucket, path string) string {
	if bucket == "" {
		return path
	}
	return bucket + "/" + path
}

// ValidID reports whether id has the shape produced by NewID.
func ValidID(id string) bool {
	if len(id) != IDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
