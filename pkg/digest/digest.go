// Package digest implements the hashing primitives used to content-address
// blobs throughout the store, cacher and dependency cache.
package digest

import (
	"crypto/sha1"
	"encoding/hex"
	"io"
)

// Digest is an opaque hex string (SHA-1) identifying a byte blob.
type Digest string

// Empty reports whether the digest has not been assigned a value yet.
func (d Digest) Empty() bool {
	return d == ""
}

func (d Digest) String() string {
	return string(d)
}

// Holder is a cell that may be empty at declaration time and is filled by a
// producing step; consumers downstream read it. Every digest has at most one
// producer in a plan; producers must run before consumers.
type Holder struct {
	Value Digest
}

// NewHolder returns an empty, unproduced digest cell.
func NewHolder() *Holder {
	return &Holder{}
}

// Set records the digest produced by a step. It is a programmer error to
// call Set twice on the same holder.
func (h *Holder) Set(d Digest) {
	h.Value = d
}

// Of hashes a reader's content and returns the resulting digest without
// writing it anywhere. Used to fingerprint filesystem inputs/outputs that
// never round-trip through the store.
func Of(r io.Reader) (Digest, error) {
	h := sha1.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return Digest(hex.EncodeToString(h.Sum(nil))), nil
}

// OfBytes hashes an in-memory byte slice.
func OfBytes(b []byte) Digest {
	h := sha1.Sum(b)
	return Digest(hex.EncodeToString(h[:]))
}
