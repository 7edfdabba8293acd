// Package store implements the content-addressed blob store: a mapping from
// SHA-1 digest to byte blob, plus per-blob metadata. See spec.md §4.1.
package store

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/rsalesc/robox.io-sub000/pkg/digest"
	"go.uber.org/zap"
)

// ErrNotFound is returned by Get, Size and Describe when the digest is
// absent from the store.
var ErrNotFound = errors.New("store: digest not found")

// Entry describes one blob in a listing.
type Entry struct {
	Digest      digest.Digest
	Description string
}

// Store is the key/value interface over hex digests described in spec.md
// §4.1. Implementations must make Put atomic: content is written to a temp
// file and only becomes visible to Get/Exists after a rename.
type Store interface {
	// Get opens the blob for reading, or returns ErrNotFound.
	Get(d digest.Digest) (io.ReadCloser, error)
	// Put streams r to the store, computing the digest as it writes, and
	// returns the resulting digest. Put is idempotent: a second Put of
	// identical content is a cheap no-op by the content-addressing
	// assumption.
	Put(r io.Reader, description string) (digest.Digest, error)
	Exists(d digest.Digest) bool
	Size(d digest.Digest) (int64, error)
	Describe(d digest.Digest) (string, error)
	Delete(d digest.Digest) error
	List() ([]Entry, error)
	// PathForSymlink returns a stable filesystem path for the digest iff
	// the backing store is filesystem-backed, so sandboxes can install
	// executables via symlink instead of copying them. Returns "", false
	// when the store has no addressable filesystem path.
	PathForSymlink(d digest.Digest) (string, bool)
}

// descriptions are kept in a sidecar file next to each blob so that List()
// and Describe() survive process restarts without a separate database.
func descPath(path string) string {
	return path + ".desc"
}

// FilesystemStore persists blobs as files named by their digest under root.
type FilesystemStore struct {
	root string
	log  *zap.Logger
}

// NewFilesystemStore creates root (and parents) if needed.
func NewFilesystemStore(root string, log *zap.Logger) (*FilesystemStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &FilesystemStore{root: root, log: log}, nil
}

func (s *FilesystemStore) path(d digest.Digest) string {
	return filepath.Join(s.root, string(d))
}

func (s *FilesystemStore) Get(d digest.Digest) (io.ReadCloser, error) {
	f, err := os.Open(s.path(d))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

func (s *FilesystemStore) Put(r io.Reader, description string) (digest.Digest, error) {
	tmp, err := os.CreateTemp(s.root, ".put-*")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	// If we return before the rename, clean up the temp file.
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	d, err := digest.Of(io.TeeReader(r, tmp))
	if err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	final := s.path(d)
	if _, statErr := os.Stat(final); statErr == nil {
		// An existing digest means identical content by hash assumption;
		// discard the temp file we just wrote.
		s.log.Debug("store: put already present", zap.String("digest", string(d)))
		return d, nil
	}

	if err := os.Rename(tmpPath, final); err != nil {
		return "", err
	}
	committed = true

	if description != "" {
		_ = os.WriteFile(descPath(final), []byte(description), 0o644)
	}

	return d, nil
}

func (s *FilesystemStore) Exists(d digest.Digest) bool {
	_, err := os.Stat(s.path(d))
	return err == nil
}

func (s *FilesystemStore) Size(d digest.Digest) (int64, error) {
	info, err := os.Stat(s.path(d))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return info.Size(), nil
}

func (s *FilesystemStore) Describe(d digest.Digest) (string, error) {
	if !s.Exists(d) {
		return "", ErrNotFound
	}
	b, err := os.ReadFile(descPath(s.path(d)))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return string(b), nil
}

func (s *FilesystemStore) Delete(d digest.Digest) error {
	if err := os.Remove(s.path(d)); err != nil && !os.IsNotExist(err) {
		return err
	}
	_ = os.Remove(descPath(s.path(d)))
	return nil
}

func (s *FilesystemStore) List() ([]Entry, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if filepath.Ext(name) == ".desc" {
			continue
		}
		desc, _ := s.Describe(digest.Digest(name))
		out = append(out, Entry{Digest: digest.Digest(name), Description: desc})
	}
	return out, nil
}

func (s *FilesystemStore) PathForSymlink(d digest.Digest) (string, bool) {
	if !s.Exists(d) {
		return "", false
	}
	return s.path(d), true
}

// NullStore is always empty: it drops every Put and fails every Get. It is
// used in tests and short-lived contexts where only the FileCacher's local
// staging area needs to hold content.
type NullStore struct{}

func (NullStore) Get(digest.Digest) (io.ReadCloser, error) { return nil, ErrNotFound }

func (NullStore) Put(r io.Reader, _ string) (digest.Digest, error) {
	d, err := digest.Of(r)
	if err != nil {
		return "", err
	}
	return d, nil
}

func (NullStore) Exists(digest.Digest) bool                  { return false }
func (NullStore) Size(digest.Digest) (int64, error)           { return 0, ErrNotFound }
func (NullStore) Describe(digest.Digest) (string, error)      { return "", ErrNotFound }
func (NullStore) Delete(digest.Digest) error                  { return nil }
func (NullStore) List() ([]Entry, error)                      { return nil, nil }
func (NullStore) PathForSymlink(digest.Digest) (string, bool) { return "", false }

var (
	_ Store = (*FilesystemStore)(nil)
	_ Store = NullStore{}
)
