package depcache

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rsalesc/robox.io-sub000/pkg/artifacts"
	"github.com/rsalesc/robox.io-sub000/pkg/store"
	"go.uber.org/zap"
)

// NoCacheError, when returned from the function passed to Cache.Run,
// signals the step failed and must not be recorded: the block protocol
// stores a fingerprint only on clean exit (spec.md §4.4).
type NoCacheError struct{ Err error }

func (e *NoCacheError) Error() string { return e.Err.Error() }
func (e *NoCacheError) Unwrap() error { return e.Err }

func NoCache(err error) error {
	if err == nil {
		return nil
	}
	return &NoCacheError{Err: err}
}

// Cache is the dependency cache: a persistent Fingerprint store keyed by
// CacheInput.Key(), layered over a content-addressed backing store used to
// verify that produced digests still exist.
type Cache struct {
	db      *DB
	backing store.Store
	log     *zap.Logger
}

func New(db *DB, backing store.Store, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{db: db, backing: backing, log: log}
}

// Result reports whether Run served a cache hit.
type Result struct {
	Cached bool
}

// Run executes the cache-block protocol described in spec.md §4.4 around
// fn: on a hit, it replays recorded digests/logs into the caller's holders
// and skips fn entirely; on a miss (or eviction), it runs fn and, unless fn
// returns a NoCacheError, stores a fresh fingerprint computed from the
// resulting disk/holder state.
func (c *Cache) Run(in CacheInput, fn func() error) (Result, error) {
	if err := in.Artifacts.ValidateProducedBeforeConsumed(); err != nil {
		return Result{}, errors.Wrap(err, "depcache: invalid artifact plan")
	}

	key := in.Key()
	if fp, ok := c.db.Load(key); ok {
		if hit, err := c.tryApply(key, fp, in); err != nil {
			return Result{}, err
		} else if hit {
			return Result{Cached: true}, nil
		}
	}

	err := fn()
	if err == nil {
		if ferr := c.store(key, in); ferr != nil {
			c.log.Warn("depcache: failed to persist fingerprint", zap.Error(ferr))
		}
		return Result{Cached: false}, nil
	}

	var nce *NoCacheError
	if errors.As(err, &nce) {
		return Result{Cached: false}, nce.Err
	}
	return Result{Cached: false}, err
}

// tryApply attempts to replay a stored fingerprint. It returns hit=false
// (without error) whenever the fingerprint no longer matches current disk
// state or a produced digest has vanished from the backing store — both
// cases evict the entry so the caller falls through to a fresh run.
func (c *Cache) tryApply(key string, fp Fingerprint, in CacheInput) (bool, error) {
	curInputs, err := computeInputFingerprints(in.Artifacts)
	if err != nil {
		return false, err
	}
	curOutputs, err := computeOutputFingerprints(in.Artifacts)
	if err != nil {
		return false, err
	}

	if !stringSlicesEqual(curInputs, fp.InputFingerprints) || !stringSlicesEqual(curOutputs, fp.OutputFingerprints) {
		_ = c.db.Evict(key)
		return false, nil
	}

	for _, d := range fp.Digests {
		if !c.backing.Exists(d) {
			_ = c.db.Evict(key)
			return false, nil
		}
	}

	digestIdx := 0
	for _, out := range in.Artifacts.Outputs {
		if out.Sink.Holder == nil {
			continue
		}
		if digestIdx >= len(fp.Digests) {
			_ = c.db.Evict(key)
			return false, nil
		}
		out.Sink.Holder.Set(fp.Digests[digestIdx])
		digestIdx++
	}

	if in.Artifacts.Logs != nil && len(fp.Logs) > 0 {
		in.Artifacts.Logs.Set(fp.Logs[0])
	}

	if err := c.materializeHashedOutputs(in.Artifacts); err != nil {
		return false, err
	}

	return true, nil
}

// materializeHashedOutputs copies cache hits' hash-flagged outputs from the
// backing store to their destination path, restoring the executable bit
// from the flag (Open Question 1, SPEC_FULL.md §9): the bit lives outside
// the cache key for hashed outputs, so it must be reapplied here rather
// than assumed preserved on disk.
func (c *Cache) materializeHashedOutputs(plan artifacts.Plan) error {
	for _, out := range plan.Outputs {
		if !out.Hash || out.Sink.Holder == nil || out.Sink.DestPath == "" {
			continue
		}
		rc, err := c.backing.Get(out.Sink.Holder.Value)
		if err != nil {
			return err
		}
		if err := copyHashedOutput(rc, out.Sink.DestPath, out.Maxlen, out.Executable); err != nil {
			rc.Close()
			return err
		}
		rc.Close()
	}
	return nil
}

func copyHashedOutput(rc io.ReadCloser, dest string, maxlen int, executable bool) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	mode := os.FileMode(0o644)
	if executable {
		mode = 0o755
	}
	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = rc
	if maxlen > 0 {
		r = io.LimitReader(rc, int64(maxlen))
	}
	_, err = io.Copy(f, r)
	return err
}

// store computes a fresh Fingerprint from current holder/disk state and
// persists it, called only after a clean (non-NoCacheError) run.
func (c *Cache) store(key string, in CacheInput) error {
	inputFPs, err := computeInputFingerprints(in.Artifacts)
	if err != nil {
		return err
	}
	outputFPs, err := computeOutputFingerprints(in.Artifacts)
	if err != nil {
		return err
	}

	var fp Fingerprint
	for _, out := range in.Artifacts.Outputs {
		if out.Sink.Holder != nil {
			fp.Digests = append(fp.Digests, out.Sink.Holder.Value)
		}
	}
	fp.InputFingerprints = inputFPs
	fp.OutputFingerprints = outputFPs
	if in.Artifacts.Logs != nil && in.Artifacts.Logs.IsSet() {
		fp.Logs = append(fp.Logs, in.Artifacts.Logs.Value)
	}

	return c.db.Store(key, fp)
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
