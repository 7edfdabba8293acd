package cmd

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rsalesc/robox.io-sub000/internal/envcfg"
	"github.com/rsalesc/robox.io-sub000/pkg/cacher"
	"github.com/rsalesc/robox.io-sub000/pkg/depcache"
	"github.com/rsalesc/robox.io-sub000/pkg/logging"
	"github.com/rsalesc/robox.io-sub000/pkg/sandbox"
	"github.com/rsalesc/robox.io-sub000/pkg/store"
	"go.uber.org/zap"
)

// app bundles everything a subcommand needs to drive one package directory:
// the loaded environment, a sandbox, the two caching layers, and a logger.
// Every subcommand builds one via newApp and tears it down with Close.
type app struct {
	RuntimeConfig envcfg.RuntimeConfig
	Env           *envcfg.Environment
	Sandbox       sandbox.Sandbox
	Cacher        *cacher.FileCacher
	Cache         *depcache.Cache
	Log           *zap.Logger

	db *depcache.DB
}

// newApp wires the ambient stack shared by every subcommand: runtime config
// from the environment, the per-environment language/limit file, a native
// sandbox rooted under the runtime's box directory (isolate needs root and
// per-platform cgroup/box-id setup this CLI doesn't assume, so native is the
// only sandbox kind constructible without extra privileges), a file cacher
// staging under build/scratch backed by a blob store under build/store, and
// a dependency cache persisted in build/depcache.db.
func newApp(verbose bool) (*app, error) {
	log, err := logging.New(verbose)
	if err != nil {
		return nil, errors.Wrap(err, "judgebox: build logger")
	}

	rc, err := envcfg.LoadRuntimeConfig()
	if err != nil {
		return nil, errors.Wrap(err, "judgebox: load runtime config")
	}

	env, err := envcfg.Load(rc.Path())
	if err != nil {
		return nil, errors.Wrap(err, "judgebox: load environment")
	}

	if err := os.MkdirAll(rc.BoxDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "judgebox: create box dir")
	}
	sb, err := sandbox.NewNativeSandbox(rc.BoxDir, log)
	if err != nil {
		return nil, errors.Wrap(err, "judgebox: create sandbox")
	}

	backingDir := filepath.Join(rc.BuildDir, "store")
	backing, err := store.NewFilesystemStore(backingDir, log)
	if err != nil {
		return nil, errors.Wrap(err, "judgebox: create backing store")
	}

	scratchDir := filepath.Join(rc.BuildDir, "scratch")
	c, err := cacher.New(scratchDir, backing, cacher.WithLogger(log))
	if err != nil {
		return nil, errors.Wrap(err, "judgebox: create file cacher")
	}

	dbPath := filepath.Join(rc.BuildDir, "depcache.db")
	db, err := depcache.OpenDB(dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "judgebox: open dependency cache")
	}
	dc := depcache.New(db, backing, log)

	return &app{
		RuntimeConfig: rc,
		Env:           env,
		Sandbox:       sb,
		Cacher:        c,
		Cache:         dc,
		Log:           log,
		db:            db,
	}, nil
}

// Close releases the sandbox's working directory and the dependency cache's
// database handle. delete mirrors the sandbox's own Cleanup semantics: true
// removes the box directory entirely, false leaves it in place as is.
func (a *app) Close(delete bool) error {
	var errs []error
	if err := a.Sandbox.Cleanup(delete); err != nil {
		errs = append(errs, err)
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// packageDir resolves the directory a subcommand operates on: the given
// positional arg if non-empty, else the current working directory.
func packageDir(arg string) (string, error) {
	if arg != "" {
		return filepath.Abs(arg)
	}
	return os.Getwd()
}
