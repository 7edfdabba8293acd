package sandbox

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rsalesc/robox.io-sub000/pkg/cacher"
	"github.com/rsalesc/robox.io-sub000/pkg/digest"
	"go.uber.org/zap"
)

// ErrIsolateUnavailable is returned by every IsolateSandbox operation. The
// isolate backend (cgroup/namespace-based kernel isolation, as opposed to
// NativeSandbox's rlimit-and-supervisor approach) needs a real isolate(1)
// binary or equivalent on the host; spec.md §9 treats it as a second Sandbox
// implementation behind the same interface but defers its internals, so
// this type exists to satisfy the interface and fail loudly rather than
// silently behave like NativeSandbox.
var ErrIsolateUnavailable = fmt.Errorf("sandbox: isolate backend is not available on this platform")

// IsolateSandbox is a stub satisfying the Sandbox interface for the
// external-isolator backend described in spec.md §9's Sandbox design note.
// Every method returns ErrIsolateUnavailable until a real isolate(1)
// integration is wired in.
type IsolateSandbox struct {
	boxID int
	log   *zap.Logger
}

func NewIsolateSandbox(boxID int, log *zap.Logger) *IsolateSandbox {
	if log == nil {
		log = zap.NewNop()
	}
	return &IsolateSandbox{boxID: boxID, log: log}
}

func (s *IsolateSandbox) Initialize() error { return ErrIsolateUnavailable }

func (s *IsolateSandbox) Cleanup(delete bool) error { return ErrIsolateUnavailable }

func (s *IsolateSandbox) RootPath() string { return "" }

func (s *IsolateSandbox) CreateFile(path string, executable bool) (io.WriteCloser, error) {
	return nil, ErrIsolateUnavailable
}

func (s *IsolateSandbox) CreateFileFromDigest(path string, d digest.Digest, executable, trySymlink bool, c *cacher.FileCacher) error {
	return ErrIsolateUnavailable
}

func (s *IsolateSandbox) CreateFileFromBytes(path string, data []byte, executable bool) error {
	return ErrIsolateUnavailable
}

func (s *IsolateSandbox) CreateFileFromString(path, content string, executable bool) error {
	return ErrIsolateUnavailable
}

func (s *IsolateSandbox) CreateFileFromOtherFile(path, srcPath string, executable bool) error {
	return ErrIsolateUnavailable
}

func (s *IsolateSandbox) GetFile(path string) (io.ReadCloser, error) {
	return nil, ErrIsolateUnavailable
}

func (s *IsolateSandbox) GetFileToString(path string, maxlen int) (string, error) {
	return "", ErrIsolateUnavailable
}

func (s *IsolateSandbox) GetFileToStorage(path string, maxlen int, c *cacher.FileCacher) (digest.Digest, error) {
	return "", ErrIsolateUnavailable
}

func (s *IsolateSandbox) Glob(pattern string) ([]string, error) {
	return nil, ErrIsolateUnavailable
}

func (s *IsolateSandbox) StatFile(path string) (os.FileInfo, error) {
	return nil, ErrIsolateUnavailable
}

func (s *IsolateSandbox) RemoveFile(path string) error { return ErrIsolateUnavailable }

func (s *IsolateSandbox) Execute(ctx context.Context, cmd []string, params Params) (bool, error) {
	return false, ErrIsolateUnavailable
}

func (s *IsolateSandbox) HydrateLogs() error { return ErrIsolateUnavailable }

func (s *IsolateSandbox) GetExitStatus() ExitStatus { return ExitSandboxError }
func (s *IsolateSandbox) GetExecutionTime() float64 { return 0 }
func (s *IsolateSandbox) GetWallClockTime() float64 { return 0 }
func (s *IsolateSandbox) GetMemoryUsed() int64      { return 0 }
func (s *IsolateSandbox) GetKillingSignal() int     { return 0 }
func (s *IsolateSandbox) GetExitCode() int          { return -1 }

func (s *IsolateSandbox) GetHumanExitDescription() string {
	return ErrIsolateUnavailable.Error()
}

var _ Sandbox = (*IsolateSandbox)(nil)
