package sandbox

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rsalesc/robox.io-sub000/pkg/cacher"
	"github.com/rsalesc/robox.io-sub000/pkg/digest"
	"go.uber.org/zap"
)

// NativeSandbox is the fork/exec-based sandbox backend described in
// spec.md §4.3(a): it re-execs the running binary in timeit child mode to
// apply rlimits and stdio redirection before handing off to the target
// command, and runs a Supervisor goroutine alongside it to enforce wall,
// memory and output limits that rlimits alone cannot express.
type NativeSandbox struct {
	root string
	log  *zap.Logger

	lastLog    metaEntry
	lastOK     bool
	lastReason string
	execNum    int64
}

// NewNativeSandbox creates a sandbox rooted at a fresh temp directory under
// baseDir (baseDir may be "" for the OS default).
func NewNativeSandbox(baseDir string, log *zap.Logger) (*NativeSandbox, error) {
	if log == nil {
		log = zap.NewNop()
	}
	root, err := os.MkdirTemp(baseDir, "judgebox-sbx-*")
	if err != nil {
		return nil, err
	}
	s := &NativeSandbox{root: root, log: log}
	return s, s.Initialize()
}

func (s *NativeSandbox) Initialize() error {
	return os.MkdirAll(s.root, 0o755)
}

func (s *NativeSandbox) Cleanup(delete bool) error {
	if !delete {
		return nil
	}
	if err := os.RemoveAll(s.root); err != nil {
		s.log.Warn("sandbox: cleanup failed", zap.Error(err), zap.String("root", s.root))
		return err
	}
	return nil
}

func (s *NativeSandbox) RootPath() string { return s.root }

func (s *NativeSandbox) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.root, path)
}

func (s *NativeSandbox) CreateFile(path string, executable bool) (io.WriteCloser, error) {
	full := s.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, err
	}
	mode := os.FileMode(0o644)
	if executable {
		mode = 0o755
	}
	return os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
}

func (s *NativeSandbox) CreateFileFromDigest(path string, d digest.Digest, executable, trySymlink bool, c *cacher.FileCacher) error {
	full := s.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	if trySymlink {
		if p, ok := c.PathForSymlink(d); ok {
			_ = os.Remove(full)
			if err := os.Symlink(p, full); err == nil {
				if executable {
					_ = os.Chmod(p, 0o755)
				}
				return nil
			}
			// fall through to a copy on symlink failure
		}
	}
	if err := c.GetFileToPath(d, full); err != nil {
		return err
	}
	if executable {
		return os.Chmod(full, 0o755)
	}
	return nil
}

func (s *NativeSandbox) CreateFileFromBytes(path string, data []byte, executable bool) error {
	w, err := s.CreateFile(path, executable)
	if err != nil {
		return err
	}
	defer w.Close()
	_, err = w.Write(data)
	return err
}

func (s *NativeSandbox) CreateFileFromString(path, content string, executable bool) error {
	return s.CreateFileFromBytes(path, []byte(content), executable)
}

func (s *NativeSandbox) CreateFileFromOtherFile(path, srcPath string, executable bool) error {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return err
	}
	return s.CreateFileFromBytes(path, data, executable)
}

func (s *NativeSandbox) GetFile(path string) (io.ReadCloser, error) {
	return os.Open(s.resolve(path))
}

func (s *NativeSandbox) GetFileToString(path string, maxlen int) (string, error) {
	f, err := s.GetFile(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if maxlen <= 0 {
		b, err := io.ReadAll(f)
		return string(b), err
	}
	b, err := io.ReadAll(io.LimitReader(f, int64(maxlen)))
	return string(b), err
}

func (s *NativeSandbox) GetFileToStorage(path string, maxlen int, c *cacher.FileCacher) (digest.Digest, error) {
	f, err := s.GetFile(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	var r io.Reader = f
	if maxlen > 0 {
		r = io.LimitReader(f, int64(maxlen))
	}
	return c.PutFileFromReader(r, path)
}

func (s *NativeSandbox) Glob(pattern string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(s.root), pattern)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(matches))
	copy(out, matches)
	return out, nil
}

func (s *NativeSandbox) StatFile(path string) (os.FileInfo, error) {
	return os.Stat(s.resolve(path))
}

func (s *NativeSandbox) RemoveFile(path string) error {
	return os.Remove(s.resolve(path))
}

// Execute runs cmd to completion under params using the re-exec timeit
// wrapper and a concurrent Supervisor enforcing wall/memory/output limits.
// Its bool result is the sandbox's own success signal (true unless the
// wrapper itself failed to set up or exec the child), independent from the
// target command's own exit code, matching spec.md §4.3.
func (s *NativeSandbox) Execute(ctx context.Context, argv []string, params Params) (bool, error) {
	self, err := os.Executable()
	if err != nil {
		return false, fmt.Errorf("sandbox: locate self binary: %w", err)
	}

	execID := atomic.AddInt64(&s.execNum, 1)
	logPath := filepath.Join(s.root, fmt.Sprintf(".timeit-%d.log", execID))

	chdir := params.Chdir
	if chdir == "" {
		chdir = s.root
	}
	withChdir := params
	withChdir.Chdir = chdir

	wrapperArgs := append([]string{TimeitArgName}, buildTimeitArgs(logPath, withChdir, argv)...)

	cmd := exec.CommandContext(ctx, self, wrapperArgs...)
	cmd.Env = buildEnv(params)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		s.lastOK = false
		s.lastReason = err.Error()
		return false, fmt.Errorf("sandbox: start: %w", err)
	}

	sup := NewSupervisor(cmd.Process.Pid, params, s.log)
	supDone := make(chan struct{})
	go func() {
		defer close(supDone)
		sup.Watch(ctx)
	}()

	waitErr := cmd.Wait()
	wallTime := time.Since(start).Seconds()
	sup.Stop()
	<-supDone

	entry := buildMetaEntry(cmd, waitErr, wallTime, sup, params)
	if err := writeMetaLog(logPath, entry); err != nil {
		s.log.Warn("sandbox: failed to persist meta log", zap.Error(err))
	}

	s.lastOK = true
	return true, s.HydrateLogsFrom(logPath)
}

func buildEnv(p Params) []string {
	var env []string
	if p.PreserveEnv {
		env = append(env, os.Environ()...)
	} else {
		for _, k := range p.InheritEnv {
			if v, ok := os.LookupEnv(k); ok {
				env = append(env, k+"="+v)
			}
		}
	}
	for k, v := range p.SetEnv {
		env = append(env, k+"="+v)
	}
	return env
}

func buildMetaEntry(cmd *exec.Cmd, waitErr error, wallTime float64, sup *Supervisor, params Params) metaEntry {
	m := metaEntry{TimeWall: wallTime}

	state := cmd.ProcessState
	cpuTime := 0.0
	if state != nil {
		cpuTime = state.UserTime().Seconds() + state.SystemTime().Seconds()
	}

	status := map[string]bool{}
	exitCode := 0
	if ws, ok := state.Sys().(syscall.WaitStatus); ok {
		if ws.Signaled() {
			m.ExitSig = int(ws.Signal())
			m.HasSig = true
			exitCode = -int(ws.Signal())
			status["SG"] = true
			if ws.Signal() == syscall.SIGXCPU {
				status["TO"] = true
			}
		} else {
			exitCode = ws.ExitStatus()
			if exitCode != 0 {
				status["RE"] = true
			}
		}
	} else if waitErr != nil {
		exitCode = 1
		status["RE"] = true
	}
	m.ExitCode = exitCode

	killed, reason := sup.Result()
	if killed {
		switch reason {
		case killedWall:
			status["WT"] = true
			status["TO"] = true
		case killedCPU:
			status["TO"] = true
		case killedMemory:
			status["ML"] = true
		case killedOutput:
			status["OL"] = true
		}
	}
	if params.CPUTimeLimitMS > 0 && cpuTime*1000 > float64(params.CPUTimeLimitMS) {
		status["TO"] = true
		cpuTime = float64(params.CPUTimeLimitMS) / 1000
	}

	for _, k := range []string{"RE", "SG", "TO", "WT", "ML", "OL"} {
		if status[k] {
			m.Status = append(m.Status, k)
		}
	}

	m.Time = cpuTime
	m.MemKiB = sup.PeakRSSKiB()
	m.FileBytes = outputFileSize(params)
	return m
}

func outputFileSize(p Params) int64 {
	var total int64
	for _, path := range []string{p.StdoutPath, p.StderrPath} {
		if path == "" {
			continue
		}
		if info, err := os.Stat(path); err == nil {
			total += info.Size()
		}
	}
	return total
}

func (s *NativeSandbox) HydrateLogs() error {
	n := atomic.LoadInt64(&s.execNum)
	if n == 0 {
		return fmt.Errorf("sandbox: no execution has run yet")
	}
	return s.HydrateLogsFrom(filepath.Join(s.root, fmt.Sprintf(".timeit-%d.log", n)))
}

// HydrateLogsFrom reads a specific meta log, used internally by Execute
// right after a run, and exposed for IsolateSandbox-style external callers
// parsing a sandbox's own meta-file format.
func (s *NativeSandbox) HydrateLogsFrom(path string) error {
	m, err := readMetaLog(path)
	if err != nil {
		return fmt.Errorf("sandbox: hydrate logs: %w", err)
	}
	s.lastLog = m
	return nil
}

func (s *NativeSandbox) GetExitStatus() ExitStatus {
	return exitStatusFromMeta(s.lastOK, s.lastLog)
}

func (s *NativeSandbox) GetExecutionTime() float64  { return s.lastLog.Time }
func (s *NativeSandbox) GetWallClockTime() float64  { return s.lastLog.TimeWall }
func (s *NativeSandbox) GetMemoryUsed() int64       { return s.lastLog.MemKiB * 1024 }
func (s *NativeSandbox) GetKillingSignal() int      { return s.lastLog.ExitSig }
func (s *NativeSandbox) GetExitCode() int           { return s.lastLog.ExitCode }

func (s *NativeSandbox) GetHumanExitDescription() string {
	switch s.GetExitStatus() {
	case ExitOK:
		return "exited normally"
	case ExitSignal:
		return fmt.Sprintf("killed by signal %d", s.GetKillingSignal())
	case ExitCPUTimeout:
		return "exceeded CPU time limit"
	case ExitWallTimeout:
		return "exceeded wall clock time limit"
	case ExitNonzero:
		return fmt.Sprintf("exited with code %d", s.GetExitCode())
	case ExitMemoryLimit:
		return "exceeded memory limit"
	case ExitOutputLimit:
		return "exceeded output size limit"
	default:
		return "sandbox error"
	}
}

var _ Sandbox = (*NativeSandbox)(nil)
