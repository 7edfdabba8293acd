package sandbox

import (
	"context"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// killReason records why the Supervisor killed the child, distinguishing
// causes that rlimits in the timeit child can't express on their own: wall
// clock, RSS, and output-file growth all require an external observer
// polling the live process, which is exactly the role spec.md §4.3 assigns
// to "a dedicated timer thread or a wait-with-timeout over the child".
type killReason int

const (
	killedNone killReason = iota
	killedWall
	killedCPU
	killedMemory
	killedOutput
)

const pollInterval = time.Second

// Supervisor watches a running sandboxed child and enforces the limits that
// can't be expressed as rlimits on the child itself: wall-clock time,
// resident memory, and output file growth. It is started right after the
// timeit wrapper is forked and stopped once the parent's cmd.Wait returns.
type Supervisor struct {
	pid    int
	params Params
	log    *zap.Logger

	mu       sync.Mutex
	reason   killReason
	killed   bool
	peakRSS  int64
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewSupervisor(pid int, params Params, log *zap.Logger) *Supervisor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Supervisor{pid: pid, params: params, log: log, stopCh: make(chan struct{})}
}

// Watch polls the child until it exits, the context is cancelled, or Stop
// is called, killing the child's process group on the first limit breach.
func (s *Supervisor) Watch(ctx context.Context) {
	start := time.Now()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	proc, err := process.NewProcess(int32(s.pid))
	if err != nil {
		s.log.Debug("supervisor: process lookup failed", zap.Error(err))
	}

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			s.kill(killedWall)
			return
		case <-ticker.C:
			elapsed := time.Since(start)
			if wall := s.params.EffectiveWallLimitMS(); wall > 0 && elapsed.Milliseconds() > wall {
				s.kill(killedWall)
				return
			}

			if proc == nil {
				proc, err = process.NewProcess(int32(s.pid))
				if err != nil {
					continue
				}
			}

			if rss := s.sampleRSS(proc); rss > s.peakRSSSnapshot() {
				s.setPeakRSS(rss)
			}
			if mib := s.params.AddressSpaceMiB; mib > 0 && s.peakRSSSnapshot() > mib*1024*1024 {
				s.kill(killedMemory)
				return
			}

			if s.outputExceeded() {
				s.kill(killedOutput)
				return
			}
		}
	}
}

func (s *Supervisor) sampleRSS(proc *process.Process) int64 {
	children, err := proc.Children()
	total := int64(0)
	if mi, err2 := proc.MemoryInfo(); err2 == nil && mi != nil {
		total += int64(mi.RSS)
	}
	if err == nil {
		for _, c := range children {
			if mi, err2 := c.MemoryInfo(); err2 == nil && mi != nil {
				total += int64(mi.RSS)
			}
		}
	}
	return total
}

func (s *Supervisor) outputExceeded() bool {
	// FileSizeKiB is also enforced via RLIMIT_FSIZE in the child (which
	// raises SIGXFSZ); this check exists to catch stdout/stderr captured
	// by the parent into files the child doesn't have rlimits over, e.g.
	// truncator-protected sinks configured with a max length.
	limit := s.params.FileSizeKiB
	if limit <= 0 {
		return false
	}
	for _, path := range []string{s.params.StdoutPath, s.params.StderrPath} {
		if path == "" {
			continue
		}
		if info, err := os.Stat(path); err == nil && info.Size() > limit*1024 {
			return true
		}
	}
	return false
}

func (s *Supervisor) kill(reason killReason) {
	s.mu.Lock()
	if s.killed {
		s.mu.Unlock()
		return
	}
	s.killed = true
	s.reason = reason
	s.mu.Unlock()

	// Kill the whole process group: Execute sets Setpgid so pid is also
	// the pgid, ensuring compiler/runner children spawned by the sandboxed
	// command are reaped too.
	_ = syscall.Kill(-s.pid, syscall.SIGKILL)
}

func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Result reports whether the Supervisor killed the child and why.
func (s *Supervisor) Result() (bool, killReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.killed, s.reason
}

func (s *Supervisor) PeakRSSKiB() int64 {
	return s.peakRSSSnapshot() / 1024
}

func (s *Supervisor) peakRSSSnapshot() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peakRSS
}

func (s *Supervisor) setPeakRSS(v int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v > s.peakRSS {
		s.peakRSS = v
	}
}
