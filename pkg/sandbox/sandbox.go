// Package sandbox implements the isolated process execution runtime:
// CPU/wall/memory/file-size/process-count limits, structured termination
// status, and a file-staging API over the sandbox root. See spec.md §4.3.
package sandbox

import (
	"context"
	"io"
	"os"

	"github.com/rsalesc/robox.io-sub000/pkg/cacher"
	"github.com/rsalesc/robox.io-sub000/pkg/digest"
)

// ExitStatus is the enumerated termination reason recorded in a RunLog.
type ExitStatus string

const (
	ExitOK            ExitStatus = "OK"
	ExitSignal        ExitStatus = "SIGNAL"
	ExitCPUTimeout    ExitStatus = "CPU_TIMEOUT"
	ExitWallTimeout   ExitStatus = "WALL_TIMEOUT"
	ExitNonzero       ExitStatus = "NONZERO"
	ExitMemoryLimit   ExitStatus = "MEMORY_LIMIT"
	ExitOutputLimit   ExitStatus = "OUTPUT_LIMIT"
	ExitSandboxError  ExitStatus = "SANDBOX_ERROR"
)

// RunLog is the structured outcome of one sandboxed execution.
type RunLog struct {
	ExitCode        int
	ExitStatus      ExitStatus
	Signal          int // 0 unless ExitStatus == ExitSignal
	TimeSeconds     float64
	WallTimeSeconds float64
	MemoryBytes     int64
}

// MappedDir bind-mounts a host directory into the sandbox.
type MappedDir struct {
	HostPath  string
	InnerPath string
	ReadWrite bool
}

// Params holds the per-execution limits and bindings described in spec.md
// §3 (SandboxParams).
type Params struct {
	CPUTimeLimitMS   int64
	WallTimeLimitMS  int64
	ExtraTimeoutMS   int64
	AddressSpaceMiB  int64
	StackMiB         int64
	FileSizeKiB      int64
	// MaxProcesses: 0 means "absent" (unbounded). 1 is the strict case;
	// a large value is permissive.
	MaxProcesses int

	StdinPath  string
	StdoutPath string
	StderrPath string

	PreserveEnv bool
	InheritEnv  []string
	SetEnv      map[string]string

	MappedDirs []MappedDir

	// Chdir is the working directory inside the sandbox that the
	// executed command runs from. Defaults to the sandbox root.
	Chdir string
}

// EffectiveWallLimitMS returns the wall-clock budget including the extra
// grace period granted on top of the wall-clock limit.
func (p Params) EffectiveWallLimitMS() int64 {
	if p.WallTimeLimitMS <= 0 {
		return 0
	}
	return p.WallTimeLimitMS + p.ExtraTimeoutMS
}

// Sandbox is the contract both the native-subprocess backend and an
// external-isolator backend present. Spec.md §9 calls for a tagged variant
// over concrete backends rather than virtual dispatch on every file
// operation; in Go the natural equivalent is a small interface, with each
// backend built by its own constructor (NewNativeSandbox, NewIsolateSandbox).
type Sandbox interface {
	// Initialize prepares the sandbox root.
	Initialize() error
	// Cleanup tears the sandbox down. When delete is true, the root
	// directory (and any external kernel resources) are removed.
	Cleanup(delete bool) error

	RootPath() string

	CreateFile(path string, executable bool) (io.WriteCloser, error)
	CreateFileFromDigest(path string, d digest.Digest, executable, trySymlink bool, c *cacher.FileCacher) error
	CreateFileFromBytes(path string, data []byte, executable bool) error
	CreateFileFromString(path, content string, executable bool) error
	CreateFileFromOtherFile(path, srcPath string, executable bool) error

	GetFile(path string) (io.ReadCloser, error)
	GetFileToString(path string, maxlen int) (string, error)
	GetFileToStorage(path string, maxlen int, c *cacher.FileCacher) (digest.Digest, error)
	Glob(pattern string) ([]string, error)
	StatFile(path string) (os.FileInfo, error)
	RemoveFile(path string) error

	// Execute runs cmd to completion under params, populating the
	// sandbox's internal run log (read back via HydrateLogs/accessors).
	// The returned bool is the sandbox's own success/failure signal,
	// distinct from the executed command's exit code.
	Execute(ctx context.Context, cmd []string, params Params) (bool, error)

	// HydrateLogs reads back the meta file written by the last Execute
	// call and exposes it through the accessor methods below.
	HydrateLogs() error

	GetExitStatus() ExitStatus
	GetExecutionTime() float64
	GetWallClockTime() float64
	GetMemoryUsed() int64
	GetKillingSignal() int
	GetExitCode() int
	GetHumanExitDescription() string
}
