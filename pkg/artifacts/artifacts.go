// Package artifacts declares the input/output plan for a single sandboxed
// execution step (spec.md §3 GradingArtifacts) and the staging helpers that
// move bytes between the host filesystem, the content-addressed cache, and
// a running Sandbox.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rsalesc/robox.io-sub000/pkg/cacher"
	"github.com/rsalesc/robox.io-sub000/pkg/digest"
	"github.com/rsalesc/robox.io-sub000/pkg/sandbox"
	"go.uber.org/zap"
)

// InputSource is a filesystem path, a fixed content digest, or a holder
// that some earlier step in the same build will populate — never more
// than one of the three.
type InputSource struct {
	SrcPath string
	Digest  digest.Digest
	Holder  *digest.Holder
}

func (s InputSource) IsDigest() bool { return s.SrcPath == "" }

// Resolve returns the digest to stage, reading from Holder if this source
// is holder-backed.
func (s InputSource) Resolve() digest.Digest {
	if s.Holder != nil {
		return s.Holder.Value
	}
	return s.Digest
}

// Input stages a file into the sandbox before execution.
type Input struct {
	DestInSandbox string
	Source        InputSource
	Executable    bool
}

// OutputSink describes where a produced file ends up: a host path, a
// digest holder, or both.
type OutputSink struct {
	DestPath string
	Holder   *digest.Holder
}

// Output stages a file out of the sandbox after execution.
type Output struct {
	SrcInSandbox string
	Sink         OutputSink

	Executable   bool
	Optional     bool
	Maxlen       int  // <=0 means unlimited
	Hash         bool // route through the store; participates in Fingerprint.Digests, not in the dest-path fingerprint
	Intermediate bool // excluded from fingerprinting entirely
}

// Plan is spec.md's GradingArtifacts: a declarative list of inputs and
// outputs for one sandbox execution, plus an optional log sink.
type Plan struct {
	Root    string
	Inputs  []Input
	Outputs []Output
	Logs    *RunLogHolder
}

// RunLogHolder captures the RunLog produced by one Execute call, following
// the same single-producer discipline as digest.Holder.
type RunLogHolder struct {
	Value sandbox.RunLog
	set   bool
}

func NewRunLogHolder() *RunLogHolder { return &RunLogHolder{} }

func (h *RunLogHolder) Set(log sandbox.RunLog) {
	h.Value = log
	h.set = true
}

func (h *RunLogHolder) IsSet() bool { return h.set }

// ValidateProducedBeforeConsumed performs the static topological check
// spec.md §9 calls for: every DigestHolder read by an Input must have been
// written by an earlier Output in the same plan.
func (p Plan) ValidateProducedBeforeConsumed() error {
	produced := map[*digest.Holder]bool{}
	for _, out := range p.Outputs {
		if out.Sink.Holder == nil {
			continue
		}
		if produced[out.Sink.Holder] {
			return errors.Errorf("artifacts: holder produced more than once (output %q)", out.SrcInSandbox)
		}
		produced[out.Sink.Holder] = true
	}
	for _, in := range p.Inputs {
		if in.Source.Holder == nil {
			continue
		}
		if !produced[in.Source.Holder] {
			return errors.Errorf("artifacts: input %q consumes a holder with no producer in this plan", in.DestInSandbox)
		}
	}
	return nil
}

// StageInputs materializes every declared input inside the sandbox.
func StageInputs(sb sandbox.Sandbox, c *cacher.FileCacher, inputs []Input, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	for _, in := range inputs {
		if in.Source.IsDigest() {
			if err := sb.CreateFileFromDigest(in.DestInSandbox, in.Source.Resolve(), in.Executable, true, c); err != nil {
				return errors.Wrapf(err, "artifacts: stage input %q from digest", in.DestInSandbox)
			}
			continue
		}
		if err := sb.CreateFileFromOtherFile(in.DestInSandbox, in.Source.SrcPath, in.Executable); err != nil {
			return errors.Wrapf(err, "artifacts: stage input %q from %q", in.DestInSandbox, in.Source.SrcPath)
		}
		log.Debug("staged input", zap.String("dest", in.DestInSandbox), zap.String("src", in.Source.SrcPath))
	}
	return nil
}

// StageOutputs pulls every declared output out of the sandbox into its
// sink(s). Returns an error if a required (non-optional, non-intermediate)
// output is missing.
func StageOutputs(sb sandbox.Sandbox, c *cacher.FileCacher, outputs []Output, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	for _, out := range outputs {
		info, statErr := sb.StatFile(out.SrcInSandbox)
		if statErr != nil {
			if out.Optional || out.Intermediate {
				continue
			}
			return errors.Wrapf(statErr, "artifacts: required output %q missing", out.SrcInSandbox)
		}
		_ = info

		if out.Hash {
			d, err := sb.GetFileToStorage(out.SrcInSandbox, out.Maxlen, c)
			if err != nil {
				return errors.Wrapf(err, "artifacts: hash output %q", out.SrcInSandbox)
			}
			if out.Sink.Holder != nil {
				out.Sink.Holder.Set(d)
			}
			if out.Sink.DestPath != "" {
				if err := materializeHashedOutput(c, d, out.Sink.DestPath, out.Executable); err != nil {
					return err
				}
			}
			continue
		}

		if out.Sink.DestPath != "" {
			if err := copyFromSandbox(sb, out.SrcInSandbox, out.Sink.DestPath, out.Maxlen); err != nil {
				return errors.Wrapf(err, "artifacts: copy output %q to %q", out.SrcInSandbox, out.Sink.DestPath)
			}
			if out.Executable {
				if err := os.Chmod(out.Sink.DestPath, 0o755); err != nil {
					return err
				}
			}
		}
		if out.Sink.Holder != nil {
			d, err := sb.GetFileToStorage(out.SrcInSandbox, out.Maxlen, c)
			if err != nil {
				return errors.Wrapf(err, "artifacts: digest output %q", out.SrcInSandbox)
			}
			out.Sink.Holder.Set(d)
		}
	}
	return nil
}

func copyFromSandbox(sb sandbox.Sandbox, srcInSandbox, destPath string, maxlen int) error {
	r, err := sb.GetFile(srcInSandbox)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	w, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer w.Close()

	src := sandbox.NewTruncator(r, maxlen)
	_, err = w.ReadFrom(src)
	return err
}

// materializeHashedOutput resolves Open Question 1 from SPEC_FULL.md §9:
// the executable bit for hash=true outputs is restored from the flag at
// materialization time, independent of anything recorded in the cache key.
func materializeHashedOutput(c *cacher.FileCacher, d digest.Digest, destPath string, executable bool) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	if err := c.GetFileToPath(d, destPath); err != nil {
		return fmt.Errorf("artifacts: materialize hashed output: %w", err)
	}
	if executable {
		return os.Chmod(destPath, 0o755)
	}
	return nil
}
