// Package steps implements the execution-step primitives described in
// spec.md §4.5: compile (stage, run N commands in order, stage outputs) and
// run (stage, run once, capture RunLog, stage outputs), both composing the
// sandbox, artifact staging, and dependency cache layers.
package steps

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rsalesc/robox.io-sub000/pkg/artifacts"
	"github.com/rsalesc/robox.io-sub000/pkg/cacher"
	"github.com/rsalesc/robox.io-sub000/pkg/sandbox"
	"go.uber.org/zap"
)

// CompileResult reports the outcome of a Compile call.
type CompileResult struct {
	Success bool
	Log     string
	FailedCommandIndex int
}

// Compile stages inputs, runs every command in order under params, stopping
// at the first nonzero exit, then stages outputs. Returns success iff every
// command exited zero and every non-optional output exists afterward.
func Compile(ctx context.Context, sb sandbox.Sandbox, c *cacher.FileCacher, commands [][]string, params sandbox.Params, plan artifacts.Plan, log *zap.Logger) (CompileResult, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := plan.ValidateProducedBeforeConsumed(); err != nil {
		return CompileResult{}, errors.Wrap(err, "steps: invalid artifact plan")
	}

	if err := artifacts.StageInputs(sb, c, plan.Inputs, log); err != nil {
		return CompileResult{}, errors.Wrap(err, "steps: stage compile inputs")
	}

	for i, cmd := range commands {
		ok, err := sb.Execute(ctx, cmd, params)
		if err != nil || !ok {
			return CompileResult{Success: false, FailedCommandIndex: i}, err
		}
		// Execute already hydrates the sandbox's own run log; GetExitCode
		// reflects the command just run, distinct from ok above (the
		// sandbox wrapper's own success signal).
		if sb.GetExitCode() != 0 {
			var msg string
			if params.StderrPath != "" {
				msg, _ = sb.GetFileToString(params.StderrPath, 65536)
			}
			return CompileResult{
				Success:            false,
				Log:                msg,
				FailedCommandIndex: i,
			}, nil
		}
	}

	if err := artifacts.StageOutputs(sb, c, plan.Outputs, log); err != nil {
		return CompileResult{Success: false}, fmt.Errorf("steps: stage compile outputs: %w", err)
	}

	return CompileResult{Success: true}, nil
}

// Run stages inputs, executes command once, captures the RunLog into
// plan.Logs, and stages outputs. Success here is orthogonal to the child's
// exit status — callers inspect plan.Logs.Value.ExitStatus to classify.
func Run(ctx context.Context, sb sandbox.Sandbox, c *cacher.FileCacher, command []string, params sandbox.Params, plan artifacts.Plan, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	if err := plan.ValidateProducedBeforeConsumed(); err != nil {
		return errors.Wrap(err, "steps: invalid artifact plan")
	}

	if err := artifacts.StageInputs(sb, c, plan.Inputs, log); err != nil {
		return errors.Wrap(err, "steps: stage run inputs")
	}

	ok, err := sb.Execute(ctx, command, params)
	if err != nil && !ok {
		return errors.Wrap(err, "steps: execute run command")
	}

	// Execute already hydrates the sandbox's own run log on success.
	if plan.Logs != nil {
		plan.Logs.Set(sandbox.RunLog{
			ExitCode:        sb.GetExitCode(),
			ExitStatus:      sb.GetExitStatus(),
			Signal:          sb.GetKillingSignal(),
			TimeSeconds:     sb.GetExecutionTime(),
			WallTimeSeconds: sb.GetWallClockTime(),
			MemoryBytes:     sb.GetMemoryUsed(),
		})
	}

	return artifacts.StageOutputs(sb, c, plan.Outputs, log)
}
