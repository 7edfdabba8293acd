// Package logging builds the structured zap.Logger shared across the CLI
// and its driver packages, and names the per-subsystem fields those
// packages attach when scoping a logger to one package, group, solution,
// or generator.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process-wide logger: a development (console, debug-level)
// encoder when verbose is set, otherwise a production (JSON, info-level)
// encoder, matching how judgebox is actually invoked (a human at a
// terminal wants readable lines; CI/automation wants structured JSON).
func New(verbose bool) (*zap.Logger, error) {
	if verbose {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	return cfg.Build()
}

// WithPackage scopes a logger to one problem package directory.
func WithPackage(log *zap.Logger, name string) *zap.Logger {
	return log.With(zap.String("package", name))
}

// WithGroup scopes a logger to one testcase group.
func WithGroup(log *zap.Logger, name string) *zap.Logger {
	return log.With(zap.String("group", name))
}

// WithSolution scopes a logger to one solution under evaluation.
func WithSolution(log *zap.Logger, path string) *zap.Logger {
	return log.With(zap.String("solution", path))
}

// WithGenerator scopes a logger to one generator invocation.
func WithGenerator(log *zap.Logger, name string) *zap.Logger {
	return log.With(zap.String("generator", name))
}

// WithTestcase scopes a logger to one testcase file stem.
func WithTestcase(log *zap.Logger, name string) *zap.Logger {
	return log.With(zap.String("testcase", name))
}
