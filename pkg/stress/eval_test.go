package stress

import (
	"context"
	"testing"

	"github.com/rsalesc/robox.io-sub000/pkg/checker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func outcomeRunner(outcomes map[string]checker.Outcome, calls map[string]int) RunFunc {
	return func(ctx context.Context, ev Eval) (FinderResult, error) {
		calls[ev.Solution]++
		return FinderResult{Solution: ev.Solution, Outcome: outcomes[ev.Solution]}, nil
	}
}

func TestEvaluateMatchingTrue(t *testing.T) {
	node, err := Parse(`[sol1] ~ WRONG_ANSWER`, Resolver{})
	require.NoError(t, err)
	calls := map[string]int{}
	run := outcomeRunner(map[string]checker.Outcome{"sol1": checker.WrongAnswer}, calls)
	out, err := Evaluate(context.Background(), node, run, map[string]FinderResult{})
	require.NoError(t, err)
	assert.True(t, out.TruthValue)
	assert.Len(t, out.Results, 1)
}

func TestEvaluateMatchingNegated(t *testing.T) {
	node, err := Parse(`[sol1] !~ WRONG_ANSWER`, Resolver{})
	require.NoError(t, err)
	run := outcomeRunner(map[string]checker.Outcome{"sol1": checker.WrongAnswer}, map[string]int{})
	out, err := Evaluate(context.Background(), node, run, map[string]FinderResult{})
	require.NoError(t, err)
	assert.False(t, out.TruthValue)
}

func TestEvaluateMatchingIncorrectFamily(t *testing.T) {
	node, err := Parse(`[sol1] ~ INCORRECT`, Resolver{})
	require.NoError(t, err)
	run := outcomeRunner(map[string]checker.Outcome{"sol1": checker.RuntimeError}, map[string]int{})
	out, err := Evaluate(context.Background(), node, run, map[string]FinderResult{})
	require.NoError(t, err)
	assert.True(t, out.TruthValue)
}

func TestEvaluateEquatingAgainstLiteral(t *testing.T) {
	node, err := Parse(`[sol1] == accepted`, Resolver{})
	require.NoError(t, err)
	run := outcomeRunner(map[string]checker.Outcome{"sol1": checker.Accepted}, map[string]int{})
	out, err := Evaluate(context.Background(), node, run, map[string]FinderResult{})
	require.NoError(t, err)
	assert.True(t, out.TruthValue)
}

func TestEvaluateEquatingAgainstAnotherSolution(t *testing.T) {
	node, err := Parse(`[sol1] != [sol2]`, Resolver{})
	require.NoError(t, err)
	run := outcomeRunner(map[string]checker.Outcome{"sol1": checker.Accepted, "sol2": checker.WrongAnswer}, map[string]int{})
	out, err := Evaluate(context.Background(), node, run, map[string]FinderResult{})
	require.NoError(t, err)
	assert.True(t, out.TruthValue)
	assert.Len(t, out.Results, 2)
}

func TestEvaluateAndAccumulatesResultsFromBothOperandsEvenWhenFalse(t *testing.T) {
	node, err := Parse(`[sol1] ~ ACCEPTED && [sol2] ~ ACCEPTED`, Resolver{})
	require.NoError(t, err)
	calls := map[string]int{}
	run := outcomeRunner(map[string]checker.Outcome{"sol1": checker.WrongAnswer, "sol2": checker.Accepted}, calls)
	out, err := Evaluate(context.Background(), node, run, map[string]FinderResult{})
	require.NoError(t, err)
	assert.False(t, out.TruthValue)
	// Both operands still ran and both contributed results: no short-circuit.
	assert.Len(t, out.Results, 2)
	assert.Equal(t, 1, calls["sol1"])
	assert.Equal(t, 1, calls["sol2"])
}

func TestEvaluateOrAccumulatesResultsFromBothOperandsEvenWhenTrue(t *testing.T) {
	node, err := Parse(`[sol1] ~ ACCEPTED || [sol2] ~ ACCEPTED`, Resolver{})
	require.NoError(t, err)
	run := outcomeRunner(map[string]checker.Outcome{"sol1": checker.Accepted, "sol2": checker.WrongAnswer}, map[string]int{})
	out, err := Evaluate(context.Background(), node, run, map[string]FinderResult{})
	require.NoError(t, err)
	assert.True(t, out.TruthValue)
	assert.Len(t, out.Results, 2)
}

func TestEvaluateMemoizesRepeatedSolutionCheckerPair(t *testing.T) {
	node, err := Parse(`[sol1] ~ ACCEPTED || [sol1] ~ ACCEPTED`, Resolver{})
	require.NoError(t, err)
	calls := map[string]int{}
	run := outcomeRunner(map[string]checker.Outcome{"sol1": checker.Accepted}, calls)
	_, err = Evaluate(context.Background(), node, run, map[string]FinderResult{})
	require.NoError(t, err)
	assert.Equal(t, 1, calls["sol1"])
}

func TestEvaluateNegation(t *testing.T) {
	node, err := Parse(`!([sol1] ~ ACCEPTED)`, Resolver{})
	require.NoError(t, err)
	run := outcomeRunner(map[string]checker.Outcome{"sol1": checker.Accepted}, map[string]int{})
	out, err := Evaluate(context.Background(), node, run, map[string]FinderResult{})
	require.NoError(t, err)
	assert.False(t, out.TruthValue)
}

func TestCollectEvalsOrder(t *testing.T) {
	node, err := Parse(`[a] ~ ACCEPTED && [b] == [c]`, Resolver{})
	require.NoError(t, err)
	evals := collectEvals(node)
	require.Len(t, evals, 3)
	assert.Equal(t, "a", evals[0].Solution)
	assert.Equal(t, "b", evals[1].Solution)
	assert.Equal(t, "c", evals[2].Solution)
}
