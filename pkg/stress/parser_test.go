package stress

import (
	"testing"

	"github.com/rsalesc/robox.io-sub000/pkg/pkgfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSimpleMatching(t *testing.T) {
	node, err := Parse(`[sol1] ~ WRONG_ANSWER`, Resolver{})
	require.NoError(t, err)
	m, ok := node.(*MatchingNode)
	require.True(t, ok)
	assert.Equal(t, "sol1", m.Eval.Solution)
	assert.True(t, m.Positive)
	assert.Equal(t, pkgfile.OutcomeWrong, m.Expected)
}

func TestParseNegatedMatching(t *testing.T) {
	node, err := Parse(`[sol1] !~ ACCEPTED`, Resolver{})
	require.NoError(t, err)
	m := node.(*MatchingNode)
	assert.False(t, m.Positive)
}

func TestParseEquatingAgainstOutcomeLiteral(t *testing.T) {
	node, err := Parse(`[sol1] == accepted`, Resolver{})
	require.NoError(t, err)
	e := node.(*EquatingNode)
	assert.True(t, e.Positive)
	assert.Nil(t, e.OtherEval)
	assert.Equal(t, "ACCEPTED", e.OtherOutcome)
}

func TestParseEquatingAgainstAnotherEval(t *testing.T) {
	node, err := Parse(`[sol1] != [sol2]`, Resolver{})
	require.NoError(t, err)
	e := node.(*EquatingNode)
	assert.False(t, e.Positive)
	require.NotNil(t, e.OtherEval)
	assert.Equal(t, "sol2", e.OtherEval.Solution)
}

func TestParseAndOrPrecedence(t *testing.T) {
	node, err := Parse(`[a] ~ ACCEPTED && [b] ~ ACCEPTED || [c] ~ ACCEPTED`, Resolver{})
	require.NoError(t, err)
	or, ok := node.(*OrNode)
	require.True(t, ok)
	require.Len(t, or.Children, 2)
	and, ok := or.Children[0].(*AndNode)
	require.True(t, ok)
	assert.Len(t, and.Children, 2)
}

func TestParseNegationRequiresParens(t *testing.T) {
	node, err := Parse(`!([a] ~ ACCEPTED)`, Resolver{})
	require.NoError(t, err)
	_, ok := node.(*NotNode)
	assert.True(t, ok)
}

func TestParseParenthesizedGroup(t *testing.T) {
	node, err := Parse(`([a] ~ ACCEPTED && [b] ~ ACCEPTED) || [c] ~ ACCEPTED`, Resolver{})
	require.NoError(t, err)
	or := node.(*OrNode)
	_, ok := or.Children[0].(*AndNode)
	assert.True(t, ok)
}

func TestParseWildcardResolvesToMainSolution(t *testing.T) {
	node, err := Parse(`[$] ~ ACCEPTED`, Resolver{MainSolution: "main.cpp", HasMainSolution: true})
	require.NoError(t, err)
	m := node.(*MatchingNode)
	assert.Equal(t, "main.cpp", m.Eval.Solution)
	assert.True(t, m.Eval.SolutionWildcard)
}

func TestParseWildcardWithoutResolverYieldsEmptySolution(t *testing.T) {
	node, err := Parse(`[$] ~ ACCEPTED`, Resolver{})
	require.NoError(t, err)
	m := node.(*MatchingNode)
	assert.Equal(t, "", m.Eval.Solution)
	assert.True(t, m.Eval.SolutionWildcard)
}

func TestParseOnCheckerDefaultModeIsThreeWay(t *testing.T) {
	node, err := Parse(`[sol1 ON checker.cpp] ~ ACCEPTED`, Resolver{})
	require.NoError(t, err)
	m := node.(*MatchingNode)
	assert.True(t, m.Eval.HasChecking)
	assert.Equal(t, ThreeWay, m.Eval.Mode)
	assert.Equal(t, "checker.cpp", m.Eval.Checker)
}

func TestParseOnCheckerExplicitTwoWayMode(t *testing.T) {
	node, err := Parse(`[sol1 ON 2:checker.cpp] ~ ACCEPTED`, Resolver{})
	require.NoError(t, err)
	m := node.(*MatchingNode)
	assert.Equal(t, TwoWay, m.Eval.Mode)
}

func TestParseOnExplicitNil(t *testing.T) {
	node, err := Parse(`[sol1 ON :nil] ~ ACCEPTED`, Resolver{})
	require.NoError(t, err)
	m := node.(*MatchingNode)
	assert.True(t, m.Eval.HasChecking)
	assert.True(t, m.Eval.ExplicitNil)
}

func TestParseNoCheckingClauseLeavesHasCheckingFalse(t *testing.T) {
	node, err := Parse(`[sol1] ~ ACCEPTED`, Resolver{})
	require.NoError(t, err)
	m := node.(*MatchingNode)
	assert.False(t, m.Eval.HasChecking)
}

func TestParseErrorsOnTrailingGarbage(t *testing.T) {
	_, err := Parse(`[sol1] ~ ACCEPTED extra`, Resolver{})
	assert.Error(t, err)
}

func TestParseErrorsOnUnterminatedGroup(t *testing.T) {
	_, err := Parse(`([sol1] ~ ACCEPTED`, Resolver{})
	assert.Error(t, err)
}
