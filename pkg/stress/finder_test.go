package stress

import (
	"testing"

	"github.com/rsalesc/robox.io-sub000/pkg/pkgfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPackage() *pkgfile.Package {
	return &pkgfile.Package{
		Name:           "p",
		TimeLimitMS:    1000,
		MemoryLimitMiB: 256,
		Checker:        &pkgfile.CodeItemRef{Path: "checker.cpp"},
		Solutions: []pkgfile.Solution{
			{Path: "main.cpp", Outcome: pkgfile.OutcomeAccepted},
			{Path: "wa.cpp", Outcome: pkgfile.OutcomeWrong},
		},
	}
}

func TestFinderResolveEvalCheckerDefaultsToMainChecker(t *testing.T) {
	f := NewFinder(nil, testPackage(), ".", nil)
	node, err := f.Parse(`[wa.cpp] ~ WRONG_ANSWER`)
	require.NoError(t, err)
	m := node.(*MatchingNode)
	ref, mode, has := f.resolveEvalChecker(m.Eval)
	assert.True(t, has)
	assert.Equal(t, ThreeWay, mode)
	assert.Equal(t, "checker.cpp", ref.Path)
}

func TestFinderResolveEvalCheckerExplicitNilMeansNoChecker(t *testing.T) {
	f := NewFinder(nil, testPackage(), ".", nil)
	node, err := f.Parse(`[wa.cpp ON :nil] ~ WRONG_ANSWER`)
	require.NoError(t, err)
	m := node.(*MatchingNode)
	_, _, has := f.resolveEvalChecker(m.Eval)
	assert.False(t, has)
}

func TestFinderResolveEvalCheckerNoDefaultWhenPackageHasNoChecker(t *testing.T) {
	pkg := testPackage()
	pkg.Checker = nil
	f := NewFinder(nil, pkg, ".", nil)
	node, err := f.Parse(`[wa.cpp] ~ WRONG_ANSWER`)
	require.NoError(t, err)
	m := node.(*MatchingNode)
	_, _, has := f.resolveEvalChecker(m.Eval)
	assert.False(t, has)
}

func TestFinderNeedsExpectedOutputTrueForDefaultChecker(t *testing.T) {
	f := NewFinder(nil, testPackage(), ".", nil)
	node, err := f.Parse(`[wa.cpp] ~ WRONG_ANSWER`)
	require.NoError(t, err)
	assert.True(t, f.NeedsExpectedOutput(node))
}

func TestFinderNeedsExpectedOutputFalseForTwoWayChecker(t *testing.T) {
	f := NewFinder(nil, testPackage(), ".", nil)
	node, err := f.Parse(`[wa.cpp ON 2:checker.cpp] ~ WRONG_ANSWER`)
	require.NoError(t, err)
	assert.False(t, f.NeedsExpectedOutput(node))
}

func TestFinderNeedsExpectedOutputFalseForExplicitNil(t *testing.T) {
	f := NewFinder(nil, testPackage(), ".", nil)
	node, err := f.Parse(`[wa.cpp ON :nil] ~ WRONG_ANSWER`)
	require.NoError(t, err)
	assert.False(t, f.NeedsExpectedOutput(node))
}

func TestFinderValidateRejectsUnknownSolution(t *testing.T) {
	f := NewFinder(nil, testPackage(), ".", nil)
	node, err := f.Parse(`[nope.cpp] ~ WRONG_ANSWER`)
	require.NoError(t, err)
	assert.Error(t, f.Validate(node))
}

func TestFinderValidateRejectsSolutionWildcardWithoutMainSolution(t *testing.T) {
	pkg := testPackage()
	pkg.Solutions = []pkgfile.Solution{{Path: "wa.cpp", Outcome: pkgfile.OutcomeWrong}}
	f := NewFinder(nil, pkg, ".", nil)
	node, err := f.Parse(`[$] ~ ACCEPTED`)
	require.NoError(t, err)
	assert.Error(t, f.Validate(node))
}

func TestFinderValidateRejectsThreeWayWithoutMainSolution(t *testing.T) {
	pkg := testPackage()
	pkg.Solutions = []pkgfile.Solution{{Path: "wa.cpp", Outcome: pkgfile.OutcomeWrong}}
	f := NewFinder(nil, pkg, ".", nil)
	node, err := f.Parse(`[wa.cpp] ~ WRONG_ANSWER`)
	require.NoError(t, err)
	assert.Error(t, f.Validate(node))
}

func TestFinderValidateAcceptsWellFormedExpression(t *testing.T) {
	f := NewFinder(nil, testPackage(), ".", nil)
	node, err := f.Parse(`[wa.cpp] ~ WRONG_ANSWER`)
	require.NoError(t, err)
	assert.NoError(t, f.Validate(node))
}
