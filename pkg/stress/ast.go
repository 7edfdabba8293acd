package stress

import "github.com/rsalesc/robox.io-sub000/pkg/pkgfile"

// CheckingMode mirrors the checker invocation mode an `eval` node asks for:
// THREE_WAY passes the reference output to the checker (and requires the
// package to have a main solution to produce it); TWO_WAY does not.
type CheckingMode int

const (
	ThreeWay CheckingMode = iota
	TwoWay
)

// Eval is one `[solution]` or `[solution ON ...]` clause. Solution and
// Checker have already had any "$" wildcard resolved to the package's main
// solution/checker path by the parser.
//
// HasChecking is false when no `ON` clause was written at all, in which
// case the driver must fall back to the package's default checker.
// ExplicitNil is true for `ON :nil`, meaning no checker runs at all and the
// outcome is whatever PreClassify produces.
type Eval struct {
	Solution         string
	SolutionWildcard bool // Solution came from "$" in the expression text
	HasChecking      bool
	ExplicitNil      bool
	Checker          string
	CheckerWildcard  bool // Checker came from "$" in the expression text
	Mode             CheckingMode
}

// Node is one node of the parsed boolean expression tree.
type Node interface {
	node()
}

// MatchingNode is `eval ~ expected_outcome` or `eval !~ expected_outcome`.
type MatchingNode struct {
	Eval     Eval
	Positive bool // false for !~
	Expected pkgfile.ExpectedOutcome
}

// EquatingNode is `eval == eval`, `eval != eval`, `eval == OUTCOME`, or
// `eval != OUTCOME`. OtherEval is nil when the right-hand side is a bare
// outcome literal rather than a second eval clause.
type EquatingNode struct {
	Eval         Eval
	Positive     bool // false for !=
	OtherEval    *Eval
	OtherOutcome string
}

type AndNode struct {
	Children []Node
}

type OrNode struct {
	Children []Node
}

type NotNode struct {
	Child Node
}

func (*MatchingNode) node() {}
func (*EquatingNode) node() {}
func (*AndNode) node()      {}
func (*OrNode) node()       {}
func (*NotNode) node()      {}
