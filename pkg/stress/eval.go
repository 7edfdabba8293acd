package stress

import (
	"context"
	"fmt"

	"github.com/rsalesc/robox.io-sub000/pkg/checker"
)

// FinderResult is one evaluated `[solution ...]` clause's outcome.
type FinderResult struct {
	Solution string
	Checker  string // empty when no checker ran
	Outcome  checker.Outcome
}

// FinderOutcome is the result of evaluating one boolean expression tree
// against one generated testcase: the overall truth value plus every
// FinderResult that contributed to it.
//
// Conjunction and disjunction always evaluate and collect results from
// every child, even once the truth value is already decided — a finding's
// reported results must include every solution the clause touched, not
// just the ones that mattered to short-circuit the boolean.
type FinderOutcome struct {
	TruthValue bool
	Results    []FinderResult
}

// RunFunc evaluates a single Eval clause against the testcase currently
// under test, compiling/running the named solution and (if any) checker.
type RunFunc func(ctx context.Context, ev Eval) (FinderResult, error)

func evalKey(ev Eval) string {
	return fmt.Sprintf("%s\x00%v\x00%v\x00%s\x00%v", ev.Solution, ev.HasChecking, ev.ExplicitNil, ev.Checker, ev.Mode)
}

func getResult(ctx context.Context, ev Eval, run RunFunc, memo map[string]FinderResult) (FinderResult, error) {
	key := evalKey(ev)
	if res, ok := memo[key]; ok {
		return res, nil
	}
	res, err := run(ctx, ev)
	if err != nil {
		return FinderResult{}, err
	}
	memo[key] = res
	return res, nil
}

// Evaluate walks the boolean expression tree, invoking run for each unique
// Eval clause encountered (memoized so a solution-checker pair named
// multiple times in one expression runs only once per testcase).
func Evaluate(ctx context.Context, node Node, run RunFunc, memo map[string]FinderResult) (FinderOutcome, error) {
	switch n := node.(type) {
	case *MatchingNode:
		res, err := getResult(ctx, n.Eval, run, memo)
		if err != nil {
			return FinderOutcome{}, err
		}
		truth := checker.Matches(n.Expected, res.Outcome)
		if !n.Positive {
			truth = !truth
		}
		return FinderOutcome{TruthValue: truth, Results: []FinderResult{res}}, nil

	case *EquatingNode:
		res, err := getResult(ctx, n.Eval, run, memo)
		if err != nil {
			return FinderOutcome{}, err
		}
		results := []FinderResult{res}
		var other checker.Outcome
		if n.OtherEval != nil {
			res2, err := getResult(ctx, *n.OtherEval, run, memo)
			if err != nil {
				return FinderOutcome{}, err
			}
			results = append(results, res2)
			other = res2.Outcome
		} else {
			other = checker.Outcome(n.OtherOutcome)
		}
		truth := res.Outcome == other
		if !n.Positive {
			truth = !truth
		}
		return FinderOutcome{TruthValue: truth, Results: results}, nil

	case *AndNode:
		truth := true
		var results []FinderResult
		for _, child := range n.Children {
			out, err := Evaluate(ctx, child, run, memo)
			if err != nil {
				return FinderOutcome{}, err
			}
			results = append(results, out.Results...)
			if !out.TruthValue {
				truth = false
			}
		}
		return FinderOutcome{TruthValue: truth, Results: results}, nil

	case *OrNode:
		truth := false
		var results []FinderResult
		for _, child := range n.Children {
			out, err := Evaluate(ctx, child, run, memo)
			if err != nil {
				return FinderOutcome{}, err
			}
			results = append(results, out.Results...)
			if out.TruthValue {
				truth = true
			}
		}
		return FinderOutcome{TruthValue: truth, Results: results}, nil

	case *NotNode:
		out, err := Evaluate(ctx, n.Child, run, memo)
		if err != nil {
			return FinderOutcome{}, err
		}
		return FinderOutcome{TruthValue: !out.TruthValue, Results: out.Results}, nil

	default:
		return FinderOutcome{}, fmt.Errorf("stress: unknown node type %T", node)
	}
}

// collectEvals returns every Eval clause appearing anywhere in node, in
// left-to-right tree order, duplicates included.
func collectEvals(node Node) []Eval {
	switch n := node.(type) {
	case *MatchingNode:
		return []Eval{n.Eval}
	case *EquatingNode:
		evals := []Eval{n.Eval}
		if n.OtherEval != nil {
			evals = append(evals, *n.OtherEval)
		}
		return evals
	case *AndNode:
		var out []Eval
		for _, c := range n.Children {
			out = append(out, collectEvals(c)...)
		}
		return out
	case *OrNode:
		var out []Eval
		for _, c := range n.Children {
			out = append(out, collectEvals(c)...)
		}
		return out
	case *NotNode:
		return collectEvals(n.Child)
	default:
		return nil
	}
}
