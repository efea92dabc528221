package csg

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// exprEvaluator combines names into a bracketed expression string, the
// simplest combine under which any reordering would show.
func exprEvaluator() *Evaluator[string] {
	return &Evaluator[string]{
		Leaf: func(p any) (string, error) { return fmt.Sprint(p), nil },
		Combine: func(op Operator, l, r string) (string, error) {
			return fmt.Sprintf("%s(%s,%s)", op, l, r), nil
		},
	}
}

// generationEvaluator tags every leaf with a generation counter that each
// fired loop mark advances, standing in for a ray's advancing tmin. It also
// counts combine calls.
type generationEvaluator struct {
	Evaluator[string]
	generation int
	combines   int
}

func newGenerationEvaluator(loops LoopPlan) *generationEvaluator {
	g := &generationEvaluator{}
	g.Leaf = func(p any) (string, error) {
		return fmt.Sprintf("%v@%d", p, g.generation), nil
	}
	g.Combine = func(op Operator, l, r string) (string, error) {
		g.combines++
		return fmt.Sprintf("%s(%s,%s)", op, l, r), nil
	}
	g.Advance = func(*Node, Side) error {
		g.generation++
		return nil
	}
	g.Loops = loops
	return g
}

func (g *generationEvaluator) reset() {
	g.generation = 0
	g.combines = 0
}

// ---------------------------------------------------------------------------
// Postorder
// ---------------------------------------------------------------------------

func TestPostorderCompleteTree(t *testing.T) {
	tree, err := NewTree(numberedPrims(8), Union)
	require.NoError(t, err)

	var got []int
	for _, n := range Postorder(tree.Root) {
		got = append(got, n.Index)
	}
	require.Equal(t, []int{8, 9, 4, 10, 11, 5, 2, 12, 13, 6, 14, 15, 7, 3, 1}, got)
	require.Nil(t, Postorder(nil))
}

// ---------------------------------------------------------------------------
// Round trip
// ---------------------------------------------------------------------------

func TestEvaluateSixPrimitives(t *testing.T) {
	tree, err := NewTree(namedPrims(sixShapes...), Union)
	require.NoError(t, err)

	ev := exprEvaluator()
	got, err := ev.Evaluate(tree.Root)
	require.NoError(t, err)
	want, err := ev.EvaluateRecursive(tree.Root)
	require.NoError(t, err)

	require.Equal(t, want, got)
	require.Equal(t, "union(union(union(sphere,box),union(cone,zsphere)),union(cylinder,trapezoid))", got)
}

func TestEvaluateSinglePrimitive(t *testing.T) {
	tree, err := NewTree(namedPrims("sphere"), Difference)
	require.NoError(t, err)

	ev := exprEvaluator()
	got, err := ev.Evaluate(tree.Root)
	require.NoError(t, err)
	require.Equal(t, "sphere", got)

	rec, err := ev.EvaluateRecursive(tree.Root)
	require.NoError(t, err)
	require.Equal(t, "sphere", rec)
}

func TestEvaluateMatchesRecursive(t *testing.T) {
	for _, op := range []Operator{Union, Intersection, Difference} {
		for n := 1; n <= 64; n++ {
			tree, err := NewTree(numberedPrims(n), op)
			require.NoError(t, err)

			ev := exprEvaluator()
			got, err := ev.Verify(tree.Root, func(a, b string) bool { return a == b }, nil)
			require.NoError(t, err, "%s n=%d", op, n)
			require.Equal(t, shapeOf(tree.Root), got, "%s n=%d", op, n)
		}
	}
}

func TestEvaluateNumeric(t *testing.T) {
	// Sum of leaf values is associative, so every tree over 1..n must give
	// n(n+1)/2.
	for n := 1; n <= 64; n++ {
		prims := make([]*Node, n)
		for i := range prims {
			prims[i] = NewPrimitive(i + 1)
		}
		tree, err := NewTree(prims, Union)
		require.NoError(t, err)

		ev := Evaluator[int]{
			Leaf:    func(p any) (int, error) { return p.(int), nil },
			Combine: func(_ Operator, l, r int) (int, error) { return l + r, nil },
		}
		got, err := ev.Evaluate(tree.Root)
		require.NoError(t, err)
		require.Equal(t, n*(n+1)/2, got)
	}
}

func TestEvaluateHandBuiltUnbalancedTree(t *testing.T) {
	// A lone primitive on the left of an operator subtree, and an operator
	// left sibling next to a primitive right sibling.
	root := NewOperator(Union,
		NewPrimitive("a"),
		NewOperator(Intersection,
			NewOperator(Difference, NewPrimitive("b"), NewPrimitive("c")),
			NewPrimitive("d"),
		),
	)
	_, err := Label(root)
	require.NoError(t, err)

	ev := exprEvaluator()
	got, err := ev.Verify(root, func(a, b string) bool { return a == b }, nil)
	require.NoError(t, err)
	require.Equal(t, "union(a,intersection(difference(b,c),d))", got)
}

// ---------------------------------------------------------------------------
// Loops
// ---------------------------------------------------------------------------

func TestEvaluateLoopAboveLeaves(t *testing.T) {
	tree, err := NewTree(namedPrims("a", "b", "c", "d", "e", "f", "g", "h"), Union)
	require.NoError(t, err)

	// Node 2 sits two levels above the leaves.
	ev := newGenerationEvaluator(LoopPlan{2: LoopLeft})
	var stages []Stage
	ev.Trace = func(s Stage, _ *Node, _ int) { stages = append(stages, s) }

	got, err := ev.Evaluate(tree.Root)
	require.NoError(t, err)
	require.Equal(t,
		"union(union(union(a@1,b@1),union(c@0,d@0)),union(union(e@1,f@1),union(g@1,h@1)))",
		got)
	require.Equal(t, []Stage{StageStart, StageLoopLeft, StageResumeLeft}, stages)
	// 7 operators, plus node 4 again, plus node 2 again.
	require.Equal(t, 9, ev.combines)

	iterCombines := ev.combines
	ev.reset()
	ev.Trace = nil
	want, err := ev.EvaluateRecursive(tree.Root)
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.Equal(t, iterCombines, ev.combines)
}

func TestEvaluateLoopRightAtRoot(t *testing.T) {
	tree, err := NewTree(namedPrims("a", "b", "c", "d"), Intersection)
	require.NoError(t, err)

	ev := newGenerationEvaluator(LoopPlan{1: LoopRight})
	got, err := ev.Evaluate(tree.Root)
	require.NoError(t, err)
	require.Equal(t, "intersection(intersection(a@0,b@0),intersection(c@1,d@1))", got)
}

func TestEvaluateLoopAtPrimitiveLevel(t *testing.T) {
	tree, err := NewTree(namedPrims("a", "b", "c", "d"), Union)
	require.NoError(t, err)

	ev := newGenerationEvaluator(LoopPlan{2: LoopRight})
	var stages []Stage
	ev.Trace = func(s Stage, _ *Node, _ int) { stages = append(stages, s) }

	got, err := ev.Evaluate(tree.Root)
	require.NoError(t, err)
	require.Equal(t, "union(union(a@0,b@1),union(c@1,d@1))", got)
	require.Equal(t, []Stage{StageStart}, stages, "primitive-level loops never suspend the walk")
}

func TestEvaluateLoopsMatchRecursive(t *testing.T) {
	for n := 2; n <= 64; n++ {
		tree, err := NewTree(numberedPrims(n), Union)
		require.NoError(t, err)

		for _, node := range Postorder(tree.Root) {
			if !node.IsOperator() {
				continue
			}
			for _, side := range []Side{LoopLeft, LoopRight} {
				ev := newGenerationEvaluator(LoopPlan{node.Index: side})
				_, err := ev.Verify(tree.Root, func(a, b string) bool { return a == b }, ev.reset)
				require.NoError(t, err, "n=%d node=%d side=%s", n, node.Index, side)
			}
		}
	}
}

func TestEvaluateNestedLoops(t *testing.T) {
	tree, err := NewTree(numberedPrims(16), Difference)
	require.NoError(t, err)

	plan := LoopPlan{1: LoopLeft, 2: LoopRight, 5: LoopLeft, 7: LoopRight, 12: LoopLeft}
	ev := newGenerationEvaluator(plan)
	_, err = ev.Verify(tree.Root, func(a, b string) bool { return a == b }, ev.reset)
	require.NoError(t, err)
	require.Len(t, plan, 5, "the caller's plan must not be consumed")
}

// ---------------------------------------------------------------------------
// Failures
// ---------------------------------------------------------------------------

func TestEvaluateRejectsBadLabels(t *testing.T) {
	tree, err := NewTree(numberedPrims(6), Union)
	require.NoError(t, err)
	tree.Root.Left.Index = 5

	called := false
	ev := Evaluator[string]{
		Leaf: func(p any) (string, error) {
			called = true
			return "", nil
		},
		Combine: func(Operator, string, string) (string, error) { return "", nil },
	}
	_, err = ev.Evaluate(tree.Root)
	var tie *TreeInvariantError
	require.ErrorAs(t, err, &tie)
	require.False(t, called)
}

func TestEvaluateRejectsUnlabelledTree(t *testing.T) {
	root := NewOperator(Union, NewPrimitive("a"), NewPrimitive("b"))
	_, err := exprEvaluator().Evaluate(root)
	var tie *TreeInvariantError
	require.ErrorAs(t, err, &tie)
}

func TestEvaluateRejectsPlaceholders(t *testing.T) {
	root := NewOperator(Union, NewPrimitive("a"), newPlaceholder())
	_, err := Label(root)
	require.NoError(t, err)

	_, err = exprEvaluator().Evaluate(root)
	var tie *TreeInvariantError
	require.ErrorAs(t, err, &tie)
	require.Contains(t, tie.Error(), "placeholder")
}

func TestEvaluatePropagatesCallbackErrors(t *testing.T) {
	tree, err := NewTree(numberedPrims(5), Union)
	require.NoError(t, err)
	errBoom := errors.New("boom")

	t.Run("leaf", func(t *testing.T) {
		ev := exprEvaluator()
		ev.Leaf = func(p any) (string, error) {
			if p == "p3" {
				return "", errBoom
			}
			return fmt.Sprint(p), nil
		}
		_, err := ev.Evaluate(tree.Root)
		require.ErrorIs(t, err, errBoom)
	})

	t.Run("combine", func(t *testing.T) {
		ev := exprEvaluator()
		ev.Combine = func(Operator, string, string) (string, error) { return "", errBoom }
		_, err := ev.Evaluate(tree.Root)
		require.ErrorIs(t, err, errBoom)
	})

	t.Run("advance", func(t *testing.T) {
		ev := exprEvaluator()
		ev.Loops = LoopPlan{1: LoopLeft}
		ev.Advance = func(*Node, Side) error { return errBoom }
		_, err := ev.Evaluate(tree.Root)
		require.ErrorIs(t, err, errBoom)
	})
}

func TestEvaluatorNeedsCallbacks(t *testing.T) {
	tree, err := NewTree(numberedPrims(2), Union)
	require.NoError(t, err)

	var ev Evaluator[int]
	_, err = ev.Evaluate(tree.Root)
	require.Error(t, err)
}

// ---------------------------------------------------------------------------
// Layout and description
// ---------------------------------------------------------------------------

func TestLevelOrder(t *testing.T) {
	tree, err := NewTree(namedPrims(sixShapes...), Union)
	require.NoError(t, err)

	slots, err := LevelOrder(tree.Root)
	require.NoError(t, err)
	require.Len(t, slots, 15)
	for i, n := range slots {
		if i+1 >= 12 {
			require.Nil(t, n, "slot %d", i)
			continue
		}
		require.NotNil(t, n, "slot %d", i)
		require.Equal(t, i+1, n.Index)
	}
	require.Equal(t, "cylinder", slots[5].Payload)
}

func TestDescribe(t *testing.T) {
	tree, err := NewTree(namedPrims("a", "b", "c"), Difference)
	require.NoError(t, err)

	got, err := Describe(tree.Root, nil)
	require.NoError(t, err)
	require.Equal(t, "difference(difference(a,b),c)", got)
}

func TestParseSide(t *testing.T) {
	s, err := ParseSide("left")
	require.NoError(t, err)
	require.Equal(t, LoopLeft, s)

	s, err = ParseSide("r")
	require.NoError(t, err)
	require.Equal(t, LoopRight, s)

	_, err = ParseSide("up")
	require.Error(t, err)
}
