package csg

import (
	"fmt"
	"strings"
)

// EvaluateRecursive is the reference evaluation: combine(op, eval(left),
// eval(right)) at operators and Leaf(payload) at primitives, with loop
// marks honoured the same way Evaluate honours them. It exists to
// cross-check the iterative evaluator and uses the call stack freely.
func (e *Evaluator[R]) EvaluateRecursive(root *Node) (R, error) {
	var zero R
	if e.Leaf == nil || e.Combine == nil {
		return zero, fmt.Errorf("csg: evaluator needs both Leaf and Combine")
	}
	if _, err := Check(root); err != nil {
		return zero, err
	}
	loops := e.Loops.clone()

	var eval func(n *Node) (R, error)
	eval = func(n *Node) (R, error) {
		if n.IsPrimitive() {
			return e.leaf(n)
		}
		l, err := eval(n.Left)
		if err != nil {
			return zero, err
		}
		r, err := eval(n.Right)
		if err != nil {
			return zero, err
		}
		v, err := e.combine(n, l, r)
		if err != nil {
			return zero, err
		}

		side, marked := loops.take(n.Index)
		if !marked {
			return v, nil
		}
		if err := e.advance(n, side); err != nil {
			return zero, err
		}
		if side == LoopLeft {
			l, err = eval(n.Left)
		} else {
			r, err = eval(n.Right)
		}
		if err != nil {
			return zero, err
		}
		return e.combine(n, l, r)
	}
	return eval(root)
}

// Verify evaluates root both iteratively and recursively and reports an
// error when the results differ under equal. Evaluators whose callbacks
// keep state must be reset by the caller between the two runs; Verify
// calls reset, when non-nil, before each of them.
func (e *Evaluator[R]) Verify(root *Node, equal func(a, b R) bool, reset func()) (R, error) {
	if reset != nil {
		reset()
	}
	got, err := e.Evaluate(root)
	if err != nil {
		return got, err
	}
	if reset != nil {
		reset()
	}
	want, err := e.EvaluateRecursive(root)
	if err != nil {
		return got, err
	}
	if !equal(got, want) {
		return got, invariant(0, "iterative result %v differs from recursive result %v", got, want)
	}
	return got, nil
}

// Describe renders root as a bracketed expression such as
// "union(union(sphere,box),cone)", naming primitives with name.
func Describe(root *Node, name func(payload any) string) (string, error) {
	if name == nil {
		name = func(p any) string { return fmt.Sprint(p) }
	}
	ev := Evaluator[string]{
		Leaf: func(p any) (string, error) { return name(p), nil },
		Combine: func(op Operator, l, r string) (string, error) {
			var b strings.Builder
			b.WriteString(op.String())
			b.WriteByte('(')
			b.WriteString(l)
			b.WriteByte(',')
			b.WriteString(r)
			b.WriteByte(')')
			return b.String(), nil
		},
	}
	return ev.Evaluate(root)
}
