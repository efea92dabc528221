package csg

import "fmt"

// Side selects the subtree a loop mark re-walks.
type Side int

const (
	LoopLeft Side = iota + 1
	LoopRight
)

func (s Side) String() string {
	switch s {
	case LoopLeft:
		return "left"
	case LoopRight:
		return "right"
	default:
		return fmt.Sprintf("Side(%d)", int(s))
	}
}

// ParseSide converts "left" or "right" to a Side.
func ParseSide(name string) (Side, error) {
	switch name {
	case "left", "l":
		return LoopLeft, nil
	case "right", "r":
		return LoopRight, nil
	}
	return 0, fmt.Errorf("invalid loop side %q, expected left or right", name)
}

// LoopPlan marks operator nodes, by level-order index, whose left or right
// subtree must be walked a second time after the node is first combined.
// Each mark fires once per evaluation.
type LoopPlan map[int]Side

// take reports and clears the mark on index.
func (lp LoopPlan) take(index int) (Side, bool) {
	s, ok := lp[index]
	if ok {
		delete(lp, index)
	}
	return s, ok
}

func (lp LoopPlan) clone() LoopPlan {
	out := make(LoopPlan, len(lp))
	for k, v := range lp {
		out[k] = v
	}
	return out
}

// Stage records why a frame is on the work-list.
type Stage int

const (
	StageStart Stage = iota
	StageLoopLeft
	StageLoopRight
	StageResumeLeft
	StageResumeRight
)

func (s Stage) String() string {
	switch s {
	case StageStart:
		return "start"
	case StageLoopLeft:
		return "loop-left"
	case StageLoopRight:
		return "loop-right"
	case StageResumeLeft:
		return "resume-from-loop-left"
	case StageResumeRight:
		return "resume-from-loop-right"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

type (
	// LeafFunc evaluates a primitive payload.
	LeafFunc[R any] func(payload any) (R, error)
	// CombineFunc applies an operator to the results of both children.
	CombineFunc[R any] func(op Operator, left, right R) (R, error)
	// AdvanceFunc is called when a loop mark fires, before the marked
	// subtree is walked again, so the caller can move whatever upstream
	// parameter the subtree depends on.
	AdvanceFunc func(n *Node, side Side) error
	// TraceFunc observes each work-list frame as it is taken.
	TraceFunc func(stage Stage, root *Node, cursor int)
)

// Evaluator evaluates a labelled tree bottom-up. Leaf and Combine are
// required; the rest are optional.
type Evaluator[R any] struct {
	Leaf    LeafFunc[R]
	Combine CombineFunc[R]
	Loops   LoopPlan
	Advance AdvanceFunc
	Trace   TraceFunc
}

// frame is one entry of the evaluation work-list: a subtree root, the
// cursor into that subtree's postorder sequence and the reason it is there.
type frame struct {
	root   *Node
	cursor int
	stage  Stage
}

// Evaluate computes the value a recursive postorder evaluation of root
// would produce, using an explicit work-list and two bounded value stacks
// instead of the call stack.
//
// The postorder sequence is walked with a cursor. Two sibling primitives
// followed by their parent (indices 2p, 2p+1, p) are evaluated in one step.
// Any other entry is either a lone primitive, evaluated directly, or an
// operator whose child results are popped from the stacks. Every result is
// pushed onto the left stack when its node index is even and onto the
// right stack when odd, so the root result ends up alone on the right
// stack.
func (e *Evaluator[R]) Evaluate(root *Node) (R, error) {
	var zero R
	if e.Leaf == nil || e.Combine == nil {
		return zero, fmt.Errorf("csg: evaluator needs both Leaf and Combine")
	}
	maxDepth, err := Check(root)
	if err != nil {
		return zero, err
	}

	loops := e.Loops.clone()
	capacity := 2 * (maxDepth + 1)
	lhs := newBoundedStack[R]("left", capacity)
	rhs := newBoundedStack[R]("right", capacity)
	sequences := make(map[*Node][]*Node)

	push := func(n *Node, v R) error {
		if n.Index%2 == 0 {
			return lhs.push(n.Index, v)
		}
		return rhs.push(n.Index, v)
	}

	work := []frame{{root: root, stage: StageStart}}
	for len(work) > 0 {
		f := work[len(work)-1]
		work = work[:len(work)-1]
		if e.Trace != nil {
			e.Trace(f.stage, f.root, f.cursor)
		}

		seq, ok := sequences[f.root]
		if !ok {
			seq = Postorder(f.root)
			sequences[f.root] = seq
		}

		c := f.cursor
	walk:
		for c < len(seq) {
			var (
				l, r, p *Node
				el, er  R
				step    int
			)
			if isTriple(seq, c) {
				l, r, p = seq[c], seq[c+1], seq[c+2]
				step = 3
				if el, err = e.leaf(l); err != nil {
					return zero, err
				}
				if er, err = e.leaf(r); err != nil {
					return zero, err
				}
			} else {
				p = seq[c]
				step = 1
				if p.IsPrimitive() {
					v, err := e.leaf(p)
					if err != nil {
						return zero, err
					}
					if err := push(p, v); err != nil {
						return zero, err
					}
					c++
					continue
				}
				if er, err = rhs.pop(p.Index); err != nil {
					return zero, err
				}
				if el, err = lhs.pop(p.Index); err != nil {
					return zero, err
				}
			}

			ep, err := e.combine(p, el, er)
			if err != nil {
				return zero, err
			}

			if side, marked := loops.take(p.Index); marked {
				if err := e.advance(p, side); err != nil {
					return zero, err
				}
				if step == 1 {
					// Put back the side that stays valid, park this walk at p
					// and walk the marked subtree first. On resume p pops both
					// sides again.
					resume, loop, child := StageResumeLeft, StageLoopLeft, p.Left
					if side == LoopLeft {
						err = rhs.push(p.Index, er)
					} else {
						resume, loop, child = StageResumeRight, StageLoopRight, p.Right
						err = lhs.push(p.Index, el)
					}
					if err != nil {
						return zero, err
					}
					work = append(work,
						frame{root: f.root, cursor: c, stage: resume},
						frame{root: child, stage: loop},
					)
					break walk
				}
				// Primitive level: rerun the marked leaf directly.
				if side == LoopLeft {
					el, err = e.leaf(l)
				} else {
					er, err = e.leaf(r)
				}
				if err != nil {
					return zero, err
				}
				if ep, err = e.combine(p, el, er); err != nil {
					return zero, err
				}
			}

			if err := push(p, ep); err != nil {
				return zero, err
			}
			c += step
		}
	}

	if lhs.len() != 0 {
		return zero, invariant(0, "left stack holds %d values after evaluation, want 0", lhs.len())
	}
	if rhs.len() != 1 {
		return zero, invariant(0, "right stack holds %d values after evaluation, want 1", rhs.len())
	}
	return rhs.pop(root.Index)
}

// isTriple reports whether seq[c:c+3] is two sibling primitives followed
// by their parent. The index pattern alone is not enough in a pruned tree:
// a left sibling that is itself an operator also ends its own postorder
// run right before the right sibling.
func isTriple(seq []*Node, c int) bool {
	if c+2 >= len(seq) {
		return false
	}
	l, r, p := seq[c], seq[c+1], seq[c+2]
	return r.Index-l.Index == 1 && 2*p.Index == l.Index &&
		l.IsPrimitive() && r.IsPrimitive()
}

func (e *Evaluator[R]) leaf(n *Node) (R, error) {
	v, err := e.Leaf(n.Payload)
	if err != nil {
		var zero R
		return zero, fmt.Errorf("csg: leaf %d: %w", n.Index, err)
	}
	return v, nil
}

func (e *Evaluator[R]) combine(n *Node, l, r R) (R, error) {
	v, err := e.Combine(n.Op, l, r)
	if err != nil {
		var zero R
		return zero, fmt.Errorf("csg: %s %d: %w", n.Op, n.Index, err)
	}
	return v, nil
}

func (e *Evaluator[R]) advance(n *Node, side Side) error {
	if e.Advance == nil {
		return nil
	}
	if err := e.Advance(n, side); err != nil {
		return fmt.Errorf("csg: advance %s of %d: %w", side, n.Index, err)
	}
	return nil
}

// boundedStack is a fixed-capacity value stack, the only kind of
// auxiliary storage a non-recursive kernel can rely on.
type boundedStack[R any] struct {
	name string
	vals []R
}

func newBoundedStack[R any](name string, capacity int) *boundedStack[R] {
	return &boundedStack[R]{name: name, vals: make([]R, 0, capacity)}
}

func (s *boundedStack[R]) len() int { return len(s.vals) }

func (s *boundedStack[R]) push(index int, v R) error {
	if len(s.vals) == cap(s.vals) {
		return invariant(index, "%s stack overflow at capacity %d", s.name, cap(s.vals))
	}
	s.vals = append(s.vals, v)
	return nil
}

func (s *boundedStack[R]) pop(index int) (R, error) {
	if len(s.vals) == 0 {
		var zero R
		return zero, invariant(index, "pop from empty %s stack", s.name)
	}
	v := s.vals[len(s.vals)-1]
	s.vals = s.vals[:len(s.vals)-1]
	return v, nil
}
