package csg

import (
	"fmt"
	"strings"
)

// Kind tags what a node is. Exactly one kind holds per node.
type Kind int

const (
	KindPlaceholder Kind = iota // unfilled leaf slot, only present during construction
	KindOperator                // boolean operator with two children
	KindPrimitive               // leaf carrying a primitive payload
)

func (k Kind) String() string {
	switch k {
	case KindPlaceholder:
		return "placeholder"
	case KindOperator:
		return "operator"
	case KindPrimitive:
		return "primitive"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Operator is the boolean operation of an operator node.
type Operator int

const (
	Union        Operator = 1
	Intersection Operator = 2
	Difference   Operator = 3
)

func (op Operator) String() string {
	switch op {
	case Union:
		return "union"
	case Intersection:
		return "intersection"
	case Difference:
		return "difference"
	default:
		return fmt.Sprintf("Operator(%d)", int(op))
	}
}

// Valid reports whether op is one of the three boolean operators.
func (op Operator) Valid() bool {
	return op >= Union && op <= Difference
}

// ParseOperator converts an operator name to an Operator.
func ParseOperator(name string) (Operator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "union":
		return Union, nil
	case "intersection", "intersect":
		return Intersection, nil
	case "difference":
		return Difference, nil
	}
	return 0, fmt.Errorf("invalid operator %q, expected union, intersection or difference", name)
}

// Node is a vertex of a CSG tree.
//
// Index and Depth are zero until the tree has been labelled. After
// construction a tree is treated as immutable; evaluators only read it.
type Node struct {
	Kind    Kind
	Op      Operator // meaningful only for KindOperator
	Left    *Node
	Right   *Node
	Index   int // 1-based level-order index: root 1, children 2i and 2i+1
	Depth   int // distance from the root
	Payload any // primitive descriptor, opaque to this package
}

// NewPrimitive returns a leaf node carrying payload.
func NewPrimitive(payload any) *Node {
	return &Node{Kind: KindPrimitive, Payload: payload}
}

// NewOperator returns an operator node over left and right.
func NewOperator(op Operator, left, right *Node) *Node {
	return &Node{Kind: KindOperator, Op: op, Left: left, Right: right}
}

func newPlaceholder() *Node {
	return &Node{Kind: KindPlaceholder}
}

func (n *Node) IsOperator() bool    { return n != nil && n.Kind == KindOperator }
func (n *Node) IsPrimitive() bool   { return n != nil && n.Kind == KindPrimitive }
func (n *Node) IsPlaceholder() bool { return n != nil && n.Kind == KindPlaceholder }

// bothPlaceholders reports an operator whose two slots are both empty.
func (n *Node) bothPlaceholders() bool {
	return n.IsOperator() && n.Left.IsPlaceholder() && n.Right.IsPlaceholder()
}

// loneChild returns the single real child of an operator whose other slot
// is a placeholder, or nil.
func (n *Node) loneChild() *Node {
	if !n.IsOperator() {
		return nil
	}
	switch {
	case n.Left.IsPlaceholder() && !n.Right.IsPlaceholder():
		return n.Right
	case n.Right.IsPlaceholder() && !n.Left.IsPlaceholder():
		return n.Left
	}
	return nil
}

func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	switch n.Kind {
	case KindOperator:
		return fmt.Sprintf("%s[%d]", n.Op, n.Index)
	case KindPrimitive:
		return fmt.Sprintf("%v[%d]", n.Payload, n.Index)
	default:
		return fmt.Sprintf("zero[%d]", n.Index)
	}
}

// Tree is a built, pruned and labelled CSG tree.
type Tree struct {
	Name       string
	Root       *Node
	Operator   Operator
	Height     int // skeleton height: minimal h with 2^h >= Primitives
	Primitives int
	Pruned     int // leaf slots removed by pruning, 2^Height - Primitives
}
