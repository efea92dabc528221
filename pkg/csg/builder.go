package csg

import (
	"math/bits"
	"slices"

	"github.com/samber/lo"
)

// MaxHeight bounds the skeleton height, and so the primitive count, that
// the builder accepts.
const MaxHeight = 16

// HeightFor returns the minimal h with 2^h >= n. It is 0 for n == 1.
func HeightFor(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}

// NewTree builds the smallest complete binary tree with op at every
// internal node that can hold prims, fills it, prunes the unused slots and
// labels the result. Leaves read left to right in the order of prims.
func NewTree(prims []*Node, op Operator) (*Tree, error) {
	if !op.Valid() {
		return nil, invalidInput("unknown operator %d", int(op))
	}
	if len(prims) == 0 {
		return nil, invalidInput("no primitives")
	}
	if err := checkPrimitives(prims); err != nil {
		return nil, err
	}

	n := len(prims)
	skeleton, err := Build(n, op)
	if err != nil {
		return nil, err
	}
	// Populate consumes from the end, so hand it the reversed list.
	root, err := Populate(skeleton, lo.Reverse(slices.Clone(prims)))
	if err != nil {
		return nil, err
	}
	root = Prune(root)

	if _, err := Label(root); err != nil {
		return nil, err
	}
	if _, err := Check(root); err != nil {
		return nil, err
	}

	h := HeightFor(n)
	return &Tree{
		Root:       root,
		Operator:   op,
		Height:     h,
		Primitives: n,
		Pruned:     1<<h - n,
	}, nil
}

// Build returns a skeleton for n primitives: a complete tree of op nodes
// of height HeightFor(n) whose elevation-1 nodes carry two placeholder
// leaves. For n == 1 the skeleton is a single placeholder slot.
func Build(n int, op Operator) (*Node, error) {
	if n <= 0 {
		return nil, invalidInput("primitive count must be positive, got %d", n)
	}
	if !op.Valid() {
		return nil, invalidInput("unknown operator %d", int(op))
	}
	h := HeightFor(n)
	if h > MaxHeight {
		return nil, invalidInput("%d primitives need height %d, limit is %d", n, h, MaxHeight)
	}

	row := make([]*Node, 1<<h)
	for i := range row {
		row[i] = newPlaceholder()
	}
	// Pair up each row into its parents until only the root is left.
	for len(row) > 1 {
		parents := make([]*Node, len(row)/2)
		for i := range parents {
			parents[i] = NewOperator(op, row[2*i], row[2*i+1])
		}
		row = parents
	}
	return row[0], nil
}

// Populate replaces placeholder leaves of skeleton with primitives popped
// from the end of prims. Operators are visited in order and each fills its
// left slot before its right slot. Slots left over once prims runs out stay
// placeholders. More primitives than slots is an error and leaves skeleton
// untouched. The returned root differs from skeleton only when the skeleton
// is a single slot.
func Populate(skeleton *Node, prims []*Node) (*Node, error) {
	if skeleton == nil {
		return nil, invalidInput("nil skeleton")
	}
	if err := checkPrimitives(prims); err != nil {
		return nil, err
	}
	slots := 0
	for _, n := range Postorder(skeleton) {
		if n.IsPlaceholder() {
			slots++
		}
	}
	if len(prims) > slots {
		return nil, invalidInput("%d primitives for %d slots", len(prims), slots)
	}

	pop := func() *Node {
		if len(prims) == 0 {
			return nil
		}
		last := prims[len(prims)-1]
		prims = prims[:len(prims)-1]
		return last
	}

	if skeleton.IsPlaceholder() {
		if p := pop(); p != nil {
			return p, nil
		}
		return skeleton, nil
	}

	var stack []*Node
	cur := skeleton
	for cur != nil || len(stack) > 0 {
		for cur != nil {
			stack = append(stack, cur)
			cur = cur.Left
		}
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if n.IsOperator() && len(prims) > 0 {
			if n.Left.IsPlaceholder() {
				n.Left = pop()
			}
			if n.Right.IsPlaceholder() && len(prims) > 0 {
				n.Right = pop()
			}
		}
		cur = n.Right
	}
	return skeleton, nil
}

// Prune removes unfilled slots bottom-up. An operator child whose two
// slots are empty collapses to a single placeholder; an operator child
// with exactly one empty slot is replaced by its other child. The root is
// normalised the same way, so the returned root may differ from root.
// Prune is idempotent.
func Prune(root *Node) *Node {
	for _, n := range Postorder(root) {
		if !n.IsOperator() {
			continue
		}
		n.Left = collapse(n.Left)
		n.Right = collapse(n.Right)
	}
	return collapse(root)
}

func collapse(n *Node) *Node {
	if n.bothPlaceholders() {
		return newPlaceholder()
	}
	if c := n.loneChild(); c != nil {
		return c
	}
	return n
}

// checkPrimitives rejects non-primitive entries and entries that appear
// more than once, since sharing would turn the tree into a DAG.
func checkPrimitives(prims []*Node) error {
	if _, i, found := lo.FindIndexOf(prims, func(n *Node) bool { return !n.IsPrimitive() }); found {
		kind := "nil"
		if prims[i] != nil {
			kind = prims[i].Kind.String()
		}
		return invalidInput("entry %d is %s, expected primitive", i, kind)
	}
	if dup := lo.FindDuplicates(prims); len(dup) > 0 {
		return invalidInput("primitive %v appears more than once", dup[0].Payload)
	}
	return nil
}
