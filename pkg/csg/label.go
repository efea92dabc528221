package csg

import "math/bits"

// maxLabelDepth keeps level-order indices inside an int64.
const maxLabelDepth = 62

// DepthOf returns the depth implied by a 1-based level-order index.
func DepthOf(index int) int {
	return bits.Len(uint(index)) - 1
}

// Label assigns Index and Depth to every node reachable from root in a
// single top-down pass and returns the maximum depth.
func Label(root *Node) (int, error) {
	if root == nil {
		return 0, invariant(0, "nil root")
	}
	root.Index, root.Depth = 1, 0

	maxDepth := 0
	queue := []*Node{root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		maxDepth = max(maxDepth, n.Depth)

		for i, c := range [2]*Node{n.Left, n.Right} {
			if c == nil {
				continue
			}
			if n.Depth+1 > maxLabelDepth {
				return 0, invariant(n.Index, "tree deeper than %d levels", maxLabelDepth)
			}
			c.Index = 2*n.Index + i
			c.Depth = n.Depth + 1
			queue = append(queue, c)
		}
	}
	return maxDepth, nil
}

// Check verifies that root is a labelled, fully pruned CSG tree: every
// operator has two children addressed 2i and 2i+1, every leaf is a
// primitive, no placeholder is reachable and each Depth agrees with its
// Index. It returns the maximum depth.
func Check(root *Node) (int, error) {
	if root == nil {
		return 0, invariant(0, "nil root")
	}
	if root.Index != 1 {
		return 0, invariant(root.Index, "root index is %d, want 1", root.Index)
	}

	maxDepth := 0
	seen := make(map[*Node]bool)
	stack := []*Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if seen[n] {
			return 0, invariant(n.Index, "node reachable twice")
		}
		seen[n] = true

		if n.Index <= 0 {
			return 0, invariant(0, "unlabelled %s node", n.Kind)
		}
		if want := DepthOf(n.Index); n.Depth != want {
			return 0, invariant(n.Index, "depth %d, index implies %d", n.Depth, want)
		}
		maxDepth = max(maxDepth, n.Depth)

		switch n.Kind {
		case KindOperator:
			if !n.Op.Valid() {
				return 0, invariant(n.Index, "unknown operator %d", int(n.Op))
			}
			if n.Left == nil || n.Right == nil {
				return 0, invariant(n.Index, "operator with a missing child")
			}
			if n.Left.Index != 2*n.Index || n.Right.Index != 2*n.Index+1 {
				return 0, invariant(n.Index, "children indexed %d and %d, want %d and %d",
					n.Left.Index, n.Right.Index, 2*n.Index, 2*n.Index+1)
			}
			stack = append(stack, n.Right, n.Left)
		case KindPrimitive:
			if n.Left != nil || n.Right != nil {
				return 0, invariant(n.Index, "primitive with children")
			}
		case KindPlaceholder:
			return 0, invariant(n.Index, "placeholder reachable from root")
		default:
			return 0, invariant(n.Index, "unknown node kind %d", int(n.Kind))
		}
	}
	return maxDepth, nil
}

// Postorder returns the nodes under root in postorder (left, right, self)
// without recursion: nodes are popped from a work stack onto an output
// sequence, children pushed left then right, and the output reversed.
func Postorder(root *Node) []*Node {
	if root == nil {
		return nil
	}
	var out []*Node
	work := []*Node{root}
	for len(work) > 0 {
		n := work[len(work)-1]
		work = work[:len(work)-1]
		out = append(out, n)
		if n.Left != nil {
			work = append(work, n.Left)
		}
		if n.Right != nil {
			work = append(work, n.Right)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// LevelOrder lays the tree out as a complete-binary-tree slot array: slot
// i-1 holds the node labelled i and missing positions are nil. Its length
// is 2^(d+1)-1 for maximum depth d. This is the flat form a GPU kernel
// addresses by index arithmetic alone.
func LevelOrder(root *Node) ([]*Node, error) {
	maxDepth, err := Check(root)
	if err != nil {
		return nil, err
	}
	if maxDepth > MaxHeight {
		return nil, invariant(0, "depth %d is too deep for a slot array", maxDepth)
	}
	slots := make([]*Node, 1<<(maxDepth+1)-1)
	for _, n := range Postorder(root) {
		slots[n.Index-1] = n
	}
	return slots, nil
}
