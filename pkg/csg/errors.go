package csg

import "fmt"

// InvalidInputError reports malformed input to tree construction, such as
// a zero primitive count or a non-primitive entry in a primitive list.
// No partial tree is returned alongside it.
type InvalidInputError struct {
	Message string
}

func (e *InvalidInputError) Error() string {
	return "csg: invalid input: " + e.Message
}

func invalidInput(format string, args ...any) error {
	return &InvalidInputError{Message: fmt.Sprintf(format, args...)}
}

// TreeInvariantError reports a structural inconsistency: bad labels,
// wrong arity, a reachable placeholder or a violated stack invariant.
// It indicates a bug in construction or labelling and is not retryable.
type TreeInvariantError struct {
	Index   int // level-order index of the offending node, 0 if tree-level
	Message string
}

func (e *TreeInvariantError) Error() string {
	if e.Index == 0 {
		return "csg: tree invariant violated: " + e.Message
	}
	return fmt.Sprintf("csg: tree invariant violated at node %d: %s", e.Index, e.Message)
}

func invariant(index int, format string, args ...any) error {
	return &TreeInvariantError{Index: index, Message: fmt.Sprintf(format, args...)}
}
