// Package csg builds and evaluates CSG boolean trees.
// A tree is a strictly binary tree of operator nodes over primitive leaves,
// addressed by 1-based level-order indices so that it can be walked
// without recursion by a single postorder pass and two bounded stacks.
package csg
