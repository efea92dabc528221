package engine

import (
	"fmt"

	"github.com/chazu/csgtree/pkg/csg"
	"github.com/chazu/csgtree/pkg/shape"
	"github.com/google/uuid"
)

// Design is the result of evaluating one source file: the CSG trees it
// declares, in declaration order, plus the named primitives they were
// built from. Each evaluation produces a new Design.
type Design struct {
	ID    uuid.UUID
	Trees []*csg.Tree

	index map[string]*csg.Tree
	prims map[string]shape.Primitive
}

// NewDesign creates an empty Design with a fresh ID.
func NewDesign() *Design {
	return &Design{
		ID:    uuid.New(),
		index: make(map[string]*csg.Tree),
		prims: make(map[string]shape.Primitive),
	}
}

// AddTree appends a tree. Tree names must be unique within a design.
func (d *Design) AddTree(t *csg.Tree) error {
	if t.Name == "" {
		return fmt.Errorf("tree has no name")
	}
	if _, dup := d.index[t.Name]; dup {
		return fmt.Errorf("duplicate tree name %q", t.Name)
	}
	d.Trees = append(d.Trees, t)
	d.index[t.Name] = t
	return nil
}

// Lookup returns the tree with the given name, or nil.
func (d *Design) Lookup(name string) *csg.Tree {
	return d.index[name]
}

// MustLookup returns the tree with the given name, or panics.
func (d *Design) MustLookup(name string) *csg.Tree {
	t := d.Lookup(name)
	if t == nil {
		panic(fmt.Sprintf("engine: no tree named %q", name))
	}
	return t
}

// TreeCount returns the number of trees.
func (d *Design) TreeCount() int {
	return len(d.Trees)
}

// definePrimitive registers a named primitive for later (prim "name") calls.
func (d *Design) definePrimitive(p shape.Primitive) error {
	if _, dup := d.prims[p.Name]; dup {
		return fmt.Errorf("duplicate primitive name %q", p.Name)
	}
	d.prims[p.Name] = p
	return nil
}

// Primitive returns the named primitive defined with defprim.
func (d *Design) Primitive(name string) (shape.Primitive, bool) {
	p, ok := d.prims[name]
	return p, ok
}
