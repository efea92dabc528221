// Package tessellate turns CSG trees into kernel solids, triangle meshes
// and signed distances. Every tree is evaluated bottom-up with the
// iterative csg evaluator; one mesh is produced per tree.
package tessellate

import (
	"errors"
	"fmt"
	"math"

	"github.com/chazu/csgtree/pkg/csg"
	"github.com/chazu/csgtree/pkg/kernel"
	"github.com/chazu/csgtree/pkg/shape"
)

// primitiveOf extracts the shape carried by a leaf payload.
func primitiveOf(payload any) (shape.Primitive, error) {
	switch p := payload.(type) {
	case shape.Primitive:
		return p, nil
	case *shape.Primitive:
		if p == nil {
			return shape.Primitive{}, errors.New("nil primitive")
		}
		return *p, nil
	default:
		return shape.Primitive{}, fmt.Errorf("unsupported payload type %T", payload)
	}
}

// primitiveSolid creates the kernel solid for one primitive, placed at
// its centre.
func primitiveSolid(k kernel.Kernel, p shape.Primitive) (kernel.Solid, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}

	var (
		solid kernel.Solid
		err   error
	)
	switch data := p.Data.(type) {
	case shape.Sphere:
		solid, err = k.Sphere(data.Radius)
	case shape.ZSphere:
		solid, err = k.ZSphere(data.Radius, data.ZMin, data.ZMax)
	case shape.Box:
		solid, err = k.Box(data.Size.X, data.Size.Y, data.Size.Z)
	case shape.Cylinder:
		solid, err = k.Cylinder(data.Height, data.Radius)
	case shape.Cone:
		solid, err = k.Cone(data.Height, data.R1, data.R2)
	case shape.Trapezoid:
		solid, err = k.Trapezoid(data.X1, data.X2, data.Y, data.Z)
	default:
		return nil, fmt.Errorf("%s: unsupported shape %T", p, p.Data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}

	c := p.Center
	return k.Translate(solid, c.X, c.Y, c.Z), nil
}

// Solid evaluates tree into a single kernel solid.
func Solid(tree *csg.Tree, k kernel.Kernel) (kernel.Solid, error) {
	if tree == nil || tree.Root == nil {
		return nil, errors.New("tessellate: empty tree")
	}
	ev := csg.Evaluator[kernel.Solid]{
		Leaf: func(payload any) (kernel.Solid, error) {
			p, err := primitiveOf(payload)
			if err != nil {
				return nil, err
			}
			return primitiveSolid(k, p)
		},
		Combine: func(op csg.Operator, l, r kernel.Solid) (kernel.Solid, error) {
			switch op {
			case csg.Union:
				return k.Union(l, r), nil
			case csg.Intersection:
				return k.Intersection(l, r), nil
			case csg.Difference:
				return k.Difference(l, r), nil
			}
			return nil, fmt.Errorf("unknown operator %s", op)
		},
	}
	s, err := ev.Evaluate(tree.Root)
	if err != nil {
		return nil, fmt.Errorf("tessellate: tree %q: %w", tree.Name, err)
	}
	return s, nil
}

// Tessellate produces one triangle mesh per tree using the provided
// geometry kernel. The trees are never mutated.
func Tessellate(trees []*csg.Tree, k kernel.Kernel) ([]*kernel.Mesh, error) {
	meshes := make([]*kernel.Mesh, 0, len(trees))
	for _, tree := range trees {
		solid, err := Solid(tree, k)
		if err != nil {
			return nil, err
		}
		mesh, err := k.ToMesh(solid)
		if err != nil {
			return nil, fmt.Errorf("tessellate: ToMesh failed for tree %q: %w", tree.Name, err)
		}
		mesh.PartName = tree.Name
		meshes = append(meshes, mesh)
	}
	return meshes, nil
}

// Distance returns the signed distance from p to the solid described by
// tree, combining per-primitive distances with min, max and max(a, -b).
// This is the same combination a ray or SDF kernel applies node by node.
func Distance(tree *csg.Tree, k kernel.Kernel, p [3]float64) (float64, error) {
	if tree == nil || tree.Root == nil {
		return 0, errors.New("tessellate: empty tree")
	}
	ev := csg.Evaluator[float64]{
		Leaf: func(payload any) (float64, error) {
			prim, err := primitiveOf(payload)
			if err != nil {
				return 0, err
			}
			s, err := primitiveSolid(k, prim)
			if err != nil {
				return 0, err
			}
			return s.Distance(p), nil
		},
		Combine: CombineDistance,
	}
	d, err := ev.Evaluate(tree.Root)
	if err != nil {
		return 0, fmt.Errorf("tessellate: tree %q: %w", tree.Name, err)
	}
	return d, nil
}

// CombineDistance applies a boolean operator to two signed distances.
func CombineDistance(op csg.Operator, l, r float64) (float64, error) {
	switch op {
	case csg.Union:
		return math.Min(l, r), nil
	case csg.Intersection:
		return math.Max(l, r), nil
	case csg.Difference:
		return math.Max(l, -r), nil
	}
	return 0, fmt.Errorf("unknown operator %s", op)
}
