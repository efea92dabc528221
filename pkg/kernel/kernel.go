// Package kernel defines the abstract geometry kernel interface.
// Implementations provide primitive solids and boolean operations behind
// this interface, so that a CSG tree can be turned into geometry without
// the tree code knowing which backend is in use.
package kernel

// Solid is an opaque handle to a geometry kernel solid.
// Implementations wrap their internal representation.
type Solid interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() (min, max [3]float64)
	// Distance returns the signed distance from p to the surface,
	// negative inside.
	Distance(p [3]float64) float64
}

// Kernel is the abstract geometry kernel interface.
// All primitives are centred on the origin; Translate places them.
type Kernel interface {
	// Primitives
	Sphere(radius float64) (Solid, error)
	ZSphere(radius, zmin, zmax float64) (Solid, error)
	Box(x, y, z float64) (Solid, error)
	Cylinder(height, radius float64) (Solid, error)
	Cone(height, r1, r2 float64) (Solid, error)
	Trapezoid(x1, x2, y, z float64) (Solid, error)

	// Boolean operations
	Union(a, b Solid) Solid
	Difference(a, b Solid) Solid
	Intersection(a, b Solid) Solid

	// Transforms
	Translate(s Solid, x, y, z float64) Solid

	// Mesh output
	ToMesh(s Solid) (*Mesh, error)
}
