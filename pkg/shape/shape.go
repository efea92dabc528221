// Package shape defines the primitive solids that sit at the leaves of a
// CSG tree. The tree machinery treats them as opaque payloads; geometry
// kernels interpret them.
package shape

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies a primitive solid. Values follow the numbering used by
// the GPU geometry buffers, where primitive codes start at 101.
type Kind int

const (
	KindSphere    Kind = 101
	KindBox       Kind = 102
	KindZSphere   Kind = 103
	KindCylinder  Kind = 105
	KindCone      Kind = 108
	KindTrapezoid Kind = 111
)

var kindNames = map[Kind]string{
	KindSphere:    "sphere",
	KindBox:       "box",
	KindZSphere:   "zsphere",
	KindCylinder:  "cylinder",
	KindCone:      "cone",
	KindTrapezoid: "trapezoid",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind converts a primitive name to its Kind.
func ParseKind(name string) (Kind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, s := range kindNames {
		if s == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown primitive %q", name)
}

// Vec3 is a point or extent in model units.
type Vec3 struct {
	X, Y, Z float64
}

// Data is the kind-specific parameter block of a primitive.
type Data interface {
	Kind() Kind
	Validate() error
}

// Primitive is a named, positioned primitive solid.
type Primitive struct {
	Name   string `json:"name,omitempty"`
	Center Vec3   `json:"center"`
	Data   Data   `json:"data"`
}

func (p Primitive) String() string {
	if p.Name != "" {
		return p.Name
	}
	if p.Data == nil {
		return "primitive"
	}
	return p.Data.Kind().String()
}

// Validate checks the parameter block.
func (p Primitive) Validate() error {
	if p.Data == nil {
		return errors.New("primitive has no shape data")
	}
	if err := p.Data.Validate(); err != nil {
		return fmt.Errorf("%s: %w", p.Data.Kind(), err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Shapes
// ---------------------------------------------------------------------------

// Sphere is centred on the origin.
type Sphere struct {
	Radius float64 `json:"radius"`
}

func (Sphere) Kind() Kind { return KindSphere }

func (s Sphere) Validate() error {
	return positive("radius", s.Radius)
}

// ZSphere is a sphere cut by the planes z = ZMin and z = ZMax.
type ZSphere struct {
	Radius float64 `json:"radius"`
	ZMin   float64 `json:"zmin"`
	ZMax   float64 `json:"zmax"`
}

func (ZSphere) Kind() Kind { return KindZSphere }

func (s ZSphere) Validate() error {
	if err := positive("radius", s.Radius); err != nil {
		return err
	}
	if s.ZMin >= s.ZMax {
		return fmt.Errorf("zmin %g must be below zmax %g", s.ZMin, s.ZMax)
	}
	if s.ZMax <= -s.Radius || s.ZMin >= s.Radius {
		return fmt.Errorf("z range [%g, %g] misses the sphere", s.ZMin, s.ZMax)
	}
	return nil
}

// Box is an axis-aligned box of the given full extent, centred on the origin.
type Box struct {
	Size Vec3 `json:"size"`
}

func (Box) Kind() Kind { return KindBox }

func (b Box) Validate() error {
	if err := positive("size x", b.Size.X); err != nil {
		return err
	}
	if err := positive("size y", b.Size.Y); err != nil {
		return err
	}
	return positive("size z", b.Size.Z)
}

// Cylinder has its axis along z and is centred on the origin.
type Cylinder struct {
	Radius float64 `json:"radius"`
	Height float64 `json:"height"`
}

func (Cylinder) Kind() Kind { return KindCylinder }

func (c Cylinder) Validate() error {
	if err := positive("radius", c.Radius); err != nil {
		return err
	}
	return positive("height", c.Height)
}

// Cone is a truncated cone along z with radius R1 at z = -Height/2 and R2
// at z = +Height/2.
type Cone struct {
	R1     float64 `json:"r1"`
	R2     float64 `json:"r2"`
	Height float64 `json:"height"`
}

func (Cone) Kind() Kind { return KindCone }

func (c Cone) Validate() error {
	if c.R1 < 0 || c.R2 < 0 {
		return fmt.Errorf("radii must not be negative, got %g and %g", c.R1, c.R2)
	}
	if c.R1 == 0 && c.R2 == 0 {
		return errors.New("at least one radius must be positive")
	}
	return positive("height", c.Height)
}

// Trapezoid is a trapezoidal prism: the xy cross-section has width X1 at
// y = -Y/2 and X2 at y = +Y/2, extruded Z along z.
type Trapezoid struct {
	X1 float64 `json:"x1"`
	X2 float64 `json:"x2"`
	Y  float64 `json:"y"`
	Z  float64 `json:"z"`
}

func (Trapezoid) Kind() Kind { return KindTrapezoid }

func (t Trapezoid) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{{"x1", t.X1}, {"x2", t.X2}, {"y", t.Y}, {"z", t.Z}} {
		if err := positive(f.name, f.v); err != nil {
			return err
		}
	}
	return nil
}

func positive(name string, v float64) error {
	if v <= 0 {
		return fmt.Errorf("%s must be positive, got %g", name, v)
	}
	return nil
}
