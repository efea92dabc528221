package engine

import (
	"strings"
	"testing"

	"github.com/chazu/csgtree/pkg/csg"
	"github.com/chazu/csgtree/pkg/shape"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Preprocessing tests
// ---------------------------------------------------------------------------

func TestPreprocessKeywords(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{
			name:   "simple keyword",
			input:  `(sphere :radius 10)`,
			expect: `(sphere "__kw_radius" 10)`,
		},
		{
			name:   "multiple keywords",
			input:  `(cone :r1 6 :height 12)`,
			expect: `(cone "__kw_r1" 6 "__kw_height" 12)`,
		},
		{
			name:   "keyword in string preserved",
			input:  `"thing with :keyword inside"`,
			expect: `"thing with :keyword inside"`,
		},
		{
			name:   "assignment operator preserved",
			input:  `(def x := 10)`,
			expect: `(def x := 10)`,
		},
		{
			name:   "kebab-case identifier",
			input:  `(csg-tree "t" :op :union)`,
			expect: `(csg_tree "t" "__kw_op" "__kw_union")`,
		},
		{
			name:   "minus operator preserved",
			input:  `(- 10 5)`,
			expect: `(- 10 5)`,
		},
		{
			name:   "negative literal preserved",
			input:  `:zmin -4`,
			expect: `"__kw_zmin" -4`,
		},
		{
			name:   "comment converted to // style",
			input:  `;; comment with :keyword`,
			expect: `// comment with :keyword`,
		},
		{
			name:   "single semicolon comment",
			input:  `; simple comment`,
			expect: `// simple comment`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expect, preprocessSource(tt.input))
		})
	}
}

// mustEvaluate evaluates source and fails the test on any error.
func mustEvaluate(t *testing.T, source string) *Design {
	t.Helper()
	d, evalErrs, err := newTestEngine().Evaluate(source)
	require.NoError(t, err)
	require.Empty(t, evalErrs)
	require.NotNil(t, d)
	return d
}

// expectEvalError evaluates source and returns the first eval error.
func expectEvalError(t *testing.T, source string) EvalError {
	t.Helper()
	d, evalErrs, err := newTestEngine().Evaluate(source)
	require.NoError(t, err, "expected a non-fatal eval error")
	require.Nil(t, d)
	require.NotEmpty(t, evalErrs)
	return evalErrs[0]
}

// leafShapes returns the primitives of a tree in left-to-right order.
func leafShapes(t *testing.T, tree *csg.Tree) []shape.Primitive {
	t.Helper()
	var out []shape.Primitive
	for _, n := range csg.Postorder(tree.Root) {
		if !n.IsPrimitive() {
			continue
		}
		p, ok := n.Payload.(shape.Primitive)
		require.True(t, ok, "leaf %d carries %T, want shape.Primitive", n.Index, n.Payload)
		out = append(out, p)
	}
	return out
}

// ---------------------------------------------------------------------------
// Shape builtins
// ---------------------------------------------------------------------------

func TestSingleSphereTree(t *testing.T) {
	d := mustEvaluate(t, `(csg-tree "ball" (sphere :radius 10 :name "s"))`)
	require.Equal(t, 1, d.TreeCount())

	tree := d.Lookup("ball")
	require.NotNil(t, tree)
	require.Equal(t, 0, tree.Height)
	require.Equal(t, 1, tree.Primitives)
	require.Equal(t, csg.Union, tree.Operator)

	prims := leafShapes(t, tree)
	require.Equal(t, shape.Sphere{Radius: 10}, prims[0].Data)
	require.Equal(t, "s", prims[0].Name)
}

func TestAllShapes(t *testing.T) {
	source := `
(csg-tree "six" :op :union
  (list
    (sphere :radius 10)
    (box :size (vec3 15 15 15) :at (vec3 12 0 0))
    (cone :r1 6 :r2 2 :height 12 :at (vec3 0 12 0))
    (zsphere :radius 8 :zmin -4 :zmax 6 :at (vec3 0 0 12))
    (cylinder :radius 4 :height 20 :at (vec3 -12 0 0))
    (trapezoid :x1 10 :x2 6 :y 6 :z 4 :at (vec3 0 -12 0))))
`
	d := mustEvaluate(t, source)
	tree := d.MustLookup("six")

	require.Equal(t, 3, tree.Height)
	require.Equal(t, 2, tree.Pruned)

	want := []shape.Kind{
		shape.KindSphere, shape.KindBox, shape.KindCone,
		shape.KindZSphere, shape.KindCylinder, shape.KindTrapezoid,
	}
	prims := leafShapes(t, tree)
	require.Len(t, prims, len(want))
	for i, p := range prims {
		require.Equal(t, want[i], p.Data.Kind(), "leaf %d", i)
	}

	require.Equal(t, shape.Vec3{X: 12}, prims[1].Center)
	require.Equal(t, shape.ZSphere{Radius: 8, ZMin: -4, ZMax: 6}, prims[3].Data)
}

func TestZSphereDefaultsToFullSphere(t *testing.T) {
	d := mustEvaluate(t, `(csg-tree "z" (zsphere :radius 3))`)
	z := leafShapes(t, d.MustLookup("z"))[0].Data
	require.Equal(t, shape.ZSphere{Radius: 3, ZMin: -3, ZMax: 3}, z)
}

func TestOperatorKeyword(t *testing.T) {
	tests := []struct {
		src  string
		want csg.Operator
	}{
		{`(csg-tree "t" :op :union (sphere :radius 1) (sphere :radius 2))`, csg.Union},
		{`(csg-tree "t" :op :intersection (sphere :radius 1) (sphere :radius 2))`, csg.Intersection},
		{`(csg-tree "t" :op :difference (sphere :radius 1) (sphere :radius 2))`, csg.Difference},
		{`(csg-tree "t" :op "intersect" (sphere :radius 1) (sphere :radius 2))`, csg.Intersection},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			d := mustEvaluate(t, tt.src)
			tree := d.MustLookup("t")
			require.Equal(t, tt.want, tree.Operator)
			require.Equal(t, tt.want, tree.Root.Op)
		})
	}
}

func TestDefaultOperator(t *testing.T) {
	eng := newTestEngine()
	eng.DefaultOp = csg.Difference

	d, evalErrs, err := eng.Evaluate(`(csg-tree "t" (sphere :radius 2) (sphere :radius 1))`)
	require.NoError(t, err)
	require.Empty(t, evalErrs)
	require.Equal(t, csg.Difference, d.MustLookup("t").Operator)
}

// ---------------------------------------------------------------------------
// Named primitives and variables
// ---------------------------------------------------------------------------

func TestDefprimAndPrim(t *testing.T) {
	source := `
(defprim "bulb" (sphere :radius 5))
(defprim "stem" (cylinder :radius 1 :height 10 :at (vec3 0 0 -5)))
(csg-tree "lamp" :op :union (list (prim "bulb") (prim "stem")))
(csg-tree "bulb-only" (prim "bulb"))
`
	d := mustEvaluate(t, source)
	require.Equal(t, 2, d.TreeCount())

	prims := leafShapes(t, d.MustLookup("lamp"))
	require.Equal(t, "bulb", prims[0].Name)
	require.Equal(t, "stem", prims[1].Name)
	require.Equal(t, -5.0, prims[1].Center.Z)

	// A primitive shared by two trees gets distinct nodes in each.
	a := d.MustLookup("lamp").Root.Left
	b := d.MustLookup("bulb-only").Root
	require.NotSame(t, a, b, "trees must not share leaf nodes")
	require.Equal(t, 2, a.Index)
	require.Equal(t, 1, b.Index)

	_, ok := d.Primitive("bulb")
	require.True(t, ok, "expected primitive 'bulb' in design")
}

func TestVariableReference(t *testing.T) {
	source := `
(def r 7)
(def parts (list (sphere :radius r) (box :size (vec3 r r r))))
(csg-tree "vars" parts)
`
	d := mustEvaluate(t, source)
	prims := leafShapes(t, d.MustLookup("vars"))
	require.Equal(t, shape.Sphere{Radius: 7}, prims[0].Data)
	require.Equal(t, shape.Box{Size: shape.Vec3{X: 7, Y: 7, Z: 7}}, prims[1].Data)
}

func TestManyPrimitivesPrune(t *testing.T) {
	var b strings.Builder
	b.WriteString(`(csg-tree "many" (list`)
	for i := 1; i <= 9; i++ {
		b.WriteString(` (sphere :radius 1)`)
	}
	b.WriteString(`))`)

	tree := mustEvaluate(t, b.String()).MustLookup("many")
	require.Equal(t, 4, tree.Height)
	require.Equal(t, 7, tree.Pruned)
	require.Len(t, leafShapes(t, tree), 9)
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

func TestBuiltinErrors(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		contain string
	}{
		{"missing radius", `(sphere)`, "missing :radius"},
		{"negative radius", `(sphere :radius -1)`, "radius must be positive"},
		{"bad box size", `(box :size 3)`, "expected vec3"},
		{"zsphere inverted", `(zsphere :radius 2 :zmin 1 :zmax -1)`, "zmin"},
		{"positional to shape", `(sphere 3)`, "keyword arguments only"},
		{"vec3 arity", `(vec3 1 2)`, "exactly 3"},
		{"empty tree", `(csg-tree "empty")`, "no primitives"},
		{"tree without name", `(csg-tree)`, "requires a name"},
		{"bad operator", `(csg-tree "t" :op :xor (sphere :radius 1))`, "xor"},
		{"non-primitive entry", `(csg-tree "t" (list (sphere :radius 1) 42))`, "entry 1"},
		{"duplicate tree", `(csg-tree "t" (sphere :radius 1)) (csg-tree "t" (sphere :radius 1))`, "duplicate tree"},
		{"duplicate prim", `(defprim "a" (sphere :radius 1)) (defprim "a" (sphere :radius 1))`, "duplicate primitive"},
		{"unknown prim", `(prim "nope")`, "no primitive named"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := expectEvalError(t, tt.source)
			require.Contains(t, e.Message, tt.contain)
		})
	}
}

func TestVec3(t *testing.T) {
	d := mustEvaluate(t, `(csg-tree "v" (sphere :radius 1 :at (vec3 1.5 -2 3)))`)
	c := leafShapes(t, d.MustLookup("v"))[0].Center
	require.Equal(t, shape.Vec3{X: 1.5, Y: -2, Z: 3}, c)
}

func TestArithmeticStillWorks(t *testing.T) {
	d := mustEvaluate(t, `(csg-tree "sum" (sphere :radius (+ 1 2)))`)
	require.Equal(t, shape.Sphere{Radius: 3}, leafShapes(t, d.MustLookup("sum"))[0].Data)
}
