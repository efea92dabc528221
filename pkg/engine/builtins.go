package engine

import (
	"fmt"
	"strings"

	"github.com/chazu/csgtree/pkg/csg"
	"github.com/chazu/csgtree/pkg/shape"
	zygo "github.com/glycerine/zygomys/zygo"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource transforms csgtree Lisp source code before passing it to
// zygomys. It performs two transformations:
//
//  1. Keyword conversion: :keyword -> "__kw_keyword" (string literal)
//     This avoids the need to register keyword symbols as globals, which
//     would conflict with user-defined variables of the same name.
//
//  2. Kebab-case to underscore: csg-tree -> csg_tree
//     zygomys does not allow hyphens in identifiers (it interprets them
//     as the subtraction operator). This converts kebab-case identifiers
//     to underscore form outside of strings and comments.
//
// Both transformations respect string literal boundaries and line comments.
func preprocessSource(source string) string {
	result := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		// Skip double-quoted string literals.
		if b[i] == '"' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '"' {
				if b[i] == '\\' && i+1 < len(b) {
					result = append(result, b[i], b[i+1])
					i += 2
					continue
				}
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Skip backtick-quoted string literals.
		if b[i] == '`' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '`' {
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Convert ; line comments to // comments for zygomys.
		// zygomys uses // for line comments, not the traditional Lisp ;.
		if b[i] == ';' {
			result = append(result, '/', '/')
			i++
			// Skip additional ; characters (;; style).
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Transform :keyword to "__kw_keyword".
		if b[i] == ':' && i+1 < len(b) {
			// Preserve := (assignment operator).
			if b[i+1] == '=' {
				result = append(result, b[i], b[i+1])
				i += 2
				continue
			}
			// Check for keyword: colon followed by a letter.
			if isLetter(b[i+1]) {
				j := i + 1
				for j < len(b) && isKWChar(b[j]) {
					j++
				}
				kwName := string(b[i+1 : j])
				result = append(result, '"')
				result = append(result, []byte(kwPrefix)...)
				result = append(result, []byte(kwName)...)
				result = append(result, '"')
				i = j
				continue
			}
		}
		// Transform kebab-case identifiers: alpha-alpha -> alpha_alpha.
		// Only when hyphen sits between identifier characters (not a minus operator).
		if b[i] == '-' && i > 0 && i+1 < len(b) &&
			isIdentChar(b[i-1]) && isIdentStartChar(b[i+1]) {
			result = append(result, '_')
			i++
			continue
		}
		result = append(result, b[i])
		i++
	}
	return string(result)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

func isIdentStartChar(c byte) bool {
	return isLetter(c)
}

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpPrimitive wraps a shape.Primitive so it can be returned from the
// shape builtins and consumed by defprim and csg-tree.
type sexpPrimitive struct {
	prim shape.Primitive
}

func (p *sexpPrimitive) SexpString(ps *zygo.PrintState) string {
	if p.prim.Name != "" {
		return fmt.Sprintf("(%s %q)", p.prim.Data.Kind(), p.prim.Name)
	}
	return fmt.Sprintf("(%s)", p.prim.Data.Kind())
}
func (p *sexpPrimitive) Type() *zygo.RegisteredType { return nil }

// sexpTree wraps a built csg.Tree.
type sexpTree struct {
	tree *csg.Tree
}

func (t *sexpTree) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(csg-tree %q :op :%s :primitives %d)", t.tree.Name, t.tree.Operator, t.tree.Primitives)
}
func (t *sexpTree) Type() *zygo.RegisteredType { return nil }

// sexpVec3 wraps a shape.Vec3.
type sexpVec3 struct {
	vec shape.Vec3
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %.1f %.1f %.1f)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
// Keywords are identified by the __kw_ prefix added during preprocessing.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	i := 0
	for i < len(args) {
		name, ok := isKW(args[i])
		if ok {
			if i+1 < len(args) {
				result.kw[name] = args[i+1]
				i += 2
			} else {
				// Keyword at end with no value is a flag.
				result.kw[name] = zygo.SexpNull
				i++
			}
		} else {
			result.positional = append(result.positional, args[i])
			i++
		}
	}
	return result
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toKeywordString extracts a keyword name or plain string from a Sexp.
// Handles both preprocessed keywords (__kw_union) and plain strings ("union").
func toKeywordString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected keyword or string, got %T (%s)", s, s.SexpString(nil))
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], nil
	}
	return str.S, nil
}

// toOperator converts a keyword or string to a csg.Operator.
func toOperator(s zygo.Sexp) (csg.Operator, error) {
	name, err := toKeywordString(s)
	if err != nil {
		return 0, fmt.Errorf("expected operator keyword (:union, :intersection, :difference): %w", err)
	}
	return csg.ParseOperator(name)
}

// toVec3 extracts a Vec3 from a sexpVec3.
func toVec3(s zygo.Sexp) (shape.Vec3, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	return shape.Vec3{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

// toPrimitive extracts a shape.Primitive from a sexpPrimitive.
func toPrimitive(s zygo.Sexp) (shape.Primitive, error) {
	if p, ok := s.(*sexpPrimitive); ok {
		return p.prim, nil
	}
	return shape.Primitive{}, fmt.Errorf("expected primitive, got %T (%s)", s, s.SexpString(nil))
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

// number reads keyword key as a number. A missing key is an error unless
// a default is supplied.
func (pa kwArgs) number(fn, key string, def ...float64) (float64, error) {
	v, ok := pa.kw[key]
	if !ok {
		if len(def) > 0 {
			return def[0], nil
		}
		return 0, fmt.Errorf("%s: missing :%s", fn, key)
	}
	f, err := toFloat64(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %s: %w", fn, key, err)
	}
	return f, nil
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

type builtin = func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error)

// shapeBuiltin returns a builtin that reads the shape-specific keywords
// with data, then the common :name and :at keywords, and validates the
// result.
func shapeBuiltin(fn string, data func(pa kwArgs) (shape.Data, error)) builtin {
	return func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) > 0 {
			return zygo.SexpNull, fmt.Errorf("%s takes keyword arguments only", fn)
		}

		d, err := data(pa)
		if err != nil {
			return zygo.SexpNull, err
		}
		p := shape.Primitive{Data: d}

		if v, ok := pa.kw["name"]; ok {
			s, err := toString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: name: %w", fn, err)
			}
			p.Name = s
		}
		if v, ok := pa.kw["at"]; ok {
			vec, err := toVec3(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: at: %w", fn, err)
			}
			p.Center = vec
		}
		// Validate names the shape kind itself.
		if err := p.Validate(); err != nil {
			return zygo.SexpNull, err
		}
		return &sexpPrimitive{prim: p}, nil
	}
}

// registerBuiltins installs all csgtree DSL builtins into a zygomys
// environment. The builtins add trees to d during evaluation; csg-tree
// forms without :op use defaultOp.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, d *Design, defaultOp csg.Operator) {

	// -----------------------------------------------------------------------
	// (sphere :radius 10 :at (vec3 0 0 0) :name "ball")
	// -----------------------------------------------------------------------
	env.AddFunction("sphere", shapeBuiltin("sphere", func(pa kwArgs) (shape.Data, error) {
		r, err := pa.number("sphere", "radius")
		return shape.Sphere{Radius: r}, err
	}))

	// -----------------------------------------------------------------------
	// (zsphere :radius 10 :zmin -4 :zmax 6)
	// -----------------------------------------------------------------------
	env.AddFunction("zsphere", shapeBuiltin("zsphere", func(pa kwArgs) (shape.Data, error) {
		r, err := pa.number("zsphere", "radius")
		if err != nil {
			return nil, err
		}
		zmin, err := pa.number("zsphere", "zmin", -r)
		if err != nil {
			return nil, err
		}
		zmax, err := pa.number("zsphere", "zmax", r)
		return shape.ZSphere{Radius: r, ZMin: zmin, ZMax: zmax}, err
	}))

	// -----------------------------------------------------------------------
	// (box :size (vec3 10 20 30))
	// -----------------------------------------------------------------------
	env.AddFunction("box", shapeBuiltin("box", func(pa kwArgs) (shape.Data, error) {
		v, ok := pa.kw["size"]
		if !ok {
			return nil, fmt.Errorf("box: missing :size")
		}
		size, err := toVec3(v)
		if err != nil {
			return nil, fmt.Errorf("box: size: %w", err)
		}
		return shape.Box{Size: size}, nil
	}))

	// -----------------------------------------------------------------------
	// (cylinder :radius 4 :height 20)
	// -----------------------------------------------------------------------
	env.AddFunction("cylinder", shapeBuiltin("cylinder", func(pa kwArgs) (shape.Data, error) {
		r, err := pa.number("cylinder", "radius")
		if err != nil {
			return nil, err
		}
		h, err := pa.number("cylinder", "height")
		return shape.Cylinder{Radius: r, Height: h}, err
	}))

	// -----------------------------------------------------------------------
	// (cone :r1 6 :r2 2 :height 12)
	// -----------------------------------------------------------------------
	env.AddFunction("cone", shapeBuiltin("cone", func(pa kwArgs) (shape.Data, error) {
		r1, err := pa.number("cone", "r1")
		if err != nil {
			return nil, err
		}
		r2, err := pa.number("cone", "r2", 0)
		if err != nil {
			return nil, err
		}
		h, err := pa.number("cone", "height")
		return shape.Cone{R1: r1, R2: r2, Height: h}, err
	}))

	// -----------------------------------------------------------------------
	// (trapezoid :x1 10 :x2 6 :y 6 :z 4)
	// -----------------------------------------------------------------------
	env.AddFunction("trapezoid", shapeBuiltin("trapezoid", func(pa kwArgs) (shape.Data, error) {
		var t shape.Trapezoid
		for _, f := range []struct {
			key string
			dst *float64
		}{{"x1", &t.X1}, {"x2", &t.X2}, {"y", &t.Y}, {"z", &t.Z}} {
			v, err := pa.number("trapezoid", f.key)
			if err != nil {
				return nil, err
			}
			*f.dst = v
		}
		return t, nil
	}))

	// -----------------------------------------------------------------------
	// (vec3 1 2 3)
	// -----------------------------------------------------------------------
	env.AddFunction("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(args))
		}

		x, err := toFloat64(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("vec3: x: %w", err)
		}
		y, err := toFloat64(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("vec3: y: %w", err)
		}
		z, err := toFloat64(args[2])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("vec3: z: %w", err)
		}

		return &sexpVec3{vec: shape.Vec3{X: x, Y: y, Z: z}}, nil
	})

	// -----------------------------------------------------------------------
	// (defprim "name" (sphere ...))
	// -----------------------------------------------------------------------
	env.AddFunction("defprim", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("defprim requires a name and a primitive expression")
		}

		primName, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("defprim: name: %w", err)
		}
		p, err := toPrimitive(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("defprim: %w", err)
		}
		p.Name = primName
		if err := d.definePrimitive(p); err != nil {
			return zygo.SexpNull, fmt.Errorf("defprim: %w", err)
		}

		return &sexpPrimitive{prim: p}, nil
	})

	// -----------------------------------------------------------------------
	// (prim "name")
	// -----------------------------------------------------------------------
	env.AddFunction("prim", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("prim requires a name argument")
		}

		primName, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("prim: name: %w", err)
		}
		p, ok := d.Primitive(primName)
		if !ok {
			return zygo.SexpNull, fmt.Errorf("prim: no primitive named %q", primName)
		}

		return &sexpPrimitive{prim: p}, nil
	})

	// -----------------------------------------------------------------------
	// (csg-tree "name" :op :union (list (sphere ...) (box ...) ...))
	//
	// Primitives may also be given directly as trailing arguments. Leaves
	// keep the order in which the primitives are listed.
	// -----------------------------------------------------------------------
	env.AddFunction("csg_tree", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) < 1 {
			return zygo.SexpNull, fmt.Errorf("csg-tree requires a name argument")
		}

		treeName, err := toString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("csg-tree: name: %w", err)
		}

		op := defaultOp
		if v, ok := pa.kw["op"]; ok {
			if op, err = toOperator(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("csg-tree %q: op: %w", treeName, err)
			}
		}

		var items []zygo.Sexp
		for _, arg := range pa.positional[1:] {
			if _, ok := arg.(*sexpPrimitive); ok {
				items = append(items, arg)
				continue
			}
			list, err := sexpListToSlice(arg)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("csg-tree %q: %w", treeName, err)
			}
			items = append(items, list...)
		}

		// Each tree gets its own leaf nodes so that labels never collide
		// between trees sharing a primitive.
		leaves := make([]*csg.Node, len(items))
		for i, item := range items {
			p, err := toPrimitive(item)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("csg-tree %q: entry %d: %w", treeName, i, err)
			}
			leaves[i] = csg.NewPrimitive(p)
		}

		tree, err := csg.NewTree(leaves, op)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("csg-tree %q: %w", treeName, err)
		}
		tree.Name = treeName
		if err := d.AddTree(tree); err != nil {
			return zygo.SexpNull, fmt.Errorf("csg-tree: %w", err)
		}

		return &sexpTree{tree: tree}, nil
	})
}
