// Command csgtree builds balanced CSG trees from primitive lists, checks
// their iterative evaluation against the recursive one and optionally
// meshes them.
//
// Usage:
//
//	csgtree [-config file] [-prims sphere,box,...] [-mesh] [-json] [file.csg]
//
// Without -prims the trees are read from file.csg, or from standard input
// when no file is given.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chazu/csgtree/pkg/config"
	"github.com/chazu/csgtree/pkg/shape"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "csgtree:", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("csgtree", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath = fs.String("config", "", "TOML settings file")
		prims      = fs.String("prims", "", "comma-separated primitive kinds to combine into one tree")
		withMeshes = fs.Bool("mesh", false, "tessellate every tree")
		asJSON     = fs.Bool("json", false, "print the result as JSON")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger, err := cfg.Logger(stderr)
	if err != nil {
		return err
	}
	app, err := NewApp(cfg, logger)
	if err != nil {
		return err
	}

	var source string
	switch {
	case *prims != "":
		if source, err = primitivesSource(*prims); err != nil {
			return err
		}
	case fs.NArg() > 0:
		b, err := os.ReadFile(fs.Arg(0))
		if err != nil {
			return err
		}
		source = string(b)
	default:
		b, err := io.ReadAll(stdin)
		if err != nil {
			return err
		}
		source = string(b)
	}

	result := app.Evaluate(source, *withMeshes)
	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		printResult(stdout, result)
	}
	if len(result.Errors) > 0 {
		return fmt.Errorf("%d error(s)", len(result.Errors))
	}
	return nil
}

// primitivesSource turns a list such as "sphere,box,cone" into a csg-tree
// form of unit-sized primitives spaced along x.
func primitivesSource(list string) (string, error) {
	var b strings.Builder
	b.WriteString(`(csg-tree "prims" (list`)
	for i, name := range strings.Split(list, ",") {
		kind, err := shape.ParseKind(name)
		if err != nil {
			return "", err
		}
		x := 1.5 * float64(i)
		at := fmt.Sprintf(":at (vec3 %g 0 0)", x)
		switch kind {
		case shape.KindSphere:
			fmt.Fprintf(&b, "\n  (sphere :radius 1 %s)", at)
		case shape.KindBox:
			fmt.Fprintf(&b, "\n  (box :size (vec3 1.5 1.5 1.5) %s)", at)
		case shape.KindZSphere:
			fmt.Fprintf(&b, "\n  (zsphere :radius 1 :zmin -0.5 :zmax 0.5 %s)", at)
		case shape.KindCylinder:
			fmt.Fprintf(&b, "\n  (cylinder :radius 0.5 :height 2 %s)", at)
		case shape.KindCone:
			fmt.Fprintf(&b, "\n  (cone :r1 1 :r2 0.25 :height 2 %s)", at)
		case shape.KindTrapezoid:
			fmt.Fprintf(&b, "\n  (trapezoid :x1 1.5 :x2 0.75 :y 1 :z 1 %s)", at)
		}
	}
	b.WriteString("))\n")
	return b.String(), nil
}

func printResult(w io.Writer, r EvalResult) {
	for _, e := range r.Errors {
		if e.Line > 0 {
			fmt.Fprintf(w, "error: line %d: %s\n", e.Line, e.Message)
		} else {
			fmt.Fprintf(w, "error: %s\n", e.Message)
		}
	}
	for _, e := range r.Warnings {
		fmt.Fprintf(w, "warning: %s\n", e.Message)
	}
	for _, t := range r.Trees {
		fmt.Fprintf(w, "tree %s\n", t.Name)
		fmt.Fprintf(w, "  operator    %s\n", t.Operator)
		fmt.Fprintf(w, "  primitives  %d\n", t.Primitives)
		fmt.Fprintf(w, "  height      %d\n", t.Height)
		fmt.Fprintf(w, "  pruned      %d\n", t.Pruned)
		fmt.Fprintf(w, "  postorder   %s\n", joinInts(t.Postorder))
		fmt.Fprintf(w, "  levelorder  %s\n", joinSlots(t.LevelOrder))
		fmt.Fprintf(w, "  expression  %s\n", t.Expression)
		if t.LoopTrace != "" {
			fmt.Fprintf(w, "  loops       %s\n", t.LoopTrace)
			fmt.Fprintf(w, "  stages      %s\n", strings.Join(t.Stages, " "))
		}
		fmt.Fprintf(w, "  verified    %t\n", t.Verified)
	}
	for _, m := range r.Meshes {
		fmt.Fprintf(w, "mesh %s: %d vertices, %d triangles\n", m.PartName, len(m.Vertices)/3, len(m.Indices)/3)
	}
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprint(x)
	}
	return strings.Join(parts, " ")
}

func joinSlots(slots []string) string {
	parts := make([]string, len(slots))
	for i, s := range slots {
		if s == "" {
			s = "-"
		}
		parts[i] = s
	}
	return strings.Join(parts, " ")
}
