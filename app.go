package main

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/chazu/csgtree/pkg/config"
	"github.com/chazu/csgtree/pkg/csg"
	"github.com/chazu/csgtree/pkg/engine"
	"github.com/chazu/csgtree/pkg/kernel"
	"github.com/chazu/csgtree/pkg/kernel/sdfx"
	"github.com/chazu/csgtree/pkg/shape"
	"github.com/chazu/csgtree/pkg/tessellate"
)

// colorPalette is a default palette used to assign distinct colors to trees.
var colorPalette = []string{
	"#4A90D9", "#E67E22", "#2ECC71", "#9B59B6",
	"#E74C3C", "#1ABC9C", "#F39C12", "#3498DB",
}

// App ties the engine, the evaluator and the kernel together.
type App struct {
	engine *engine.Engine
	kernel kernel.Kernel
	loops  csg.LoopPlan
	verify bool
	log    *slog.Logger
}

// MeshData is the JSON-serializable mesh format.
type MeshData struct {
	Vertices []float32 `json:"vertices"`
	Normals  []float32 `json:"normals"`
	Indices  []uint32  `json:"indices"`
	PartName string    `json:"partName"`
	Color    string    `json:"color"`
}

// EvalErrorData is a JSON-serializable eval error.
type EvalErrorData struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Message string `json:"message"`
}

// TreeReport describes one built tree.
type TreeReport struct {
	Name       string   `json:"name"`
	Operator   string   `json:"operator"`
	Primitives int      `json:"primitives"`
	Height     int      `json:"height"`
	Pruned     int      `json:"pruned"`
	Postorder  []int    `json:"postorder"`
	LevelOrder []string `json:"levelOrder"` // "" marks an empty slot
	Expression string   `json:"expression"`
	// LoopTrace is the expression with every leaf tagged by the pass that
	// produced it, present when loop marks are configured.
	LoopTrace string   `json:"loopTrace,omitempty"`
	Stages    []string `json:"stages,omitempty"`
	Verified  bool     `json:"verified"`
}

// EvalResult is the full result of one evaluation.
type EvalResult struct {
	DesignID string          `json:"designId,omitempty"`
	Trees    []TreeReport    `json:"trees"`
	Meshes   []MeshData      `json:"meshes"`
	Errors   []EvalErrorData `json:"errors"`
	Warnings []EvalErrorData `json:"warnings"`
}

// NewApp creates an App from validated settings.
func NewApp(cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	op, err := cfg.Op()
	if err != nil {
		return nil, err
	}
	loops, err := cfg.LoopPlan()
	if err != nil {
		return nil, err
	}
	eng := engine.NewEngine(logger)
	eng.DefaultOp = op
	return &App{
		engine: eng,
		kernel: sdfx.NewWithCells(cfg.MeshCells),
		loops:  loops,
		verify: cfg.Verify,
		log:    logger,
	}, nil
}

// Evaluate takes Lisp source and reports every tree it declares. Meshes
// are produced only when withMeshes is set.
func (a *App) Evaluate(source string, withMeshes bool) EvalResult {
	result := EvalResult{
		Trees:    []TreeReport{},
		Meshes:   []MeshData{},
		Errors:   []EvalErrorData{},
		Warnings: []EvalErrorData{},
	}

	design, evalErrs, err := a.engine.Evaluate(source)
	if err != nil {
		result.Errors = append(result.Errors, EvalErrorData{Message: err.Error()})
		return result
	}
	if len(evalErrs) > 0 {
		for _, e := range evalErrs {
			result.Errors = append(result.Errors, EvalErrorData{
				Line:    e.Line,
				Col:     e.Col,
				Message: e.Message,
			})
		}
		return result
	}
	result.DesignID = design.ID.String()

	for _, tree := range design.Trees {
		report, warnings, err := a.report(tree)
		result.Warnings = append(result.Warnings, warnings...)
		if err != nil {
			a.log.Error("tree report failed", "design", design.ID, "tree", tree.Name, "err", err)
			result.Errors = append(result.Errors, EvalErrorData{Message: err.Error()})
			continue
		}
		result.Trees = append(result.Trees, report)
	}
	if len(result.Errors) > 0 || !withMeshes {
		return result
	}

	meshes, err := tessellate.Tessellate(design.Trees, a.kernel)
	if err != nil {
		a.log.Error("tessellation failed", "design", design.ID, "err", err)
		result.Errors = append(result.Errors, EvalErrorData{
			Message: "tessellation failed: " + err.Error(),
		})
		return result
	}
	for i, m := range meshes {
		a.log.Debug("meshed tree", "design", design.ID, "tree", m.PartName, "triangles", m.TriangleCount())
		result.Meshes = append(result.Meshes, MeshData{
			Vertices: m.Vertices,
			Normals:  m.Normals,
			Indices:  m.Indices,
			PartName: m.PartName,
			Color:    colorPalette[i%len(colorPalette)],
		})
	}
	return result
}

// primitiveName labels leaves in reports.
func primitiveName(payload any) string {
	if p, ok := payload.(shape.Primitive); ok {
		return p.String()
	}
	return fmt.Sprint(payload)
}

// report builds the TreeReport for tree. Loop marks that do not address an
// operator of this tree are returned as warnings.
func (a *App) report(tree *csg.Tree) (TreeReport, []EvalErrorData, error) {
	r := TreeReport{
		Name:       tree.Name,
		Operator:   tree.Operator.String(),
		Primitives: tree.Primitives,
		Height:     tree.Height,
		Pruned:     tree.Pruned,
	}

	operators := make(map[int]bool)
	for _, n := range csg.Postorder(tree.Root) {
		r.Postorder = append(r.Postorder, n.Index)
		if n.IsOperator() {
			operators[n.Index] = true
		}
	}

	slots, err := csg.LevelOrder(tree.Root)
	if err != nil {
		return r, nil, fmt.Errorf("tree %q: %w", tree.Name, err)
	}
	r.LevelOrder = make([]string, len(slots))
	for i, n := range slots {
		switch {
		case n == nil:
		case n.IsOperator():
			r.LevelOrder[i] = n.Op.String()
		default:
			r.LevelOrder[i] = primitiveName(n.Payload)
		}
	}

	if r.Expression, err = csg.Describe(tree.Root, primitiveName); err != nil {
		return r, nil, fmt.Errorf("tree %q: %w", tree.Name, err)
	}

	var warnings []EvalErrorData
	loops := make(csg.LoopPlan)
	for _, index := range slices.Sorted(maps.Keys(a.loops)) {
		side := a.loops[index]
		if !operators[index] {
			warnings = append(warnings, EvalErrorData{
				Message: fmt.Sprintf("tree %q: loop mark at %d (%s) matches no operator", tree.Name, index, side),
			})
			continue
		}
		loops[index] = side
	}

	ev := newPassEvaluator(loops)
	if len(loops) > 0 {
		ev.Trace = func(stage csg.Stage, root *csg.Node, cursor int) {
			r.Stages = append(r.Stages, fmt.Sprintf("%s@%d", stage, root.Index))
		}
		ev.reset()
		if r.LoopTrace, err = ev.Evaluate(tree.Root); err != nil {
			return r, warnings, fmt.Errorf("tree %q: %w", tree.Name, err)
		}
		ev.Trace = nil
	}

	if a.verify {
		if _, err := ev.Verify(tree.Root, func(x, y string) bool { return x == y }, ev.reset); err != nil {
			return r, warnings, fmt.Errorf("tree %q: verification failed: %w", tree.Name, err)
		}
		r.Verified = true
	}
	return r, warnings, nil
}

// passEvaluator renders a tree as an expression whose leaves carry the
// number of loop re-walks that preceded them, e.g. "union(a@0,b@1)".
type passEvaluator struct {
	csg.Evaluator[string]
	pass int
}

func newPassEvaluator(loops csg.LoopPlan) *passEvaluator {
	pe := &passEvaluator{}
	pe.Loops = loops
	pe.Leaf = func(payload any) (string, error) {
		return fmt.Sprintf("%s@%d", primitiveName(payload), pe.pass), nil
	}
	pe.Combine = func(op csg.Operator, l, r string) (string, error) {
		return fmt.Sprintf("%s(%s,%s)", op, l, r), nil
	}
	pe.Advance = func(*csg.Node, csg.Side) error {
		pe.pass++
		return nil
	}
	return pe
}

func (pe *passEvaluator) reset() { pe.pass = 0 }
