// Package passes implements the optimizer's transformation pipeline (spec
// §4.5): dead-alloc, dead-code, GVN, constant folding, strength reduction,
// boolean-op simplification, tail-call marking, and inlining bookkeeping
// helpers. Each pass implements Pass.Apply(function, config) -> result and
// runs inside a configurable Pipeline, generalizing the teacher's
// compile/ssa/optimize.go Optimizer.Ideal() fixpoint loop (which hardwired
// one fixed pass order) into a name-resolved, config-driven pipeline, per
// spec §6's optimizer-pipeline-spec and §9's "compile-time table of pass
// descriptors ... immutable after static initialisation".
package passes

import (
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sourcehut-mirrors/kefir-sub015/internal/errkind"
	"github.com/sourcehut-mirrors/kefir-sub015/internal/ssa"
)

// Config carries the subset of the driver configuration the passes
// consult.
type Config struct {
	MaxInlineDepth int
}

// Result reports whether a pass changed the function.
type Result struct {
	Changed bool
}

// Pass is one optimizer transformation.
type Pass interface {
	Name() string
	Apply(fn *ssa.Func, cfg Config) (Result, error)
}

// registry is the immutable, process-wide pass descriptor table spec §9
// names ("the only legitimate process-wide state is a compile-time table
// of pass descriptors used by the pipeline resolver").
var registry = map[string]Pass{}

func register(p Pass) { registry[p.Name()] = p }

func init() {
	register(deadAllocPass{})
	register(deadCodePass{})
	register(gvnPass{})
	register(constFoldPass{})
	register(strengthReducePass{})
	register(boolSimplifyPass{})
	register(tailCallPass{})
}

// Resolve looks up a registered pass by name.
func Resolve(name string) (Pass, error) {
	p, ok := registry[name]
	if !ok {
		return nil, errkind.New(errkind.KindNotFound, "unable to find requested pipeline pass %q", name)
	}
	return p, nil
}

// Pipeline is an ordered sequence of passes run to a fixpoint (spec §4.5:
// "They run in a configurable pipeline; the compiler ships a default
// order").
type Pipeline struct {
	Passes []Pass
}

// ParsePipeline resolves a colon-separated pass-name spec (the shape of
// spec §6's optimizer-pipeline-spec configuration field) into a Pipeline.
func ParsePipeline(spec string) (*Pipeline, error) {
	var passes []Pass
	for _, name := range strings.Split(spec, ":") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		p, err := Resolve(name)
		if err != nil {
			return nil, err
		}
		passes = append(passes, p)
	}
	return &Pipeline{Passes: passes}, nil
}

// Run applies every pass in order, repeating the whole pipeline until a
// full pass produces no change (fixpoint), mirroring the teacher's
// Optimizer.Ideal() loop shape but over the resolved, configurable pass
// list instead of a hardwired sequence.
func (p *Pipeline) Run(fn *ssa.Func, cfg Config) error {
	for {
		anyChanged := false
		for _, pass := range p.Passes {
			res, err := pass.Apply(fn, cfg)
			if err != nil {
				return errkind.Wrap(err, errkind.KindAnalysisError, "pass %q failed", pass.Name())
			}
			if res.Changed {
				log.Debug().Str("pass", pass.Name()).Str("fn", fn.Name).Msg("optimizer pass changed function")
				anyChanged = true
			}
		}
		if !anyChanged {
			return nil
		}
	}
}
