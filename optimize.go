package silopt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/picatz/silopt/config"
	"github.com/picatz/silopt/ir"
	"github.com/picatz/silopt/logging"
	"github.com/picatz/silopt/passes"
	"github.com/picatz/silopt/passmanager"
	"github.com/picatz/silopt/ssaimport"
)

// DefaultPlan returns the built-in pipeline: devirtualize and inline
// on top of fresh side-effect summaries, then drop what became dead.
func DefaultPlan() passmanager.Plan {
	var plan passmanager.Plan
	plan.AddStage("HighLevel",
		"compute-side-effects",
		"devirtualizer",
		"early-inliner",
		"function-ref-cse",
	)
	plan.AddStage("Cleanup",
		"dead-function-elimination",
		"compute-side-effects",
	)
	return plan
}

// NewPassManager returns a pass manager for m that knows every
// built-in pass and answers memory queries from effect summaries.
func NewPassManager(m *ir.Module, opts passmanager.Options) *passmanager.PassManager {
	pm := passmanager.New(m, passes.NewRegistry(), opts)
	passes.InstallCallbacks(pm.CalleeAnalysis())
	return pm
}

// Optimize runs plan over m. A verification failure with VerifyAll set
// is returned as an *ir.VerifyError. If opts has no logger, the one
// carried by ctx is used.
func Optimize(ctx context.Context, m *ir.Module, plan passmanager.Plan, opts passmanager.Options) (err error) {
	if opts.Logger == nil {
		opts.Logger = logging.FromContext(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			verr, ok := r.(*ir.VerifyError)
			if !ok {
				panic(r)
			}
			err = verr
		}
	}()

	start := time.Now()
	pm := NewPassManager(m, opts)
	if err := pm.Execute(plan); err != nil {
		return fmt.Errorf("failed to optimize %s: %w", m.Name, err)
	}
	opts.Logger.Info("ran %d passes over %s in %v", pm.NumPassesRun(), m.Name, time.Since(start))
	return nil
}

// OptimizePackages loads the Go packages matching patterns in dir,
// lowers them with ssaimport and runs the pipeline configured by opts.
// Printing passes write to out.
func OptimizePackages(ctx context.Context, dir string, patterns []string, opts config.Options, out io.Writer) (*ir.Module, error) {
	plan := DefaultPlan()
	if opts.Pipeline != "" {
		var err error
		plan, err = passmanager.LoadPlanFile(opts.Pipeline)
		if err != nil {
			return nil, err
		}
	}

	cfg := ssaimport.Config{
		WholeModule:          opts.WholeModule,
		Concurrency:          int64(opts.Concurrency),
		LoadDependencyBodies: true,
	}
	prog, pkgs, err := ssaimport.Load(ctx, dir, cfg, patterns...)
	if err != nil {
		return nil, err
	}
	m, err := ssaimport.Import(ctx, prog, pkgs, cfg)
	if err != nil {
		return nil, err
	}

	pmOpts, err := opts.PassManagerOptions(out, logging.FromContext(ctx))
	if err != nil {
		return nil, err
	}
	if err := Optimize(ctx, m, plan, pmOpts); err != nil {
		return m, err
	}
	return m, nil
}

// IsDiagnosed reports whether err stopped a pipeline because a pass
// reported an error diagnostic.
func IsDiagnosed(err error) bool {
	return errors.Is(err, passmanager.ErrDiagnosedErrors)
}
