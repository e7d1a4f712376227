// Package silopt optimizes programs in a small SSA call-graph IR.
//
// A program is lowered into an ir.Module, for example from Go source
// with package ssaimport, and then run through a Plan of named passes
// by a pass manager. Calls through v-tables and witness tables are
// resolved by the callee analysis, which knows every implementation a
// dynamic call may reach and whether that set is complete.
//
//	m, err := ssaimport.Import(ctx, prog, pkgs, ssaimport.Config{WholeModule: true})
//	if err != nil {
//		return err
//	}
//	return silopt.Optimize(ctx, m, silopt.DefaultPlan(), passmanager.Options{VerifyAll: true})
package silopt
