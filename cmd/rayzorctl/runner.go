package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rayzor-lang/rayzor/engine"
	"github.com/rayzor-lang/rayzor/internal/interp"
	"github.com/rayzor-lang/rayzor/internal/symbols"
)

// runScenario builds s's module, compiles it through a fresh Engine with a
// "trace" host function that appends to traced, runs the entry point, and
// checks the traced sequence against s.Expected.
func runScenario(cmd *cobra.Command, s scenario, verbosity uint32, enableJIT bool) error {
	var traced []int64
	trace := func(args []uint64) uint64 {
		traced = append(traced, int64(args[0]))
		return 0
	}

	e := engine.Create(engine.Config{
		StartInterpreted:             true,
		EnableBackgroundOptimization: enableJIT,
		Verbosity:                    verbosity,
		RuntimeHostFuncs:             map[string]symbols.HostFunc{"trace": trace},
	})
	defer e.Shutdown()

	module, entry := s.Build()
	if err := e.CompileModule(module); err != nil {
		return fmt.Errorf("compile_module: %w", err)
	}
	if _, err := e.ExecuteFunction(entry, []interp.Value{}); err != nil {
		return fmt.Errorf("execute_function: %w", err)
	}

	if len(traced) != len(s.Expected) {
		return fmt.Errorf("traced %v, want %v", traced, s.Expected)
	}
	for i := range traced {
		if traced[i] != s.Expected[i] {
			return fmt.Errorf("traced %v, want %v", traced, s.Expected)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "  %s\n  trace: %v\n", s.Describe, traced)
	return nil
}
