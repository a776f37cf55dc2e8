// Command rayzorctl is a smoke-test harness over the engine's programmatic
// API: it runs §8's end-to-end scenarios through a real Engine and checks
// the trace output against the literal expected values, the same way the
// teacher's tools/build.go drives its own bringup target.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rayzorctl",
		Short: "Demo harness for the rayzor tiered execution core",
	}
	root.AddCommand(newListCmd())
	root.AddCommand(newRunCmd())
	return root
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the available end-to-end scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, s := range scenarios {
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %s\n", s.Name, s.Describe)
			}
			return nil
		},
	}
}

func newRunCmd() *cobra.Command {
	var verbosity uint32
	var enableJIT bool

	cmd := &cobra.Command{
		Use:   "run [scenario...]",
		Short: "Run one or more scenarios through the engine and check trace output",
		Long: "With no arguments, runs every scenario from spec.md section 8 in order.\n" +
			"Exits non-zero if any scenario's trace output does not match the expected values.",
		RunE: func(cmd *cobra.Command, args []string) error {
			selected, err := selectScenarios(args)
			if err != nil {
				return err
			}
			failed := false
			for _, s := range selected {
				if err := runScenario(cmd, s, verbosity, enableJIT); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: FAIL: %v\n", s.Name, err)
					failed = true
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", s.Name)
			}
			if failed {
				return fmt.Errorf("one or more scenarios failed")
			}
			return nil
		},
	}
	cmd.Flags().Uint32Var(&verbosity, "verbosity", 0, "engine log verbosity (0-2)")
	cmd.Flags().BoolVar(&enableJIT, "background-jit", false, "enable the background optimization sweep")
	return cmd
}

func selectScenarios(names []string) ([]scenario, error) {
	if len(names) == 0 {
		return scenarios, nil
	}
	byName := make(map[string]scenario, len(scenarios))
	for _, s := range scenarios {
		byName[s.Name] = s
	}
	selected := make([]scenario, 0, len(names))
	for _, n := range names {
		s, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("unknown scenario %q", n)
		}
		selected = append(selected, s)
	}
	return selected, nil
}
