package main

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// TestEveryScenarioProducesItsExpectedTrace runs each of §8's scenarios
// through a real Engine, the same path newRunCmd drives, and checks the
// traced output matches its literal expected sequence exactly.
func TestEveryScenarioProducesItsExpectedTrace(t *testing.T) {
	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			cmd := &cobra.Command{}
			var out bytes.Buffer
			cmd.SetOut(&out)
			require.NoError(t, runScenario(cmd, s, 0, false))
		})
	}
}

func TestRunCmdFailsOnUnknownScenario(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"run", "not-a-real-scenario"})
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	require.Error(t, root.Execute())
}

func TestRunCmdRunsAllScenariosByDefault(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"run"})
	var out bytes.Buffer
	root.SetOut(&out)
	require.NoError(t, root.Execute())
}

func TestListCmdPrintsEveryScenario(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"list"})
	var out bytes.Buffer
	root.SetOut(&out)
	require.NoError(t, root.Execute())
	require.Contains(t, out.String(), "arithmetic")
	require.Contains(t, out.String(), "enum-pattern-match")
}
