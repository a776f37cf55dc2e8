package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rayzor-lang/rayzor/internal/mir"
)

func TestEveryScenarioBuildsAValidModule(t *testing.T) {
	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			m, entry := s.Build()
			fn, ok := m.FunctionByID(entry)
			require.True(t, ok)
			require.Empty(t, mir.Validate(fn))
		})
	}
}

func TestSelectScenariosDefaultsToAll(t *testing.T) {
	selected, err := selectScenarios(nil)
	require.NoError(t, err)
	require.Len(t, selected, len(scenarios))
}

func TestSelectScenariosRejectsUnknownName(t *testing.T) {
	_, err := selectScenarios([]string{"not-a-real-scenario"})
	require.Error(t, err)
}

func TestSelectScenariosFiltersByName(t *testing.T) {
	selected, err := selectScenarios([]string{"closure", "arithmetic"})
	require.NoError(t, err)
	require.Len(t, selected, 2)
	require.Equal(t, "closure", selected[0].Name)
	require.Equal(t, "arithmetic", selected[1].Name)
}
