package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/citytrain/internal/canon"
	"github.com/roach88/citytrain/internal/synth"
)

// Snapshot is the golden form of a scenario execution.
type Snapshot struct {
	ScenarioName string                      `json:"scenario_name"`
	Rounds       []RoundTrace                `json:"rounds"`
	Submissions  int                         `json:"submissions"`
	Statuses     map[string]synth.TaskStatus `json:"statuses"`
}

// MarshalSnapshot renders result as canonical JSON.
func MarshalSnapshot(name string, result *Result) ([]byte, error) {
	return canon.Marshal(Snapshot{
		ScenarioName: name,
		Rounds:       result.Rounds,
		Submissions:  result.Submissions,
		Statuses:     result.Statuses,
	})
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	snapshot, err := MarshalSnapshot(scenario.Name, result)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, snapshot)
	return result, nil
}
