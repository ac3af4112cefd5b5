package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/citytrain/internal/pipeline"
	"github.com/roach88/citytrain/internal/synth"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Steps is how many polls a task needs before the local service
	// completes it.
	Steps int `yaml:"steps"`

	// Voice is the service-level addVoice configuration.
	Voice map[string]any `yaml:"voice"`

	Feed FeedFixture `yaml:"feed"`

	Rounds []Round `yaml:"rounds"`

	// Assertions validate the trace after all rounds.
	Assertions []Assertion `yaml:"assertions"`
}

// FeedFixture is the feed every round starts from.
type FeedFixture struct {
	Title string        `yaml:"title,omitempty"`
	Items []ItemFixture `yaml:"items"`
}

// ItemFixture is one feed item. Text wins over HTML when both are set.
type ItemFixture struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title,omitempty"`
	Text  string `yaml:"text,omitempty"`
	HTML  string `yaml:"html,omitempty"`
}

// Round runs one composition over a fresh copy of the feed.
type Round struct {
	Composition string `yaml:"composition"`

	// ForceStatus moves every tracked task to this status before the round.
	ForceStatus synth.TaskStatus `yaml:"force_status,omitempty"`

	// Reason accompanies a forced failed status.
	Reason string `yaml:"reason,omitempty"`
}

// Assertion validates the trace.
type Assertion struct {
	// Type specifies the assertion type:
	// - "item_count": items in a round's output
	// - "attachment_count": attachments on one item in a round's output
	// - "step_errors": errors recorded on one step of a round
	// - "submissions": tasks started across all rounds
	// - "breadcrumb_status": stored status of one item after all rounds
	Type string `yaml:"type"`

	Round int    `yaml:"round,omitempty"`
	Item  string `yaml:"item,omitempty"`
	Step  int    `yaml:"step,omitempty"`
	Count int    `yaml:"count,omitempty"`

	// Status is the expected status (used by breadcrumb_status).
	Status synth.TaskStatus `yaml:"status,omitempty"`

	// Contains must appear in one of the step's errors (used by step_errors).
	Contains string `yaml:"contains,omitempty"`
}

// Assertion type constants.
const (
	AssertItemCount        = "item_count"
	AssertAttachmentCount  = "attachment_count"
	AssertStepErrors       = "step_errors"
	AssertSubmissions      = "submissions"
	AssertBreadcrumbStatus = "breadcrumb_status"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Steps < 0 {
		return fmt.Errorf("steps must be non-negative")
	}
	if len(s.Rounds) == 0 {
		return fmt.Errorf("rounds list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	ids := make(map[string]bool, len(s.Feed.Items))
	for i, it := range s.Feed.Items {
		if it.ID == "" {
			return fmt.Errorf("feed.items[%d]: id is required", i)
		}
		if ids[it.ID] {
			return fmt.Errorf("feed.items[%d]: duplicate id %q", i, it.ID)
		}
		ids[it.ID] = true
	}

	for i, r := range s.Rounds {
		if _, err := pipeline.ParseComposition(r.Composition); err != nil {
			return fmt.Errorf("rounds[%d]: %w", i, err)
		}
		if r.ForceStatus != "" && !r.ForceStatus.Valid() {
			return fmt.Errorf("rounds[%d]: unknown force_status %q", i, r.ForceStatus)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], s, ids); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, s *Scenario, ids map[string]bool) error {
	inRounds := a.Round >= 0 && a.Round < len(s.Rounds)

	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertItemCount, AssertStepErrors:
		if !inRounds {
			return fmt.Errorf("assertions[%d]: round %d out of range", index, a.Round)
		}
	case AssertAttachmentCount:
		if !inRounds {
			return fmt.Errorf("assertions[%d]: round %d out of range", index, a.Round)
		}
		if !ids[a.Item] {
			return fmt.Errorf("assertions[%d]: unknown item %q", index, a.Item)
		}
	case AssertSubmissions:
	case AssertBreadcrumbStatus:
		if !ids[a.Item] {
			return fmt.Errorf("assertions[%d]: unknown item %q", index, a.Item)
		}
		if a.Status != "" && !a.Status.Valid() {
			return fmt.Errorf("assertions[%d]: unknown status %q", index, a.Status)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}
	return nil
}
