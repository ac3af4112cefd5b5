package harness

import (
	"fmt"
	"strings"
)

// EvaluateAssertions checks each assertion against result and returns one
// message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d] (%s): %v", i, a.Type, err))
		}
	}
	return failures
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertItemCount:
		round, err := roundOf(result, a.Round)
		if err != nil {
			return err
		}
		if got := len(round.Items); got != a.Count {
			return fmt.Errorf("round %d: expected %d items, got %d", a.Round, a.Count, got)
		}

	case AssertAttachmentCount:
		round, err := roundOf(result, a.Round)
		if err != nil {
			return err
		}
		got := -1
		for _, it := range round.Items {
			if it.ID == a.Item {
				got = len(it.Attachments)
				break
			}
		}
		if got < 0 {
			return fmt.Errorf("round %d: item %q not in output", a.Round, a.Item)
		}
		if got != a.Count {
			return fmt.Errorf("round %d item %q: expected %d attachments, got %d", a.Round, a.Item, a.Count, got)
		}

	case AssertStepErrors:
		round, err := roundOf(result, a.Round)
		if err != nil {
			return err
		}
		if a.Step < 0 || a.Step >= len(round.Funcs) {
			return fmt.Errorf("round %d: step %d out of range", a.Round, a.Step)
		}
		errs := round.Funcs[a.Step].Errors
		if len(errs) != a.Count {
			return fmt.Errorf("round %d step %d: expected %d errors, got %d %v", a.Round, a.Step, a.Count, len(errs), errs)
		}
		if a.Contains != "" && !anyContains(errs, a.Contains) {
			return fmt.Errorf("round %d step %d: no error contains %q in %v", a.Round, a.Step, a.Contains, errs)
		}

	case AssertSubmissions:
		if result.Submissions != a.Count {
			return fmt.Errorf("expected %d submissions, got %d", a.Count, result.Submissions)
		}

	case AssertBreadcrumbStatus:
		got := result.Statuses[a.Item]
		if got != a.Status {
			return fmt.Errorf("item %q: expected status %q, got %q", a.Item, a.Status, got)
		}

	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func roundOf(result *Result, i int) (RoundTrace, error) {
	if i < 0 || i >= len(result.Rounds) {
		return RoundTrace{}, fmt.Errorf("round %d not executed", i)
	}
	return result.Rounds[i], nil
}

func anyContains(list []string, sub string) bool {
	for _, s := range list {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
