package harness

import (
	"github.com/roach88/citytrain/internal/pipeline"
	"github.com/roach88/citytrain/internal/synth"
)

// RoundTrace is the observable outcome of one round.
type RoundTrace struct {
	Round       int                      `json:"round"`
	Composition string                   `json:"composition"`
	Funcs       []pipeline.FuncInterface `json:"funcs"`
	Items       []ItemTrace              `json:"items"`
}

// ItemTrace records an output item.
type ItemTrace struct {
	ID          string            `json:"id"`
	Attachments []AttachmentTrace `json:"attachments,omitempty"`
}

// AttachmentTrace is an attachment without its URL, which embeds a random
// task id.
type AttachmentTrace struct {
	Title             string `json:"title"`
	MimeType          string `json:"mime_type"`
	SizeInBytes       int64  `json:"size_in_bytes"`
	DurationInSeconds int64  `json:"duration_in_seconds"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every assertion held.
	Pass bool `json:"pass"`

	Rounds []RoundTrace `json:"rounds"`

	// Submissions counts tasks started on the synthesis service.
	Submissions int `json:"submissions"`

	// Statuses maps item id to its stored breadcrumb status after the last
	// round. Items without a breadcrumb are absent.
	Statuses map[string]synth.TaskStatus `json:"statuses"`

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Rounds:   []RoundTrace{},
		Statuses: make(map[string]synth.TaskStatus),
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
