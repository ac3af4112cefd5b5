package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/citytrain/internal/ast"
	"github.com/roach88/citytrain/internal/enhance"
	"github.com/roach88/citytrain/internal/enhance/voice"
	"github.com/roach88/citytrain/internal/pipeline"
	"github.com/roach88/citytrain/internal/store"
	"github.com/roach88/citytrain/internal/synth"
	"github.com/roach88/citytrain/internal/testutil"
	"github.com/roach88/citytrain/internal/tracker"
)

// Harness holds the collaborators that persist across a scenario's rounds.
type Harness struct {
	scenario *Scenario
	store    *store.MemoryStore
	service  *synth.Local
	runner   *pipeline.Runner
	logger   *slog.Logger
}

// New wires a fresh store and local synthesis service for scenario.
func New(scenario *Scenario) *Harness {
	logger := slog.New(slog.DiscardHandler)
	st := store.NewMemoryStore()
	svc := synth.NewLocal(scenario.Steps).WithClock(testutil.NewDeterministicClock().Now)

	registry := enhance.NewRegistry()
	for _, e := range enhance.Builtins() {
		registry.Register(e)
	}
	registry.Register(voice.New(voice.Deps{
		Store:   st,
		Service: svc,
		Config:  scenario.Voice,
		Logger:  logger,
	}))

	return &Harness{
		scenario: scenario,
		store:    st,
		service:  svc,
		runner:   pipeline.NewRunner(registry, logger),
		logger:   logger,
	}
}

// Run executes a scenario in isolation and evaluates its assertions.
func Run(scenario *Scenario) (*Result, error) {
	return New(scenario).Run(context.Background())
}

// Run executes every round, then evaluates the assertions.
func (h *Harness) Run(ctx context.Context) (*Result, error) {
	result := NewResult()

	for i, round := range h.scenario.Rounds {
		if round.ForceStatus != "" {
			if err := h.forceStatus(ctx, round.ForceStatus, round.Reason); err != nil {
				return nil, fmt.Errorf("round %d: %w", i, err)
			}
		}

		funcs, err := pipeline.ParseComposition(round.Composition)
		if err != nil {
			return nil, fmt.Errorf("round %d: %w", i, err)
		}
		out, err := h.runner.SetupASTPipeline(ctx, h.feed(), funcs)
		if err != nil {
			return nil, fmt.Errorf("round %d: %w", i, err)
		}
		result.Rounds = append(result.Rounds, traceRound(i, round.Composition, funcs, out))
	}

	result.Submissions = h.service.Tasks()
	if err := h.collectStatuses(ctx, result); err != nil {
		return nil, err
	}

	for _, msg := range EvaluateAssertions(result, h.scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// feed builds a fresh AST from the fixture.
func (h *Harness) feed() *ast.Feed {
	f := &ast.Feed{
		Version: "https://jsonfeed.org/version/1.1",
		Title:   h.scenario.Feed.Title,
		Items:   make([]*ast.Item, 0, len(h.scenario.Feed.Items)),
	}
	for _, fx := range h.scenario.Feed.Items {
		f.Items = append(f.Items, fixtureItem(fx))
	}
	return f
}

func fixtureItem(fx ItemFixture) *ast.Item {
	return &ast.Item{
		ID:      fx.ID,
		Title:   fx.Title,
		Content: ast.Resolved(ast.Content{Text: fx.Text, HTML: fx.HTML}),
	}
}

// tracker returns a tracker over the scenario's breadcrumb namespace, or
// nil if the voice configuration does not resolve.
func (h *Harness) tracker() (*tracker.Tracker, voice.Settings) {
	settings, err := voice.ResolveSettings(h.scenario.Voice, nil)
	if err != nil {
		return nil, voice.Settings{}
	}
	return tracker.New(h.store, settings.Namespace(), h.logger), settings
}

func (h *Harness) forceStatus(ctx context.Context, status synth.TaskStatus, reason string) error {
	t, _ := h.tracker()
	if t == nil {
		return nil
	}
	keys, err := t.Keys(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		b, err := t.Get(ctx, key)
		if err != nil {
			return err
		}
		if err := h.service.SetStatus(b.Task.IDs.TaskID, status, reason); err != nil {
			return fmt.Errorf("force %s on %s: %w", status, key, err)
		}
	}
	return nil
}

func (h *Harness) collectStatuses(ctx context.Context, result *Result) error {
	t, settings := h.tracker()
	if t == nil {
		return nil
	}
	for _, fx := range h.scenario.Feed.Items {
		text, err := enhance.ItemText(ctx, fixtureItem(fx))
		if err != nil || text == "" {
			continue
		}
		key, err := voice.Key(settings, text)
		if err != nil {
			return err
		}
		b, err := t.Get(ctx, key)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		result.Statuses[fx.ID] = b.Task.IDs.TaskStatus
	}
	return nil
}

func traceRound(i int, composition string, funcs []pipeline.FuncInterface, out *ast.Feed) RoundTrace {
	rt := RoundTrace{
		Round:       i,
		Composition: composition,
		Funcs:       funcs,
		Items:       make([]ItemTrace, 0, len(out.Items)),
	}
	for _, it := range out.Items {
		if it == nil {
			continue
		}
		trace := ItemTrace{ID: it.ID}
		for _, a := range it.Attachments {
			trace.Attachments = append(trace.Attachments, AttachmentTrace{
				Title:             a.Title,
				MimeType:          a.MimeType,
				SizeInBytes:       a.SizeInBytes,
				DurationInSeconds: a.DurationInSeconds,
			})
		}
		rt.Items = append(rt.Items, trace)
	}
	return rt
}
