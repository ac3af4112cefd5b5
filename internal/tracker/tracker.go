// Package tracker records and inspects the lifecycle of external synthesis
// jobs. A job is remembered by a breadcrumb stored under its content key;
// the mere presence of a breadcrumb means the job was submitted at least
// once.
//
// Breadcrumb layout (JSON, one per content key):
//
//	{
//	  "pk":   "<content key>",
//	  "sk":   "<content key>",
//	  "item": { ...feed item snapshot at submission time... },
//	  "task": { "ids": {...}, "config": {...} }
//	}
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/citytrain/internal/ast"
	"github.com/roach88/citytrain/internal/store"
	"github.com/roach88/citytrain/internal/synth"
)

// TaskIdentifiers is the status half of a synthesis task.
type TaskIdentifiers struct {
	TaskID            string           `json:"TaskId"`
	TaskStatus        synth.TaskStatus `json:"TaskStatus"`
	TaskStatusReason  string           `json:"TaskStatusReason,omitempty"`
	CreationTime      int64            `json:"CreationTime"`
	OutputURI         string           `json:"OutputUri"`
	RequestCharacters int64            `json:"RequestCharacters"`
	SnsTopicArn       string           `json:"SnsTopicArn,omitempty"`
	OutputBytes       int64            `json:"OutputBytes,omitempty"`
	DurationSeconds   int64            `json:"DurationSeconds,omitempty"`
}

// TaskConfig is the configuration half of a synthesis task.
type TaskConfig = synth.Config

// Task pairs identifiers with config as stored in a breadcrumb.
type Task struct {
	IDs    TaskIdentifiers `json:"ids"`
	Config TaskConfig      `json:"config"`
}

// Breadcrumb is the persisted record of one submitted job.
type Breadcrumb struct {
	PK   string   `json:"pk"`
	SK   string   `json:"sk"`
	Item ast.Item `json:"item"`
	Task Task     `json:"task"`
}

// Failed reports whether the job reached the terminal failed state.
func (b Breadcrumb) Failed() bool {
	return b.Task.IDs.TaskStatus == synth.StatusFailed
}

// Tracker stores breadcrumbs in a Store under prefix+key.
type Tracker struct {
	store  store.Store
	prefix string
	logger *slog.Logger
}

// New creates a Tracker. A nil logger discards output.
func New(s store.Store, prefix string, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Tracker{
		store:  s,
		prefix: prefix,
		logger: logger.With("component", "tracker"),
	}
}

// StorageKey returns the store key a breadcrumb for key lives under.
func (t *Tracker) StorageKey(key string) string {
	return t.prefix + key
}

// CacheBreadcrumbs writes the breadcrumb for key and returns it.
// Writing again for the same key replaces the previous record.
func (t *Tracker) CacheBreadcrumbs(
	ctx context.Context,
	item ast.Item,
	key string,
	cfg TaskConfig,
	ids TaskIdentifiers,
) (Breadcrumb, error) {
	if key == "" {
		return Breadcrumb{}, fmt.Errorf("cache breadcrumbs: empty key")
	}

	b := Breadcrumb{
		PK:   key,
		SK:   key,
		Item: item,
		Task: Task{IDs: ids, Config: cfg},
	}
	if err := t.put(ctx, b); err != nil {
		return Breadcrumb{}, err
	}

	t.logger.Debug("breadcrumb cached",
		"key", key,
		"task_id", ids.TaskID,
		"status", string(ids.TaskStatus))
	return b, nil
}

// HaveEverStarted looks up the breadcrumb for key. An absent breadcrumb is
// reported as (zero, false, nil); store failures are returned as errors.
func (t *Tracker) HaveEverStarted(ctx context.Context, key string) (Breadcrumb, bool, error) {
	raw, err := t.store.Get(ctx, t.StorageKey(key))
	if errors.Is(err, store.ErrNotFound) {
		return Breadcrumb{}, false, nil
	}
	if err != nil {
		return Breadcrumb{}, false, fmt.Errorf("read breadcrumb %s: %w", key, err)
	}

	var b Breadcrumb
	if err := json.Unmarshal(raw, &b); err != nil {
		return Breadcrumb{}, false, fmt.Errorf("decode breadcrumb %s: %w", key, err)
	}
	return b, true, nil
}

// IsMediaFinished reports whether the job behind b has completed.
// A failed job is terminal but not finished.
func IsMediaFinished(b Breadcrumb) bool {
	return b.Task.IDs.TaskStatus == synth.StatusCompleted
}

// IsTerminal reports whether the job behind b can no longer change.
func IsTerminal(b Breadcrumb) bool {
	return b.Task.IDs.TaskStatus.Terminal()
}

// SplitSynthTaskResponse partitions a raw task into identifiers and config.
// Every field of the task lands in exactly one half.
func SplitSynthTaskResponse(task synth.Task) (TaskIdentifiers, TaskConfig) {
	ids := TaskIdentifiers{
		TaskID:            task.TaskID,
		TaskStatus:        task.TaskStatus,
		TaskStatusReason:  task.TaskStatusReason,
		CreationTime:      task.CreationTime,
		OutputURI:         task.OutputURI,
		RequestCharacters: task.RequestCharacters,
		SnsTopicArn:       task.SnsTopicArn,
		OutputBytes:       task.OutputBytes,
		DurationSeconds:   task.DurationSeconds,
	}
	return ids, task.Config
}

// Poll asks svc for the current state of an unfinished job and rewrites
// the breadcrumb when anything observed has changed. Terminal breadcrumbs
// are returned as-is without contacting the service.
func (t *Tracker) Poll(ctx context.Context, b Breadcrumb, svc synth.Service) (Breadcrumb, error) {
	if IsTerminal(b) {
		return b, nil
	}

	task, err := svc.GetTask(ctx, b.Task.IDs.TaskID)
	if err != nil {
		return b, fmt.Errorf("poll task %s: %w", b.Task.IDs.TaskID, err)
	}

	ids, _ := SplitSynthTaskResponse(task)
	if ids == b.Task.IDs {
		return b, nil
	}

	updated := b
	updated.Task.IDs = ids
	if err := t.put(ctx, updated); err != nil {
		return b, err
	}

	t.logger.Debug("task status changed",
		"key", b.PK,
		"task_id", ids.TaskID,
		"from", string(b.Task.IDs.TaskStatus),
		"to", string(ids.TaskStatus))
	return updated, nil
}

// Get returns the breadcrumb for key, or store.ErrNotFound.
func (t *Tracker) Get(ctx context.Context, key string) (Breadcrumb, error) {
	b, ok, err := t.HaveEverStarted(ctx, key)
	if err != nil {
		return Breadcrumb{}, err
	}
	if !ok {
		return Breadcrumb{}, store.ErrNotFound
	}
	return b, nil
}

// Keys lists the content keys of every stored breadcrumb. The store must
// implement store.Lister.
func (t *Tracker) Keys(ctx context.Context) ([]string, error) {
	l, ok := t.store.(store.Lister)
	if !ok {
		return nil, fmt.Errorf("list breadcrumbs: store does not support listing")
	}

	all, err := l.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list breadcrumbs: %w", err)
	}

	keys := make([]string, 0, len(all))
	for _, k := range all {
		if rest, ok := strings.CutPrefix(k, t.prefix); ok {
			keys = append(keys, rest)
		}
	}
	return keys, nil
}

func (t *Tracker) put(ctx context.Context, b Breadcrumb) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode breadcrumb %s: %w", b.PK, err)
	}
	if err := t.store.Put(ctx, t.StorageKey(b.PK), raw); err != nil {
		return fmt.Errorf("write breadcrumb %s: %w", b.PK, err)
	}
	return nil
}
