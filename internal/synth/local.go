package synth

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Local is an in-process Service. Tasks start scheduled and advance one
// state per GetTask, reaching completed after Steps polls. No audio is
// produced; the output URI is a local:// placeholder.
type Local struct {
	// Steps is the number of GetTask calls before completion. Zero
	// completes on the first poll.
	Steps int

	mu    sync.Mutex
	tasks map[string]*localTask
	now   func() time.Time
}

type localTask struct {
	task  Task
	polls int
}

var _ Service = (*Local)(nil)

// NewLocal creates a Local service that completes after steps polls.
func NewLocal(steps int) *Local {
	return &Local{
		Steps: steps,
		tasks: make(map[string]*localTask),
		now:   time.Now,
	}
}

// WithClock overrides the creation-time source.
func (l *Local) WithClock(now func() time.Time) *Local {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
	return l
}

// StartTask records a new scheduled task.
func (l *Local) StartTask(ctx context.Context, req StartRequest) (Task, error) {
	if err := ctx.Err(); err != nil {
		return Task{}, err
	}
	if req.Bucket == "" {
		return Task{}, fmt.Errorf("start task: bucket is required")
	}

	id := uuid.Must(uuid.NewV7()).String()
	format := req.OutputFormat
	if format == "" {
		format = "mp3"
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tasks == nil {
		l.tasks = make(map[string]*localTask)
	}
	if l.now == nil {
		l.now = time.Now
	}

	t := Task{
		TaskID:            id,
		TaskStatus:        StatusScheduled,
		CreationTime:      l.now().UnixMilli(),
		OutputURI:         fmt.Sprintf("local://%s/%s%s.%s", req.Bucket, req.Prefix, id, Extension(format)),
		RequestCharacters: int64(utf8.RuneCountInString(req.Text)),
		Config:            req.Config,
	}
	t.OutputFormat = format
	l.tasks[id] = &localTask{task: t}
	return t, nil
}

// GetTask returns the task after advancing it one state.
func (l *Local) GetTask(ctx context.Context, taskID string) (Task, error) {
	if err := ctx.Err(); err != nil {
		return Task{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	lt, ok := l.tasks[taskID]
	if !ok {
		return Task{}, ErrTaskNotFound
	}

	if !lt.task.TaskStatus.Terminal() {
		lt.polls++
		switch {
		case lt.polls > l.Steps:
			l.complete(lt)
		default:
			lt.task.TaskStatus = StatusInProgress
		}
	}
	return lt.task, nil
}

// SetStatus forces a task into status. A failed status records reason.
func (l *Local) SetStatus(taskID string, status TaskStatus, reason string) error {
	if !status.Valid() {
		return fmt.Errorf("set status: unknown status %q", status)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	lt, ok := l.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	if status == StatusCompleted {
		l.complete(lt)
		return nil
	}
	lt.task.TaskStatus = status
	lt.task.TaskStatusReason = reason
	return nil
}

// Tasks returns the number of tasks started.
func (l *Local) Tasks() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks)
}

func (l *Local) complete(lt *localTask) {
	lt.task.TaskStatus = StatusCompleted
	lt.task.TaskStatusReason = ""
	lt.task.OutputBytes, lt.task.DurationSeconds = EstimateMedia(
		lt.task.RequestCharacters, lt.task.OutputFormat, lt.task.SampleRate)
}
