// Package synth is the boundary to the external asynchronous speech
// synthesis service. The rest of the system sees only task identifiers,
// task config and task status; how the audio is produced is opaque.
package synth

import (
	"context"
	"errors"
)

// TaskStatus is the lifecycle state of a synthesis task.
//
//	scheduled -> inProgress -> completed
//	                        -> failed
//
// Transitions are driven entirely by the service.
type TaskStatus string

const (
	StatusScheduled  TaskStatus = "scheduled"
	StatusInProgress TaskStatus = "inProgress"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
)

// Terminal reports whether no further transition can happen.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the four known states.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// ErrTaskNotFound is returned by GetTask for an unknown task id.
var ErrTaskNotFound = errors.New("synth: task not found")

// Config holds the voice parameters of a synthesis request.
type Config struct {
	OutputFormat    string   `json:"OutputFormat"`
	Engine          string   `json:"Engine"`
	LanguageCode    string   `json:"LanguageCode"`
	LexiconNames    []string `json:"LexiconNames,omitempty"`
	SampleRate      string   `json:"SampleRate"`
	SpeechMarkTypes []string `json:"SpeechMarkTypes,omitempty"`
	TextType        string   `json:"TextType"`
	VoiceID         string   `json:"VoiceId"`
}

// Task is the raw task record returned by the service.
type Task struct {
	TaskID            string     `json:"TaskId"`
	TaskStatus        TaskStatus `json:"TaskStatus"`
	TaskStatusReason  string     `json:"TaskStatusReason,omitempty"`
	CreationTime      int64      `json:"CreationTime"`
	OutputURI         string     `json:"OutputUri"`
	RequestCharacters int64      `json:"RequestCharacters"`
	SnsTopicArn       string     `json:"SnsTopicArn,omitempty"`

	// OutputBytes and DurationSeconds describe the finished media when the
	// service reports them. Zero means unknown.
	OutputBytes     int64 `json:"OutputBytes,omitempty"`
	DurationSeconds int64 `json:"DurationSeconds,omitempty"`

	Config
}

// StartRequest asks the service to synthesize Text into Bucket/Prefix.
type StartRequest struct {
	Text   string `json:"Text"`
	Bucket string `json:"OutputS3BucketName"`
	Prefix string `json:"OutputS3KeyPrefix,omitempty"`
	Config
}

// Service is the external job system contract.
type Service interface {
	StartTask(ctx context.Context, req StartRequest) (Task, error)
	GetTask(ctx context.Context, taskID string) (Task, error)
}

// MimeType maps an output format to the attachment MIME type.
func MimeType(format string) string {
	switch format {
	case "ogg_vorbis":
		return "audio/ogg"
	case "pcm":
		return "audio/L16"
	case "json":
		return "application/x-json-stream"
	default:
		return "audio/mpeg"
	}
}

// Extension maps an output format to a file extension.
func Extension(format string) string {
	switch format {
	case "ogg_vorbis":
		return "ogg"
	case "pcm":
		return "pcm"
	case "json":
		return "marks"
	default:
		return "mp3"
	}
}
