package ast

import (
	"fmt"
	"strings"
)

// ValidationError represents a validation error with field path and message.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors joins a non-empty list into a single error.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks that the feed is structurally serializable.
// Returns all errors (not fail-fast).
func Validate(feed *Feed) []ValidationError {
	if feed == nil {
		return []ValidationError{{Field: "feed", Message: "feed is nil"}}
	}

	var errs []ValidationError
	for i, it := range feed.Items {
		field := fmt.Sprintf("items[%d]", i)
		if it == nil {
			errs = append(errs, ValidationError{Field: field, Message: "item is nil"})
			continue
		}

		if it.ID == "" && it.URL == "" {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "item needs an id or a url",
			})
		}

		for j, a := range it.Attachments {
			attField := fmt.Sprintf("%s.attachments[%d]", field, j)
			if a.URL == "" {
				errs = append(errs, ValidationError{Field: attField + ".url", Message: "url is required"})
			}
			if a.MimeType == "" {
				errs = append(errs, ValidationError{Field: attField + ".mimeType", Message: "mime type is required"})
			}
			if a.SizeInBytes < 0 || a.DurationInSeconds < 0 {
				errs = append(errs, ValidationError{Field: attField, Message: "size and duration must not be negative"})
			}
		}
	}

	return errs
}
