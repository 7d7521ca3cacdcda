package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrValidation is wrapped by ValidationError.
var ErrValidation = errors.New("validation error")

// FieldError describes a single invalid field.
type FieldError struct {
	Field string `json:"field"`
	Msg   string `json:"message"`
}

func (e FieldError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Msg) }

// ValidationError carries every failed field of an entity.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Error())
	}
	return "validation error: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// MaxTitleLen caps the title length in runes.
const MaxTitleLen = 256

// ValidateEvent checks the caller-level invariants the store does not
// enforce. It expects a normalized event.
func ValidateEvent(ev Event) error {
	var errs []FieldError

	if ev.Title == "" {
		errs = append(errs, FieldError{"title", "required"})
	} else if len([]rune(ev.Title)) > MaxTitleLen {
		errs = append(errs, FieldError{"title", fmt.Sprintf("max length %d", MaxTitleLen)})
	}
	if ev.StartTime.IsZero() {
		errs = append(errs, FieldError{"start_time", "required"})
	}
	if ev.EndTime.IsZero() {
		errs = append(errs, FieldError{"end_time", "required"})
	} else if ev.EndTime.Before(ev.StartTime) {
		errs = append(errs, FieldError{"end_time", "must not be before start_time"})
	}
	if ev.RemindTime.IsZero() {
		errs = append(errs, FieldError{"remind_time", "required"})
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// MillisToTime converts a stored millisecond timestamp to local time.
func MillisToTime(ms int64) time.Time {
	return time.UnixMilli(ms).In(time.Local)
}
