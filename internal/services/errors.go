package services

import (
	"errors"
	"fmt"
	"strings"

	"anilink/internal/queue"
)

var (
	// ErrValidation marks input that can never succeed as given.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks startup-level misconfiguration.
	ErrConfiguration = errors.New("configuration error")
	// ErrParse marks filenames the parser could not turn into a candidate.
	ErrParse = errors.New("unparseable filename")
	// ErrAmbiguous marks resolutions with multiple close matches.
	ErrAmbiguous = errors.New("ambiguous match")
	// ErrNotFound marks definitive empty results from the metadata source.
	ErrNotFound = errors.New("not found")
	// ErrTransient marks network and upstream failures worth retrying.
	ErrTransient = errors.New("transient failure")
	// ErrCollision marks a library target already claimed by another source.
	ErrCollision = errors.New("target collision")
	// ErrCrossDevice marks hard links rejected across filesystem boundaries.
	ErrCrossDevice = errors.New("cross-device link")
	// ErrIO marks filesystem failures local to one item.
	ErrIO = errors.New("io failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later status classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureStatus maps a stage error to the queue status the workflow manager
// should persist after the stage fails. Review statuses keep the file waiting
// for a human decision; failed statuses are terminal but retryable.
func FailureStatus(err error) queue.Status {
	switch {
	case errors.Is(err, ErrParse),
		errors.Is(err, ErrAmbiguous),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrValidation):
		return queue.StatusReview
	default:
		return queue.StatusFailed
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
