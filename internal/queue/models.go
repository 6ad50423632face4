package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a queue item.
type Status string

const (
	StatusPending   Status = "pending"
	StatusParsing   Status = "parsing"
	StatusParsed    Status = "parsed"
	StatusResolving Status = "resolving"
	StatusResolved  Status = "resolved"
	StatusLinking   Status = "linking"
	StatusCompleted Status = "completed"
	StatusReview    Status = "review"
	StatusFailed    Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusParsing,
	StatusParsed,
	StatusResolving,
	StatusResolved,
	StatusLinking,
	StatusCompleted,
	StatusReview,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusParsing:   {},
	StatusResolving: {},
	StatusLinking:   {},
}

type statusTransition struct {
	from Status
	to   Status
}

// stageRollbackTransitions return an interrupted item to the status its
// current stage started from, so a restart re-runs only that stage.
var stageRollbackTransitions = []statusTransition{
	{from: StatusParsing, to: StatusPending},
	{from: StatusResolving, to: StatusParsed},
	{from: StatusLinking, to: StatusResolved},
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TableExists      bool
	MissingColumns   []string
	TotalItems       int
	Error            string
}

// HealthSummary describes aggregated queue counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Review     int
	Failed     int
	Completed  int
}

// Item represents a queue item persisted in SQLite.
type Item struct {
	ID              int64
	SourcePath      string
	Fingerprint     string
	DisplayTitle    string
	Status          Status
	CandidateJSON   string
	MetadataJSON    string
	TargetPath      string
	ErrorMessage    string
	ReviewReason    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string
	LastHeartbeat   *time.Time
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessing returns true when the status reflects an in-flight operation.
func (i Item) IsProcessing() bool {
	return IsProcessingStatus(i.Status)
}

// IsProcessingStatus reports whether a status reflects an in-flight operation.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// IsTerminal reports whether the status needs no further pipeline work.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusReview, StatusFailed:
		return true
	default:
		return false
	}
}

// SetProgress updates all three progress fields together.
func (i *Item) SetProgress(stage, message string, percent float64) {
	i.ProgressStage = stage
	i.ProgressMessage = message
	i.ProgressPercent = percent
}

// SetProgressComplete sets progress to 100% with the given stage and message.
func (i *Item) SetProgressComplete(stage, message string) {
	i.SetProgress(stage, message, 100)
}

// SetFailed marks the item as failed with the given error message.
func (i *Item) SetFailed(message string) {
	i.Status = StatusFailed
	i.ErrorMessage = message
	i.ProgressPercent = 0
	i.ProgressMessage = message
	i.ProgressStage = "Failed"
	i.LastHeartbeat = nil
}

// SetReview parks the item for a human decision with the given reason.
func (i *Item) SetReview(reason string) {
	i.Status = StatusReview
	i.ReviewReason = reason
	i.ProgressPercent = 0
	i.ProgressMessage = reason
	i.ProgressStage = "Review"
	i.LastHeartbeat = nil
}
