package events

import (
	"github.com/p32929/github-trending-repos/internal/trending"
)

// Kind identifies a progress event type.
type Kind string

const (
	KindRunStarted        Kind = "run-started"
	KindCategoryStarted   Kind = "category-started"
	KindCategorySucceeded Kind = "category-succeeded"
	KindCategoryFailed    Kind = "category-failed"
	KindRunCompleted      Kind = "run-completed"
	KindRunFailed         Kind = "run-failed"

	// KindCached is synthetic: sent to a newly connected observer when a
	// valid cached set already exists, so it never waits for a run.
	KindCached Kind = "cached"
)

// Event is one progress message for a refresh run. Category events
// carry Category (and Count or Reason); run-completed carries
// FinalCount and GeneratedAt; cached carries the current set.
type Event struct {
	Kind        Kind            `json:"kind"`
	Category    string          `json:"category,omitempty"`
	// Count and FinalCount stay present at zero: an empty category and
	// an empty run are valid outcomes, distinct from "not applicable".
	Count       int             `json:"count"`
	Reason      string          `json:"reason,omitempty"`
	FinalCount  int             `json:"finalCount"`
	GeneratedAt string          `json:"generatedAt,omitempty"`
	Repos       []trending.Repo `json:"repos,omitempty"`
}
