package trending

import (
	"context"
	"sort"
)

// Repo represents one repository discovered on a trending page.
type Repo struct {
	// Category is the language slug the repo was fetched under.
	// Empty string means the catch-all (all languages) page.
	Category    string `json:"category"`
	URL         string `json:"url"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Stars       int    `json:"stars"`
	StarsToday  *int   `json:"starsToday,omitempty"`
	Forks       *int   `json:"forks,omitempty"`
}

// Fetcher retrieves the trending repos for one category.
type Fetcher interface {
	// Fetch returns the repos for the category. An error means the whole
	// category failed (network, non-200); callers treat it as an empty
	// result for that category only.
	Fetch(ctx context.Context, category string) ([]Repo, error)
}

// Outcome describes how one category's fetch went.
type Outcome struct {
	Category string
	Count    int
	Err      error
}

// Reporter receives per-category progress while an aggregation runs.
type Reporter interface {
	CategoryStarted(category string)
	CategoryFinished(outcome Outcome)
}

// CategoryLabel returns a display name for a category slug.
func CategoryLabel(category string) string {
	if category == "" {
		return "all"
	}
	return category
}

// SortByStars orders repos by star count, highest first. Ties keep
// their relative order so dedup order stays visible.
func SortByStars(repos []Repo) {
	sort.SliceStable(repos, func(i, j int) bool {
		return repos[i].Stars > repos[j].Stars
	})
}
