package trending

import (
	"context"
	"log/slog"
	"sync"
)

// Aggregator fans one fetch per category out concurrently and merges
// the results into a single deduplicated set.
type Aggregator struct {
	fetcher  Fetcher
	reporter Reporter
}

// AggregatorConfig holds aggregator configuration.
type AggregatorConfig struct {
	Fetcher  Fetcher
	Reporter Reporter
}

// NewAggregator creates a new aggregator.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	return &Aggregator{
		fetcher:  cfg.Fetcher,
		reporter: cfg.Reporter,
	}
}

// fetchResult pairs one category's outcome with its repo batch.
type fetchResult struct {
	outcome Outcome
	repos   []Repo
}

// RunAll fetches every category concurrently and returns the merged,
// deduplicated repo set plus the per-category outcomes. A failed
// category contributes an empty result and never aborts the others;
// all categories failing still counts as a successful (empty) run.
//
// Dedup keeps the first occurrence of each repo URL in fetch-completion
// order, so the merged order is non-deterministic across runs.
func (a *Aggregator) RunAll(ctx context.Context, categories []string) ([]Repo, map[string]Outcome) {
	results := make(chan fetchResult)

	var wg sync.WaitGroup
	for _, category := range categories {
		wg.Add(1)
		go func(category string) {
			defer wg.Done()

			a.categoryStarted(category)
			slog.Debug("fetching category", "category", CategoryLabel(category))

			repos, err := a.fetcher.Fetch(ctx, category)
			if err != nil {
				slog.Error("category fetch failed",
					"category", CategoryLabel(category),
					"error", err,
				)
				repos = nil
			}

			results <- fetchResult{
				outcome: Outcome{Category: category, Count: len(repos), Err: err},
				repos:   repos,
			}
		}(category)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	// Merge in completion order: the first category to finish wins any
	// URL it shares with a later one.
	var merged []Repo
	seen := make(map[string]bool)
	outcomes := make(map[string]Outcome, len(categories))

	for result := range results {
		a.categoryFinished(result.outcome)
		outcomes[result.outcome.Category] = result.outcome

		for _, repo := range result.repos {
			if repo.URL == "" || seen[repo.URL] {
				continue
			}
			seen[repo.URL] = true
			merged = append(merged, repo)
		}
	}

	slog.Info("aggregation complete",
		"categories", len(categories),
		"merged", len(merged),
	)

	return merged, outcomes
}

func (a *Aggregator) categoryStarted(category string) {
	if a.reporter != nil {
		a.reporter.CategoryStarted(category)
	}
}

func (a *Aggregator) categoryFinished(outcome Outcome) {
	if a.reporter != nil {
		a.reporter.CategoryFinished(outcome)
	}
}
