package trending

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubFetcher serves canned results per category, with optional
// errors and per-category delays to control completion order.
type stubFetcher struct {
	mu      sync.Mutex
	calls   int
	results map[string][]Repo
	errs    map[string]error
	delays  map[string]time.Duration
}

func (f *stubFetcher) Fetch(ctx context.Context, category string) ([]Repo, error) {
	f.mu.Lock()
	f.calls++
	delay := f.delays[category]
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err := f.errs[category]; err != nil {
		return nil, err
	}
	return f.results[category], nil
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// recordingReporter captures progress callbacks.
type recordingReporter struct {
	mu       sync.Mutex
	started  []string
	finished []Outcome
}

func (r *recordingReporter) CategoryStarted(category string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, category)
}

func (r *recordingReporter) CategoryFinished(outcome Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, outcome)
}

func (r *recordingReporter) failures() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	var failed []Outcome
	for _, o := range r.finished {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

func urls(repos []Repo) []string {
	out := make([]string, len(repos))
	for i, r := range repos {
		out[i] = r.URL
	}
	return out
}

func TestAggregator_RunAll_Dedup(t *testing.T) {
	// The scenario from the cross-category dedup contract: "go" yields
	// urlA and urlB, "rust" yields urlA again; the merge has each URL
	// exactly once and reports both categories successful.
	fetcher := &stubFetcher{
		results: map[string][]Repo{
			"go": {
				{Category: "go", URL: "urlA", Stars: 10},
				{Category: "go", URL: "urlB", Stars: 5},
			},
			"rust": {
				{Category: "rust", URL: "urlA", Stars: 10},
			},
		},
		delays: map[string]time.Duration{"rust": 30 * time.Millisecond},
	}
	reporter := &recordingReporter{}
	agg := NewAggregator(AggregatorConfig{Fetcher: fetcher, Reporter: reporter})

	merged, outcomes := agg.RunAll(context.Background(), []string{"go", "rust"})

	assert.ElementsMatch(t, []string{"urlA", "urlB"}, urls(merged))
	require.Len(t, outcomes, 2)
	assert.NoError(t, outcomes["go"].Err)
	assert.NoError(t, outcomes["rust"].Err)
	assert.Equal(t, 2, outcomes["go"].Count)
	assert.Equal(t, 1, outcomes["rust"].Count)
	assert.Empty(t, reporter.failures())
}

func TestAggregator_RunAll_FirstCompletionWins(t *testing.T) {
	// Both categories list the same URL with different metadata; the
	// category that completes first keeps its copy.
	fetcher := &stubFetcher{
		results: map[string][]Repo{
			"fast": {{Category: "fast", URL: "urlA", Stars: 1}},
			"slow": {{Category: "slow", URL: "urlA", Stars: 2}},
		},
		delays: map[string]time.Duration{"slow": 80 * time.Millisecond},
	}
	agg := NewAggregator(AggregatorConfig{Fetcher: fetcher})

	merged, _ := agg.RunAll(context.Background(), []string{"slow", "fast"})

	require.Len(t, merged, 1)
	assert.Equal(t, "fast", merged[0].Category)
}

func TestAggregator_RunAll_Isolation(t *testing.T) {
	// One failing category never aborts the others, and exactly one
	// failure is reported.
	fetcher := &stubFetcher{
		results: map[string][]Repo{
			"go":   {{URL: "urlA", Stars: 10}},
			"rust": {{URL: "urlB", Stars: 20}},
		},
		errs: map[string]error{
			"java": errors.New("status 429"),
		},
	}
	reporter := &recordingReporter{}
	agg := NewAggregator(AggregatorConfig{Fetcher: fetcher, Reporter: reporter})

	merged, outcomes := agg.RunAll(context.Background(), []string{"go", "java", "rust"})

	assert.ElementsMatch(t, []string{"urlA", "urlB"}, urls(merged))
	assert.Error(t, outcomes["java"].Err)
	assert.Equal(t, 0, outcomes["java"].Count)

	failed := reporter.failures()
	require.Len(t, failed, 1)
	assert.Equal(t, "java", failed[0].Category)
}

func TestAggregator_RunAll_AllEmpty(t *testing.T) {
	// Every category failing is still a successful run with an empty
	// set, not an error.
	fetcher := &stubFetcher{
		errs: map[string]error{
			"go":   errors.New("timeout"),
			"rust": errors.New("timeout"),
		},
	}
	agg := NewAggregator(AggregatorConfig{Fetcher: fetcher})

	merged, outcomes := agg.RunAll(context.Background(), []string{"go", "rust"})

	assert.Empty(t, merged)
	assert.Len(t, outcomes, 2)
}

func TestAggregator_RunAll_StartedPrecedesFinished(t *testing.T) {
	fetcher := &stubFetcher{
		results: map[string][]Repo{"go": {{URL: "urlA"}}},
	}
	reporter := &recordingReporter{}
	agg := NewAggregator(AggregatorConfig{Fetcher: fetcher, Reporter: reporter})

	agg.RunAll(context.Background(), []string{"go"})

	require.Equal(t, []string{"go"}, reporter.started)
	require.Len(t, reporter.finished, 1)
}

func TestAggregator_RunAll_NoCategories(t *testing.T) {
	fetcher := &stubFetcher{}
	agg := NewAggregator(AggregatorConfig{Fetcher: fetcher})

	merged, outcomes := agg.RunAll(context.Background(), nil)

	assert.Empty(t, merged)
	assert.Empty(t, outcomes)
	assert.Equal(t, 0, fetcher.callCount())
}
