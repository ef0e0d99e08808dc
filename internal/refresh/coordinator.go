package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/p32929/github-trending-repos/internal/cache"
	"github.com/p32929/github-trending-repos/internal/events"
	"github.com/p32929/github-trending-repos/internal/trending"
	"golang.org/x/sync/singleflight"
)

// Status is the immediate answer to a refresh trigger.
type Status string

const (
	StatusCached     Status = "cached"
	StatusStarted    Status = "started"
	StatusInProgress Status = "in-progress"
)

// refreshKey is the single-flight key; there is only one logical
// refresh operation per process.
const refreshKey = "refresh"

// TriggerResult is the synchronous response to a trigger request.
type TriggerResult struct {
	Status      Status `json:"status"`
	GeneratedAt string `json:"generatedAt,omitempty"`
}

// Coordinator drives one logical refresh operation at a time: it
// answers from the day-scoped cache when possible, joins callers onto
// an already running aggregation, and otherwise starts one run whose
// progress is published through the hub.
type Coordinator struct {
	store      *cache.Store
	hub        *events.Hub
	categories []string
	now        func() time.Time

	agg   *trending.Aggregator
	group singleflight.Group

	mu       sync.Mutex
	inFlight bool
	tokens   []string // session tokens joined to the current run
	gen      uint64   // bumped when a run begins; orders runs vs. trigger claims
}

// runResult carries a run's snapshot together with its generation, so
// a dispatcher can tell whether the single-flight call it joined was
// its own or a leftover one that was already completing.
type runResult struct {
	snap *cache.Snapshot
	gen  uint64
}

// Config holds coordinator configuration.
type Config struct {
	Fetcher    trending.Fetcher
	Store      *cache.Store
	Hub        *events.Hub
	Categories []string

	// Now overrides the clock; nil means time.Now. Used by tests.
	Now func() time.Time
}

// New creates a coordinator.
func New(cfg Config) *Coordinator {
	c := &Coordinator{
		store:      cfg.Store,
		hub:        cfg.Hub,
		categories: cfg.Categories,
		now:        cfg.Now,
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.agg = trending.NewAggregator(trending.AggregatorConfig{
		Fetcher:  cfg.Fetcher,
		Reporter: c,
	})
	return c
}

// InFlight reports whether an aggregation run is underway.
func (c *Coordinator) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Refresh returns the current trending set, running one aggregation if
// the cache is stale. Concurrent callers share a single run and all
// receive the same snapshot. force skips the cache-validity check but
// still joins an in-flight run rather than stacking a second one.
func (c *Coordinator) Refresh(ctx context.Context, force bool) (*cache.Snapshot, error) {
	if !force {
		// One Get, then check its date: a concurrent Clear between a
		// separate validity check and the read could hand back nil.
		if snap := c.store.Get(); snap != nil && snap.GeneratedAt == cache.DateOf(c.now()) {
			return snap, nil
		}
	}

	result, err, shared := c.group.Do(refreshKey, c.run)
	if err != nil {
		return nil, err
	}
	if shared {
		slog.Debug("joined in-flight refresh")
	}
	return result.(runResult).snap, nil
}

// Trigger answers a refresh request without blocking. A valid cache
// answers "cached"; an in-flight run answers "in-progress" (joining
// the session token, if any, onto that run); otherwise a run is
// started in the background and the answer is "started". Data and
// progress then arrive through the hub.
func (c *Coordinator) Trigger(force bool, token string) TriggerResult {
	if !force {
		if snap := c.store.Get(); snap != nil && snap.GeneratedAt == cache.DateOf(c.now()) {
			if token != "" {
				c.hub.SendTo(token, CachedEvent(snap))
				c.hub.CloseSessions(token)
			}
			return TriggerResult{Status: StatusCached, GeneratedAt: snap.GeneratedAt}
		}
	}

	c.mu.Lock()
	if c.inFlight {
		if token != "" {
			c.tokens = append(c.tokens, token)
		}
		c.mu.Unlock()
		return TriggerResult{Status: StatusInProgress}
	}
	c.inFlight = true
	c.tokens = nil
	if token != "" {
		c.tokens = []string{token}
	}
	claimed := c.gen
	c.mu.Unlock()

	go c.dispatch(claimed)

	return TriggerResult{Status: StatusStarted}
}

// dispatch executes the run claimed by a trigger. The single-flight
// key outlives run's own cleanup by a moment: a call whose fn has
// returned (and cleared inFlight) stays joinable until singleflight
// deletes the key. A trigger claiming in that window would join the
// dying call, get its result, and leave the claim wedged with no run
// behind it. The generation check catches that: a joined call whose
// run began at or before this trigger's claim is stale, so dispatch
// goes around again until a run that postdates the claim has executed.
func (c *Coordinator) dispatch(claimed uint64) {
	for {
		v, err, _ := c.group.Do(refreshKey, c.run)
		if err != nil {
			slog.Error("refresh run failed", "error", err)
		}
		res, ok := v.(runResult)
		if !ok || res.gen > claimed {
			return
		}
		slog.Debug("joined completing refresh, dispatching again", "gen", res.gen)
	}
}

// run executes one aggregation and swaps the result into the cache.
// It owns the inFlight flag: the flag is cleared on every exit path,
// including a panic inside the run, so the single-flight lock is never
// left held. The aggregator itself never fails (failed categories
// become empty results), so the error path here is defensive only.
//
// The run uses a background context: callers that joined the run may
// come and go, and their cancellation must not abort the shared work.
func (c *Coordinator) run() (result any, err error) {
	c.mu.Lock()
	c.inFlight = true
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresh run panicked: %v", r)
			result = runResult{gen: gen}
		}

		c.mu.Lock()
		c.inFlight = false
		tokens := c.tokens
		c.tokens = nil
		c.mu.Unlock()

		if err != nil {
			c.hub.Publish(events.Event{Kind: events.KindRunFailed, Reason: err.Error()}, tokens...)
		}
		c.hub.CloseSessions(tokens...)
	}()

	c.publish(events.Event{Kind: events.KindRunStarted})

	repos, outcomes := c.agg.RunAll(context.Background(), c.categories)

	failed := 0
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			failed++
		}
	}

	now := c.now()
	snap := &cache.Snapshot{
		Repos:       repos,
		GeneratedAt: cache.DateOf(now),
		BuiltAt:     now,
	}
	c.store.Replace(snap)

	slog.Info("refresh complete",
		"repos", len(repos),
		"failed_categories", failed,
		"generated_at", snap.GeneratedAt,
	)

	c.publish(events.Event{
		Kind:        events.KindRunCompleted,
		FinalCount:  len(repos),
		GeneratedAt: snap.GeneratedAt,
	})

	return runResult{snap: snap, gen: gen}, nil
}

// CategoryStarted implements trending.Reporter.
func (c *Coordinator) CategoryStarted(category string) {
	c.publish(events.Event{
		Kind:     events.KindCategoryStarted,
		Category: trending.CategoryLabel(category),
	})
}

// CategoryFinished implements trending.Reporter.
func (c *Coordinator) CategoryFinished(outcome trending.Outcome) {
	ev := events.Event{
		Kind:     events.KindCategorySucceeded,
		Category: trending.CategoryLabel(outcome.Category),
		Count:    outcome.Count,
	}
	if outcome.Err != nil {
		ev.Kind = events.KindCategoryFailed
		ev.Reason = outcome.Err.Error()
	}
	c.publish(ev)
}

// publish delivers an event to broadcast observers and to the session
// observers joined to the current run.
func (c *Coordinator) publish(ev events.Event) {
	c.mu.Lock()
	tokens := append([]string(nil), c.tokens...)
	c.mu.Unlock()
	c.hub.Publish(ev, tokens...)
}

// CachedEvent builds the synthetic event sent to observers that
// connect while a valid cached set exists.
func CachedEvent(snap *cache.Snapshot) events.Event {
	return events.Event{
		Kind:        events.KindCached,
		FinalCount:  len(snap.Repos),
		GeneratedAt: snap.GeneratedAt,
		Repos:       snap.Repos,
	}
}
