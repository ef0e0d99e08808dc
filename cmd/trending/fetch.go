package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/p32929/github-trending-repos/internal/cache"
	"github.com/p32929/github-trending-repos/internal/config"
	"github.com/p32929/github-trending-repos/internal/events"
	"github.com/p32929/github-trending-repos/internal/refresh"
	"github.com/p32929/github-trending-repos/internal/trending"
	"github.com/spf13/cobra"
)

var fetchForce bool

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch today's trending repos and print them",
	Long: `Runs one refresh (reusing today's cached set unless --force) and
prints the merged repos as a table sorted by stars.`,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().BoolVar(&fetchForce, "force", false, "refresh even if today's cache is valid")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	store, err := cache.Open(cfg.CachePath)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer store.Close()

	coord := refresh.New(refresh.Config{
		Fetcher: trending.NewHTTPFetcher(trending.HTTPFetcherConfig{
			BaseURL:   cfg.BaseURL,
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.FetchTimeout,
		}),
		Store:      store,
		Hub:        events.NewHub(),
		Categories: cfg.Categories(),
	})

	snap, err := coord.Refresh(ctx, fetchForce)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}

	printRepos(snap)
	return nil
}

func printRepos(snap *cache.Snapshot) {
	repos := append([]trending.Repo(nil), snap.Repos...)
	trending.SortByStars(repos)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "REPO\tSTARS\tTODAY\tFORKS\tLANGUAGE")
	for _, repo := range repos {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
			repo.Name,
			repo.Stars,
			optional(repo.StarsToday),
			optional(repo.Forks),
			trending.CategoryLabel(repo.Category),
		)
	}
	w.Flush()

	fmt.Printf("\n%d repos, generated %s\n", len(repos), snap.GeneratedAt)
}

func optional(n *int) string {
	if n == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *n)
}
