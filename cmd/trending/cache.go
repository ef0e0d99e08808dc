package main

import (
	"fmt"

	"github.com/p32929/github-trending-repos/internal/cache"
	"github.com/p32929/github-trending-repos/internal/config"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the day cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show what the cache currently holds",
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop the cached trending set",
	RunE:  runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func openStore() (*cache.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	store, err := cache.Open(cfg.CachePath)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	return store, nil
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	snap := store.Get()
	if snap == nil {
		fmt.Println("cache is empty")
		return nil
	}

	fmt.Printf("generated: %s\n", snap.GeneratedAt)
	fmt.Printf("built:     %s\n", snap.BuiltAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("repos:     %d\n", len(snap.Repos))
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Clear(); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	fmt.Println("cache cleared")
	return nil
}
