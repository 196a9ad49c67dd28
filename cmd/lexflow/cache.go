package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lexflow/lexflow/internal/cache"
	"github.com/lexflow/lexflow/internal/config"
)

var cacheMatter string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the result cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show result cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStateDB()
		if err != nil {
			return err
		}
		if db == nil {
			fmt.Println("No cache yet.")
			return nil
		}
		defer db.Close()

		total, expired, err := cache.New(db).Stats()
		if err != nil {
			return fmt.Errorf("cache stats: %w", err)
		}
		fmt.Printf("Entries: %d (%d expired, %d live)\n", total, expired, total-expired)
		return nil
	},
}

var cacheEvictCmd = &cobra.Command{
	Use:   "evict",
	Short: "Delete expired cache entries",
	Long: `Delete expired result cache entries.

With --matter, sweeps only that matter's entries; otherwise the whole
cache is swept. Live entries are never removed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStateDB()
		if err != nil {
			return err
		}
		if db == nil {
			fmt.Println("No cache yet.")
			return nil
		}
		defer db.Close()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		count, err := cache.New(db, cache.WithTTL(cfg.Cache.TTL)).Evict(cacheMatter)
		if err != nil {
			return fmt.Errorf("evict: %w", err)
		}
		fmt.Printf("Removed %d expired entries.\n", count)
		return nil
	},
}

var cacheSimilarCmd = &cobra.Command{
	Use:   "similar <query>",
	Short: "Find cached results relevant to a query",
	Long: `Rank cached results against a query and list those scoring at or
above the configured relevance threshold (cache.relevance_threshold),
most relevant first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStateDB()
		if err != nil {
			return err
		}
		if db == nil {
			fmt.Println("No cache yet.")
			return nil
		}
		defer db.Close()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		hits := cache.New(db, cache.WithTTL(cfg.Cache.TTL)).
			Similar(cacheMatter, args[0], cfg.Cache.RelevanceThreshold)
		if len(hits) == 0 {
			fmt.Println("No cached results above the relevance threshold.")
			return nil
		}

		for _, h := range hits {
			label := h.Entry.Title
			if label == "" {
				label = h.Entry.Query
			}
			fmt.Printf("%.2f  %s  (%s, %s ago)\n",
				h.Relevance, label, h.Entry.AgentType,
				formatDuration(time.Since(h.Entry.CreatedAt)))
		}
		return nil
	},
}

func init() {
	cacheEvictCmd.Flags().StringVar(&cacheMatter, "matter", "", "Matter ID to sweep (empty sweeps everything)")
	cacheSimilarCmd.Flags().StringVar(&cacheMatter, "matter", "", "Matter ID to search within (empty for general scope)")
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheEvictCmd)
	cacheCmd.AddCommand(cacheSimilarCmd)
}
