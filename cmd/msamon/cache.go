package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rsclarke/msamon/internal/session"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the session key cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached session keys",
	Args:  cobra.NoArgs,
	RunE:  runCacheList,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheListCmd)
}

func runCacheList(cmd *cobra.Command, args []string) error {
	history, err := session.OpenSQLiteStore(cfg.Cache.Path)
	if err != nil {
		return err
	}
	defer func() { _ = history.Close() }()

	cache, err := openSessionCache(cmd.Context(), history)
	if err != nil {
		return err
	}
	if cache != sessionCache(history) {
		defer func() { _ = cache.Close() }()
	}

	sessions, err := cache.List(cmd.Context())
	if err != nil {
		return err
	}

	if len(sessions) == 0 {
		fmt.Println("No cached sessions.")
		return nil
	}

	now := time.Now()
	fmt.Printf("%-24s  %-21s  %-5s  %-19s  %s\n", "DNS NAME", "ADDRESS", "PROTO", "EXPIRES", "STATE")
	for _, s := range sessions {
		name := s.Identity.DNSName
		if name == "" {
			name = "-"
		}
		state := "valid"
		if !s.Valid(now) {
			state = "expired"
		}
		fmt.Printf("%-24s  %-21s  %-5s  %-19s  %s\n",
			name, s.Identity.Address, s.Transport, s.ExpiresAt.Local().Format("2006-01-02 15:04:05"), state)
	}

	return nil
}
