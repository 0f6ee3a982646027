package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rsclarke/msamon/internal/db"
	"github.com/rsclarke/msamon/internal/monitor"
	"github.com/rsclarke/msamon/internal/resource"
	"github.com/rsclarke/msamon/internal/session"
)

var historyFlags struct {
	limit int
}

var historyCmd = &cobra.Command{
	Use:   "history <resource>",
	Short: "Show recorded component readings",
	Long:  `Show the readings recorded by poll for the configured controller, newest first.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&historyFlags.limit, "limit", 50, "maximum number of readings to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	if _, ok := resource.Lookup(args[0]); !ok {
		return fmt.Errorf("%w: %q", resource.ErrUnsupportedResource, args[0])
	}

	store, err := session.OpenSQLiteStore(cfg.Cache.Path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	readings, err := db.ListReadings(store.DB(), cfg.Host().String(), args[0], historyFlags.limit)
	if err != nil {
		return err
	}

	if len(readings) == 0 {
		fmt.Println("No readings recorded.")
		return nil
	}

	fmt.Printf("%-19s  %-12s  %-8s  %s\n", "RECORDED", "COMPONENT", "HEALTH", "FIELDS")
	for _, r := range readings {
		recorded := time.Unix(r.RecordedAt, 0).Local().Format("2006-01-02 15:04:05")
		fmt.Printf("%-19s  %-12s  %-8s  %s\n", recorded, r.ComponentID, monitor.HealthName(r.Health), formatFields(r.Fields))
	}

	return nil
}

func formatFields(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+fields[k])
	}
	return strings.Join(parts, " ")
}
