package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rsclarke/msamon/internal/resource"
)

var showFlags struct {
	human  bool
	pretty int
}

var showCmd = &cobra.Command{
	Use:   "show <resource>",
	Short: "Fetch a resource and print it as JSON",
	Long: `Fetch a resource from the controller and print one JSON object keyed by
component id.

Supported resources: ` + strings.Join(resource.Supported(), ", "),
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)

	showCmd.Flags().BoolVar(&showFlags.human, "human", false, "expand field codes to property names")
	showCmd.Flags().IntVar(&showFlags.pretty, "pretty", 0, "indent output by this many spaces")
}

func runShow(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	records, err := a.poller.Show(cmd.Context(), args[0], showFlags.human)
	if err != nil {
		return err
	}

	out, err := resource.Format(records, showFlags.pretty)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
