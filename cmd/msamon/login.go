package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var loginFlags struct {
	force bool
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Obtain and cache a session key",
	Long: `Return the cached session key for the configured controller, logging in
only if none is cached or the cached key has expired.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)

	loginCmd.Flags().BoolVar(&loginFlags.force, "force", false, "discard any cached key and log in again")
}

func runLogin(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	id, t := cfg.Host(), cfg.Transport()
	if loginFlags.force {
		if err := a.manager.Invalidate(ctx, id, t); err != nil {
			return err
		}
	}

	key, err := a.manager.GetValidSession(ctx, id, t, cfg.Credentials())
	if err != nil {
		return err
	}

	fmt.Printf("Host:        %s\n", a.client.Host(id, t))
	fmt.Printf("Scheme:      %s\n", t)
	fmt.Printf("Session key: %s\n", key)
	return nil
}
