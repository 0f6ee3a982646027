package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rsclarke/msamon/internal/credential"
)

var digestFlags struct {
	username  string
	password  string
	algorithm string
}

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Print the login digest for a username and password",
	Args:  cobra.NoArgs,
	RunE:  runDigest,
}

func init() {
	rootCmd.AddCommand(digestCmd)

	digestCmd.Flags().StringVar(&digestFlags.username, "username", "", "controller username (defaults to msa.username)")
	digestCmd.Flags().StringVar(&digestFlags.password, "password", os.Getenv("MSAMON_PASSWORD"), "controller password (defaults to msa.password)")
	digestCmd.Flags().StringVar(&digestFlags.algorithm, "algorithm", "", "md5 or sha256 (defaults to msa.digest)")
}

func runDigest(cmd *cobra.Command, args []string) error {
	username := digestFlags.username
	if username == "" {
		username = cfg.MSA.Username
	}
	password := digestFlags.password
	if password == "" {
		password = cfg.MSA.Password
	}
	algName := digestFlags.algorithm
	if algName == "" {
		algName = cfg.MSA.Digest
	}

	alg, err := credential.ParseAlgorithm(algName)
	if err != nil {
		return err
	}
	fmt.Println(credential.DigestWith(alg, username, password))
	return nil
}
