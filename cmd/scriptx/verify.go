package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(verifyCmd)
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Report applied scripts that were removed from the catalog or modified",
	Long: `Verify compares the ledger with the catalog. It fails when an applied
version has no script anymore or when the content of an applied script
changed since it ran. migrate never performs these checks.`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

func runVerify(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := openSession(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.migrator.Verify(cmd.Context()); err != nil {
		return classify("verification failed", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Catalog matches the ledger.")
	return nil
}
