package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Doomsta/scriptx"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
	flags := migrateCmd.Flags()
	flags.String("policy", "", "failure policy: stop or continue")
	flags.Int("max-attempts", 0, "attempts per script before it is marked failed")
	flags.Int("max-failures", 0, "with --policy continue, abort after this many failures")
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending scripts in version order",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("policy") {
		cfg.Migrations.FailurePolicy, _ = flags.GetString("policy")
	}
	if flags.Changed("max-attempts") {
		cfg.Migrations.MaxAttempts, _ = flags.GetInt("max-attempts")
	}
	if flags.Changed("max-failures") {
		cfg.Migrations.MaxFailures, _ = flags.GetInt("max-failures")
	}

	s, err := openSession(cmd.Context(), cfg, scriptx.WithLogger(newLogger(cmd.ErrOrStderr())))
	if err != nil {
		return err
	}
	defer s.Close()

	summary, err := s.migrator.Run(cmd.Context())
	if err != nil {
		return classify("migration failed", err)
	}

	out := cmd.OutOrStdout()
	if summary.Pending == 0 {
		fmt.Fprintf(out, "Database is up to date (%d script(s) applied).\n", summary.Total)
		return nil
	}
	fmt.Fprintf(out, "Applied %d script(s).\n", len(summary.Applied))
	return nil
}
