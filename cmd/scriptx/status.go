package main

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/Doomsta/scriptx"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List catalog scripts as APPLIED or PENDING",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var (
	appliedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
)

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := openSession(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	info, err := s.migrator.Status(cmd.Context())
	if err != nil {
		return classify("reading status", err)
	}
	renderStatus(cmd.OutOrStdout(), info)
	return nil
}

func renderStatus(w io.Writer, info []scriptx.ScriptInfo) {
	if len(info) == 0 {
		fmt.Fprintln(w, "No scripts found.")
		return
	}

	rows := make([][]string, 0, len(info))
	pending := 0
	for _, i := range info {
		appliedAt := ""
		if i.Record != nil {
			appliedAt = i.Record.AppliedAt.Format(time.RFC3339)
		}
		if i.Status == scriptx.Pending {
			pending++
		}
		rows = append(rows, []string{i.Script.Version, i.Script.Description, i.Status.String(), appliedAt})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("VERSION", "DESCRIPTION", "STATUS", "APPLIED AT").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 2 {
				if rows[row][col] == scriptx.Applied.String() {
					return cellStyle.Inherit(appliedStyle)
				}
				return cellStyle.Inherit(pendingStyle)
			}
			return cellStyle
		})

	fmt.Fprintln(w, t.Render())
	fmt.Fprintf(w, "%d script(s), %d pending\n", len(info), pending)
}
