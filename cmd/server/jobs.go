package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/arturoeanton/repolens/internal/domain"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	failColor = color.New(color.FgRed, color.Bold)
	infoColor = color.New(color.FgCyan)
)

var jobsLimit int

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List analysis jobs, newest first.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		jobs, err := st.ListJobs(cmd.Context())
		if err != nil {
			return err
		}
		if jobsLimit > 0 && len(jobs) > jobsLimit {
			jobs = jobs[:jobsLimit]
		}

		tbl := table.NewWriter()
		tbl.SetOutputMirror(cmd.OutOrStdout())
		tbl.SetStyle(table.StyleLight)
		tbl.AppendHeader(table.Row{"ID", "Status", "Path", "Created", "Duration", "Error"})
		for _, j := range jobs {
			tbl.AppendRow(table.Row{
				j.ID,
				statusLabel(j.Status),
				j.RepoPath,
				humanize.Time(j.CreatedAt),
				jobDuration(j),
				deref(j.Error),
			})
		}
		tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d", len(jobs)), "", "", "", "", ""})
		tbl.Render()
		return nil
	},
}

func init() {
	jobsCmd.Flags().IntVarP(&jobsLimit, "limit", "n", 20, "show at most n jobs (0 for all)")
}

func statusLabel(s domain.JobStatus) string {
	switch s {
	case domain.JobStatusCompleted:
		return okColor.Sprint(s)
	case domain.JobStatusFailed:
		return failColor.Sprint(s)
	case domain.JobStatusRunning:
		return infoColor.Sprint(s)
	default:
		return warnColor.Sprint(s)
	}
}

func jobDuration(j domain.Job) string {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return "-"
	}
	return j.CompletedAt.Sub(*j.StartedAt).Round(10 * time.Millisecond).String()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
