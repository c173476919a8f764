package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/arturoeanton/repolens/internal/adapter/fsys"
)

var discoverDepth int

var discoverCmd = &cobra.Command{
	Use:   "discover <dir>",
	Short: "List the git repositories found under a directory.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := fsys.ExpandPath(args[0])
		if err != nil {
			return err
		}
		depth := discoverDepth
		if depth < 0 {
			depth = cfg.DiscoveryDepth
		}

		repos, err := fsys.NewDiscoverer().Discover(cmd.Context(), root, depth)
		if err != nil {
			return err
		}

		tbl := table.NewWriter()
		tbl.SetOutputMirror(cmd.OutOrStdout())
		tbl.SetStyle(table.StyleLight)
		tbl.AppendHeader(table.Row{"Name", "Relative Path", "Path"})
		for _, r := range repos {
			tbl.AppendRow(table.Row{r.Name, r.RelativePath, r.Path})
		}
		tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d", len(repos)), "", ""})
		tbl.Render()
		return nil
	},
}

func init() {
	discoverCmd.Flags().IntVar(&discoverDepth, "depth", -1, "maximum directory depth (default from config)")
}
