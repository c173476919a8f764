package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/arturoeanton/repolens/internal/adapter/fsys"
	"github.com/arturoeanton/repolens/internal/adapter/report"
	"github.com/arturoeanton/repolens/internal/adapter/vcs"
	"github.com/arturoeanton/repolens/internal/service"
)

var (
	analyzeFormat    string
	analyzeOut       string
	analyzeRecursive bool
)

// analyzeCmd runs an analysis in the foreground without touching the
// database, which makes it usable against any directory in CI.
var analyzeCmd = &cobra.Command{
	Use:   "analyze <path>",
	Short: "Analyze a repository or a directory of repositories and print a report.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := fsys.ExpandPath(args[0])
		if err != nil {
			return err
		}

		engine := report.NewEngine()
		renderer, err := engine.Renderer(analyzeFormat)
		if err != nil {
			return fmt.Errorf("%w (available: %v)", err, engine.Formats())
		}

		finder := fsys.NewDiscoverer()
		analyzer := service.NewAnalysisService(vcs.NewGitProvider(cfg.GitTimeout), finder,
			cfg.DiscoveryDepth, cfg.ExtractParallelism)

		artifact, err := analyzer.Run(cmd.Context(), uuid.NewString(), root, analyzeRecursive)
		if err != nil {
			return err
		}
		for _, s := range artifact.Skipped {
			slog.Warn("repository skipped", "path", s.Path, "error", s.Error)
		}

		var w io.Writer = cmd.OutOrStdout()
		if analyzeOut != "" && analyzeOut != "-" {
			f, err := os.Create(analyzeOut)
			if err != nil {
				return fmt.Errorf("create output: %w", err)
			}
			defer f.Close()
			w = f
		}
		if err := renderer.Render(w, artifact); err != nil {
			return err
		}
		if analyzeOut != "" && analyzeOut != "-" {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s report written to %s\n",
				okColor.Sprint(renderer.Format()), analyzeOut)
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeFormat, "format", "f", "markdown", "report format: markdown, json or html")
	analyzeCmd.Flags().StringVarP(&analyzeOut, "out", "o", "", "output file (default stdout)")
	analyzeCmd.Flags().BoolVar(&analyzeRecursive, "recursive", true, "discover nested repositories when the path is not one")
}
