package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down|version]",
	Short:     "Apply, roll back or inspect the database schema.",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down", "version"},
	RunE: func(cmd *cobra.Command, args []string) error {
		action := "up"
		if len(args) == 1 {
			action = args[0]
		}

		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		switch action {
		case "up":
			if err := st.Migrate(); err != nil {
				return err
			}
		case "down":
			if err := st.MigrateDown(); err != nil {
				return err
			}
		}

		status, err := st.MigrationStatus()
		if err != nil {
			return err
		}
		state := "clean"
		if status.Dirty {
			state = warnColor.Sprint("dirty")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "backend %s: schema version %d of %d (%s)\n",
			st.Backend(), status.Version, status.Latest, state)
		return nil
	},
}
