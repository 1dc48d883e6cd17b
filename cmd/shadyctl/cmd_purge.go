package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	purgeAll    bool
	purgeBefore string
	purgeAfter  string
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete learned messages",
	Long: `Deletes learned messages from the archive. Exactly one of --all,
--before or --after is required. Timestamps are UTC and accept
YYYY-MM-DD, YYYY-MM-DD HH:MM, YYYY-MM-DD HH:MM:SS or RFC3339.`,
	Args: cobra.NoArgs,
	RunE: runPurge,
}

func init() {
	purgeCmd.Flags().BoolVar(&purgeAll, "all", false, "Delete every learned message")
	purgeCmd.Flags().StringVar(&purgeBefore, "before", "", "Delete messages stored strictly before this time")
	purgeCmd.Flags().StringVar(&purgeAfter, "after", "", "Delete messages stored strictly after this time")
}

func runPurge(cmd *cobra.Command, args []string) error {
	selected := 0
	for _, set := range []bool{purgeAll, purgeBefore != "", purgeAfter != ""} {
		if set {
			selected++
		}
	}
	if selected != 1 {
		return errors.New("exactly one of --all, --before or --after is required")
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	var deleted int64
	switch {
	case purgeAll:
		deleted, err = store.ClearAll(ctx)
	case purgeBefore != "":
		deleted, err = store.ClearBefore(ctx, purgeBefore)
	default:
		deleted, err = store.ClearAfter(ctx, purgeAfter)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d learned messages\n", deleted)
	return nil
}
