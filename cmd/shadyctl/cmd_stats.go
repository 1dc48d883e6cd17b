package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsTop int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show opt-in and archive statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().IntVar(&statsTop, "top", 3, "Number of top contributors to list")
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.Stats(ctx, statsTop)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Opted-in users: %d\n", stats.OptedInUsers)
	fmt.Fprintf(out, "Learned messages: %d\n", stats.TotalMessages)
	if len(stats.TopContributors) == 0 {
		fmt.Fprintln(out, "Top contributors: none yet")
		return nil
	}
	fmt.Fprintln(out, "Top contributors:")
	for i, c := range stats.TopContributors {
		fmt.Fprintf(out, "  %d. %s (%d msgs)\n", i+1, c.UserID, c.Messages)
	}
	return nil
}
