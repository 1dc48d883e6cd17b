package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var optinCmd = &cobra.Command{
	Use:   "optin USER_ID [true|false]",
	Short: "Show or change a user's learning opt-in",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runOptin,
}

func runOptin(cmd *cobra.Command, args []string) error {
	userID := args[0]

	ctx, cancel := commandContext(cmd)
	defer cancel()

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	if len(args) == 2 {
		enabled, err := strconv.ParseBool(args[1])
		if err != nil {
			return fmt.Errorf("invalid opt-in value %q: %w", args[1], err)
		}
		if err := store.SetOptIn(ctx, userID, enabled); err != nil {
			return err
		}
	}

	optedIn, err := store.IsOptedIn(ctx, userID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s opted in: %t\n", userID, optedIn)
	return nil
}
