package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skillflow/skillflow/pkg/stores"
)

func newPurgeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Reclaim expired store entries",
		Long: `Delete expired admission claims and run status records from the durable
store. Expired entries are already invisible to reads; purging reclaims the
disk space.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx, runtimeOptions{})
			if err != nil {
				return err
			}
			defer rt.close()

			store, ok := rt.store.(*stores.SQLiteStore)
			if !ok {
				return fmt.Errorf("purge requires the sqlite store driver")
			}

			purged, err := store.PurgeExpired(ctx)
			if err != nil {
				return err
			}

			return printResult(map[string]any{"purged": purged})
		},
	}

	return cmd
}
