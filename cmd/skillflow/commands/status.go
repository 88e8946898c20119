package commands

import (
	"github.com/spf13/cobra"
)

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show the status of a run",
		Long: `Show the current status and detail of a run.

Unknown run IDs report queued with empty detail: a freshly admitted run may
not have been written yet, and expired runs age back into the same shape.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx, runtimeOptions{})
			if err != nil {
				return err
			}
			defer rt.close()

			status, detail, err := rt.service.Status(ctx, args[0])
			if err != nil {
				return err
			}

			return printResult(map[string]any{
				"run_id": args[0],
				"status": status,
				"detail": detail,
			})
		},
	}

	return cmd
}
