package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skillflow/skillflow/pkg/service"
)

func newWorkerCommand() *cobra.Command {
	var demo int

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the queue-backed worker",
		Long: `Run the durable execution path: submissions flow through the task queue
into a bounded worker pool, with the metrics endpoint exposed. Blocks until
interrupted.`,
		Example: `  # Run the worker with the default config
  skillflow worker

  # Feed it demo submissions and watch them drain
  skillflow worker --demo 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx, runtimeOptions{withQueue: true})
			if err != nil {
				return err
			}
			defer rt.close()

			if err := rt.metrics.StartMetricsServer(); err != nil {
				return err
			}

			for i := 0; i < demo; i++ {
				resp, err := rt.service.Submit(ctx, service.SubmitRequest{
					Intent: "demo.echo",
					Payload: map[string]any{
						"sequence": i,
					},
				})
				if err != nil {
					rt.logger.WithError(err).Warn("demo submission rejected")
					continue
				}
				rt.logger.WithRunID(resp.RunID).Info("demo run admitted")
			}

			fmt.Printf("worker running, intents: %v\n", rt.registry.Intents())
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().IntVar(&demo, "demo", 0, "submit this many demo runs at startup")

	return cmd
}
