package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/skillflow/skillflow/pkg/service"
)

func newSubmitCommand() *cobra.Command {
	var (
		intent  string
		payload string
		key     string
		wait    bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit an intent for execution",
		Long: `Submit a named intent with a JSON payload.

The payload becomes the initial run context. Identical submissions are
admitted once: a duplicate of a finished run replays its recorded outcome,
a duplicate of an in-flight run is rejected.`,
		Example: `  # Submit a lead for intake
  skillflow submit --intent lead.intake --payload '{"email":"a@b.com","name":"Ada"}'

  # Submit with an explicit idempotency key, without waiting
  skillflow submit --intent demo.echo --key order-1234 --wait=false`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var p map[string]any
			if payload != "" {
				if err := json.Unmarshal([]byte(payload), &p); err != nil {
					return fmt.Errorf("invalid payload JSON: %w", err)
				}
			}

			rt, err := newRuntime(ctx, runtimeOptions{})
			if err != nil {
				return err
			}
			defer rt.close()

			resp, err := rt.service.Submit(ctx, service.SubmitRequest{
				Intent:         intent,
				Payload:        p,
				IdempotencyKey: key,
			})
			if err != nil {
				return err
			}

			if resp.Replayed || !wait {
				return printResult(map[string]any{
					"run_id":   resp.RunID,
					"status":   resp.Status,
					"replayed": resp.Replayed,
				})
			}

			waitCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			status, detail, err := rt.service.WaitTerminal(waitCtx, resp.RunID, 50*time.Millisecond)
			if err != nil {
				return fmt.Errorf("run %s did not reach a terminal state: %w", resp.RunID, err)
			}

			return printResult(map[string]any{
				"run_id": resp.RunID,
				"status": status,
				"detail": detail,
			})
		},
	}

	cmd.Flags().StringVarP(&intent, "intent", "i", "", "intent name (required)")
	cmd.Flags().StringVarP(&payload, "payload", "p", "", "JSON payload")
	cmd.Flags().StringVarP(&key, "key", "k", "", "explicit idempotency key")
	cmd.Flags().BoolVar(&wait, "wait", true, "wait for the run to finish")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "wait timeout")
	_ = cmd.MarkFlagRequired("intent")

	return cmd
}
