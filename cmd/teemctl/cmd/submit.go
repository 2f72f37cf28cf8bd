package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teem-market/teem/internal/engine"
	"github.com/teem-market/teem/internal/market"
	"github.com/teem-market/teem/internal/poller"
)

func newSubmitCmd() *cobra.Command {
	var (
		target  string
		value   float64
		dataset string
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a computation request and track it to completion",
		Example: `  teemctl submit --target 0xapp --value 42
  teemctl submit --target 0xapp --dataset 0xprotected`,
		RunE: func(cmd *cobra.Command, args []string) error {
			input := market.InputSpec{}
			if cmd.Flags().Changed("value") {
				input.PlainValue = &value
			}
			if dataset != "" {
				input.ProtectedRef = dataset
			}

			p, err := buildPipeline()
			if err != nil {
				return err
			}
			defer p.Close()

			job, err := p.orchestrator.Run(cmd.Context(), target, input)
			if err != nil {
				if errors.Is(err, poller.ErrPollTimeout) && job != nil {
					fmt.Fprintf(os.Stderr, "poll budget exhausted; job %s may still be running (last state %s)\n",
						job.ID, job.State())
					return err
				}
				if suggestion := engine.GetRecoverySuggestion(err); suggestion != "" {
					fmt.Fprintln(os.Stderr, "recovery: "+suggestion)
				}
				return err
			}

			out := json.NewEncoder(os.Stdout)
			out.SetIndent("", "  ")
			return out.Encode(map[string]interface{}{
				"job_id":     job.ID,
				"commitment": job.CommitmentID,
				"state":      job.State().String(),
				"outcome":    job.Outcome(),
			})
		},
	}

	cmd.Flags().StringVar(&target, "target", "", "target application resource id")
	cmd.Flags().Float64Var(&value, "value", 0, "plaintext input value")
	cmd.Flags().StringVar(&dataset, "dataset", "", "protected dataset address")
	_ = cmd.MarkFlagRequired("target")
	cmd.MarkFlagsMutuallyExclusive("value", "dataset")

	return cmd
}
