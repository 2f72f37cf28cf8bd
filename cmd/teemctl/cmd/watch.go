package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/teem-market/teem/internal/market"
	"github.com/teem-market/teem/internal/poller"
)

func newWatchCmd() *cobra.Command {
	var (
		jobID        string
		commitmentID string
		confidential bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Resume watching an existing job until it reaches a terminal state",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := buildPipeline()
			if err != nil {
				return err
			}
			defer p.Close()

			prov := market.ProvenancePlain
			if confidential {
				prov = market.ProvenanceConfidential
			}

			job := poller.NewJob(market.JobID(jobID), market.CommitmentID(commitmentID), prov)
			if err := p.poller.Watch(cmd.Context(), job); err != nil {
				return err
			}

			out := json.NewEncoder(os.Stdout)
			out.SetIndent("", "  ")
			return out.Encode(map[string]interface{}{
				"job_id":  job.ID,
				"state":   job.State().String(),
				"outcome": job.Outcome(),
			})
		},
	}

	cmd.Flags().StringVar(&jobID, "job", "", "job id to watch")
	cmd.Flags().StringVar(&commitmentID, "commitment", "", "commitment the job belongs to")
	cmd.Flags().BoolVar(&confidential, "confidential", true, "whether the job's input was protected")
	_ = cmd.MarkFlagRequired("job")

	return cmd
}
