package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Probe marketplace endpoint health",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := buildPipeline()
			if err != nil {
				return err
			}
			defer p.Close()

			checks := p.probe.Check(cmd.Context())
			out := json.NewEncoder(os.Stdout)
			out.SetIndent("", "  ")
			return out.Encode(checks)
		},
	}
}
