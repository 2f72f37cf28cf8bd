package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/teem-market/teem/config"
	"github.com/teem-market/teem/internal/engine"
	"github.com/teem-market/teem/internal/gateway"
	"github.com/teem-market/teem/internal/journal"
	"github.com/teem-market/teem/internal/metrics"
	"github.com/teem-market/teem/internal/poller"
	"github.com/teem-market/teem/pkg/logger"
)

// NewRootCmd builds the teemctl command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "teemctl",
		Short: "Client orchestrator for the confidential-compute marketplace",
		Long: `teemctl submits computation requests to the marketplace, matches them
against published offers, and tracks the resulting job to completion.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Missing .env is fine; explicit env always wins.
			_ = godotenv.Load()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "path to config file")
	rootCmd.PersistentFlags().String("gateway", "", "marketplace gateway base URL")
	rootCmd.PersistentFlags().Bool("non-confidential", false, "explicitly opt out of confidential execution")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("gateway", rootCmd.PersistentFlags().Lookup("gateway"))
	_ = viper.BindPFlag("non_confidential", rootCmd.PersistentFlags().Lookup("non-confidential"))
	viper.SetEnvPrefix("TEEM")
	viper.AutomaticEnv()

	rootCmd.AddCommand(
		newSubmitCmd(),
		newWatchCmd(),
		newStatusCmd(),
		newServeCmd(),
	)
	return rootCmd
}

// pipeline bundles everything a command needs to drive submissions.
type pipeline struct {
	cfg          *config.Config
	log          *logger.Logger
	client       *gateway.Client
	probe        *gateway.Probe
	orchestrator *engine.Orchestrator
	poller       *poller.Poller
	journal      *journal.DB
}

// buildPipeline loads configuration and wires the full submission pipeline.
func buildPipeline() (*pipeline, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, err
	}
	if g := viper.GetString("gateway"); g != "" {
		cfg.Gateway.BaseURL = g
	}
	if viper.GetBool("non_confidential") {
		cfg.Engine.NonConfidential = true
	}

	log := logger.New("teemctl")
	m := metrics.New()

	client := gateway.NewClient(gateway.Config{
		BaseURL:   cfg.Gateway.BaseURL,
		Timeout:   cfg.Gateway.Timeout,
		RateLimit: cfg.Gateway.RateLimit,
		Burst:     cfg.Gateway.Burst,
	}, logger.New("gateway"))
	probe := gateway.NewProbe(cfg.Gateway.BaseURL, cfg.Gateway.GRPCEndpoint, cfg.Gateway.Timeout)
	signer := gateway.NewHMACSigner(cfg.Signer.Address, []byte(cfg.Signer.Key))

	eng := engine.New(client, client, signer, engine.Config{
		MaxPrices:   cfg.Engine.MaxPrices(),
		Requirement: cfg.Engine.Requirement(),
	}, logger.New("engine"), m)
	resolver := engine.NewResolver(client, logger.New("resolver"))
	watch := poller.New(client, client, poller.Config{
		MaxPolls: cfg.Poller.MaxPolls,
		Interval: cfg.Poller.Interval,
		Grace:    cfg.Poller.Grace,
	}, logger.New("poller"), m)

	var jdb *journal.DB
	var record engine.Journal
	if cfg.Journal.DatabaseURL != "" {
		jdb, err = journal.Open(journal.Config{
			URL:            cfg.Journal.DatabaseURL,
			MaxConnections: cfg.Journal.MaxConnections,
			MaxIdle:        cfg.Journal.MaxIdle,
			ConnMaxLife:    cfg.Journal.ConnMaxLife,
		}, logger.New("journal"))
		if err != nil {
			return nil, err
		}
		if err := jdb.InitSchema(); err != nil {
			return nil, err
		}
		record = jdb
	}

	orch := engine.NewOrchestrator(eng, resolver, watch, engine.NewTracker(256), record, log, m)

	return &pipeline{
		cfg:          cfg,
		log:          log,
		client:       client,
		probe:        probe,
		orchestrator: orch,
		poller:       watch,
		journal:      jdb,
	}, nil
}

// Close releases pipeline resources.
func (p *pipeline) Close() {
	if p.journal != nil {
		_ = p.journal.DB.Close()
	}
}
