package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/johnbachman/bioagents/internal/api"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

type runOptions struct {
	configFile  string
	transport   string
	facilitator string
	gateway     bool
	gatewayPort int
}

func newRootCmd() *cobra.Command {
	opts := &runOptions{}

	rootCmd := &cobra.Command{
		Use:           "bioagents",
		Short:         "Biomedical dialogue agents speaking KQML",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file (default: config.yaml in ., ./config or /etc/bioagents)")
	flags.StringVar(&opts.transport, "transport", "", "KQML transport: stdio or tcp")
	flags.StringVar(&opts.facilitator, "facilitator", "", "facilitator address for the tcp transport")
	flags.BoolVar(&opts.gateway, "gateway", false, "also serve the HTTP gateway")
	flags.IntVar(&opts.gatewayPort, "gateway-port", 0, "HTTP gateway port")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "dtda",
			Short: "Run the disease-target-drug advisor",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd.Context(), agentDTDA, opts)
			},
		},
		&cobra.Command{
			Use:   "biosense",
			Short: "Run the term sense resolver",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd.Context(), agentBioSense, opts)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		},
	)

	api.Version = version
	return rootCmd
}
