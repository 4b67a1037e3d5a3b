package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/obiente/translate/w2vfeat/internal/config"
	"github.com/obiente/translate/w2vfeat/internal/extract"
)

func newRootCommand() *cobra.Command {
	cfg := config.Load()

	rootCmd := &cobra.Command{
		Use:           "w2vfeat DATA",
		Short:         "Extract speech representation features for a manifest split",
		Long:          "Embeds every file listed in DATA/<split>.tsv with a pretrained checkpoint and writes\n<save-dir>/<split>.npy plus <save-dir>/<split>.lengths.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, cfg, args)
		},
	}
	bindExtractFlags(rootCmd, &cfg)

	rootCmd.AddCommand(newExtractCommand())
	rootCmd.AddCommand(newVerifyCommand())
	return rootCmd
}

func newExtractCommand() *cobra.Command {
	cfg := config.Load()
	cmd := &cobra.Command{
		Use:   "extract DATA",
		Short: "Extract features (same as the root command)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, cfg, args)
		},
	}
	bindExtractFlags(cmd, &cfg)
	return cmd
}

func bindExtractFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	f.StringVar(&cfg.Split, "split", "", "which split to read (DATA/<split>.tsv)")
	f.StringVar(&cfg.SaveDir, "save-dir", "", "where to save the output")
	f.StringVar(&cfg.Checkpoint, "checkpoint", "", "checkpoint of the speech representation model")
	f.IntVar(&cfg.Layer, "layer", config.DefaultLayer, "which layer to use")
	f.StringVar(&cfg.Backend, "backend", cfg.Backend, "model backend: worker or remote")
	f.StringVar(&cfg.Worker, "worker", cfg.Worker, "worker command line for the worker backend")
	f.StringVar(&cfg.RemoteURL, "remote-url", cfg.RemoteURL, "websocket URL for the remote backend")
	f.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "per-request model timeout (0 disables)")
	f.StringVar(&cfg.Format, "format", cfg.Format, "feature array format: npy or arrow")
	f.StringVar(&cfg.MetricsFile, "metrics-file", cfg.MetricsFile, "write Prometheus metrics to this file at the end of the run")
	f.BoolVar(&cfg.Progress, "progress", cfg.Progress, "show progress")
	_ = cmd.MarkFlagRequired("split")
	_ = cmd.MarkFlagRequired("save-dir")
	_ = cmd.MarkFlagRequired("checkpoint")
}

func runExtract(cmd *cobra.Command, cfg config.Config, args []string) error {
	cfg.DataDir = args[0]
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	_, err := extract.Run(cmd.Context(), cfg, nil)
	return err
}
