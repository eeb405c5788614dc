package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/physiopulse/internal/config"
	"github.com/okian/physiopulse/pkg/logger"
)

// cliContext carries state shared by every subcommand.
type cliContext struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg *config.Config
}

// setup loads configuration and initializes the global logger. Logs go to
// stderr so command output on stdout stays parseable.
func (c *cliContext) setup(cmd *cobra.Command) error {
	cfg, err := config.LoadFile(cmd.Context(), c.configPath)
	if err != nil {
		return err
	}

	format := cfg.LogFormat
	if c.logFormat != "" {
		format = c.logFormat
	}
	if err := logger.InitWith(logger.Options{Format: format, Output: cmd.ErrOrStderr()}); err != nil {
		return err
	}

	level := cfg.LogLevel
	if c.logLevel != "" {
		level = c.logLevel
	}
	if err := logger.SetLevelString(level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}

	c.cfg = cfg
	return nil
}

func newRootCommand() *cobra.Command {
	c := &cliContext{}

	rootCmd := &cobra.Command{
		Use:           "physiopulse",
		Short:         "Score physiotherapy exercise videos",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "YAML configuration file (overrides PHYSIOPULSE_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&c.logFormat, "log-format", "", "Log format: text or json")

	rootCmd.AddCommand(newServeCommand(c))
	rootCmd.AddCommand(newAnalyzeCommand(c))
	rootCmd.AddCommand(newExercisesCommand())

	return rootCmd
}
