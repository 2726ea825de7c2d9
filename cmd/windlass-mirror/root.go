package main

import (
	"github.com/spf13/cobra"

	"github.com/windlasshq/windlass-client-go/pkg/logger"
	"github.com/windlasshq/windlass-client-go/version"
)

func newRootCmd() *cobra.Command {
	opts := logger.DefaultConfig()

	cmd := &cobra.Command{
		Use:     "windlass-mirror",
		Short:   "mirror Windlass job state onto this host",
		Version: version.Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := bindEnv("WINDLASS_", cmd); err != nil {
				return err
			}
			logger.SetLogrus(opts)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Level, "level", opts.Level,
		"set the logging level (can be one of: debug, info, warn, error, or fatal)")
	cmd.PersistentFlags().BoolVar(&opts.Color, "color", opts.Color, "enable colored output")

	cmd.AddCommand(newCompletionCmd())
	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newRunCmd())

	return cmd
}
