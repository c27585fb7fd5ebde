// Package app holds the fixtureflow command tree.
package app

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	configpkg "github.com/drblury/fixtureflow/internal/runtime/config"
	loggingpkg "github.com/drblury/fixtureflow/internal/runtime/logging"
)

// NewRootCmd builds the fixtureflow command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "fixtureflow",
		Short:         "Coordinate fixture renderers with a dev server",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "Path to a YAML config file")
	root.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().Bool("json", false, "Log in JSON format")

	root.AddCommand(newServeCmd())
	root.AddCommand(newConfigCmd())
	return root
}

// newLogger builds the process logger from the persistent flags.
func newLogger(cmd *cobra.Command) loggingpkg.ServiceLogger {
	log := logrus.New()
	log.SetOutput(cmd.ErrOrStderr())

	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	if traceFrames, _ := cmd.Flags().GetBool("trace-frames"); traceFrames {
		log.SetLevel(logrus.TraceLevel)
	}
	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return loggingpkg.NewLogrusServiceLogger(log)
}

// loadFromFlags binds the command's flags onto a fresh viper and loads the config.
func loadFromFlags(cmd *cobra.Command) (configpkg.Config, error) {
	v := newViper()
	for key, flag := range map[string]string{
		keyDevServerURL:   "dev-server-url",
		keyTransport:      "transport",
		keyAPIEnabled:     "api",
		keyMetricsEnabled: "metrics",
	} {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return configpkg.Config{}, err
			}
		}
	}
	path, _ := cmd.Flags().GetString("config")
	return LoadConfig(v, path)
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with credentials redacted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := loadFromFlags(cmd)
			if err != nil {
				return err
			}
			cmd.Println(conf.String())
			return nil
		},
	}
}
