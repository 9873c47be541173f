package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/datawise/datawise/internal/config"
)

type globalOptions struct {
	configPath string
	envFile    string
	logLevel   string
}

// load reads the configuration and applies flag overrides.
func (o *globalOptions) load() (*config.Config, error) {
	cfg, err := config.NewLoader(o.configPath, o.envFile).Load()
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid --log-level: %w", err)
		}
	}
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "datawise",
		Short:         "Run SQL, import and export tasks against an embedded database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML or TOML config file")
	flags.StringVar(&opts.envFile, "env-file", ".env", "Path to a .env file (ignored when missing)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug|info|warn|error")

	cmd.AddCommand(
		newServeCmd(opts),
		newExecCmd(opts),
		newImportCmd(opts),
		newExportCmd(opts),
	)
	return cmd
}
