// Package cli holds the mozopos commands.
package cli

import (
	"os"

	"MozoPOS/internal/config"
	"MozoPOS/pkg/logging"

	"github.com/spf13/cobra"
)

type RootOptions struct {
	ConfigPath string
	Debug      bool
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "mozopos",
		Short: "MozoPOS - restaurant order and payment reconciliation",
		Long: `MozoPOS submits orders and settles tables against the restaurant backend,
resolving every ambiguous network failure before reporting an outcome.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "config/config.ini", "path to the INI configuration")
	cmd.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "debug logging")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewVersionCommand())
	return cmd
}

// load reads the configuration and sets up logging from it.
func (o *RootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, err
	}
	logging.Init(o.Debug || cfg.Debug(), os.Stdout)
	return cfg, nil
}
