package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/georgemunganga/printa-storefront/internal/config"
	"github.com/georgemunganga/printa-storefront/internal/kit/observability"
	"github.com/spf13/cobra"
)

var Version = "dev"

// app is what every subcommand gets once the root command has loaded the configuration.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

func main() {
	a := &app{}
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "storefront",
		Short:         "Printa storefront client: catalogue, checkout and mobile-money payments",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = observability.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("STOREFRONT_CONFIG"), "YAML config file")

	rootCmd.AddCommand(checkoutCmd(a))
	rootCmd.AddCommand(phoneCmd(a))
	rootCmd.AddCommand(productsCmd(a))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
