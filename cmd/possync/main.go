// possync is the operational CLI for the point-of-sale sync layer: server
// discovery, authentication, and product/order operations against the
// backend.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"possync-go/internal/config"
)

var flagConfigPath string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "possync",
		Short:         "Point-of-sale backend sync client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flagConfigPath, "config", "", "path to config file")
	pf.String("data-dir", "", "data directory (overrides config)")
	pf.String("log-level", "", "log level (overrides config)")
	pf.StringSlice("candidate-urls", nil, "ordered candidate base URLs (overrides config)")
	pf.Int("max-retries", -1, "retries for database-critical updates (overrides config)")

	viper.SetEnvPrefix("POSSYNC")
	viper.AutomaticEnv()
	_ = viper.BindPFlag("data-dir", pf.Lookup("data-dir"))
	_ = viper.BindPFlag("log-level", pf.Lookup("log-level"))
	_ = viper.BindPFlag("candidate-urls", pf.Lookup("candidate-urls"))
	_ = viper.BindPFlag("max-retries", pf.Lookup("max-retries"))

	root.AddCommand(
		statusCmd(),
		probeCmd(),
		loginCmd(),
		logoutCmd(),
		productsCmd(),
		ordersCmd(),
		watchCmd(),
	)
	return root
}

// applyOverrides layers flag/env values over the file config.
func applyOverrides(cfg *config.Config) {
	if v := viper.GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v := viper.GetString("log-level"); v != "" && cfg.Logging != nil {
		cfg.Logging.Level = v
	}
	if v := viper.GetStringSlice("candidate-urls"); len(v) > 0 {
		cfg.CandidateURLs = v
	}
	if v := viper.GetInt("max-retries"); v >= 0 {
		cfg.MaxRetries = v
	}
}

// withApp builds the app for a command run and tears it down afterwards.
func withApp(fn func(a *app, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(flagConfigPath)
		if err != nil {
			return err
		}
		defer a.close()
		return fn(a, cmd, args)
	}
}
