package main

import (
	"fmt"
	"os"

	"github.com/caffeineduck/rvmhost/hostcap"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rvmhost",
	Short: "Capability-brokered host for sandboxed wasm guests",
	Long: `rvmhost - Embed sandboxed wasm guests behind a typed capability boundary.

Guests hold no implicit power over host resources. Every host call goes
through a broker that issues capability-scoped handles and re-checks the
grant on every invocation. Enable capabilities explicitly with --grant.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringSlice("grant", []string{"compute"}, "Capability category to grant (repeatable; 'all' for everything)")
	pf.String("secret", "", "Client secret value")
	pf.String("secret-env", "", "Environment variable holding the client secret")
	pf.String("secret-file", "", "File holding the client secret")
	pf.StringSlice("allow-host", nil, "Allow fetch.get to this host (repeatable)")
	pf.Bool("ieee", false, "IEEE pass-through for compute (NaN/Inf allowed)")
	pf.Float64("max-magnitude", 0, "Overflow bound for compute results (0 = only infinity)")
	pf.Bool("verbose", false, "Enable debug logging")
}

// grantedCategories parses the --grant flag into a bitset.
func grantedCategories(cmd *cobra.Command) (hostcap.Category, error) {
	names, _ := cmd.Flags().GetStringSlice("grant")
	return hostcap.ParseCategories(names)
}

func newLogger(cmd *cobra.Command) zerolog.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}

func secretSource(cmd *cobra.Command) (hostcap.SecretSource, error) {
	secret, _ := cmd.Flags().GetString("secret")
	secretEnv, _ := cmd.Flags().GetString("secret-env")
	secretFile, _ := cmd.Flags().GetString("secret-file")

	set := 0
	for _, s := range []string{secret, secretEnv, secretFile} {
		if s != "" {
			set++
		}
	}
	if set > 1 {
		return nil, fmt.Errorf("--secret, --secret-env and --secret-file are mutually exclusive")
	}

	switch {
	case secret != "":
		return hostcap.StaticSecret(secret), nil
	case secretEnv != "":
		return hostcap.EnvSecret(secretEnv), nil
	case secretFile != "":
		return hostcap.FileSecret(secretFile), nil
	default:
		return nil, nil
	}
}

// buildBroker assembles a broker with the reference capabilities mounted,
// configured from the command's flags.
func buildBroker(cmd *cobra.Command, log zerolog.Logger) (*hostcap.Broker, error) {
	grantable, err := grantedCategories(cmd)
	if err != nil {
		return nil, err
	}

	ieee, _ := cmd.Flags().GetBool("ieee")
	maxMagnitude, _ := cmd.Flags().GetFloat64("max-magnitude")
	allowedHosts, _ := cmd.Flags().GetStringSlice("allow-host")

	source, err := secretSource(cmd)
	if err != nil {
		return nil, err
	}

	broker := hostcap.NewBroker(grantable, hostcap.WithLogger(log))

	caps := []hostcap.Capability{
		hostcap.NewCompute(hostcap.ComputeConfig{IEEE: ieee, MaxMagnitude: maxMagnitude}),
		hostcap.NewSecrets(hostcap.SecretsConfig{Source: source}),
		hostcap.NewKV(hostcap.DefaultKVConfig()),
		hostcap.NewFetch(hostcap.FetchConfig{AllowedHosts: allowedHosts}),
	}
	for _, c := range caps {
		if err := broker.Mount(c); err != nil {
			return nil, fmt.Errorf("mount %s: %w", c.Name(), err)
		}
	}

	return broker, nil
}
