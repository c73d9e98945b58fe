// Package cmd is the stctl operator CLI. Every command talks to a core
// through the querier.
package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aussiebroadwan/tabsession/pkg/querier"
)

// Execute runs stctl with os.Args and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCmd builds the command tree. Flags fall back to STCTL_* env vars,
// then to the config file.
func NewRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:   "stctl",
		Short: "stctl inspects and manages sessions on a tabsession core",
		Long: `Operator tool for a tabsession core: decode access tokens, inspect the
published signing keys, and manage sessions and roles.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(v, cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "Config file (yaml, json or toml)")
	flags.StringSlice("core", []string{"http://localhost:3567"}, "Core base URL; repeat for several")
	flags.String("api-key", "", "API key sent to the core")
	flags.String("tenant", querier.DefaultTenantID, "Tenant for tenant scoped commands")
	flags.Duration("timeout", 10*time.Second, "Request timeout")
	flags.Bool("json", false, "Print raw JSON")

	app := &cli{v: v}
	root.AddCommand(
		newDecodeCmd(app),
		newJWKSCmd(app),
		newSessionsCmd(app),
		newRolesCmd(app),
	)
	return root
}

func loadConfig(v *viper.Viper, cmd *cobra.Command) error {
	v.SetEnvPrefix("STCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", file, err)
		}
	}
	return nil
}

// cli carries resolved settings into the commands.
type cli struct {
	v *viper.Viper
}

func (c *cli) tenant() string {
	if t := c.v.GetString("tenant"); t != "" {
		return t
	}
	return querier.DefaultTenantID
}

func (c *cli) querier() (querier.Querier, error) {
	hosts := c.v.GetStringSlice("core")
	// A single env var may carry a comma separated list.
	if len(hosts) == 1 && strings.Contains(hosts[0], ",") {
		hosts = strings.Split(hosts[0], ",")
	}
	return querier.NewHTTPQuerier(querier.Config{
		Hosts:  hosts,
		APIKey: c.v.GetString("api-key"),
	})
}

func (c *cli) timeout() time.Duration {
	if d := c.v.GetDuration("timeout"); d > 0 {
		return d
	}
	return 10 * time.Second
}

func (c *cli) jsonOutput() bool { return c.v.GetBool("json") }

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// statusError turns a non OK core status into an error.
func statusError(status string) error {
	if status == "OK" {
		return nil
	}
	return errors.New(strings.ToLower(strings.ReplaceAll(status, "_", " ")))
}
