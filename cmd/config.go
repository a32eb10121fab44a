package main

import (
	"net/url"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/closest-tornado/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(redacted(*cfg))
		if err != nil {
			return eris.Wrap(err, "marshal config")
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

// redacted masks credentials before the config is printed.
func redacted(c config.Config) config.Config {
	if c.Store.DatabaseURL != "" {
		if u, err := url.Parse(c.Store.DatabaseURL); err == nil && u.User != nil {
			c.Store.DatabaseURL = u.Redacted()
		}
	}
	if c.Geocode.Google.APIKey != "" {
		c.Geocode.Google.APIKey = "REDACTED"
	}
	return c
}

func init() {
	rootCmd.AddCommand(configCmd)
}
