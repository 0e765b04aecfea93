package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dannycabezas/semantic-firewall/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "semantic-firewall",
	Short: "A multi-stage safety pipeline for LLM chat traffic",
	Long: `semantic-firewall sits in front of an LLM backend and runs every
request through ML detectors (prompt injection, PII, toxicity), a
heuristic regex scanner, and a policy engine before the backend is
ever called, then optionally scans the reply on the way back out.

Configuration is read from (in order of precedence): command-line
flags, environment variables prefixed FIREWALL_ (e.g.
FIREWALL_SERVER_HTTP_ADDR), and a firewall.yaml/.yml file searched for
in the current directory, ~/.semantic-firewall/, and /etc/semantic-firewall.

Available commands:
  serve     run the HTTP server
  version   print version information`,
}

// Execute runs the root command, exiting the process with status 1 on
// failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: searches ./firewall.yaml, ~/.semantic-firewall/, /etc/semantic-firewall)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
