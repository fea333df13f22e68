// ABOUTME: Root cobra command with the shared --config flag and config path resolution
// ABOUTME: Registers the serve, token and health subcommands

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/2389/wordchain-gateway/internal/config"
)

// Version is set at build time.
var version = "dev"

const banner = `
                       _       _           _
 __      _____  _ __ __| | ___| |__   __ _(_)_ __
 \ \ /\ / / _ \| '__/ _' |/ __| '_ \ / _' | | '_ \
  \ V  V / (_) | | | (_| | (__| | | | (_| | | | | |
   \_/\_/ \___/|_|  \__,_|\___|_| |_|\__,_|_|_| |_|
`

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "wordchain",
		Short:         "Run word-chain agents for registered Matrix accounts",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default $WORDCHAIN_CONFIG or $XDG_CONFIG_HOME/wordchain/config.yaml)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newTokenCmd(opts))
	cmd.AddCommand(newHealthCmd(opts))
	return cmd
}

// resolvedPath returns the config path.
// Priority: --config > WORDCHAIN_CONFIG > XDG_CONFIG_HOME/wordchain/config.yaml > ~/.config/wordchain/config.yaml
func (o *rootOptions) resolvedPath() string {
	if o.configPath != "" {
		return o.configPath
	}
	if envPath := os.Getenv("WORDCHAIN_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "wordchain", "config.yaml")
}

func (o *rootOptions) load() (*config.Config, string, error) {
	path := o.resolvedPath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}
