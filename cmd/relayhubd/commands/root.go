// Copyright © 2019 Niko Carpenter <nikoacarpenter@gmail.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package commands

import (
	"fmt"
	"os"
	"path"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgDir string

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "relayhubd",
	Short: "Realtime messaging gateway",
	Long: `relayhubd is a realtime messaging gateway.

This application accepts websocket connections, routes method invocations
from clients to server methods, relays messages between connections and groups,
and prints usage stats for other relayhubd servers.`,
	SilenceErrors:     true,
	SilenceUsage:      true,
	DisableAutoGenTag: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().StringVar(&cfgDir, "config", "", "config directory (default is $HOME/.config/relayhubd)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if err := loadConfig(viper.GetViper(), cfgDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config file: %s\n", err)
		os.Exit(1)
	}
}

// loadConfig points v at the config directory, and reads relayhubd.{yaml,toml,json,...} from it.
// A missing config file is not an error; the defaults and flags are used instead.
func loadConfig(v *viper.Viper, dir string) error {
	if dir == "" {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			return errors.Wrap(err, "Find home directory")
		}

		// Search for config in $HOME/.config/relayhubd
		dir = path.Join(home, ".config", "relayhubd")
	}

	v.AddConfigPath(dir)
	v.SetConfigName("relayhubd")
	v.SetEnvPrefix("RELAYHUBD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	os.Setenv("CONFDIR", dir)

	// If a config file is found, read it in.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return errors.Wrap(err, "Read config")
	}
	return nil
}
