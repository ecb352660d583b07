// Package cmd provides the hoofbeat command-line interface.
//
// Configuration sources, highest priority first:
//  1. Command-line flags (--project-port, ...)
//  2. HOOFBEAT_-prefixed environment variables (HOOFBEAT_PROJECT_PORT, ...)
//  3. The configuration file: --config, or .hoofbeat.yml in the working
//     directory
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "hoofbeat",
	Short: "A hot-reload development file server",
	Long: `hoofbeat serves a project directory over HTTP and keeps a live picture
of its contents, notifying connected clients the moment files change.

It runs two servers: the project server streams your files, and the
status server carries the web UI plus the change event stream (SSE on
/event-stream/, websocket on /ws).

Quick start:
  hoofbeat serve .        Serve the current directory
  hoofbeat config         Show the effective configuration
  hoofbeat version        Show build information`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .hoofbeat.yml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	mustBind("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	mustBind("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig wires viper to its sources. A missing config file is fine;
// defaults and flags cover everything.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".hoofbeat")
	}

	viper.SetEnvPrefix("HOOFBEAT")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
