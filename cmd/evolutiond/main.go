package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/xraph/evolution/config"
)

var (
	configFile string
	envFile    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "evolutiond",
		Short: "Evolution API gateway",
		Long:  "Send messages through Evolution API servers and receive their webhooks",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile == "" {
				return nil
			}
			if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default: ./evolution.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file loaded before the config")

	rootCmd.AddCommand(
		serveCmd(),
		sendTextCmd(),
		stateCmd(),
		instancesCmd(),
		configCmd(),
		secretCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.File, error) {
	return config.Load(config.LoadOptions{ConfigFile: configFile})
}
