// Command sfincs-batch runs SFINCS over every scenario of a scenario table
// and post-processes the results.
//
// Usage:
//
//	sfincs-batch run
//	sfincs-batch postprocess <run-dir>...
//	sfincs-batch status
//
// Settings come from environment variables (see internal/config), an
// optional .env file and an optional YAML file named by SFINCS_CONFIG.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	envFile    string
	configFile string
)

var rootCmd = &cobra.Command{
	Use:           "sfincs-batch",
	Short:         "Run and post-process SFINCS flood model scenarios",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		err := godotenv.Load(envFile)
		if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("env-file") {
			err = nil
		}
		if err != nil {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
		if configFile != "" {
			return os.Setenv("SFINCS_CONFIG", configFile)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file (overrides SFINCS_CONFIG)")
	rootCmd.AddCommand(runCmd, postprocessCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "sfincs-batch:", err)
		os.Exit(1)
	}
}
