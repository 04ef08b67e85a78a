package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "jobrunner",
	Short: "Persistent asynchronous job engine",
	Long: `jobrunner accepts jobs, persists them and executes them on a pool of
concurrent workers, recording every job's outcome in the job store.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (defaults and environment variables apply without one)")

	settingDefaultConfig()
}
