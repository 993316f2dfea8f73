package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gymcheck/gymcheck-go/cmd/locations"
	"github.com/gymcheck/gymcheck-go/cmd/serve"
	"github.com/gymcheck/gymcheck-go/internal/conf"
)

// RootCommand creates and returns the root command.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gymcheck",
		Short: "GymCheck photo verification service",
	}

	setupFlags(rootCmd, settings)

	rootCmd.AddCommand(
		serve.Command(settings),
		locations.Command(settings),
	)

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Database.Path, "database", viper.GetString("database.path"), "Path to the SQLite database file")
	_ = viper.BindPFlags(rootCmd.PersistentFlags())
}
