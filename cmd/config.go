package cmd

import (
	"fmt"

	"github.com/eivind-moen/comicdl/internal/config"

	"github.com/spf13/cobra"
)

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, used, err := config.LoadMerged(config.Options{
		IgnoreConfig: flagIgnoreConfig,
		Debug:        flagDebug,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Loaded config from:\n  %s\n\n", used)
	cfg.Print()
	return nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the comicdl config file",
	RunE:  runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the merged config and where it came from",
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(config.ConfigFile())
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}
