package cmd

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "arena",
	Short: "Scenario-based training arena for people managers",
	Long: `Arena runs interactive management-training scenarios: managers work
through realistic situations node by node, reflect with an AI coach,
make decisions, and get scored feedback grounded in the organization's
culture values and engagement dimensions.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", ".arena.yml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
