package cmd

import (
	"github.com/spf13/cobra"

	"github.com/LevelInteractive/people-manager-arena-sub000/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize arena configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to configure the arena server and generates a .arena.yml file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard()
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
