package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/LevelInteractive/people-manager-arena-sub000/internal/content"
)

var validateCmd = &cobra.Command{
	Use:   "validate <glob>",
	Short: "Validate scenario YAML files without saving them",
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := matchScenarioFiles(args[0])
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return fmt.Errorf("no files match %q", args[0])
		}

		var failed int
		for _, path := range files {
			bundle, err := content.LoadFile(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "FAIL %s: %v\n", path, err)
				failed++
				continue
			}
			if verbose {
				fmt.Printf("ok   %s (%s, %d nodes)\n", path, bundle.Scenario.ID, len(bundle.Scenario.Nodes))
			}
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d scenario file(s) invalid", failed, len(files))
		}
		fmt.Printf("Validated %d scenario file(s)\n", len(files))
		return nil
	},
	Args: cobra.ExactArgs(1),
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
