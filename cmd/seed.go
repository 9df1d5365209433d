package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/LevelInteractive/people-manager-arena-sub000/internal/config"
	"github.com/LevelInteractive/people-manager-arena-sub000/internal/content"
	"github.com/LevelInteractive/people-manager-arena-sub000/internal/db"
)

var seedCmd = &cobra.Command{
	Use:   "seed <glob>",
	Short: "Load scenario YAML files into the database",
	Long: `Parses scenario YAML files matching the glob (doublestar patterns like
scenarios/**/*.yml work), validates each one, and saves them with their
culture values, engagement dimensions, and behavior tags. Re-seeding an
existing scenario replaces its content.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		files, err := matchScenarioFiles(args[0])
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return fmt.Errorf("no files match %q", args[0])
		}

		database, err := db.Open(filepath.Join(cfg.DataDir, "arena.db"))
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer database.Close()

		store := content.NewStore(database)
		ctx := context.Background()

		bar := progressbar.Default(int64(len(files)), "seeding")
		var failed int
		for _, path := range files {
			bundle, err := content.LoadFile(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "\n%s: %v\n", path, err)
				failed++
				bar.Add(1)
				continue
			}
			if err := store.Save(ctx, *bundle); err != nil {
				fmt.Fprintf(os.Stderr, "\n%s: saving: %v\n", path, err)
				failed++
				bar.Add(1)
				continue
			}
			if verbose {
				fmt.Fprintf(os.Stderr, "\n%s: %s (%d nodes)\n", path, bundle.Scenario.ID, len(bundle.Scenario.Nodes))
			}
			bar.Add(1)
		}

		fmt.Fprintf(os.Stderr, "Seeded %d scenario(s)", len(files)-failed)
		if failed > 0 {
			fmt.Fprintf(os.Stderr, ", %d failed", failed)
		}
		fmt.Fprintln(os.Stderr)
		if failed > 0 {
			return fmt.Errorf("%d scenario file(s) failed", failed)
		}
		return nil
	},
}

// matchScenarioFiles resolves a doublestar glob to a sorted file list.
func matchScenarioFiles(pattern string) ([]string, error) {
	base, rest := doublestar.SplitPattern(pattern)
	matches, err := doublestar.Glob(os.DirFS(base), rest)
	if err != nil {
		return nil, fmt.Errorf("bad glob %q: %w", pattern, err)
	}

	var files []string
	for _, m := range matches {
		files = append(files, filepath.Join(base, m))
	}
	sort.Strings(files)
	return files, nil
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
