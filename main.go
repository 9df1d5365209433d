package main

import (
	"os"

	"github.com/LevelInteractive/people-manager-arena-sub000/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
