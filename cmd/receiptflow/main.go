package main

import (
	"os"

	"github.com/welth-app/receiptflow/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
