//go:build linux

package main

import (
	"log/slog"
	"os"

	"github.com/smazurov/kbdlight/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		slog.Error("kbdlight failed", "error", err)
		os.Exit(1)
	}
}
