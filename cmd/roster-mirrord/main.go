// Package main is the entry point for the roster-mirror daemon.
package main

import (
	"os"

	"github.com/wachbuch/roster-mirror/cmd/roster-mirrord/app"
	"github.com/wachbuch/roster-mirror/internal/logger"
)

func main() {
	defer logger.Sync()
	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
