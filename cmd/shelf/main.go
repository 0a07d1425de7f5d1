package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/shelf/internal/config"
	"github.com/MrSnakeDoc/shelf/internal/logger"
	"github.com/MrSnakeDoc/shelf/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ shelf failed: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "shelf",
		Short:        "Bookmark collection with optimistic writes and realtime sync",
		SilenceUsage: true,
		Version:      version.String(),
		Example: strings.TrimSpace(`
  # Serve the API, the extension socket and the background loops
  shelf

  # Import a browser bookmark file, skipping URLs already present
  shelf import --file bookmarks.html --action skip

  # Export two groups
  shelf export --out backup.html --group Reading --group Work
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}

	cmd.AddCommand(newServeCmd(), newImportCmd(), newExportCmd())
	return cmd
}

// setup loads the configuration and builds the logger every command shares.
func setup() (*config.Config, logger.Logger) {
	cfg := config.Load()
	log := logger.NewWithFile(cfg.LogLevel, cfg.PrettyLog, logger.FileOptions{
		Path:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	return cfg, log
}
