package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/shelf/internal/app"
	"github.com/MrSnakeDoc/shelf/internal/logger"
	"github.com/MrSnakeDoc/shelf/internal/sources/homepage"
	"github.com/MrSnakeDoc/shelf/internal/transfer"
	"github.com/MrSnakeDoc/shelf/internal/utils"
)

type importFlags struct {
	file   string
	format string
	action string
	groups []string
	dryRun bool
}

func newImportCmd() *cobra.Command {
	f := &importFlags{}
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a bookmark file or a Homepage bookmarks.yaml into the collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.file, "file", "", "document to import (required)")
	cmd.Flags().StringVar(&f.format, "format", "", "html, homepage-bookmarks or homepage-services (default: from the file extension)")
	cmd.Flags().StringVar(&f.action, "action", string(transfer.ActionSkip), "what to do with duplicates: skip or override")
	cmd.Flags().StringSliceVar(&f.groups, "group", nil, "source groups to import (repeatable, default: all)")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "print the preview and write nothing")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readEntries(path, format string) ([]transfer.Entry, error) {
	if format == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			format = "homepage-bookmarks"
		default:
			format = "html"
		}
	}

	switch format {
	case "html":
		fh, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer utils.Close(fh)
		return transfer.ParseHTML(fh)
	case "homepage-bookmarks":
		links, err := homepage.NewLoader(path, homepage.KindBookmarks).Load()
		if err != nil {
			return nil, err
		}
		return transfer.FromHomepage(links), nil
	case "homepage-services":
		links, err := homepage.NewLoader(path, homepage.KindServices).Load()
		if err != nil {
			return nil, err
		}
		return transfer.FromHomepage(links), nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

func runImport(cmd *cobra.Command, f *importFlags) error {
	entries, err := readEntries(f.file, f.format)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", f.file, err)
	}

	cfg, log := setup()
	defer func() { _ = log.Sync() }()

	ctx := cmd.Context()
	session, err := app.OpenSession(ctx, cfg, log)
	if err != nil {
		if session != nil {
			_ = session.Close(context.Background())
		}
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = session.Close(closeCtx)
	}()

	preview := transfer.Plan(entries, session.Engine.Bookmarks())
	out := json.NewEncoder(cmd.OutOrStdout())
	out.SetIndent("", "  ")
	if f.dryRun {
		return out.Encode(preview)
	}

	importer := transfer.NewImporter(session.Engine, log)
	res, err := importer.Apply(ctx, preview, transfer.ImportOptions{
		Action:    transfer.Action(f.action),
		Groups:    f.groups,
		BatchSize: cfg.ImportBatchSize,
	}, func(p transfer.Progress) {
		log.Info("import progress",
			logger.Int("processed", p.Processed),
			logger.Int("total", p.Total),
			logger.Bool("done", p.Done))
	})
	if err != nil {
		return err
	}
	return out.Encode(res)
}
