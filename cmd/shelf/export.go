package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/shelf/internal/app"
	"github.com/MrSnakeDoc/shelf/internal/logger"
	"github.com/MrSnakeDoc/shelf/internal/transfer"
	"github.com/MrSnakeDoc/shelf/internal/utils"
)

type exportFlags struct {
	out    string
	groups []string
}

func newExportCmd() *cobra.Command {
	f := &exportFlags{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the collection as a browser bookmark file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.out, "out", "-", "output file, - for stdout")
	cmd.Flags().StringSliceVar(&f.groups, "group", nil, "group names to export (repeatable, default: all)")
	return cmd
}

func runExport(cmd *cobra.Command, f *exportFlags) error {
	cfg, log := setup()
	defer func() { _ = log.Sync() }()

	session, err := app.OpenSession(cmd.Context(), cfg, log)
	if err != nil {
		if session != nil {
			_ = session.Close(context.Background())
		}
		return err
	}
	defer func() { _ = session.Close(context.Background()) }()

	var w io.Writer = cmd.OutOrStdout()
	if f.out != "-" {
		fh, err := os.Create(f.out)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", f.out, err)
		}
		defer utils.MustClose(fh, log, f.out)
		w = fh
	}

	res, err := transfer.Export(w, session.Engine.Bookmarks(), session.Engine.Groups(), transfer.ExportOptions{
		Groups:    f.groups,
		BatchSize: cfg.ExportBatchSize,
	}, nil)
	if err != nil {
		return err
	}
	log.Info("export finished",
		logger.Int("groups", res.Groups),
		logger.Int("bookmarks", res.Bookmarks),
		logger.String("out", f.out))
	return nil
}
