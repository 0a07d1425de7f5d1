package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/engine"
	"github.com/MrSnakeDoc/shelf/internal/logger"
)

// Action decides what happens to every duplicate of an import.
type Action string

const (
	// ActionSkip leaves duplicates out.
	ActionSkip Action = "skip"
	// ActionOverride adds duplicates anyway.
	ActionOverride Action = "override"
)

const defaultBatchSize = 25

// ImportOptions are the choices confirmed on a Preview.
type ImportOptions struct {
	Action Action `json:"action"`
	// Groups selects preview groups by name; empty imports all of them.
	Groups    []string `json:"groups,omitempty"`
	BatchSize int      `json:"batchSize,omitempty"`
}

// ImportResult counts the outcome per entry. Failed entries stay in the
// collection marked failed and can be retried.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// Sink is where imported entries go, normally *engine.Engine.
type Sink interface {
	Groups() []*domain.Group
	CreateGroup(ctx context.Context, in engine.GroupInput) (domain.Group, error)
	AddBookmark(ctx context.Context, req engine.AddRequest) (domain.Bookmark, *engine.Op, error)
}

// Importer streams accepted entries into a Sink in batches.
type Importer struct {
	sink Sink
	log  logger.Logger
}

// NewImporter returns an Importer that inserts accepted entries through sink.
func NewImporter(sink Sink, log logger.Logger) *Importer {
	if log == nil {
		log = logger.Nop()
	}
	return &Importer{sink: sink, log: log}
}

// Apply imports the selected groups of preview. Each batch is awaited
// before the next starts and progress is reported after every batch.
func (im *Importer) Apply(ctx context.Context, preview Preview, opts ImportOptions, progress ProgressFunc) (ImportResult, error) {
	var res ImportResult
	switch opts.Action {
	case ActionSkip, ActionOverride:
	case "":
		opts.Action = ActionSkip
	default:
		return res, &domain.ValidationError{Field: "action", Reason: fmt.Sprintf("unknown action %q", opts.Action)}
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}

	selected := make(map[string]bool, len(opts.Groups))
	for _, name := range opts.Groups {
		selected[name] = true
	}

	var accepted []Item
	for _, g := range preview.Groups {
		if len(selected) > 0 && !selected[g.Name] {
			continue
		}
		for _, it := range g.Items {
			if it.Duplicate && opts.Action == ActionSkip {
				res.Skipped++
				continue
			}
			accepted = append(accepted, it)
		}
	}

	total := len(accepted)
	progress.report(Progress{Phase: PhaseImport, Total: total})

	groupIDs, groupErrs := im.ensureGroups(ctx, accepted)

	processed := 0
	for start := 0; start < total; start += opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		end := min(start+opts.BatchSize, total)

		var ops []*engine.Op
		for _, it := range accepted[start:end] {
			if err, ok := groupErrs[it.Group]; ok {
				im.log.Debug("Skipping entry of a group that could not be created",
					logger.String("group", it.Group), logger.Error(err))
				res.Failed++
				continue
			}

			req := engine.AddRequest{
				URL:            it.URL,
				Title:          it.Title,
				AllowDuplicate: opts.Action == ActionOverride,
			}
			if id := groupIDs[it.Group]; id != "" {
				req.GroupID = domain.String(id)
			}

			_, op, err := im.sink.AddBookmark(ctx, req)
			switch {
			case errors.Is(err, domain.ErrConflict):
				res.Skipped++
			case err != nil:
				res.Failed++
			default:
				ops = append(ops, op)
			}
		}

		for _, op := range ops {
			if err := op.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return res, ctx.Err()
				}
				res.Failed++
				continue
			}
			res.Imported++
		}

		processed = end
		progress.report(Progress{Phase: PhaseImport, Processed: processed, Total: total})
	}

	progress.report(Progress{Phase: PhaseImport, Processed: processed, Total: total, Done: true})
	im.log.Info("Import finished",
		logger.Int("imported", res.Imported),
		logger.Int("skipped", res.Skipped),
		logger.Int("failed", res.Failed),
	)
	return res, nil
}

// ensureGroups maps every source group name of items to a group id,
// creating the groups that do not exist yet.
func (im *Importer) ensureGroups(ctx context.Context, items []Item) (map[string]string, map[string]error) {
	ids := make(map[string]string)
	errs := make(map[string]error)

	existing := make(map[string]string)
	for _, g := range im.sink.Groups() {
		existing[domain.NormalizeGroupName(g.Name)] = g.ID
	}

	for _, it := range items {
		name := it.Group
		if name == "" {
			continue
		}
		if _, done := ids[name]; done {
			continue
		}
		if _, failed := errs[name]; failed {
			continue
		}
		if id, ok := existing[domain.NormalizeGroupName(name)]; ok {
			ids[name] = id
			continue
		}

		g, err := im.sink.CreateGroup(ctx, engine.GroupInput{Name: name})
		var dup *domain.DuplicateGroupError
		switch {
		case errors.As(err, &dup):
			ids[name] = dup.ExistingID
		case err != nil:
			im.log.Warn("Failed to create import group", logger.String("group", name), logger.Error(err))
			errs[name] = err
		default:
			ids[name] = g.ID
			existing[domain.NormalizeGroupName(name)] = g.ID
		}
	}
	return ids, errs
}
