// Package loam imports components from a Loam vault of Markdown files.
package loam

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/aretw0/forge/pkg/domain"
	"github.com/aretw0/forge/pkg/registry"
	"github.com/aretw0/forge/pkg/vcs"
	"github.com/aretw0/loam"
)

// Action is what the importer did with one file.
type Action string

const (
	ActionRegistered Action = "registered"
	ActionCommitted  Action = "committed"
	ActionUnchanged  Action = "unchanged"
	ActionSkipped    Action = "skipped"
	ActionFailed     Action = "failed"
)

// FileResult is the outcome for one vault file.
type FileResult struct {
	File    string
	Slug    string
	Branch  string
	Action  Action
	Version *domain.Version
	Err     error
}

// ImportReport lists the outcome for every file in the vault.
type ImportReport struct {
	Files []FileResult
}

// Count returns how many files ended with action a.
func (r ImportReport) Count(a Action) int {
	n := 0
	for _, f := range r.Files {
		if f.Action == a {
			n++
		}
	}
	return n
}

// Err joins the per-file failures.
func (r ImportReport) Err() error {
	var errs []error
	for _, f := range r.Files {
		if f.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.File, f.Err))
		}
	}
	return errors.Join(errs...)
}

// Importer loads component documents from a Loam repository into forge.
type Importer struct {
	Repo     *loam.TypedRepository[ComponentMetadata]
	registry *registry.Registry
	vcs      *vcs.Engine
	logger   *slog.Logger
	author   string
}

// Option configures the Importer.
type Option func(*Importer)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Importer) {
		i.logger = logger
	}
}

// WithAuthor sets the author recorded for files without one.
func WithAuthor(author string) Option {
	return func(i *Importer) {
		i.author = author
	}
}

// New creates an importer over repo.
func New(repo *loam.TypedRepository[ComponentMetadata], reg *registry.Registry, engine *vcs.Engine, opts ...Option) *Importer {
	i := &Importer{
		Repo:     repo,
		registry: reg,
		vcs:      engine,
		author:   "import",
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.logger == nil {
		i.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return i
}

// Import walks the vault in path order. A file that fails is recorded in the
// report and the walk continues; only listing failures and cancellation
// abort it.
func (i *Importer) Import(ctx context.Context) (ImportReport, error) {
	docs, err := i.Repo.List(ctx)
	if err != nil {
		return ImportReport{}, fmt.Errorf("loam list failed: %w", err)
	}
	slices.SortFunc(docs, func(a, b *loam.DocumentModel[ComponentMetadata]) int {
		return strings.Compare(a.ID, b.ID)
	})

	var report ImportReport
	seen := make(map[string]string)
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		var res FileResult
		// List serves metadata from the index; the body needs a full read.
		full, err := i.Repo.Get(ctx, doc.ID)
		if err != nil {
			res = FileResult{File: doc.ID, Slug: doc.Data.Slug, Err: fmt.Errorf("loam get failed for %s: %w", doc.ID, err)}
		} else {
			res = i.importFile(ctx, full, seen)
		}
		if res.Err != nil {
			res.Action = ActionFailed
			i.logger.WarnContext(ctx, "import.failed", "file", res.File, "slug", res.Slug, "err", res.Err)
		} else if res.Action != ActionSkipped {
			i.logger.InfoContext(ctx, "import.file", "file", res.File, "slug", res.Slug, "action", res.Action)
		}
		report.Files = append(report.Files, res)
	}
	return report, nil
}

func (i *Importer) importFile(ctx context.Context, doc *loam.DocumentModel[ComponentMetadata], seen map[string]string) FileResult {
	meta := doc.Data
	res := FileResult{File: doc.ID, Slug: meta.Slug, Branch: meta.Branch}
	if meta.Kind == "" {
		res.Action = ActionSkipped
		return res
	}
	if res.Slug == "" {
		res.Slug = trimExtension(path.Base(filepath.ToSlash(doc.ID)))
	}
	if res.Branch == "" {
		res.Branch = domain.DefaultBranch
	}
	if prev, ok := seen[res.Slug+"@"+res.Branch]; ok {
		res.Err = fmt.Errorf("collision detected: slug %q on branch %q is defined in both %q and %q: %w",
			res.Slug, res.Branch, prev, doc.ID, domain.ErrValidation)
		return res
	}
	seen[res.Slug+"@"+res.Branch] = doc.ID

	kind, err := domain.ParseKind(meta.Kind)
	if err != nil {
		res.Err = err
		return res
	}
	vars, err := meta.StringVariables()
	if err != nil {
		res.Err = &domain.ValidationError{Field: "variables", Reason: err.Error()}
		return res
	}
	document := domain.Document{Sections: ParseBody(doc.Content), Variables: vars}
	author := meta.Author
	if author == "" {
		author = i.author
	}
	message := "import " + doc.ID

	comp, err := i.registry.Get(ctx, res.Slug)
	switch {
	case errors.Is(err, domain.ErrComponentNotFound):
		req := registry.RegisterRequest{
			Slug:        res.Slug,
			Kind:        kind,
			Name:        meta.Name,
			Description: meta.Description,
			Tags:        meta.Tags,
			Author:      author,
			Message:     message,
		}
		if res.Branch == domain.DefaultBranch {
			req.Document = &document
		}
		c, v, err := i.registry.Register(ctx, req)
		if err != nil {
			res.Err = err
			return res
		}
		res.Action, res.Version = ActionRegistered, v
		if v != nil {
			return res
		}
		comp = c
	case err != nil:
		res.Err = err
		return res
	}

	if err := i.ensureBranch(ctx, comp, res.Branch, author); err != nil {
		res.Err = err
		return res
	}

	parent := ""
	head, err := i.vcs.Head(ctx, comp.ID, res.Branch)
	switch {
	case err == nil:
		if head.Document.Equal(document) {
			if res.Action == "" {
				res.Action = ActionUnchanged
			}
			return res
		}
		parent = head.ID
	case errors.Is(err, domain.ErrVersionNotFound):
	default:
		res.Err = err
		return res
	}

	v, err := i.vcs.Commit(ctx, vcs.CommitRequest{
		ComponentID:    comp.ID,
		Branch:         res.Branch,
		Document:       document,
		Message:        message,
		Author:         author,
		ExpectedParent: &parent,
	})
	if err != nil {
		res.Err = err
		return res
	}
	if res.Action == "" {
		res.Action = ActionCommitted
	}
	res.Version = &v
	return res
}

func (i *Importer) ensureBranch(ctx context.Context, comp domain.Component, name, author string) error {
	_, err := i.vcs.GetBranch(ctx, comp.ID, name)
	if !errors.Is(err, domain.ErrBranchNotFound) {
		return err
	}
	_, err = i.vcs.CreateBranch(ctx, comp.ID, name, domain.DefaultBranch, author)
	if errors.Is(err, domain.ErrBranchExists) {
		return nil
	}
	return err
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	if ext != "" {
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}
