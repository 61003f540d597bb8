// Package pipeline runs notes through normalize, augment and persist, one file
// at a time, and aggregates the outcomes per directory.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/starford/trevanbox/internal/apperr"
	"github.com/starford/trevanbox/internal/decode"
	"github.com/starford/trevanbox/internal/frontmatter"
	"github.com/starford/trevanbox/internal/inbox"
	"github.com/starford/trevanbox/internal/inference"
	"github.com/starford/trevanbox/internal/ledger"
	"github.com/starford/trevanbox/internal/models"
	"github.com/starford/trevanbox/internal/normalize"
	"github.com/starford/trevanbox/internal/storage"
	"github.com/starford/trevanbox/internal/tags"
)

// AllDirectories selects every mapped import directory in ProcessBatch.
const AllDirectories = "all"

// Options switch the write and relocation stages.
type Options struct {
	DryRun      bool
	MoveToInbox bool
}

// Suggester proposes a title, tags and description for a note body.
type Suggester interface {
	GenerateAll(ctx context.Context, body, currentTitle string, existingTags []string) inference.Suggestion
}

// Notifier receives progress as the processor works.
type Notifier interface {
	NoteProcessed(r models.ProcessingResult)
	BatchCompleted(reports []models.DirectoryReport)
}

// Config holds the processor's static settings.
type Config struct {
	VaultRoot   string
	Directories []models.DirectoryMapping
	// MaxFileSize rejects larger files; zero disables the check.
	MaxFileSize int64
}

// Deps are the components a processor drives.
type Deps struct {
	Store      storage.Provider
	Decoder    *decode.Decoder
	Normalizer *normalize.Normalizer
	Suggester  Suggester
	Reconciler *tags.Reconciler
	Router     *inbox.Router
}

// Option configures a Processor.
type Option func(*Processor)

// WithLedger records every run and result in l.
func WithLedger(l ledger.Recorder) Option {
	return func(p *Processor) {
		p.ledger = l
	}
}

// WithNotifier publishes results to n.
func WithNotifier(n Notifier) Option {
	return func(p *Processor) {
		p.notifier = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// Processor is the batch driver. Calls are serialized so triggers from the
// CLI, HTTP, MCP and the watcher never interleave.
type Processor struct {
	cfg      Config
	deps     Deps
	writer   *Writer
	ledger   ledger.Recorder
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time

	mu sync.Mutex
}

// New builds a Processor.
func New(cfg Config, deps Deps, opts ...Option) *Processor {
	p := &Processor{
		cfg:    cfg,
		deps:   deps,
		writer: NewWriter(deps.Store),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ResolveDirs expands names into directories: "all" yields every mapped
// directory in configuration order, a mapped name resolves under the vault
// root, and anything else is taken as a path.
func (p *Processor) ResolveDirs(names []string) []string {
	var dirs []string
	for _, name := range names {
		if name == AllDirectories {
			for _, m := range p.cfg.Directories {
				dirs = append(dirs, filepath.Join(p.cfg.VaultRoot, m.Name))
			}
			continue
		}
		if p.isMapped(name) {
			dirs = append(dirs, filepath.Join(p.cfg.VaultRoot, name))
			continue
		}
		dirs = append(dirs, name)
	}
	return dirs
}

func (p *Processor) isMapped(name string) bool {
	for _, m := range p.cfg.Directories {
		if m.Name == name {
			return true
		}
	}
	return false
}

// ProcessBatch processes every named directory in turn. A missing directory
// is reported and skipped.
func (p *Processor) ProcessBatch(ctx context.Context, names []string, opts Options) []models.DirectoryReport {
	p.mu.Lock()
	defer p.mu.Unlock()

	dirs := p.ResolveDirs(names)
	runID := p.beginRun(dirs, opts)
	reports := make([]models.DirectoryReport, 0, len(dirs))
	for _, dir := range dirs {
		reports = append(reports, p.processDirectory(ctx, runID, dir, opts))
	}
	p.finishRun(runID, reports)
	return reports
}

// ProcessDirectory processes every markdown file under dir.
func (p *Processor) ProcessDirectory(ctx context.Context, dir string, opts Options) models.DirectoryReport {
	p.mu.Lock()
	defer p.mu.Unlock()

	runID := p.beginRun([]string{dir}, opts)
	report := p.processDirectory(ctx, runID, dir, opts)
	p.finishRun(runID, []models.DirectoryReport{report})
	return report
}

// ProcessFile runs a single file through the pipeline. sourceDir selects the
// directory mapping.
func (p *Processor) ProcessFile(ctx context.Context, path, sourceDir string, opts Options) models.ProcessingResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	runID := p.beginRun([]string{sourceDir}, opts)
	r := p.processFile(ctx, path, sourceDir, opts)
	p.record(runID, r)
	p.finishRun(runID, []models.DirectoryReport{{Dir: sourceDir, Results: []models.ProcessingResult{r}}})
	return r
}

func (p *Processor) processDirectory(ctx context.Context, runID, dir string, opts Options) models.DirectoryReport {
	report := models.DirectoryReport{Dir: dir}
	files, err := p.deps.Store.List(dir)
	if err != nil {
		p.logger.Warn("directory skipped", slog.String("dir", dir), slog.String("error", err.Error()))
		report.Err = err
		return report
	}

	p.logger.Info("processing directory", slog.String("dir", dir), slog.Int("files", len(files)))
	for _, file := range files {
		if ctx.Err() != nil {
			p.logger.Warn("batch cancelled", slog.String("dir", dir))
			break
		}
		r := p.processFile(ctx, file, dir, opts)
		p.record(runID, r)
		report.Results = append(report.Results, r)
	}
	p.logger.Info("directory done",
		slog.String("dir", dir),
		slog.Int("succeeded", report.Succeeded()),
		slog.Int("moved", report.Moved()),
		slog.Int("failed", report.Failed()),
	)
	return report
}

func (p *Processor) processFile(ctx context.Context, path, sourceDir string, opts Options) models.ProcessingResult {
	r := models.ProcessingResult{File: path, DryRun: opts.DryRun, ProcessedAt: p.now()}

	doc, err := p.read(path)
	if err != nil {
		r.Fail(err)
		p.logResult(r)
		return r
	}
	r.Charset = doc.Charset

	meta := p.deps.Normalizer.Clean(doc.Header, sourceDir)
	suggestion := p.deps.Suggester.GenerateAll(ctx, doc.Body, meta.Title, meta.Tags)
	meta.Title = suggestion.Title
	meta.Tags = p.deps.Reconciler.Merge(suggestion.Tags, meta.Tags)
	if suggestion.Description != "" {
		meta.Description = suggestion.Description
	}
	r.Title = meta.Title
	r.Tags = meta.Tags
	r.Degraded = suggestion.Degraded

	newHeader := meta.Header()
	if !sameHeader(doc.Header, newHeader) {
		r.Changes.Metadata = &models.MetadataChange{Old: doc.Header, New: newHeader}
	}
	r.Changes.Description = suggestion.Description

	if opts.DryRun || r.Changes.Empty() {
		r.Success = true
		p.logResult(r)
		return r
	}

	sum, err := p.writer.Write(path, meta, doc.Body)
	if err != nil {
		r.Fail(err)
		p.logResult(r)
		return r
	}
	r.Success = true
	r.Checksum = sum

	if opts.MoveToInbox && p.deps.Router != nil {
		if moved, err := p.deps.Router.Move(path); err == nil {
			r.File = moved
			r.Moved = true
		}
	}
	p.logResult(r)
	return r
}

func (p *Processor) read(path string) (models.Document, error) {
	if p.cfg.MaxFileSize > 0 {
		size, err := p.deps.Store.Size(path)
		if err != nil {
			return models.Document{}, err
		}
		if size > p.cfg.MaxFileSize {
			return models.Document{}, fmt.Errorf("pipeline: %s is %s, limit %s: %w",
				path, humanize.IBytes(uint64(size)), humanize.IBytes(uint64(p.cfg.MaxFileSize)), apperr.ErrTooLarge)
		}
	}

	data, err := p.deps.Store.Read(path)
	if err != nil {
		return models.Document{}, err
	}
	text, charset, err := p.deps.Decoder.Decode(data)
	if err != nil {
		return models.Document{}, fmt.Errorf("pipeline: %s: %w", path, err)
	}
	header, body := frontmatter.Read(text)
	return models.Document{Path: path, Charset: charset, Header: header, Body: body}, nil
}

// sameHeader compares two headers as unordered maps, the way a reader of the
// YAML would.
func sameHeader(a, b frontmatter.Header) bool {
	if len(a) != len(b) {
		return false
	}
	ab, errA := yaml.Marshal(a.Map())
	bb, errB := yaml.Marshal(b.Map())
	return errA == nil && errB == nil && bytes.Equal(ab, bb)
}

func (p *Processor) logResult(r models.ProcessingResult) {
	attrs := []any{
		slog.String("path", r.File),
		slog.Bool("success", r.Success),
		slog.Bool("dry_run", r.DryRun),
		slog.Bool("moved", r.Moved),
	}
	if r.Err != nil {
		attrs = append(attrs, slog.String("kind", string(r.Kind)), slog.String("error", r.Err.Error()))
		p.logger.Error("note failed", attrs...)
	} else {
		p.logger.Info("note processed", attrs...)
	}
	if p.notifier != nil {
		p.notifier.NoteProcessed(r)
	}
}

func (p *Processor) beginRun(dirs []string, opts Options) string {
	if p.ledger == nil {
		return ""
	}
	id, err := p.ledger.BeginRun(dirs, opts.DryRun)
	if err != nil {
		p.logger.Warn("ledger unavailable", slog.String("error", err.Error()))
		return ""
	}
	return id
}

func (p *Processor) record(runID string, r models.ProcessingResult) {
	if p.ledger == nil || runID == "" {
		return
	}
	if err := p.ledger.Record(runID, r); err != nil {
		p.logger.Warn("ledger record failed", slog.String("path", r.File), slog.String("error", err.Error()))
	}
}

func (p *Processor) finishRun(runID string, reports []models.DirectoryReport) {
	if p.notifier != nil {
		p.notifier.BatchCompleted(reports)
	}
	if p.ledger == nil || runID == "" {
		return
	}
	if err := p.ledger.FinishRun(runID, reports); err != nil {
		p.logger.Warn("ledger finish failed", slog.String("error", err.Error()))
	}
}
