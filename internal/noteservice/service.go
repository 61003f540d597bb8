// Package noteservice is the facade the HTTP API and the MCP server share:
// path confinement, processing triggers, previews, status and history.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/trevanbox/internal/apperr"
	"github.com/starford/trevanbox/internal/frontmatter"
	"github.com/starford/trevanbox/internal/inference"
	"github.com/starford/trevanbox/internal/ledger"
	"github.com/starford/trevanbox/internal/models"
	"github.com/starford/trevanbox/internal/pipeline"
)

// Processor is the part of the pipeline the service triggers.
type Processor interface {
	ProcessBatch(ctx context.Context, names []string, opts pipeline.Options) []models.DirectoryReport
	ProcessFile(ctx context.Context, path, sourceDir string, opts pipeline.Options) models.ProcessingResult
}

// StatusChecker reports on the inference service.
type StatusChecker interface {
	Status(ctx context.Context) (inference.StatusReport, error)
}

// History lists recorded results.
type History interface {
	Recent(limit int) ([]ledger.Entry, error)
}

// Resolver confines externally supplied paths to the vault.
type Resolver interface {
	Root() string
	Resolve(p string) (string, error)
	Exists(path string) bool
}

// ResultItem is one file outcome on the wire.
type ResultItem struct {
	File        string   `json:"file"`
	Success     bool     `json:"success"`
	DryRun      bool     `json:"dry_run"`
	Moved       bool     `json:"moved"`
	Charset     string   `json:"charset,omitempty"`
	Title       string   `json:"title,omitempty"`
	Tags        []string `json:"tags"`
	Description string   `json:"description,omitempty"`
	Changed     bool     `json:"changed"`
	Kind        string   `json:"kind,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// DirectorySummary is one directory outcome on the wire.
type DirectorySummary struct {
	Dir       string       `json:"dir"`
	Succeeded int          `json:"succeeded"`
	Moved     int          `json:"moved"`
	Failed    int          `json:"failed"`
	Error     string       `json:"error,omitempty"`
	Results   []ResultItem `json:"results"`
}

// ProcessRequest selects what to process.
type ProcessRequest struct {
	Dirs        []string `json:"dirs"`
	DryRun      bool     `json:"dry_run"`
	MoveToInbox bool     `json:"move_to_inbox"`
}

// Preview is a dry-run of one note with the header it would get.
type Preview struct {
	Result ResultItem `json:"result"`
	Header string     `json:"header"`
}

// StatusResponse reports inference health.
type StatusResponse struct {
	Reachable      bool     `json:"reachable"`
	Model          string   `json:"model"`
	ModelInstalled bool     `json:"model_installed"`
	Models         []string `json:"models"`
	Error          string   `json:"error,omitempty"`
	CheckedAt      string   `json:"checked_at"`
}

// Service coordinates the processor, inference status and the ledger.
type Service struct {
	proc     Processor
	status   StatusChecker
	history  History
	resolver Resolver
	dirs     []models.DirectoryMapping
}

// NewService creates a new service. history may be nil when no ledger is kept.
func NewService(proc Processor, status StatusChecker, history History, resolver Resolver, dirs []models.DirectoryMapping) *Service {
	return &Service{proc: proc, status: status, history: history, resolver: resolver, dirs: dirs}
}

// Directories returns the configured import directories.
func (s *Service) Directories() []models.DirectoryMapping {
	return s.dirs
}

// Process runs a batch. Directory arguments must be "all", a mapped name or
// a path inside the vault.
func (s *Service) Process(ctx context.Context, req ProcessRequest) ([]DirectorySummary, error) {
	if len(req.Dirs) == 0 {
		return nil, fmt.Errorf("%w: no directories given", apperr.ErrInvalidPath)
	}
	names := make([]string, 0, len(req.Dirs))
	for _, d := range req.Dirs {
		if d == pipeline.AllDirectories || s.isMapped(d) {
			names = append(names, d)
			continue
		}
		abs, err := s.resolver.Resolve(d)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", apperr.ErrInvalidPath, err)
		}
		names = append(names, abs)
	}
	reports := s.proc.ProcessBatch(ctx, names, pipeline.Options{DryRun: req.DryRun, MoveToInbox: req.MoveToInbox})
	return Summaries(reports), nil
}

// Preview dry-runs one note inside the vault. A note that fails to process
// is reported through Result, not as an error.
func (s *Service) Preview(ctx context.Context, path string) (*Preview, error) {
	abs, err := s.resolver.Resolve(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrInvalidPath, err)
	}
	if !strings.HasSuffix(abs, ".md") {
		return nil, fmt.Errorf("%w: not a markdown file", apperr.ErrInvalidPath)
	}
	if !s.resolver.Exists(abs) {
		return nil, apperr.ErrNotFound
	}

	r := s.proc.ProcessFile(ctx, abs, s.sourceDir(abs), pipeline.Options{DryRun: true})
	out := &Preview{Result: NewResultItem(r)}
	if r.Success && r.Changes.Metadata != nil {
		header, err := frontmatter.Write(r.Changes.Metadata.New, "")
		if err != nil {
			return nil, err
		}
		out.Header = header
	}
	return out, nil
}

// Status checks the inference service. An unreachable service is reported
// in the response, not as an error.
func (s *Service) Status(ctx context.Context) StatusResponse {
	report, err := s.status.Status(ctx)
	resp := StatusResponse{
		Reachable:      report.Reachable,
		Model:          report.Model,
		ModelInstalled: report.ModelInstalled,
		Models:         nonNilSlice(report.Models),
		CheckedAt:      time.Now().UTC().Format(time.RFC3339),
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

// History returns the most recent ledger entries.
func (s *Service) History(limit int) ([]ledger.Entry, error) {
	if s.history == nil {
		return []ledger.Entry{}, nil
	}
	entries, err := s.history.Recent(limit)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(entries), nil
}

// sourceDir maps a note to the import directory it sits in: the first path
// segment below the vault root.
func (s *Service) sourceDir(abs string) string {
	rel, err := filepath.Rel(s.resolver.Root(), abs)
	if err != nil {
		return filepath.Dir(abs)
	}
	first, _, found := strings.Cut(filepath.ToSlash(rel), "/")
	if !found {
		return s.resolver.Root()
	}
	return filepath.Join(s.resolver.Root(), first)
}

func (s *Service) isMapped(name string) bool {
	for _, d := range s.dirs {
		if d.Name == name {
			return true
		}
	}
	return false
}

// NewResultItem converts a result for the wire.
func NewResultItem(r models.ProcessingResult) ResultItem {
	return ResultItem{
		File:        r.File,
		Success:     r.Success,
		DryRun:      r.DryRun,
		Moved:       r.Moved,
		Charset:     r.Charset,
		Title:       r.Title,
		Tags:        nonNilSlice(r.Tags),
		Description: r.Changes.Description,
		Changed:     !r.Changes.Empty(),
		Kind:        string(r.Kind),
		Error:       r.ErrorString(),
	}
}

// Summaries converts batch reports for the wire.
func Summaries(reports []models.DirectoryReport) []DirectorySummary {
	out := make([]DirectorySummary, 0, len(reports))
	for _, rep := range reports {
		d := DirectorySummary{
			Dir:       rep.Dir,
			Succeeded: rep.Succeeded(),
			Moved:     rep.Moved(),
			Failed:    rep.Failed(),
			Results:   make([]ResultItem, 0, len(rep.Results)),
		}
		if rep.Err != nil {
			d.Error = rep.Err.Error()
		}
		for _, r := range rep.Results {
			d.Results = append(d.Results, NewResultItem(r))
		}
		out = append(out, d)
	}
	return out
}

// IsClientError reports whether err stems from bad caller input.
func IsClientError(err error) bool {
	return errors.Is(err, apperr.ErrInvalidPath) || errors.Is(err, apperr.ErrNotFound)
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
