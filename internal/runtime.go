package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"

	"github.com/starford/trevanbox/internal/decode"
	"github.com/starford/trevanbox/internal/inbox"
	"github.com/starford/trevanbox/internal/inference"
	"github.com/starford/trevanbox/internal/ledger"
	"github.com/starford/trevanbox/internal/lock"
	"github.com/starford/trevanbox/internal/noteservice"
	"github.com/starford/trevanbox/internal/normalize"
	"github.com/starford/trevanbox/internal/pipeline"
	"github.com/starford/trevanbox/internal/storage"
	"github.com/starford/trevanbox/internal/tags"
	"github.com/starford/trevanbox/internal/watch"
)

// NewLogger builds the process logger from the application config. In auto
// mode text is used when w is a terminal.
func NewLogger(cfg ApplicationConfig, w *os.File) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	switch cfg.LogFormat {
	case LogFormatText:
		return slog.New(slog.NewTextHandler(w, opts))
	case LogFormatAuto:
		if isatty.IsTerminal(w.Fd()) || isatty.IsCygwinTerminal(w.Fd()) {
			return slog.New(slog.NewTextHandler(w, opts))
		}
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// Runtime holds the components shared by every entry point.
type Runtime struct {
	Config    *Config
	Logger    *slog.Logger
	Store     *storage.FS
	Client    *inference.Client
	Generator *inference.Generator
	Processor *pipeline.Processor
	// Ledger is nil when run history is disabled.
	Ledger *ledger.DB

	lock *lock.VaultLock
}

// NewRuntime wires storage, inference, the ledger and the processor from cfg.
func NewRuntime(cfg *Config, logger *slog.Logger, extra ...pipeline.Option) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}

	vaultRoot, err := filepath.Abs(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve vault: %w", err)
	}
	info, err := os.Stat(vaultRoot)
	if err != nil {
		return nil, fmt.Errorf("open vault: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open vault: %s is not a directory", vaultRoot)
	}

	store, err := storage.NewFS(vaultRoot, cfg.Processing.BackupEnabled)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	rt := &Runtime{Config: cfg, Logger: logger, Store: store}

	opts := []pipeline.Option{pipeline.WithLogger(logger)}
	if cfg.Ledger.Enabled() {
		path := cfg.Ledger.Resolve(vaultRoot)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
		db, err := ledger.Open(path)
		if err != nil {
			return nil, fmt.Errorf("init ledger: %w", err)
		}
		rt.Ledger = db
		opts = append(opts, pipeline.WithLedger(db))
	}
	opts = append(opts, extra...)

	rt.Client = inference.NewClient(inference.Config{
		BaseURL:      cfg.Ollama.BaseURL,
		Model:        cfg.Ollama.Model,
		Timeout:      cfg.Ollama.Timeout(),
		Retry:        cfg.Ollama.Retry,
		SystemPrompt: cfg.Ollama.SystemPrompt,
	}, inference.WithLogger(logger))

	rt.Generator = inference.NewGenerator(rt.Client, inference.Limits{
		TitleMax:   cfg.AI.TitleMaxLength,
		TagsMax:    cfg.AI.TagsMaxCount,
		SummaryMax: cfg.AI.SummaryLength,
		BodyLimit:  cfg.AI.BodyLimit,
	}, logger)

	normalizer := normalize.New(normalize.Options{
		DefaultStatus: cfg.Metadata.DefaultStatus,
		DefaultType:   cfg.Metadata.DefaultType,
		Directories:   cfg.Directories,
	})

	rt.Processor = pipeline.New(
		pipeline.Config{
			VaultRoot:   vaultRoot,
			Directories: cfg.Directories,
			MaxFileSize: int64(cfg.Processing.MaxFileSize),
		},
		pipeline.Deps{
			Store:      store,
			Decoder:    decode.New(cfg.Processing.EncodingDetection),
			Normalizer: normalizer,
			Suggester:  rt.Generator,
			Reconciler: tags.NewReconciler(cfg.AI.TagsMaxCount, cfg.ProvenanceTags()),
			Router:     inbox.NewRouter(store, vaultRoot, cfg.Vault.InboxDir, logger),
		},
		opts...,
	)

	return rt, nil
}

// Service exposes the runtime to the HTTP and MCP surfaces.
func (r *Runtime) Service() *noteservice.Service {
	var history noteservice.History
	if r.Ledger != nil {
		history = r.Ledger
	}
	return noteservice.NewService(r.Processor, r.Client, history, r.Store, r.Config.Directories)
}

// ImportDirs returns the absolute path of every mapped import directory.
func (r *Runtime) ImportDirs() []string {
	return r.Processor.ResolveDirs([]string{pipeline.AllDirectories})
}

// WatchConfig watches every mapped import directory. Earlier writes are
// recognised through the ledger when it is enabled.
func (r *Runtime) WatchConfig(opts pipeline.Options) watch.Config {
	cfg := watch.Config{
		Dirs:     r.ImportDirs(),
		Debounce: r.Config.Watch.Debounce(),
		Options:  opts,
	}
	if r.Ledger != nil {
		cfg.History = r.Ledger
	}
	return cfg
}

// AcquireLock takes the exclusive vault lock. It is released by Close.
func (r *Runtime) AcquireLock() error {
	l, err := lock.Acquire(r.Store.Root())
	if err != nil {
		return err
	}
	r.lock = l
	r.Logger.Debug("vault locked", slog.String("path", l.Path()))
	return nil
}

// Close releases the vault lock and closes the ledger.
func (r *Runtime) Close() error {
	var errs []error
	if r.lock != nil {
		errs = append(errs, r.lock.Release())
		r.lock = nil
	}
	if r.Ledger != nil {
		errs = append(errs, r.Ledger.Close())
	}
	return errors.Join(errs...)
}
