package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/starford/trevanbox/internal"
	"github.com/starford/trevanbox/internal/ledger"
	"github.com/starford/trevanbox/internal/mcpserver"
	"github.com/starford/trevanbox/internal/models"
	"github.com/starford/trevanbox/internal/pipeline"
	"github.com/starford/trevanbox/internal/watch"
)

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Check that Ollama is reachable and the model is installed",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			rt, err := openRuntime(cmd, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			w := stdout(cmd)
			report, err := rt.Client.Status(ctx)
			if err != nil {
				fmt.Fprintf(w, "[ERROR] Ollama unavailable at %s: %v\n", rt.Config.Ollama.BaseURL, err)
				fmt.Fprintln(w, "Make sure Ollama is running: ollama serve")
				return nil
			}
			fmt.Fprintf(w, "[OK] Ollama reachable at %s\n", rt.Config.Ollama.BaseURL)
			if report.ModelInstalled {
				fmt.Fprintf(w, "[OK] Model: %s\n", report.Model)
			} else {
				fmt.Fprintf(w, "[WARN] Model %s is not installed (ollama pull %s)\n", report.Model, report.Model)
			}
			return nil
		},
	}
}

func processCommand() *cli.Command {
	return &cli.Command{
		Name:      "process",
		Usage:     "Normalize and enrich every note in the given directories",
		ArgsUsage: "DIR... (a mapped name, a path, or \"all\")",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "dry-run", Usage: "Compute changes without writing"},
			&cli.BoolFlag{Name: "move-to-inbox", Usage: "Move processed notes to the review queue"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			dirs := cmd.Args().Slice()
			if len(dirs) == 0 {
				return fmt.Errorf("process: at least one directory is required")
			}
			rt, err := openRuntime(cmd, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			opts := pipeline.Options{
				DryRun:      cmd.Bool("dry-run"),
				MoveToInbox: cmd.Bool("move-to-inbox") || rt.Config.Processing.MoveToInbox,
			}
			reports := rt.Processor.ProcessBatch(ctx, dirs, opts)
			printReports(stdout(cmd), rt.Store.Root(), reports, opts)
			return nil
		},
	}
}

func printReports(w io.Writer, root string, reports []models.DirectoryReport, opts pipeline.Options) {
	for _, rep := range reports {
		fmt.Fprintf(w, "\nDirectory: %s\n", relPath(root, rep.Dir))
		if rep.Err != nil {
			fmt.Fprintf(w, "  [ERROR] %v\n", rep.Err)
		}
		for _, r := range rep.Results {
			name := relPath(root, r.File)
			note := ""
			if r.Degraded {
				note = ", AI unavailable"
			}
			switch {
			case !r.Success:
				fmt.Fprintf(w, "  [ERROR] %s: %s\n", name, r.ErrorString())
			case r.DryRun:
				fmt.Fprintf(w, "  [OK] %s (preview: %s%s)\n", name, r.Title, note)
			case r.Moved:
				fmt.Fprintf(w, "  [MOVE] %s (%s%s)\n", name, r.Title, note)
			default:
				fmt.Fprintf(w, "  [OK] %s (%s%s)\n", name, r.Title, note)
			}
		}
	}

	title := "Summary"
	if opts.DryRun {
		title = "Summary (dry run)"
	}
	fmt.Fprintf(w, "\n%s\n", title)
	fmt.Fprintln(w, summaryTable(root, reports))
}

func placeholderCommand(name, usage string) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "FILE",
		Action: func(_ context.Context, cmd *cli.Command) error {
			fmt.Fprintf(stdout(cmd), "%s: not implemented yet\n", name)
			return nil
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recently processed notes",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20, Usage: "Number of entries"},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			rt, err := openRuntime(cmd, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			if rt.Ledger == nil {
				return fmt.Errorf("history: ledger is disabled")
			}
			entries, err := rt.Ledger.Recent(int(cmd.Int("limit")))
			if err != nil {
				return err
			}
			w := stdout(cmd)
			if len(entries) == 0 {
				fmt.Fprintln(w, "No notes processed yet.")
				return nil
			}
			fmt.Fprintln(w, historyTable(rt.Store.Root(), entries))
			return nil
		},
	}
}

func historyRows(root string, entries []ledger.Entry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		result := "ok"
		switch {
		case !e.Success:
			result = "failed: " + e.Kind
		case e.DryRun:
			result = "dry run"
		case e.Moved:
			result = "moved"
		}
		rows = append(rows, []string{
			humanize.Time(e.ProcessedAt),
			relPath(root, e.File),
			result,
			e.Title,
			strings.Join(e.Tags, ", "),
		})
	}
	return rows
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Process notes as they appear in the import directories",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "move-to-inbox", Usage: "Move processed notes to the review queue"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			rt, err := openRuntime(cmd, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			opts := pipeline.Options{
				MoveToInbox: cmd.Bool("move-to-inbox") || rt.Config.Processing.MoveToInbox,
			}
			return watch.Watch(ctx, rt.Processor, rt.WatchConfig(opts), rt.Logger)
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API with a live event stream",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "watch", Usage: "Also watch the import directories"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := internal.Run(ctx, internal.WithConfig(cfg), internal.WithWatch(cmd.Bool("watch"))); err != nil {
				return fmt.Errorf("app run error: %w", err)
			}
			return nil
		},
	}
}

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the prehandler tools over MCP on stdio",
		Action: func(_ context.Context, cmd *cli.Command) error {
			rt, err := openRuntime(cmd, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			return mcpserver.New(rt.Service(), version).ServeStdio()
		},
	}
}

func relPath(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return path
}
