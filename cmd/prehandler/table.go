package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/starford/trevanbox/internal/ledger"
	"github.com/starford/trevanbox/internal/models"
)

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Header = text.FormatDefault
	tw.Style().Format.Footer = text.FormatDefault
	return tw
}

// summaryTable renders one row per directory of a batch, with a total row
// when more than one directory was processed.
func summaryTable(root string, reports []models.DirectoryReport) string {
	tw := newTable()
	tw.AppendHeader(table.Row{"Directory", "Files", "Succeeded", "Moved", "Failed"})

	var files, succeeded, moved, failed int
	for _, rep := range reports {
		tw.AppendRow(table.Row{relPath(root, rep.Dir), len(rep.Results), rep.Succeeded(), rep.Moved(), rep.Failed()})
		files += len(rep.Results)
		succeeded += rep.Succeeded()
		moved += rep.Moved()
		failed += rep.Failed()
	}
	if len(reports) > 1 {
		tw.AppendFooter(table.Row{"Total", files, succeeded, moved, failed})
	}

	counts := make([]table.ColumnConfig, 0, 4)
	for n := 2; n <= 5; n++ {
		counts = append(counts, table.ColumnConfig{Number: n, Align: text.AlignRight, AlignFooter: text.AlignRight})
	}
	tw.SetColumnConfigs(counts)
	return tw.Render()
}

// historyTable renders ledger entries newest first.
func historyTable(root string, entries []ledger.Entry) string {
	tw := newTable()
	tw.AppendHeader(table.Row{"When", "File", "Result", "Title", "Tags"})
	for _, row := range historyRows(root, entries) {
		tw.AppendRow(table.Row{row[0], row[1], row[2], row[3], row[4]})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Title", WidthMax: 40},
		{Name: "Tags", WidthMax: 40},
	})
	return tw.Render()
}
