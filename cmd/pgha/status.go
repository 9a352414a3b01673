package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-pgha/pkg/cluster"
	"github.com/dd0wney/cluso-pgha/pkg/journal"
	"github.com/dd0wney/cluso-pgha/pkg/probe"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00FFFF"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF00FF")).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	upStyle      = cellStyle.Foreground(lipgloss.Color("#00FF00"))
	downStyle    = cellStyle.Foreground(lipgloss.Color("#FF0000")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")).Bold(true)
)

func newStatusCommand(opts *rootOptions) *cobra.Command {
	var events int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Probe both nodes and print their roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, opts, scopePool)
			if err != nil {
				return err
			}
			defer rt.Close()

			results := probeAll(ctx, rt.prober(), rt.poolNodes())
			renderStatus(cmd.OutOrStdout(), results)

			if events > 0 {
				list, err := rt.journal.List(ctx, events)
				if err != nil {
					return fmt.Errorf("failed to read journal: %w", err)
				}
				renderEvents(cmd.OutOrStdout(), list)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&events, "events", 0, "also show the N most recent journal events")
	return cmd
}

func probeAll(ctx context.Context, p probe.Prober, nodes []cluster.Node) []probe.Result {
	results := make([]probe.Result, len(nodes))
	var wg sync.WaitGroup
	for i, n := range nodes {
		wg.Add(1)
		go func(i int, n cluster.Node) {
			defer wg.Done()
			results[i] = p.Probe(ctx, n)
		}(i, n)
	}
	wg.Wait()
	return results
}

func renderStatus(w io.Writer, results []probe.Result) {
	rows := make([][]string, 0, len(results))
	primaries := 0
	for _, r := range results {
		if r.IsPrimary() {
			primaries++
		}
		errText := ""
		if r.Err != nil {
			errText = r.Err.Error()
		}
		rows = append(rows, []string{
			strconv.Itoa(r.Node.PoolIndex),
			r.Node.Name,
			r.Node.Addr(),
			r.Node.DeclaredRole.String(),
			r.Outcome(),
			r.Latency.Round(time.Millisecond).String(),
			errText,
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#00FFFF"))).
		Headers("INDEX", "NODE", "ADDRESS", "DECLARED", "STATE", "LATENCY", "ERROR").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 4 && row >= 0 && row < len(results) {
				if results[row].Reachable {
					return upStyle
				}
				return downStyle
			}
			return cellStyle
		})

	fmt.Fprintln(w, titleStyle.Render("pgha cluster status"))
	fmt.Fprintln(w, t.Render())
	switch {
	case primaries > 1:
		fmt.Fprintln(w, warningStyle.Render("WARNING: more than one node answers as primary (suspected split brain)"))
	case primaries == 0:
		fmt.Fprintln(w, warningStyle.Render("WARNING: no node answers as primary"))
	}
}

func renderEvents(w io.Writer, events []journal.Event) {
	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		rows = append(rows, []string{
			ev.Time.UTC().Format(time.RFC3339),
			string(ev.Kind),
			ev.Node,
			ev.Outcome,
			ev.Message,
		})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("TIME", "KIND", "NODE", "OUTCOME", "MESSAGE").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	fmt.Fprintln(w, titleStyle.Render("recent events"))
	fmt.Fprintln(w, t.Render())
}
