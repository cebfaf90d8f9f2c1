package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/gymstats/gymstats-hub/internal/domain/climbing"
	"github.com/gymstats/gymstats-hub/internal/domain/overrep"
)

var (
	heading = color.New(color.FgCyan, color.Bold).SprintFunc()
	dim     = color.New(color.Faint).SprintFunc()
	good    = color.New(color.FgGreen).SprintFunc()
	warn    = color.New(color.FgYellow).SprintFunc()
)

// printer writes either JSON or the human readable rendering.
type printer struct {
	out  io.Writer
	json bool
}

func (p printer) JSON(v any) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p printer) Printf(format string, args ...any) {
	fmt.Fprintf(p.out, format, args...)
}

func (p printer) Heading(title string) {
	fmt.Fprintln(p.out, heading(title))
}

// Table prints rows padded to the widest cell of each column.
func (p printer) Table(header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	line := func(cells []string) string {
		parts := make([]string, len(cells))
		for i, c := range cells {
			parts[i] = c + strings.Repeat(" ", widths[i]-len(c))
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}

	fmt.Fprintln(p.out, dim(line(header)))
	for _, row := range rows {
		fmt.Fprintln(p.out, line(row))
	}
}

// Overrep prints an over-representation result facet by facet.
func (p printer) Overrep(title string, res overrep.Result) {
	p.Heading(title)
	empty := true
	for _, facet := range overrep.Facets {
		entries := res[facet]
		if len(entries) == 0 {
			continue
		}
		empty = false
		values := make([]string, 0, len(entries))
		for _, e := range entries {
			values = append(values, fmt.Sprintf("%s (x%.2f, p=%.3f)", e.Value, e.OddsRatio, e.PValue))
		}
		p.Printf("  %-3s %s\n", facet, strings.Join(values, ", "))
	}
	if empty {
		p.Printf("  %s\n", dim("nothing significant"))
	}
}

func problemRow(pb *climbing.Problem) []string {
	var tags []string
	for _, c := range climbing.Categories {
		tags = append(tags, pb.Tags(c)...)
	}
	status := ""
	if pb.Removed {
		status = "removed"
	}
	return []string{string(pb.ID), pb.Gym.Abv, pb.NormalizedGrade(), strings.Join(tags, ","), status}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
