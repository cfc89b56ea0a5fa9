// Package report formats persisted sweep results into comparison tables.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/weiihann/streambench/results"
)

// Generate writes a markdown table of every row in t, followed by the
// best throughput per distinct value of groupBy (skipped when empty).
func Generate(w io.Writer, t *results.Table, groupBy string) error {
	if t == nil || len(t.Rows) == 0 {
		return fmt.Errorf("no results to report")
	}

	mbpsIdx := t.Index(results.ColumnMbps)
	if mbpsIdx < 0 {
		return fmt.Errorf("results have no %s column", results.ColumnMbps)
	}

	groupIdx := -1
	if groupBy != "" {
		groupIdx = t.Index(groupBy)
		if groupIdx < 0 {
			return fmt.Errorf("unknown group-by column %q", groupBy)
		}
	}

	fmt.Fprintln(w, "## Throughput Results")
	fmt.Fprintln(w)

	if zero := countZero(t, mbpsIdx); zero > 0 {
		fmt.Fprintf(w, "Trials without usable throughput: **%d of %d**\n",
			zero, len(t.Rows))
		fmt.Fprintln(w)
	}

	writeRow(w, t.Header)
	writeRule(w, len(t.Header))

	for _, rec := range t.Rows {
		cells := make([]string, len(rec))
		copy(cells, rec)
		if mbpsIdx < len(cells) {
			cells[mbpsIdx] = formatMbps(cells[mbpsIdx])
		}
		writeRow(w, cells)
	}

	if groupIdx < 0 {
		return nil
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "### Best by %s\n", groupBy)
	fmt.Fprintln(w)

	writeRow(w, []string{groupBy, "best", "row"})
	writeRule(w, 3)

	for _, b := range findBest(t, groupIdx, mbpsIdx) {
		writeRow(w, []string{b.key, formatMbps(t.Rows[b.row][mbpsIdx]),
			strconv.Itoa(b.row + 1)})
	}

	return nil
}

// GenerateJSON writes the rows of t as a JSON array of objects. Numeric
// cells are emitted as numbers.
func GenerateJSON(w io.Writer, t *results.Table) error {
	out := make([]map[string]any, 0, len(t.Rows))

	for _, rec := range t.Rows {
		obj := make(map[string]any, len(t.Header))
		for i, col := range t.Header {
			if i >= len(rec) {
				break
			}
			if v, err := strconv.ParseFloat(rec[i], 64); err == nil {
				obj[col] = v
			} else {
				obj[col] = rec[i]
			}
		}
		out = append(out, obj)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}

type best struct {
	key string
	row int
}

// findBest returns, per distinct group value in first-seen order, the
// index of the row with the highest throughput.
func findBest(t *results.Table, groupIdx, mbpsIdx int) []best {
	var order []best
	pos := make(map[string]int)

	for i, rec := range t.Rows {
		if groupIdx >= len(rec) || mbpsIdx >= len(rec) {
			continue
		}

		key := rec[groupIdx]
		j, ok := pos[key]
		if !ok {
			pos[key] = len(order)
			order = append(order, best{key: key, row: i})
			continue
		}

		if parse(rec[mbpsIdx]) > parse(t.Rows[order[j].row][mbpsIdx]) {
			order[j].row = i
		}
	}

	return order
}

func countZero(t *results.Table, mbpsIdx int) int {
	n := 0
	for _, rec := range t.Rows {
		if mbpsIdx < len(rec) && parse(rec[mbpsIdx]) == 0 {
			n++
		}
	}

	return n
}

func parse(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}

	return v
}

func formatMbps(s string) string {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return s
	}
	if v == 0 {
		return "-"
	}
	if v >= 1000 {
		return fmt.Sprintf("%.2f Gbps", v/1000)
	}

	return fmt.Sprintf("%.2f Mbps", v)
}

func writeRow(w io.Writer, cells []string) {
	fmt.Fprintln(w, "| "+strings.Join(cells, " | ")+" |")
}

func writeRule(w io.Writer, n int) {
	cells := make([]string, n)
	for i := range cells {
		cells[i] = "---"
	}
	writeRow(w, cells)
}
