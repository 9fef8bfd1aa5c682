package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/telhawk-systems/reportsync/internal/models"
)

type printer struct {
	w     io.Writer
	color bool
}

func newPrinter(w io.Writer, colored bool) *printer {
	return &printer{w: w, color: colored}
}

func (p *printer) paint(s string, attrs ...color.Attribute) string {
	if len(attrs) == 0 {
		return s
	}
	c := color.New(attrs...)
	if p.color {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c.Sprint(s)
}

func (p *printer) json(v interface{}) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type table struct {
	headers []string
	rows    [][]string
}

func newTable(headers ...string) *table {
	return &table{headers: headers}
}

func (t *table) addRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (p *printer) table(t *table) {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = len(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	for i, h := range t.headers {
		fmt.Fprint(p.w, p.paint(fmt.Sprintf("%-*s", widths[i], h), color.Bold)+"  ")
	}
	fmt.Fprintln(p.w)
	for i := range t.headers {
		fmt.Fprint(p.w, strings.Repeat("-", widths[i])+"  ")
	}
	fmt.Fprintln(p.w)
	for _, row := range t.rows {
		for i, cell := range row {
			fmt.Fprintf(p.w, "%-*s  ", widths[i], cell)
		}
		fmt.Fprintln(p.w)
	}
}

func (p *printer) status(s models.RunStatus) string {
	switch s {
	case models.StatusSuccess:
		return p.paint(string(s), color.FgGreen, color.Bold)
	case models.StatusPartial:
		return p.paint(string(s), color.FgYellow, color.Bold)
	default:
		return p.paint(string(s), color.FgRed, color.Bold)
	}
}

// summary renders a run as a header line plus one row per table.
func (p *printer) summary(s *models.RunSummary) {
	fmt.Fprintf(p.w, "run %s  %s  %s\n\n",
		s.RunID, p.status(s.Status), s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))

	t := newTable("TABLE", "FETCHED", "SYNCED", "DROPPED", "WATERMARK", "ERROR")
	for _, r := range s.Results {
		wm := r.WatermarkAfter
		if wm == "" {
			wm = "-"
		}
		t.addRow(r.Table,
			strconv.Itoa(r.RecordsFetched),
			strconv.Itoa(r.RecordsSynced),
			strconv.Itoa(r.RecordsDropped),
			wm,
			r.Error)
	}
	p.table(t)

	if s.RefreshError != "" {
		fmt.Fprintf(p.w, "\n%s %s\n", p.paint("view refresh failed:", color.FgYellow), s.RefreshError)
	}
}
