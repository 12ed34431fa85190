package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/text/message"

	"grimm.is/hearth/internal/textutil"
	"grimm.is/hearth/internal/ui"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// RenderTable renders rows under the visible columns of a listing.
func RenderTable(p *message.Printer, cols []ui.TableColumn, rows []ui.Row) string {
	var headers []string
	var visible []ui.TableColumn
	for _, c := range cols {
		if c.Hidden {
			continue
		}
		visible = append(visible, c)
		headers = append(headers, p.Sprintf(c.Label))
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	for _, r := range rows {
		cells := make([]string, len(visible))
		for i, c := range visible {
			cells[i] = formatCell(c.Format, r[c.Key])
		}
		t.Row(cells...)
	}
	return t.Render()
}

func formatCell(format string, v any) string {
	if v == nil {
		return "-"
	}
	switch format {
	case "bytes":
		if n, ok := toFloat(v); ok {
			return textutil.SizeReadable(n, "", "bi", "")
		}
	case "date":
		if n, ok := toFloat(v); ok && n > 0 {
			return time.Unix(int64(n), 0).UTC().Format("2006-01-02 15:04")
		}
	}
	return fmt.Sprint(v)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
