package widgets

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/go-go-golems/devstack/pkg/tui/styles"
)

// TableColumn defines a column in the table.
type TableColumn struct {
	Header string
	Width  int
}

// TableRow is one rendered row. The icon is colored by status.
type TableRow struct {
	Icon  string
	Cells []string
}

// Table renders a fixed-width status table.
type Table struct {
	Columns []TableColumn
	Rows    []TableRow
	theme   styles.Theme
}

func NewTable(cols []TableColumn) Table {
	return Table{
		Columns: cols,
		theme:   styles.DefaultTheme(),
	}
}

func (t Table) WithRows(rows []TableRow) Table {
	t.Rows = rows
	return t
}

// Render returns the styled table as a string, header row first.
func (t Table) Render() string {
	theme := t.theme
	var lines []string

	var headers []string
	for _, col := range t.Columns {
		headers = append(headers, theme.TitleMuted.Width(col.Width).Render(col.Header))
	}
	lines = append(lines, "  "+lipgloss.JoinHorizontal(lipgloss.Top, headers...))

	if len(t.Rows) == 0 {
		lines = append(lines, "  "+theme.TitleMuted.Render("(none)"))
		return strings.Join(lines, "\n")
	}

	for _, row := range t.Rows {
		parts := []string{t.iconStyle(row.Icon).Render(row.Icon) + " "}
		for j, cell := range row.Cells {
			width := 20
			if j < len(t.Columns) && t.Columns[j].Width > 0 {
				width = t.Columns[j].Width
			}
			if len(cell) > width {
				cell = cell[:width-1] + "…"
			}
			parts = append(parts, lipgloss.NewStyle().Width(width).Foreground(theme.Text).Render(cell))
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, parts...))
	}

	return strings.Join(lines, "\n")
}

func (t Table) iconStyle(icon string) lipgloss.Style {
	switch icon {
	case styles.IconError:
		return t.theme.StatusDead
	case styles.IconWarning:
		return t.theme.StatusWarn
	case styles.IconPending:
		return t.theme.StatusPending
	default:
		return t.theme.StatusRunning
	}
}
