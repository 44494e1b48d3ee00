package widgets

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/go-go-golems/devstack/pkg/tui/styles"
)

// Keybind represents a keybinding hint.
type Keybind struct {
	Key   string
	Label string
}

// Header renders the project title bar with a status summary and keybinds.
type Header struct {
	Title    string
	Status   string
	StatusOk bool
	Width    int
	Keybinds []Keybind
	theme    styles.Theme
}

func NewHeader(title string) Header {
	return Header{
		Title: title,
		theme: styles.DefaultTheme(),
	}
}

func (h Header) WithStatus(status string, ok bool) Header {
	h.Status = status
	h.StatusOk = ok
	return h
}

func (h Header) WithKeybinds(kb []Keybind) Header {
	h.Keybinds = kb
	return h
}

func (h Header) WithWidth(w int) Header {
	h.Width = w
	return h
}

func (h Header) Render() string {
	theme := h.theme

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.Text).
		Background(theme.Primary).
		Padding(0, 1)
	left := titleStyle.Render(h.Title)

	if h.Status != "" {
		statusStyle := theme.StatusDead
		if h.StatusOk {
			statusStyle = theme.StatusRunning
		}
		left = lipgloss.JoinHorizontal(lipgloss.Center, left, "  ", statusStyle.Render(h.Status))
	}

	right := ""
	if len(h.Keybinds) > 0 {
		right = RenderKeybinds(h.Keybinds, theme)
	}

	spacing := h.Width - lipgloss.Width(left) - lipgloss.Width(right)
	if spacing < 1 {
		spacing = 1
	}
	spacer := lipgloss.NewStyle().Width(spacing).Render("")
	line := lipgloss.JoinHorizontal(lipgloss.Top, left, spacer, right)

	return lipgloss.JoinVertical(lipgloss.Left, line, Separator(h.Width, theme))
}

// RenderKeybinds renders a list of keybinding hints.
func RenderKeybinds(keybinds []Keybind, theme styles.Theme) string {
	parts := make([]string, 0, len(keybinds)*2)
	for i, kb := range keybinds {
		if i > 0 {
			parts = append(parts, theme.TitleMuted.Render(" "))
		}
		parts = append(parts, theme.KeybindKey.Render("["+kb.Key+"]"))
		parts = append(parts, theme.Keybind.Render(" "+kb.Label))
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, parts...)
}

// Separator renders a full-width horizontal rule.
func Separator(width int, theme styles.Theme) string {
	if width <= 0 {
		width = 80
	}
	chars := make([]rune, width)
	for i := range chars {
		chars[i] = '━'
	}
	return lipgloss.NewStyle().Foreground(theme.Muted).Render(string(chars))
}
