package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// confirmedMsg reports the answer of a ConfirmationDialog.
type confirmedMsg struct {
	yes bool
}

// ConfirmationDialog represents a yes/no confirmation dialog
type ConfirmationDialog struct {
	Title       string
	Message     string
	YesSelected bool
}

// NewConfirmationDialog creates a new confirmation dialog
func NewConfirmationDialog(title, message string) ConfirmationDialog {
	return ConfirmationDialog{
		Title:   title,
		Message: message,
	}
}

// Update handles confirmation dialog updates
func (d *ConfirmationDialog) Update(msg tea.Msg) tea.Cmd {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil
	}
	switch key.String() {
	case "left", "h":
		d.YesSelected = true
	case "right", "l":
		d.YesSelected = false
	case "y":
		return answer(true)
	case "n", "esc":
		return answer(false)
	case "enter":
		return answer(d.YesSelected)
	}
	return nil
}

func answer(yes bool) tea.Cmd {
	return func() tea.Msg { return confirmedMsg{yes: yes} }
}

// View renders the confirmation dialog
func (d ConfirmationDialog) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(d.Title))
	b.WriteString("\n\n")
	b.WriteString(d.Message)
	b.WriteString("\n\n")

	yesButton := inactiveButtonStyle.Render("Yes")
	noButton := inactiveButtonStyle.Render("No")

	if d.YesSelected {
		yesButton = activeButtonStyle.Render("Yes")
	} else {
		noButton = activeButtonStyle.Render("No")
	}

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Left, yesButton, "  ", noButton))
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render(FormatKey("←/→", "navigate") + " • " + FormatKey("enter", "confirm") + " • " + FormatKey("esc", "cancel")))

	return boxStyle.Render(b.String())
}

// TrashItem is one tombstoned record in the list.
type TrashItem struct {
	ID           int64
	Label        string
	BatchID      string
	TombstonedAt string
	Restored     bool
	Record       any
}

func (i TrashItem) FilterValue() string { return i.Label + " " + i.BatchID }
func (i TrashItem) Title() string {
	icon := warningStyle.Render("✗")
	if i.Restored {
		icon = successStyle.Render("✓")
	}
	return fmt.Sprintf("%s #%d %s", icon, i.ID, i.Label)
}
func (i TrashItem) Description() string {
	if i.Restored {
		return mutedStyle.Render("Restored")
	}
	return mutedStyle.Render("Batch " + i.BatchID + " • deleted " + i.TombstonedAt)
}

// TrashItemDelegate renders TrashItems on two lines.
type TrashItemDelegate struct{}

func (d TrashItemDelegate) Height() int                             { return 2 }
func (d TrashItemDelegate) Spacing() int                            { return 1 }
func (d TrashItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }
func (d TrashItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	i, ok := item.(TrashItem)
	if !ok {
		return
	}

	var s string
	if index == m.Index() {
		s = selectedItemStyle.Render("▸ " + i.Title() + "\n  " + i.Description())
	} else {
		s = unselectedItemStyle.Render("  " + i.Title() + "\n  " + i.Description())
	}

	_, _ = fmt.Fprint(w, s)
}
