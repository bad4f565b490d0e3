package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TrashMode represents the current mode of the trash browser
type TrashMode int

const (
	ModeList TrashMode = iota
	ModeConfirm
	ModeRestoring
	ModeError
)

// RestoreFunc restores one record and runs whatever it cascaded to.
type RestoreFunc func(ctx context.Context, rec any) error

// TrashModel is the Bubbletea model for browsing and restoring tombstoned
// records.
type TrashModel struct {
	ctx          context.Context
	mode         TrashMode
	list         list.Model
	confirmation ConfirmationDialog
	restore      RestoreFunc
	status       string
	err          error
	width        int
	height       int
}

// NewTrashModel creates a browser over items.
func NewTrashModel(ctx context.Context, typeName string, items []TrashItem, restore RestoreFunc) TrashModel {
	listItems := make([]list.Item, len(items))
	for i, item := range items {
		listItems[i] = item
	}

	l := list.New(listItems, TrashItemDelegate{}, 0, 0)
	l.Title = "Trash: " + typeName
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.Styles.Title = titleStyle

	return TrashModel{
		ctx:     ctx,
		mode:    ModeList,
		list:    l,
		restore: restore,
	}
}

// Init initializes the model
func (m TrashModel) Init() tea.Cmd {
	return tea.EnterAltScreen
}

type restoredMsg struct {
	index int
	err   error
}

func restoreCmd(ctx context.Context, restore RestoreFunc, index int, rec any) tea.Cmd {
	return func() tea.Msg {
		return restoredMsg{index: index, err: restore(ctx, rec)}
	}
}

func (m TrashModel) selected() (TrashItem, bool) {
	item, ok := m.list.SelectedItem().(TrashItem)
	return item, ok
}

// Update handles messages
func (m TrashModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case confirmedMsg:
		item, ok := m.selected()
		if !msg.yes || !ok {
			m.mode = ModeList
			return m, nil
		}
		m.mode = ModeRestoring
		m.status = fmt.Sprintf("Restoring #%d...", item.ID)
		return m, restoreCmd(m.ctx, m.restore, m.list.Index(), item.Record)

	case restoredMsg:
		if msg.err != nil {
			m.mode = ModeError
			m.err = msg.err
			return m, nil
		}
		item := m.list.Items()[msg.index].(TrashItem)
		item.Restored = true
		m.mode = ModeList
		m.status = fmt.Sprintf("Restored #%d %s", item.ID, item.Label)
		return m, m.list.SetItem(msg.index, item)

	case tea.KeyMsg:
		switch m.mode {
		case ModeList:
			if m.list.FilterState() == list.Filtering {
				break
			}
			switch msg.String() {
			case "ctrl+c", "q":
				return m, tea.Quit

			case "enter", " ", "r":
				item, ok := m.selected()
				if !ok || item.Restored {
					return m, nil
				}
				m.confirmation = NewConfirmationDialog(
					"Confirm Restore",
					fmt.Sprintf("Restore #%d %s and everything deleted with it\nin batch %s?", item.ID, item.Label, item.BatchID),
				)
				m.mode = ModeConfirm
				return m, nil
			}

		case ModeConfirm:
			if msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
			return m, m.confirmation.Update(msg)

		case ModeError:
			switch msg.String() {
			case "ctrl+c", "q":
				return m, tea.Quit
			case "enter", "esc":
				m.mode = ModeList
				m.err = nil
				return m, nil
			}

		case ModeRestoring:
			return m, nil
		}
	}

	if m.mode == ModeList {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the UI
func (m TrashModel) View() string {
	switch m.mode {
	case ModeConfirm:
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.confirmation.View())

	case ModeRestoring:
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
			boxStyle.Render(infoStyle.Render(m.status)))

	case ModeError:
		msg := titleStyle.Render("Restore Failed") + "\n\n" +
			errorStyle.Render(m.err.Error()) + "\n\n" +
			helpStyle.Render(FormatKey("enter", "back")+" • "+FormatKey("q", "quit"))
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, boxStyle.Render(msg))
	}

	help := helpStyle.Render(
		FormatKey("↑/↓", "navigate") + " • " +
			FormatKey("/", "filter") + " • " +
			FormatKey("enter", "restore") + " • " +
			FormatKey("q", "quit"),
	)
	views := []string{m.list.View()}
	if m.status != "" {
		views = append(views, infoStyle.Render(m.status))
	}
	views = append(views, help)
	return lipgloss.JoinVertical(lipgloss.Left, views...)
}

// RunTrashUI starts the interactive trash browser
func RunTrashUI(ctx context.Context, typeName string, items []TrashItem, restore RestoreFunc) error {
	p := tea.NewProgram(NewTrashModel(ctx, typeName, items, restore), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
