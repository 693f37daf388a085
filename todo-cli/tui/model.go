// Package tui is the interactive todo list.
package tui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"livetodo/internal/contract"
	"livetodo/todo-cli/mirror"
	"livetodo/todo-cli/session"
)

// SnapshotMsg carries a list pushed by the stream service.
type SnapshotMsg []contract.Todo

// StreamErrMsg reports a lost stream connection.
type StreamErrMsg struct{ Err error }

type resultMsg session.Result

type mode int

const (
	browsing mode = iota
	editing
	adding
)

type listItem struct{ mirror.Row }

func (i listItem) Title() string       { return i.Text }
func (i listItem) Description() string { return "" }
func (i listItem) FilterValue() string { return i.Text }

type itemDelegate struct{}

func (d itemDelegate) Height() int                               { return 1 }
func (d itemDelegate) Spacing() int                              { return 0 }
func (d itemDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }
func (d itemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(listItem)
	if !ok {
		return
	}
	line := RenderRow(it.Text, it.Completed)
	if it.Dirty {
		line += " " + pendingStyle.Render("•")
	}
	prefix := "  "
	if index == m.Index() {
		prefix = selectedStyle.Render("> ")
	}
	fmt.Fprintln(w, prefix+line)
}

type Model struct {
	sess  *session.Session
	list  list.Model
	input textinput.Model

	mode   mode
	editID string
	status string
	online bool

	width, height int
}

func New(sess *session.Session) Model {
	l := list.New(nil, itemDelegate{}, 0, 0)
	l.Title = "Todos"
	l.SetShowHelp(true)
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(false)
	l.Styles.Title = titleStyle
	l.Styles.HelpStyle = helpStyle
	l.SetStatusBarItemName("todo", "todos")

	addBind := key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add"))
	editBind := key.NewBinding(key.WithKeys("e", "enter"), key.WithHelp("e", "edit"))
	toggleBind := key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "toggle"))
	delBind := key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete"))
	l.AdditionalShortHelpKeys = func() []key.Binding { return []key.Binding{addBind, editBind, toggleBind, delBind} }
	l.AdditionalFullHelpKeys = l.AdditionalShortHelpKeys

	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 500

	m := Model{sess: sess, list: l, input: ti, width: 80, height: 24}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return m.waitResult()
}

func (m Model) waitResult() tea.Cmd {
	ch := m.sess.Results()
	return func() tea.Msg {
		r, ok := <-ch
		if !ok {
			return nil
		}
		return resultMsg(r)
	}
}

// refresh rebuilds the list from the mirror and keeps the editor in step
// with the text shown for the record being edited.
func (m *Model) refresh() {
	rows := m.sess.Mirror().Rows()
	items := make([]list.Item, len(rows))
	done := 0
	for i, r := range rows {
		items[i] = listItem{r}
		if r.Completed {
			done++
		}
	}
	m.list.SetItems(items)
	m.list.Title = fmt.Sprintf("%s   %s %d  %s %d",
		titleStyle.Render("Todos"),
		successStyle.Render("✔"), done,
		pendingStyle.Render("•"), len(rows)-done,
	)
	if m.mode == editing {
		text, ok := m.sess.Mirror().Text(m.editID)
		switch {
		case !ok:
			m.stopInput()
			m.status = "record was deleted"
		case text != m.input.Value():
			m.input.SetValue(text)
			m.input.CursorEnd()
		}
	}
}

func (m *Model) selected() (listItem, bool) {
	it, ok := m.list.SelectedItem().(listItem)
	return it, ok
}

func (m *Model) stopInput() {
	m.mode = browsing
	m.editID = ""
	m.input.SetValue("")
	m.input.Blur()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil
	case SnapshotMsg:
		m.sess.HandlePush([]contract.Todo(msg))
		m.online = true
		m.refresh()
		return m, nil
	case StreamErrMsg:
		m.online = false
		if msg.Err != nil {
			m.status = "stream: " + msg.Err.Error()
		}
		return m, nil
	case resultMsg:
		r := session.Result(msg)
		m.sess.HandleResult(r)
		if r.Err != nil {
			m.status = fmt.Sprintf("%s failed: %v", r.Op, r.Err)
		}
		m.refresh()
		return m, m.waitResult()
	case tea.KeyMsg:
		switch m.mode {
		case editing:
			return m.updateEditing(msg)
		case adding:
			return m.updateAdding(msg)
		}
		return m.updateBrowsing(msg)
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) updateBrowsing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc", "ctrl+c":
		return m, tea.Quit
	case " ":
		if it, ok := m.selected(); ok {
			m.sess.HandleToggle(it.ID)
			m.refresh()
		}
		return m, nil
	case "d":
		if it, ok := m.selected(); ok {
			m.sess.HandleDelete(it.ID)
			m.status = "deleting " + it.Text
		}
		return m, nil
	case "a":
		m.mode = adding
		m.input.SetValue("")
		m.input.Placeholder = "New todo..."
		return m, m.input.Focus()
	case "e", "enter":
		if it, ok := m.selected(); ok {
			m.mode = editing
			m.editID = it.ID
			m.input.SetValue(it.Text)
			m.input.CursorEnd()
			m.input.Placeholder = ""
			return m, m.input.Focus()
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// updateEditing sends every keystroke through the session, so the record
// text follows the input while writes stay debounced.
func (m Model) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc", "ctrl+c":
		m.stopInput()
		return m, nil
	}
	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if v := m.input.Value(); v != before {
		m.sess.HandleInputChange(m.editID, v)
		m.refresh()
	}
	return m, cmd
}

func (m Model) updateAdding(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		if !m.sess.HandleCreate(m.input.Value()) {
			m.status = "text cannot be empty"
			return m, nil
		}
		m.status = ""
		m.stopInput()
		return m, nil
	case "esc", "ctrl+c":
		m.stopInput()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	listHeight := m.height - 4
	if m.mode != browsing {
		listHeight -= 3
	}
	if listHeight < 1 {
		listHeight = 1
	}
	m.list.SetSize(m.width-4, listHeight)

	content := m.list.View()
	if m.mode != browsing {
		title := "Add todo"
		if m.mode == editing {
			title = "Edit todo"
		}
		content += "\n" + panelStyle.Render(title+"\n"+m.input.View())
	}
	state := accentStyle.Render("live")
	if !m.online {
		state = errorStyle.Render("offline")
	}
	line := state
	if m.status != "" {
		line += "  " + mutedStyle.Render(m.status)
	}
	return panelStyle.Render(content + "\n" + line)
}
