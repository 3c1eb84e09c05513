package tui

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/thermos-iot/thermos-console/pkg/display"
	"github.com/thermos-iot/thermos-console/pkg/registry"
	"github.com/thermos-iot/thermos-console/pkg/runtime"
	"github.com/thermos-iot/thermos-console/pkg/schema"
	"github.com/thermos-iot/thermos-console/pkg/tabledata"
)

// BrowseMode represents the current mode of the browser
type BrowseMode int

const (
	ModeList BrowseMode = iota
	ModeLoading
	ModeTable
	ModeConfirm
	ModeError
)

const maxColumnWidth = 28

// StatusChanger activates and inactivates rows.
type StatusChanger interface {
	Inactivate(ctx context.Context, table string, id int64) error
	Activate(ctx context.Context, table string, id int64) error
}

// BrowseModel is the Bubbletea model of the table browser
type BrowseModel struct {
	ctx          context.Context
	manager      *tabledata.Manager
	actions      StatusChanger
	lang         display.Lang
	mode         BrowseMode
	list         list.Model
	table        table.Model
	confirmation ConfirmationDialog
	logs         LogView
	state        tabledata.State
	loading      string
	abandoned    string
	pendingID    int64
	activate     bool
	err          error
	width        int
	height       int
}

// NewBrowseModel creates a browser over the registered tables
func NewBrowseModel(ctx context.Context, manager *tabledata.Manager, actions StatusChanger, lang display.Lang) BrowseModel {
	reg := registry.Default()

	var items []list.Item
	for _, t := range reg.All() {
		item := TableItem{
			Name:       t.Name,
			LabelField: t.LabelField,
			Dependents: len(reg.Dependents(t.Name)),
		}
		for _, fk := range t.ForeignKeys {
			item.References = append(item.References, fk.References)
		}
		items = append(items, item)
	}

	l := list.New(items, TableItemDelegate{}, 0, 0)
	l.Title = "Thermos"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.Styles.Title = titleStyle

	t := table.New(table.WithFocused(true))
	styles := table.DefaultStyles()
	styles.Header = tableHeaderStyle
	styles.Selected = tableSelectedStyle
	t.SetStyles(styles)

	return BrowseModel{
		ctx:     ctx,
		manager: manager,
		actions: actions,
		lang:    lang,
		mode:    ModeList,
		list:    l,
		table:   t,
		logs:    NewLogView(3),
	}
}

// Messages
type referencesLoadedMsg struct {
	err error
}

type tableLoadedMsg struct {
	state tabledata.State
	err   error
}

type statusChangedMsg struct {
	table    string
	id       int64
	activate bool
	err      error
}

// Commands
func (m BrowseModel) loadReferencesCmd() tea.Cmd {
	return func() tea.Msg {
		return referencesLoadedMsg{err: m.manager.LoadRelatedTablesData(m.ctx)}
	}
}

// startLoad switches to the loading screen and loads name.
func (m BrowseModel) startLoad(name string) (BrowseModel, tea.Cmd) {
	m.mode = ModeLoading
	m.loading = name
	m.abandoned = ""
	return m, m.loadTableCmd(name)
}

func (m BrowseModel) loadTableCmd(name string) tea.Cmd {
	return func() tea.Msg {
		state, err := m.manager.LoadTableData(m.ctx, name)
		return tableLoadedMsg{state: state, err: err}
	}
}

func (m BrowseModel) changeStatusCmd(name string, id int64, activate bool) tea.Cmd {
	return func() tea.Msg {
		var err error
		if activate {
			err = m.actions.Activate(m.ctx, name, id)
		} else {
			err = m.actions.Inactivate(m.ctx, name, id)
		}
		return statusChangedMsg{table: name, id: id, activate: activate, err: err}
	}
}

// Init initializes the model
func (m BrowseModel) Init() tea.Cmd {
	return tea.Batch(
		m.loadReferencesCmd(),
		tea.EnterAltScreen,
	)
}

// Update handles messages
func (m BrowseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width-4, msg.Height-4)
		m.table.SetHeight(max(msg.Height-8, 3))
		m.table.SetWidth(msg.Width - 4)
		return m, nil

	case referencesLoadedMsg:
		if msg.err != nil {
			m.logs.AddLog(warningStyle.Render("Some reference tables failed to load"))
		}
		if m.state.Table != "" {
			m.setTable()
		}
		return m, nil

	case tableLoadedMsg:
		if m.abandoned != "" && (msg.err != nil || msg.state.Table == m.abandoned) {
			m.abandoned = ""
			return m, nil
		}
		if msg.err != nil {
			if errors.Is(msg.err, tabledata.ErrSuperseded) {
				return m, nil
			}
			m.mode = ModeError
			m.err = msg.err
			return m, nil
		}
		m.state = msg.state
		m.setTable()
		m.mode = ModeTable
		return m, nil

	case statusChangedMsg:
		waiting := m.mode == ModeLoading
		if msg.err != nil {
			m.logs.AddLog(errorText(msg.err))
			if waiting {
				m.mode = ModeTable
			}
			return m, nil
		}
		verb := "Inactivated"
		if msg.activate {
			verb = "Activated"
		}
		m.logs.AddLog(successStyle.Render(fmt.Sprintf("✓ %s %s %d", verb, msg.table, msg.id)))
		if !waiting {
			return m, nil
		}
		return m.startLoad(msg.table)

	case tea.KeyMsg:
		switch m.mode {
		case ModeLoading:
			switch msg.String() {
			case "ctrl+c", "q":
				return m, tea.Quit
			case "esc":
				m.abandoned = m.loading
				m.mode = ModeList
				return m, nil
			}
			return m, nil

		case ModeList:
			if m.list.FilterState() == list.Filtering {
				break
			}
			switch msg.String() {
			case "ctrl+c", "q":
				return m, tea.Quit
			case "enter":
				item, ok := m.list.SelectedItem().(TableItem)
				if !ok {
					return m, nil
				}
				return m.startLoad(item.Name)
			}

		case ModeTable:
			switch msg.String() {
			case "ctrl+c", "q":
				return m, tea.Quit
			case "esc", "backspace":
				m.mode = ModeList
				return m, nil
			case "r":
				return m.startLoad(m.state.Table)
			case "d", "a":
				id, ok := m.selectedID()
				if !ok {
					return m, nil
				}
				m.pendingID = id
				m.activate = msg.String() == "a"
				action := "inactivate"
				if m.activate {
					action = "activate"
				}
				m.confirmation = NewConfirmationDialog(
					fmt.Sprintf("Confirm %s", action),
					fmt.Sprintf("Are you sure you want to %s %s %d?", action, m.state.Table, id),
				)
				m.mode = ModeConfirm
				return m, nil
			}
			var cmd tea.Cmd
			m.table, cmd = m.table.Update(msg)
			return m, cmd

		case ModeConfirm:
			switch msg.String() {
			case "ctrl+c", "q", "esc":
				m.mode = ModeTable
				return m, nil
			}
			decided, confirmed := m.confirmation.Update(msg)
			if !decided {
				return m, nil
			}
			if !confirmed {
				m.mode = ModeTable
				return m, nil
			}
			m.mode = ModeLoading
			m.loading = ""
			return m, m.changeStatusCmd(m.state.Table, m.pendingID, m.activate)

		case ModeError:
			switch msg.String() {
			case "ctrl+c", "q":
				return m, tea.Quit
			case "enter", "esc":
				m.mode = ModeList
				m.err = nil
				return m, nil
			}
		}
	}

	// Update list
	if m.mode == ModeList {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	return m, nil
}

// setTable fills the table widget from the loaded state.
func (m *BrowseModel) setTable() {
	resolver, refs := m.manager.Resolver(), m.manager.References()

	var names []string
	for _, c := range m.state.Columns {
		if !c.Virtual {
			names = append(names, c.ColumnName)
		}
	}

	widths := make([]int, len(names))
	for i, name := range names {
		widths[i] = lipgloss.Width(display.ColumnDisplayNameTranslated(name, m.lang))
	}

	rows := make([]table.Row, len(m.state.Rows))
	for r, row := range m.state.Rows {
		cells := make(table.Row, len(names))
		for i, name := range names {
			cell := resolver.TableValue(m.state.Table, row, name, refs)
			if name == schema.ColumnStatus {
				active, _ := row.Int64(schema.ColumnStatus)
				cell = statusCell(cell, active == schema.StatusActive)
			}
			cells[i] = cell
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
		rows[r] = cells
	}

	columns := make([]table.Column, len(names))
	for i, name := range names {
		columns[i] = table.Column{
			Title: display.ColumnDisplayNameTranslated(name, m.lang),
			Width: min(widths[i], maxColumnWidth),
		}
	}

	m.table.SetRows(nil)
	m.table.SetColumns(columns)
	m.table.SetRows(rows)
	m.table.SetCursor(0)
}

// selectedID returns the primary key of the row under the cursor.
func (m BrowseModel) selectedID() (int64, bool) {
	cursor := m.table.Cursor()
	if cursor < 0 || cursor >= len(m.state.Rows) {
		return 0, false
	}
	return m.state.Rows[cursor].Int64(m.state.Table + schema.PrimaryKeySuffix)
}

func errorText(err error) string {
	var depErr *runtime.DependencyError
	if errors.As(err, &depErr) {
		return warningStyle.Render(fmt.Sprintf("✗ Still referenced by %v", depErr.Tables))
	}
	return warningStyle.Render("✗ " + runtime.Message(err))
}

// View renders the UI
func (m BrowseModel) View() string {
	switch m.mode {
	case ModeList:
		help := helpStyle.Render(
			FormatKey("↑/↓", "navigate") + " • " +
				FormatKey("/", "filter") + " • " +
				FormatKey("enter", "open") + " • " +
				FormatKey("q", "quit"),
		)
		return lipgloss.JoinVertical(lipgloss.Left, m.list.View(), m.logs.View(), help)

	case ModeLoading:
		name := m.state.Table
		if loading, ok := m.manager.Loading(); ok {
			name = loading
		}
		msg := mutedStyle.Render("Loading "+name+"…") + "\n" +
			helpStyle.Render(FormatKey("esc", "back")+" • "+FormatKey("q", "quit"))
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, boxStyle.Render(msg))

	case ModeTable:
		title := titleStyle.Render(fmt.Sprintf("%s (%d)", m.state.Table, len(m.state.Rows)))
		help := helpStyle.Render(
			FormatKey("↑/↓", "navigate") + " • " +
				FormatKey("d", "inactivate") + " • " +
				FormatKey("a", "activate") + " • " +
				FormatKey("r", "reload") + " • " +
				FormatKey("esc", "back") + " • " +
				FormatKey("q", "quit"),
		)
		return lipgloss.JoinVertical(lipgloss.Left, title, m.table.View(), m.logs.View(), help)

	case ModeConfirm:
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.confirmation.View())

	case ModeError:
		msg := titleStyle.Render("Error") + "\n\n" +
			errorStyle.Render(runtime.Message(m.err)) + "\n\n" +
			helpStyle.Render(FormatKey("enter", "back")+" • "+FormatKey("q", "quit"))
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, boxStyle.Render(msg))
	}

	return "Unknown mode"
}

// RunBrowseUI starts the interactive table browser
func RunBrowseUI(ctx context.Context, manager *tabledata.Manager, actions StatusChanger, lang display.Lang) error {
	p := tea.NewProgram(NewBrowseModel(ctx, manager, actions, lang), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
