package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/jwebster45206/loot-list/internal/editor"
	"github.com/jwebster45206/loot-list/internal/handlers"
	"github.com/jwebster45206/loot-list/internal/notify"
	"github.com/muesli/reflow/wordwrap"
)

const PlaceHolderText = "Type /help for commands..."

const helpText = `Commands:
/add <uuid> [quantity]   add an item or increment it
/rm <uuid>               remove an item
/cur <code> <formula>    set a currency formula (cp, sp, ep, gp, pp)
/drop <json>             drop a document, e.g. {"type":"Folder","uuid":"Folder.abc"}
/clear                   remove all items and reset currencies
/grant <actor id>        grant the list to an actor
/copy                    copy the list as JSON to the clipboard
/refresh                 reload the list
/save                    save and close
/discard                 close without saving
/quit                    quit`

// ConsoleUI is the BubbleTea model that runs the loot list editor.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	config       *ConsoleConfig
	api          *apiClient
	session      *editor.ViewModel
	listViewport viewport.Model
	logViewport  viewport.Model
	textarea     textarea.Model
	log          []logLine
	ready        bool
	width        int
	height       int
	loading      bool
	closed       bool

	// Quit confirmation state
	showQuitModal bool
}

type logLine struct {
	level string
	text  string
}

type command struct {
	name string
	args []string
}

type sessionMsg struct {
	resp *handlers.SessionResponse
	err  error
}

type submitMsg struct {
	resp *handlers.SubmitResponse
	err  error
}

type grantMsg struct {
	resp *handlers.GrantResponse
	err  error
}

type discardMsg struct {
	err error
}

var (
	listPanelStyle = lipgloss.NewStyle().
			PaddingTop(1).
			PaddingLeft(2).
			PaddingRight(1)

	logPanelStyle = lipgloss.NewStyle().
			PaddingTop(1).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	itemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	quantityStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)
)

var separatorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("240")) // dark grey

func NewConsoleUI(cfg *ConsoleConfig, api *apiClient, session *editor.ViewModel) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 1000
	ta.SetWidth(50)
	ta.SetHeight(1)
	ta.ShowLineNumbers = false

	listVp := viewport.New(50, 20)
	listVp.MouseWheelEnabled = true

	logVp := viewport.New(30, 20)
	logVp.MouseWheelEnabled = true

	return ConsoleUI{
		config:       cfg,
		api:          api,
		session:      session,
		textarea:     ta,
		listViewport: listVp,
		logViewport:  logVp,
	}
}

// parseCommand splits an input line into a command and its arguments.
// Quantities, formulas and drop payloads keep their inner spaces.
func parseCommand(input string) (command, error) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return command{}, errors.New("commands start with /, try /help")
	}
	fields := strings.Fields(input)
	name := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	rest := strings.TrimSpace(strings.TrimPrefix(input, fields[0]))

	switch name {
	case "add":
		if rest == "" {
			return command{}, errors.New("usage: /add <uuid> [quantity]")
		}
		ref, qty, _ := strings.Cut(rest, " ")
		return command{name: name, args: []string{ref, strings.TrimSpace(qty)}}, nil
	case "rm", "grant":
		if len(fields) != 2 {
			return command{}, fmt.Errorf("usage: /%s <id>", name)
		}
		return command{name: name, args: fields[1:]}, nil
	case "cur":
		code, formula, ok := strings.Cut(rest, " ")
		if !ok || strings.TrimSpace(formula) == "" {
			return command{}, errors.New("usage: /cur <code> <formula>")
		}
		return command{name: name, args: []string{strings.ToLower(code), strings.TrimSpace(formula)}}, nil
	case "drop":
		if rest == "" {
			return command{}, errors.New("usage: /drop <json>")
		}
		return command{name: name, args: []string{rest}}, nil
	case "clear", "copy", "refresh", "save", "discard", "quit", "help":
		return command{name: name}, nil
	}
	return command{}, fmt.Errorf("unknown command /%s, try /help", name)
}

// renderList renders the items and currencies of a session
func renderList(vm *editor.ViewModel, width int) string {
	var content strings.Builder
	if vm == nil {
		return ""
	}
	content.WriteString(titleStyle.Render("LOOT LIST: "+strings.ToUpper(vm.ActorName)) + "\n\n")

	if len(vm.Items) == 0 {
		content.WriteString(promptStyle.Render("No items. Use /add or /drop.") + "\n")
	}
	for _, it := range vm.Items {
		name := itemStyle.Render(it.Name)
		if it.Missing {
			name = errorStyle.Render(it.Name + " (missing)")
		}
		line := fmt.Sprintf("• %s %s", name, quantityStyle.Render("× "+it.Quantity))
		content.WriteString(line + "\n")
		content.WriteString(promptStyle.Render("  "+it.Reference) + "\n")
	}

	content.WriteString("\n" + separatorStyle.Render(strings.Repeat("─", max(width-4, 10))) + "\n\n")
	for _, c := range vm.Currencies {
		content.WriteString(fmt.Sprintf("%-10s %s\n", c.Label, quantityStyle.Render(c.Formula)))
	}
	return content.String()
}

func (m *ConsoleUI) writeLog() {
	width := m.logViewport.Width - 2
	if width < 10 {
		width = 10
	}
	var content strings.Builder
	content.WriteString(titleStyle.Render("MESSAGES") + "\n\n")
	for _, l := range m.log {
		style := infoStyle
		switch l.level {
		case notify.LevelWarning:
			style = warnStyle
		case "error":
			style = errorStyle
		}
		content.WriteString(style.Render(wordwrap.String(l.text, width)) + "\n\n")
	}
	m.logViewport.SetContent(content.String())
	m.logViewport.GotoBottom()
}

func (m *ConsoleUI) addLog(level, text string) {
	m.log = append(m.log, logLine{level: level, text: text})
	m.writeLog()
}

func (m *ConsoleUI) addNotifications(notes []notify.Notification) {
	for _, n := range notes {
		m.log = append(m.log, logLine{level: n.Level, text: n.Message})
	}
	m.writeLog()
}

// addError logs err and any notifications the API attached to it
func (m *ConsoleUI) addError(err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && len(apiErr.Response.Notifications) > 0 {
		m.addNotifications(apiErr.Response.Notifications)
		return
	}
	m.addLog("error", "Error: "+err.Error())
}

func (m ConsoleUI) Init() tea.Cmd {
	return textarea.Blink
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var (
		tiCmd tea.Cmd
		lvCmd tea.Cmd
		gvCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.MouseMsg:
		m.listViewport, lvCmd = m.listViewport.Update(msg)
		m.logViewport, gvCmd = m.logViewport.Update(msg)
		return m, tea.Batch(lvCmd, gvCmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		listWidth := int(float64(m.width)*0.6) - 3
		logWidth := m.width - listWidth - 4

		m.listViewport.Width = listWidth - 2
		m.listViewport.Height = m.height - 5
		m.logViewport.Width = logWidth - 2
		m.logViewport.Height = m.height - 3
		m.textarea.SetWidth(listWidth - 4)

		m.ready = true
		m.listViewport.SetContent(renderList(m.session, m.listViewport.Width))
		m.writeLog()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyEnter:
			if m.loading {
				return m, nil
			}
			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}
			m.textarea.Reset()
			return m.handleCommand(input)
		}

	case sessionMsg:
		m.loading = false
		if msg.err != nil {
			m.addError(msg.err)
			break
		}
		m.session = msg.resp.Session
		m.listViewport.SetContent(renderList(m.session, m.listViewport.Width))
		m.addNotifications(msg.resp.Notifications)

	case submitMsg:
		m.loading = false
		if msg.err != nil {
			m.addError(msg.err)
			break
		}
		m.closed = true
		m.addNotifications(msg.resp.Notifications)
		m.addLog(notify.LevelInfo, "Session closed. Press Esc to quit.")

	case discardMsg:
		m.loading = false
		if msg.err != nil {
			m.addError(msg.err)
			break
		}
		m.closed = true
		m.addLog(notify.LevelInfo, "Changes discarded. Press Esc to quit.")

	case grantMsg:
		m.loading = false
		if msg.err != nil {
			m.addError(msg.err)
			break
		}
		m.addNotifications(msg.resp.Notifications)
		if msg.resp.Error != "" {
			m.addLog("error", "Grant incomplete: "+msg.resp.Error)
		}
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.listViewport, lvCmd = m.listViewport.Update(msg)
	m.logViewport, gvCmd = m.logViewport.Update(msg)

	return m, tea.Batch(tiCmd, lvCmd, gvCmd)
}

func (m ConsoleUI) handleCommand(input string) (tea.Model, tea.Cmd) {
	cmd, err := parseCommand(input)
	if err != nil {
		m.addLog("error", err.Error())
		return m, nil
	}

	switch cmd.name {
	case "help":
		m.addLog(notify.LevelInfo, helpText)
		return m, nil
	case "quit":
		m.showQuitModal = true
		return m, nil
	case "copy":
		if m.session == nil {
			return m, nil
		}
		data, err := json.MarshalIndent(m.session.List(), "", "  ")
		if err == nil {
			err = clipboard.WriteAll(string(data))
		}
		if err != nil {
			m.addLog("error", "Failed to copy: "+err.Error())
		} else {
			m.addLog(notify.LevelInfo, "Copied the loot list to the clipboard.")
		}
		return m, nil
	}

	if m.closed {
		m.addLog(notify.LevelWarning, "The session is closed.")
		return m, nil
	}

	id := m.session.SessionID
	api := m.api
	m.loading = true

	switch cmd.name {
	case "add":
		return m, func() tea.Msg {
			resp, err := api.upsertItem(id, cmd.args[0], cmd.args[1])
			return sessionMsg{resp: resp, err: err}
		}
	case "rm":
		return m, func() tea.Msg {
			resp, err := api.removeItem(id, cmd.args[0])
			return sessionMsg{resp: resp, err: err}
		}
	case "cur":
		return m, func() tea.Msg {
			resp, err := api.setCurrencies(id, map[string]string{cmd.args[0]: cmd.args[1]})
			return sessionMsg{resp: resp, err: err}
		}
	case "drop":
		return m, func() tea.Msg {
			resp, err := api.drop(id, json.RawMessage(cmd.args[0]))
			return sessionMsg{resp: resp, err: err}
		}
	case "clear":
		return m, func() tea.Msg {
			resp, err := api.clear(id)
			return sessionMsg{resp: resp, err: err}
		}
	case "refresh":
		return m, func() tea.Msg {
			resp, err := api.getSession(id)
			return sessionMsg{resp: resp, err: err}
		}
	case "grant":
		return m, func() tea.Msg {
			resp, err := api.grant(id, cmd.args[0])
			return grantMsg{resp: resp, err: err}
		}
	case "save":
		return m, func() tea.Msg {
			resp, err := api.submit(id, nil)
			return submitMsg{resp: resp, err: err}
		}
	case "discard":
		return m, m.discard()
	}

	m.loading = false
	return m, nil
}

func (m ConsoleUI) discard() tea.Cmd {
	id := m.session.SessionID
	api := m.api
	return func() tea.Msg {
		return discardMsg{err: api.discard(id)}
	}
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.quit()
		default:
			switch msg.String() {
			case "y", "Y":
				return m.quit()
			case "n", "N", "esc":
				m.showQuitModal = false
				m.textarea.Focus()
				return m, textarea.Blink
			}
		}
	}

	return m, nil
}

// quit discards an open session before leaving
func (m ConsoleUI) quit() (tea.Model, tea.Cmd) {
	if m.closed || m.session == nil {
		return m, tea.Quit
	}
	return m, tea.Sequence(m.discard(), tea.Quit)
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Quit?"))
	content.WriteString("\n\n")
	if m.closed {
		content.WriteString("The loot list session is closed.")
	} else {
		content.WriteString("Unsaved changes to the loot list will be discarded.")
	}
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue, or Ctrl+C to force quit"))

	modal := modalStyle.Width(50).Render(content.String())

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showQuitModal {
		return m.renderQuitModal()
	}

	if !m.ready {
		return "\n  Initializing..."
	}

	listWidth := int(float64(m.width)*0.6) - 3
	logWidth := m.width - listWidth - 4

	status := ""
	if m.loading {
		status = promptStyle.Render("working...")
	}

	listPanel := listPanelStyle.Width(listWidth).Height(m.height - 1).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.listViewport.View(),
			separatorStyle.Render(strings.Repeat("─", max(listWidth-4, 10))),
			m.textarea.View(),
			status,
		),
	)

	logPanel := logPanelStyle.Width(logWidth).Height(m.height - 1).Render(
		m.logViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, listPanel, logPanel)
}
