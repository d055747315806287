// Command tui 终端聊天客户端，在进程内运行会话引擎
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"supportchat-backend/internal/config"
	"supportchat-backend/internal/events"
	"supportchat-backend/internal/model"
	"supportchat-backend/internal/service"
	"supportchat-backend/pkg/logger"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const sidebarWidth = 28

type uiTheme struct {
	header    lipgloss.Style
	panel     lipgloss.Style
	user      lipgloss.Style
	bot       lipgloss.Style
	system    lipgloss.Style
	timestamp lipgloss.Style
	selected  lipgloss.Style
	muted     lipgloss.Style
	offline   lipgloss.Style
	footer    lipgloss.Style
}

func newTheme() uiTheme {
	blue := lipgloss.Color("#3b82f6")
	mint := lipgloss.Color("#10b981")
	amber := lipgloss.Color("#f59e0b")
	muted := lipgloss.Color("#94a3b8")

	return uiTheme{
		header: lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue),
		panel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(muted),
		user:      lipgloss.NewStyle().Foreground(blue).Bold(true),
		bot:       lipgloss.NewStyle().Foreground(mint).Bold(true),
		system:    lipgloss.NewStyle().Foreground(amber).Italic(true),
		timestamp: lipgloss.NewStyle().Foreground(muted),
		selected:  lipgloss.NewStyle().Foreground(blue).Bold(true),
		muted:     lipgloss.NewStyle().Foreground(muted),
		offline:   lipgloss.NewStyle().Foreground(amber).Bold(true),
		footer:    lipgloss.NewStyle().Foreground(muted).Padding(0, 1),
	}
}

type eventMsg events.Event

type closedMsg struct{}

type actionDoneMsg struct {
	status string
	err    error
}

type tuiModel struct {
	svc *service.ChatService
	sub *events.Subscriber

	input    textinput.Model
	timeline viewport.Model
	spinner  spinner.Model
	theme    uiTheme

	sessions   []*model.Session
	messages   []model.Message
	statusLine string
	width      int
	height     int
}

func newModel(svc *service.ChatService, sub *events.Subscriber) tuiModel {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 2000
	input.Placeholder = "Type a message. /new /next /transfer /end /export /quit"
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#10b981"))

	m := tuiModel{
		svc:        svc,
		sub:        sub,
		input:      input,
		timeline:   viewport.New(0, 0),
		spinner:    sp,
		theme:      newTheme(),
		statusLine: "ready",
	}
	m.reload()
	return m
}

func (m tuiModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitForEvent(m.sub))
}

func waitForEvent(sub *events.Subscriber) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-sub.Events()
		if !ok {
			return closedMsg{}
		}
		return eventMsg(e)
	}
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	case eventMsg:
		m.reload()
		cmds = append(cmds, waitForEvent(m.sub))
	case closedMsg:
		return m, tea.Quit
	case actionDoneMsg:
		if msg.err != nil {
			m.statusLine = "error: " + msg.err.Error()
		} else {
			m.statusLine = msg.status
		}
		m.reload()
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			text := m.input.Value()
			m.input.Reset()
			if cmd := m.handleInput(text); cmd != nil {
				cmds = append(cmds, cmd)
			}
			return m, tea.Batch(cmds...)
		case "pgup", "pgdown", "up", "down":
			var cmd tea.Cmd
			m.timeline, cmd = m.timeline.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *tuiModel) handleInput(text string) tea.Cmd {
	svc := m.svc
	selected := svc.Selected()
	sessions := m.sessions

	switch strings.TrimSpace(text) {
	case "":
		return nil
	case "/quit":
		return tea.Quit
	case "/new":
		return func() tea.Msg {
			s, err := svc.StartNewChat("", model.KindSupport)
			if err != nil {
				return actionDoneMsg{err: err}
			}
			return actionDoneMsg{status: "started " + s.Title}
		}
	case "/next":
		return func() tea.Msg {
			return actionDoneMsg{status: "switched", err: svc.Select(nextSession(sessions, selected))}
		}
	case "/transfer":
		return func() tea.Msg {
			_, err := svc.TransferToHuman(selected)
			return actionDoneMsg{status: "transferred to a human agent", err: err}
		}
	case "/end":
		return func() tea.Msg {
			_, err := svc.EndSession(selected)
			return actionDoneMsg{status: "session archived", err: err}
		}
	case "/export":
		return func() tea.Msg {
			name, data, err := svc.Export(selected)
			if err != nil {
				return actionDoneMsg{err: err}
			}
			if err := os.WriteFile(name, data, 0644); err != nil {
				return actionDoneMsg{err: err}
			}
			return actionDoneMsg{status: "exported to " + name}
		}
	}

	return func() tea.Msg {
		_, ok, err := svc.Submit(selected, text)
		if err != nil {
			return actionDoneMsg{err: err}
		}
		if !ok {
			return actionDoneMsg{status: "still waiting for the previous reply"}
		}
		return actionDoneMsg{status: "sent"}
	}
}

func nextSession(sessions []*model.Session, current string) string {
	for i, s := range sessions {
		if s.ID == current {
			return sessions[(i+1)%len(sessions)].ID
		}
	}
	if len(sessions) > 0 {
		return sessions[0].ID
	}
	return current
}

func (m *tuiModel) reload() {
	sessions, err := m.svc.ListSessions("")
	if err != nil {
		m.statusLine = "error: " + err.Error()
		return
	}
	m.sessions = sessions

	if messages, err := m.svc.Messages(m.svc.Selected()); err == nil {
		m.messages = messages
	}
	m.renderTimeline()
}

func (m *tuiModel) resize() {
	m.timeline.Width = max(m.width-sidebarWidth-4, 10)
	m.timeline.Height = max(m.height-8, 3)
	m.input.Width = max(m.width-4, 10)
	m.renderTimeline()
}

func (m *tuiModel) renderTimeline() {
	var b strings.Builder
	for _, msg := range m.messages {
		ts := m.theme.timestamp.Render(msg.Timestamp.Format("15:04"))
		switch {
		case msg.Type == model.TypeSystem:
			fmt.Fprintf(&b, "%s %s\n", ts, m.theme.system.Render(msg.Text))
		case msg.Sender == model.SenderUser:
			fmt.Fprintf(&b, "%s %s %s\n", ts, m.theme.user.Render("you"), msg.Text)
		default:
			fmt.Fprintf(&b, "%s %s %s\n", ts, m.theme.bot.Render("bot"), msg.Text)
		}
	}
	m.timeline.SetContent(lipgloss.NewStyle().Width(m.timeline.Width).Render(b.String()))
	m.timeline.GotoBottom()
}

func (m tuiModel) renderSidebar() string {
	selected := m.svc.Selected()

	var b strings.Builder
	for _, s := range m.sessions {
		line := fmt.Sprintf("%s [%s]", truncate(s.Title, sidebarWidth-14), s.Status)
		if s.UnreadCount > 0 {
			line += fmt.Sprintf(" (%d)", s.UnreadCount)
		}
		if s.ID == selected {
			b.WriteString(m.theme.selected.Render("▸ "+line) + "\n")
		} else {
			b.WriteString(m.theme.muted.Render("  "+line) + "\n")
		}
	}
	return b.String()
}

func (m tuiModel) View() string {
	status := "Online"
	if !m.svc.BackendAvailable() {
		status = m.theme.offline.Render("Offline Mode")
	}
	header := m.theme.header.Render("Support Chat · " + status)

	sidebar := m.theme.panel.Width(sidebarWidth).Height(m.timeline.Height).Render(m.renderSidebar())
	timeline := m.theme.panel.Render(m.timeline.View())
	body := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, timeline)

	footer := m.statusLine
	if m.svc.IsTyping(m.svc.Selected()) {
		footer = m.spinner.View() + " bot is typing..."
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		body,
		m.input.View(),
		m.theme.footer.Render(footer),
	)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if n <= 0 || len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

func main() {
	var configPath, logPath string
	flag.StringVar(&configPath, "config", "./configs/config.yaml", "path to the config file")
	flag.StringVar(&logPath, "log", "", "write logs to this file instead of discarding them")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	// 终端留给界面，日志写文件或丢弃
	var logOut io.Writer = io.Discard
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Fatalf("Failed to open log file: %v", err)
		}
		defer f.Close()
		logOut = f
	}
	logger.SetOutput(logOut)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := events.NewHub()
	go hub.Run(ctx)

	svc, err := service.NewChatService(cfg, service.Dependencies{Publisher: hub})
	if err != nil {
		log.Fatalf("Failed to init chat service: %v", err)
	}
	defer svc.Close()

	if _, err := svc.StartNewChat("Current Session", model.KindSupport); err != nil {
		log.Fatalf("Failed to open initial session: %v", err)
	}

	sub := hub.Subscribe("")
	p := tea.NewProgram(newModel(svc, sub), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "tui fatal error: %v\n", err)
		os.Exit(1)
	}
}
