package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	ui "github.com/imputnet/helium-updater/internal/ui"
	"github.com/imputnet/helium-updater/internal/updater"
)

const activityLines = 8

// watchKeyMap defines keyboard shortcuts for the watch view.
type watchKeyMap struct {
	Quit     key.Binding
	Check    key.Binding
	Download key.Binding
	Install  key.Binding
	Cancel   key.Binding
	Help     key.Binding
}

func (k watchKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Check, k.Download, k.Install, k.Quit}
}

func (k watchKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Check, k.Download, k.Install},
		{k.Cancel, k.Help, k.Quit},
	}
}

func newWatchKeyMap() watchKeyMap {
	return watchKeyMap{
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		Check:    key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "check now")),
		Download: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "download")),
		Install:  key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "install")),
		Cancel:   key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "cancel download")),
		Help:     key.NewBinding(key.WithKeys("h"), key.WithHelp("h", "toggle help")),
	}
}

type (
	engineEventMsg updater.Event
	actionDoneMsg  struct{ err error }
)

// watchModel is the Bubble Tea model for the live status view.
type watchModel struct {
	deps  *Deps
	coord *updater.Coordinator

	state      updater.State
	session    updater.Session
	downloaded int64
	total      int64
	lastErr    string
	activity   []string

	keys     watchKeyMap
	help     help.Model
	spinner  spinner.Model
	bar      progress.Model
	width    int
	height   int
	showHelp bool

	// Render cache: skip re-layout when nothing visible changed.
	lastHash uint64
	cached   string
}

func newWatchModel(d *Deps, coord *updater.Coordinator) *watchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot

	return &watchModel{
		deps:    d,
		coord:   coord,
		state:   updater.StateIdle,
		keys:    newWatchKeyMap(),
		help:    help.New(),
		spinner: s,
		bar:     progress.New(progress.WithDefaultGradient()),
	}
}

// waitForEvent blocks on the engine's event stream and feeds it into
// the Bubble Tea loop.
func (m *watchModel) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		return engineEventMsg(<-m.coord.Events())
	}
}

func (m *watchModel) Init() tea.Cmd {
	m.spinner.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return tea.Batch(m.spinner.Tick, m.waitForEvent())
}

func (m *watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.bar.Width = msg.Width - 8
		if m.bar.Width > 60 {
			m.bar.Width = 60
		}
		m.lastHash = 0
		return m, nil

	case engineEventMsg:
		m.applyEvent(updater.Event(msg))
		return m, m.waitForEvent()

	case actionDoneMsg:
		// Failures already surface through the event stream; busy
		// rejections just mean the engine is mid-session.
		if msg.err != nil && errors.Is(msg.err, updater.ErrBusy) {
			m.note("request ignored, session in progress")
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *watchModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.lastHash = 0
		return m, nil
	case key.Matches(msg, m.keys.Check):
		return m, m.runAction(func(ctx context.Context) error {
			return m.coord.CheckNow(ctx, nil)
		})
	case key.Matches(msg, m.keys.Download):
		return m, m.runAction(m.coord.StartDownload)
	case key.Matches(msg, m.keys.Install):
		return m, m.runAction(m.coord.StartInstall)
	case key.Matches(msg, m.keys.Cancel):
		if m.coord.Cancel() {
			m.note("download cancelled")
		}
		return m, nil
	}
	return m, nil
}

// runAction executes an engine operation off the UI thread.
func (m *watchModel) runAction(fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return actionDoneMsg{err: fn(context.Background())}
	}
}

func (m *watchModel) applyEvent(ev updater.Event) {
	prev := m.state
	m.state = ev.State
	if ev.State != updater.StateIdle {
		m.session = ev.Session
	}
	if ev.State == updater.StateDownloading {
		m.downloaded, m.total = ev.Downloaded, ev.Total
	}

	switch ev.State {
	case updater.StateChecking:
		m.lastErr = ""
		m.note("checking the release catalog")
	case updater.StateUpToDate:
		m.note(fmt.Sprintf("up to date at %s", ev.Session.Current))
	case updater.StateUpdateAvailable:
		m.note(fmt.Sprintf("update available: %s → %s", ev.Session.Current, ev.Session.Candidate))
	case updater.StateDownloading:
		if prev != updater.StateDownloading {
			name := "update"
			if ev.Session.Asset != nil {
				name = ev.Session.Asset.Name
			}
			m.note("downloading " + name)
		}
	case updater.StateDownloaded:
		m.note("downloaded and verified")
	case updater.StateInstalling:
		m.note("running the installer")
	case updater.StateInstalled:
		if ev.Session.StagedPath != "" {
			m.note(fmt.Sprintf("staged %s at %s for manual installation", ev.Session.Candidate, ev.Session.StagedPath))
		} else {
			m.note(fmt.Sprintf("installed %s", ev.Session.Candidate))
		}
	case updater.StateFailed:
		m.lastErr = ev.Session.Category
		m.note("failed: " + ev.Session.Category)
	}
}

func (m *watchModel) note(line string) {
	entry := fmt.Sprintf("%s  %s", time.Now().Format("15:04:05"), line)
	m.activity = append(m.activity, entry)
	if len(m.activity) > activityLines {
		m.activity = m.activity[len(m.activity)-activityLines:]
	}
}

var (
	watchTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("57")).Padding(0, 1)
	watchLabelStyle = lipgloss.NewStyle().Bold(true)
	watchDimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	watchWarnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	watchErrStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	watchBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
)

func (m *watchModel) View() string {
	content := m.render()
	h := xxhash.Sum64String(fmt.Sprintf("%dx%d|%s", m.width, m.height, content))
	if h == m.lastHash && m.cached != "" {
		return m.cached
	}
	m.lastHash = h
	m.cached = content
	return content
}

func (m *watchModel) render() string {
	var b strings.Builder

	b.WriteString(watchTitleStyle.Render("Helium Updater"))
	b.WriteString("\n\n")

	current := m.deps.Current.String()
	b.WriteString(fmt.Sprintf("%s %s\n", watchLabelStyle.Render("Installed:"), current))

	latest := "-"
	if m.session.Candidate.String() != "0.0.0.0" && m.session.Release != nil {
		latest = m.session.Candidate.String()
	}
	b.WriteString(fmt.Sprintf("%s %s\n", watchLabelStyle.Render("Latest:"), latest))

	state := string(m.state)
	switch m.state {
	case updater.StateIdle:
		state = "idle " + watchDimStyle.Render("(waiting for the next check)")
	case updater.StateChecking, updater.StateDownloading, updater.StateInstalling:
		state = m.spinner.View() + " " + state
	case updater.StateFailed:
		state = watchErrStyle.Render(state)
	}
	b.WriteString(fmt.Sprintf("%s %s\n", watchLabelStyle.Render("State:"), state))
	b.WriteString(fmt.Sprintf("%s %s\n", watchLabelStyle.Render("Home:"), watchDimStyle.Render(m.deps.Cfg.HomeDir)))

	if m.state == updater.StateDownloading && m.total > 0 {
		b.WriteString("\n")
		b.WriteString(m.bar.ViewAs(float64(m.downloaded) / float64(m.total)))
		b.WriteString(fmt.Sprintf("  %s/%s\n", ui.FormatBytes(m.downloaded), ui.FormatBytes(m.total)))
	}

	if m.lastErr != "" {
		b.WriteString("\n")
		b.WriteString(watchWarnStyle.Render("Last error: " + m.lastErr))
		b.WriteString("\n")
	}

	if len(m.activity) > 0 {
		b.WriteString("\n")
		b.WriteString(watchBoxStyle.Render(strings.Join(m.activity, "\n")))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.showHelp {
		b.WriteString(m.help.FullHelpView(m.keys.FullHelp()))
	} else {
		b.WriteString(m.help.ShortHelpView(m.keys.ShortHelp()))
	}
	return b.String()
}
