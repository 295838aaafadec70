package app

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/jwulff/sensorwatch/internal/export"
	"github.com/jwulff/sensorwatch/internal/feed"
	"github.com/jwulff/sensorwatch/internal/sensor"
	"github.com/jwulff/sensorwatch/internal/session"
	"github.com/jwulff/sensorwatch/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
)

// Focus tracks which element has keyboard focus.
type Focus int

const (
	FocusCharts Focus = iota
	FocusStart
	FocusEnd
)

// Model is the root bubbletea model for the sensorwatch TUI.
type Model struct {
	session  *session.Session
	exporter *export.Exporter
	logger   *slog.Logger
	keys     keyMap

	// Subscription stream
	updates <-chan feed.Update
	done    <-chan struct{}
	stopped bool

	// Range inputs
	start textinput.Model
	end   textinput.Model
	focus Focus
	rng   sensor.DateRange

	// UI state
	width  int
	height int
	now    func() time.Time

	// Errors
	errorMessage   string
	errorTransient bool

	// Last export or range confirmation
	notice string
}

// New creates a Model over a started session. exporter may be nil, in
// which case export is reported as unavailable.
func New(sess *session.Session, exporter *export.Exporter, logger *slog.Logger) Model {
	if logger == nil {
		logger = slog.Default()
	}
	return Model{
		session:  sess,
		exporter: exporter,
		logger:   logger,
		keys:     defaultKeyMap(),
		updates:  sess.Updates(),
		done:     sess.Done(),
		start:    dateInput("From "),
		end:      dateInput("To "),
		now:      time.Now,
	}
}

func dateInput(prompt string) textinput.Model {
	ti := textinput.New()
	ti.Prompt = prompt
	ti.Placeholder = "YYYY-MM-DD"
	ti.CharLimit = len(sensor.DateLayout)
	ti.Width = len(sensor.DateLayout)
	return ti
}

// Init starts draining the subscription stream and the status clock.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.updates, m.done), tickCmd())
}

// waitForUpdate blocks for the next snapshot or the end of the session.
// Update re-arms it after every SnapshotMsg, so snapshots are applied one
// at a time on the bubbletea loop.
func waitForUpdate(updates <-chan feed.Update, done <-chan struct{}) tea.Cmd {
	if updates == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case u := <-updates:
			return SnapshotMsg{Update: u}
		case <-done:
			return SubscriptionClosedMsg{}
		}
	}
}

// exportCmd writes the export file off the render loop.
func exportCmd(exporter *export.Exporter, rng sensor.DateRange) tea.Cmd {
	return func() tea.Msg {
		path, err := exporter.Export(rng)
		if err != nil {
			return ExportErrorMsg{Err: err}
		}
		var size int64
		if fi, err := os.Stat(path); err == nil {
			size = fi.Size()
		}
		return ExportDoneMsg{Path: path, Size: size}
	}
}

// clearTransientErrorCmd fires after a delay to clear transient errors.
func clearTransientErrorCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(time.Time) tea.Msg {
		return ClearTransientErrorMsg{}
	})
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case SnapshotMsg:
		next := waitForUpdate(m.updates, m.done)
		if err := m.session.Apply(msg.Update); err != nil {
			m.logger.Warn("dropping snapshot", "channel", msg.Update.Channel, "err", err)
			return m, tea.Batch(m.transientError(err.Error()), next)
		}
		return m, next

	case SubscriptionClosedMsg:
		m.stopped = true
		return m, nil

	case ExportDoneMsg:
		m.logger.Info("exported", "path", msg.Path, "bytes", msg.Size)
		m.notice = fmt.Sprintf("Exported %s (%s)", msg.Path, humanize.Bytes(uint64(msg.Size)))
		return m, nil

	case ExportErrorMsg:
		m.logger.Error("export failed", "err", msg.Err)
		return m, m.transientError(msg.Err.Error())

	case ClearTransientErrorMsg:
		if m.errorTransient {
			m.errorMessage = ""
			m.errorTransient = false
		}
		return m, nil

	case TickMsg:
		return m, tickCmd()
	}

	// Cursor blink and similar input-internal messages.
	return m.updateInputs(msg)
}

func (m *Model) transientError(text string) tea.Cmd {
	m.errorMessage = text
	m.errorTransient = true
	return clearTransientErrorCmd()
}

func (m Model) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.focus {
	case FocusStart:
		m.start, cmd = m.start.Update(msg)
	case FocusEnd:
		m.end, cmd = m.end.Update(msg)
	}
	return m, cmd
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.ForceQuit) {
		return m.quit()
	}

	if m.focus != FocusCharts {
		switch {
		case key.Matches(msg, m.keys.Cancel):
			return m.setFocus(FocusCharts)
		case key.Matches(msg, m.keys.NextField):
			if m.focus == FocusStart {
				return m.setFocus(FocusEnd)
			}
			return m.setFocus(FocusCharts)
		case key.Matches(msg, m.keys.PrevField):
			if m.focus == FocusEnd {
				return m.setFocus(FocusStart)
			}
			return m.setFocus(FocusCharts)
		case key.Matches(msg, m.keys.Apply):
			return m.applyRange()
		}
		return m.updateInputs(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()

	case key.Matches(msg, m.keys.NextField):
		return m.setFocus(FocusStart)

	case key.Matches(msg, m.keys.Export):
		if m.exporter == nil {
			return m, m.transientError("export is not configured")
		}
		m.notice = "Exporting..."
		return m, exportCmd(m.exporter, m.rng)

	case key.Matches(msg, m.keys.Clear):
		m.start.Reset()
		m.end.Reset()
		m.rng = sensor.DateRange{}
		m.notice = "Range cleared"
		return m, nil
	}

	return m, nil
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.session.Close()
	return m, tea.Quit
}

func (m Model) setFocus(f Focus) (tea.Model, tea.Cmd) {
	m.focus = f
	m.start.Blur()
	m.end.Blur()
	switch f {
	case FocusStart:
		return m, m.start.Focus()
	case FocusEnd:
		return m, m.end.Focus()
	}
	return m, nil
}

// applyRange parses both inputs. The range only takes effect when both
// dates are given; otherwise every reading is shown.
func (m Model) applyRange() (tea.Model, tea.Cmd) {
	rng, err := sensor.ParseDateRange(
		strings.TrimSpace(m.start.Value()),
		strings.TrimSpace(m.end.Value()),
		m.session.Location(),
	)
	if err != nil {
		return m, m.transientError(err.Error())
	}
	m.rng = rng
	m.notice = "Range: " + rng.String()
	return m.setFocus(FocusCharts)
}

// Range returns the applied date range.
func (m Model) Range() sensor.DateRange {
	return m.rng
}

// Layout constants: header, inputs, two dividers, status, error, footer.
const reservedLines = 7

// chartLines is the number of lines a chart adds around its plot area:
// title, x axis and x labels.
const chartLines = 3

func (m Model) plotSize() (width, height int) {
	n := max(1, len(m.session.Channels()))
	height = max(3, (m.height-reservedLines)/n-chartLines)
	width = max(10, m.width-12)
	return width, height
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sections []string

	// Header
	sections = append(sections, m.renderHeader())

	// Range inputs
	sections = append(sections, m.renderInputs())

	// Divider
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))

	// Charts
	sections = append(sections, m.renderCharts())

	// Divider
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))

	// Status
	sections = append(sections, m.renderStatus())

	// Error bar
	if m.errorMessage != "" {
		sections = append(sections, m.renderErrorBar())
	}

	// Footer
	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := ui.TitleStyle.Render("SENSORWATCH")

	var badge string
	if m.stopped || m.session.State() == feed.Unsubscribed {
		badge = ui.StoppedBadgeStyle.Render(" ○ STOPPED")
	} else {
		badge = ui.SyncingBadgeStyle.Render(" ● LIVE")
	}

	var filter string
	if m.rng.IsSet() {
		filter = ui.FilterBadgeStyle.Render("  [" + m.rng.String() + "]")
	} else {
		filter = ui.DimStyle.Render("  [all readings]")
	}

	return title + badge + filter
}

func (m Model) renderInputs() string {
	label := ui.PanelTitleStyle
	if m.focus != FocusCharts {
		label = ui.PanelTitleActiveStyle
	}
	return label.Render("Range ") + m.start.View() + "  " + m.end.View()
}

func (m Model) renderCharts() string {
	width, height := m.plotSize()
	var charts []string
	for i, ch := range m.session.Channels() {
		title := ch.SheetName() + " Chart"
		charts = append(charts, ui.RenderChart(title, m.session.Series(ch, m.rng), width, height, ui.SeriesStyle(i)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, charts...)
}

func (m Model) renderStatus() string {
	now := m.now()
	var parts []string
	for _, ch := range m.session.Channels() {
		at := m.session.UpdatedAt(ch)
		when := "waiting"
		if !at.IsZero() {
			when = humanize.RelTime(at, now, "ago", "from now")
		}
		parts = append(parts, string(ch)+" "+when)
	}
	status := ui.StatusStyle.Render(strings.Join(parts, " · "))
	if m.notice != "" {
		status += "  " + ui.SuccessStyle.Render(m.notice)
	}
	return status
}

func (m Model) renderErrorBar() string {
	return ui.ErrorStyle.Render("Error: ") + ui.ErrorTextStyle.Render(m.errorMessage)
}

func (m Model) renderFooter() string {
	bindings := []key.Binding{m.keys.Export, m.keys.NextField, m.keys.Clear, m.keys.Quit}
	if m.focus != FocusCharts {
		bindings = []key.Binding{m.keys.Apply, m.keys.NextField, m.keys.Cancel}
	}

	var parts []string
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, ui.FooterKeyStyle.Render(h.Key)+ui.FooterDescStyle.Render(" "+h.Desc))
	}
	return strings.Join(parts, "  ")
}
