package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jwulff/sensorwatch/internal/export"
	"github.com/jwulff/sensorwatch/internal/feed"
	"github.com/jwulff/sensorwatch/internal/sensor"
	"github.com/jwulff/sensorwatch/internal/session"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestModel(t *testing.T, exporter bool) Model {
	t.Helper()
	sess, err := session.New(sensor.DefaultChannels, sensor.NewNormalizer(time.UTC, ""), quiet)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if err := sess.Start(context.Background(), feed.NewMemoryStore(), feed.DefaultPrefix); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(sess.Close)

	var exp *export.Exporter
	if exporter {
		exp = &export.Exporter{
			Dir:      t.TempDir(),
			Channels: sess.Channels(),
			Series:   sess.Series,
		}
	}
	return New(sess, exp, quiet)
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestNewModel(t *testing.T) {
	m := newTestModel(t, false)
	if m.focus != FocusCharts {
		t.Error("new model should focus charts")
	}
	if m.rng.IsSet() {
		t.Error("new model should have no range")
	}
	if m.View() != "Initializing..." {
		t.Error("view before WindowSizeMsg should be the placeholder")
	}
	if m.Init() == nil {
		t.Error("Init should start the stream")
	}
}

func TestSnapshotMsgAppliesAndRearms(t *testing.T) {
	m := newTestModel(t, false)

	m, cmd := applyUpdate(m, SnapshotMsg{Update: feed.Update{
		Channel:  "ph",
		Snapshot: sensor.Snapshot{"a": sensor.Sample(1000, 7.2), "b": sensor.Sample(500, 6.9)},
	}})

	got := m.session.Series("ph", sensor.DateRange{})
	if len(got) != 2 || got[0].Value != 6.9 {
		t.Errorf("series = %+v", got)
	}
	if cmd == nil {
		t.Error("snapshot should re-arm the stream")
	}
	if m.errorMessage != "" {
		t.Errorf("unexpected error %q", m.errorMessage)
	}
}

func TestMalformedSnapshotIsTransientError(t *testing.T) {
	m := newTestModel(t, false)

	m, cmd := applyUpdate(m, SnapshotMsg{Update: feed.Update{
		Channel:  "tds",
		Snapshot: sensor.Snapshot{"a": {Timestamp: nil}},
	}})
	if !strings.Contains(m.errorMessage, "missing") {
		t.Errorf("errorMessage = %q", m.errorMessage)
	}
	if cmd == nil {
		t.Error("expected clear + re-arm commands")
	}

	m, _ = applyUpdate(m, ClearTransientErrorMsg{})
	if m.errorMessage != "" {
		t.Errorf("error not cleared: %q", m.errorMessage)
	}
}

func TestRangeInputFlow(t *testing.T) {
	m := newTestModel(t, false)

	m, _ = applyUpdate(m, tea.KeyMsg{Type: tea.KeyTab})
	if m.focus != FocusStart {
		t.Fatalf("focus = %v, want FocusStart", m.focus)
	}
	m, _ = applyUpdate(m, keyRunes("2020-01-01"))
	m, _ = applyUpdate(m, tea.KeyMsg{Type: tea.KeyTab})
	if m.focus != FocusEnd {
		t.Fatalf("focus = %v, want FocusEnd", m.focus)
	}
	m, _ = applyUpdate(m, keyRunes("2020-01-02"))
	m, _ = applyUpdate(m, tea.KeyMsg{Type: tea.KeyEnter})

	if m.focus != FocusCharts {
		t.Errorf("focus = %v, want FocusCharts after apply", m.focus)
	}
	if !m.Range().IsSet() {
		t.Fatal("range should be set")
	}
	if got := m.Range().String(); got != "2020-01-01 → 2020-01-02" {
		t.Errorf("range = %q", got)
	}
}

func TestTypingQInInputDoesNotQuit(t *testing.T) {
	m := newTestModel(t, false)
	m, _ = applyUpdate(m, tea.KeyMsg{Type: tea.KeyTab})
	m, _ = applyUpdate(m, keyRunes("q"))
	if m.session.State() != feed.Syncing {
		t.Fatal("q in an input should not quit")
	}
	if m.start.Value() != "q" {
		t.Errorf("start value = %q, want q", m.start.Value())
	}
}

func TestOneDateLeavesRangeUnset(t *testing.T) {
	m := newTestModel(t, false)
	m, _ = applyUpdate(m, tea.KeyMsg{Type: tea.KeyTab})
	m, _ = applyUpdate(m, keyRunes("2020-01-01"))
	m, _ = applyUpdate(m, tea.KeyMsg{Type: tea.KeyEnter})

	if m.Range().IsSet() {
		t.Error("range should stay unset with only a start date")
	}
}

func TestInvalidRangeShowsError(t *testing.T) {
	m := newTestModel(t, false)
	m.start.SetValue("2020-01-05")
	m.end.SetValue("2020-01-01")
	m.focus = FocusEnd

	m, cmd := applyUpdate(m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.errorMessage == "" {
		t.Error("inverted range should set an error")
	}
	if cmd == nil {
		t.Error("expected clear command")
	}
	if m.Range().IsSet() {
		t.Error("range should not change on error")
	}
}

func TestEscReturnsToCharts(t *testing.T) {
	m := newTestModel(t, false)
	m, _ = applyUpdate(m, tea.KeyMsg{Type: tea.KeyTab})
	m, _ = applyUpdate(m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.focus != FocusCharts {
		t.Errorf("focus = %v, want FocusCharts", m.focus)
	}
	if m.start.Focused() {
		t.Error("start input should be blurred")
	}
}

func TestClearRange(t *testing.T) {
	m := newTestModel(t, false)
	m.start.SetValue("2020-01-01")
	m.end.SetValue("2020-01-01")
	m.focus = FocusEnd
	m, _ = applyUpdate(m, tea.KeyMsg{Type: tea.KeyEnter})
	if !m.Range().IsSet() {
		t.Fatal("range should be set")
	}

	m, _ = applyUpdate(m, keyRunes("c"))
	if m.Range().IsSet() {
		t.Error("c should clear the range")
	}
	if m.start.Value() != "" || m.end.Value() != "" {
		t.Error("c should clear the inputs")
	}
}

func TestExportKey(t *testing.T) {
	m := newTestModel(t, true)
	m, _ = applyUpdate(m, SnapshotMsg{Update: feed.Update{
		Channel:  "ph",
		Snapshot: sensor.Snapshot{"a": sensor.Sample(1577836800, 7.1)},
	}})

	m, cmd := applyUpdate(m, keyRunes("e"))
	if cmd == nil {
		t.Fatal("e should return an export command")
	}
	msg := cmd()
	done, ok := msg.(ExportDoneMsg)
	if !ok {
		t.Fatalf("msg = %T %+v, want ExportDoneMsg", msg, msg)
	}
	if filepath.Base(done.Path) != "SensorData.xlsx" {
		t.Errorf("path = %q", done.Path)
	}
	if _, err := os.Stat(done.Path); err != nil {
		t.Errorf("stat: %v", err)
	}
	if done.Size <= 0 {
		t.Errorf("size = %d", done.Size)
	}

	wb, err := export.ReadFile(done.Path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(wb.Sheets) != 3 || len(wb.Sheets[0].Rows) != 1 {
		t.Errorf("workbook = %+v", wb)
	}

	m, _ = applyUpdate(m, done)
	if !strings.Contains(m.notice, "Exported") {
		t.Errorf("notice = %q", m.notice)
	}
}

func TestExportWithoutExporter(t *testing.T) {
	m := newTestModel(t, false)
	m, _ = applyUpdate(m, keyRunes("e"))
	if m.errorMessage == "" {
		t.Error("expected an error without an exporter")
	}
}

func TestExportErrorMsg(t *testing.T) {
	m := newTestModel(t, true)
	m, cmd := applyUpdate(m, ExportErrorMsg{Err: &export.Error{Op: "write", Path: "/ro/SensorData.xlsx", Err: os.ErrPermission}})
	if !strings.Contains(m.errorMessage, "permission denied") {
		t.Errorf("errorMessage = %q", m.errorMessage)
	}
	if cmd == nil {
		t.Error("export error should be transient")
	}
}

func TestQuitClosesSession(t *testing.T) {
	m := newTestModel(t, false)
	m, cmd := applyUpdate(m, keyRunes("q"))
	if cmd == nil {
		t.Fatal("q should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
	if m.session.State() != feed.Unsubscribed {
		t.Error("quit should tear down the subscription")
	}
}

func TestWaitForUpdate(t *testing.T) {
	updates := make(chan feed.Update, 1)
	done := make(chan struct{})

	updates <- feed.Update{Channel: "ph"}
	if msg, ok := waitForUpdate(updates, done)().(SnapshotMsg); !ok || msg.Update.Channel != "ph" {
		t.Errorf("msg = %+v", msg)
	}

	close(done)
	if _, ok := waitForUpdate(updates, done)().(SubscriptionClosedMsg); !ok {
		t.Error("closed session should yield SubscriptionClosedMsg")
	}

	if waitForUpdate(nil, nil) != nil {
		t.Error("no stream should yield no command")
	}
}

func TestSubscriptionClosedMsg(t *testing.T) {
	m := newTestModel(t, false)
	m, _ = applyUpdate(m, tea.WindowSizeMsg{Width: 100, Height: 40})
	m, cmd := applyUpdate(m, SubscriptionClosedMsg{})
	if cmd != nil {
		t.Error("closed stream should not be re-armed")
	}
	if !strings.Contains(m.View(), "STOPPED") {
		t.Error("header should show the stopped badge")
	}
}

func TestViewRendersChannels(t *testing.T) {
	m := newTestModel(t, false)
	fixed := time.Now()
	m.now = func() time.Time { return fixed.Add(3 * time.Second) }

	m, _ = applyUpdate(m, tea.WindowSizeMsg{Width: 100, Height: 40})
	m, _ = applyUpdate(m, SnapshotMsg{Update: feed.Update{
		Channel:  "ph",
		Snapshot: sensor.Snapshot{"a": sensor.Sample(1000, 7.2), "b": sensor.Sample(500, 6.9)},
	}})

	view := m.View()
	for _, want := range []string{"SENSORWATCH", "PH Chart", "TDS Chart", "TEMPERATURE Chart", "(no data)", "tds waiting", "all readings"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
	if !strings.Contains(view, "ago") {
		t.Error("status line should show when ph last updated")
	}
}

func applyUpdate(m Model, msg tea.Msg) (Model, tea.Cmd) {
	newModel, cmd := m.Update(msg)
	return newModel.(Model), cmd
}
