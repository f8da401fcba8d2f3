// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/dalistat/internal/publish"
	"github.com/Thermoquad/dalistat/pkg/dali"
	"github.com/Thermoquad/dalistat/pkg/scheduler"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	refreshInterval = 500 * time.Millisecond
	maxLevel        = 254
)

// Focus states
const (
	focusDriverList = iota
	focusLevelInput
	focusButton
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// driverItem is one entry of the driver list. Index -1 is broadcast.
type driverItem struct {
	index  int
	short  byte
	family string
	gtin   string
	rated  uint32
}

func (d driverItem) Title() string {
	if d.index < 0 {
		return "Broadcast"
	}
	return fmt.Sprintf("Driver %d (short %d)", d.index, d.short)
}

func (d driverItem) Description() string {
	if d.index < 0 {
		return "every gear on the bus"
	}
	return fmt.Sprintf("%s %dW %s", d.family, d.rated, d.gtin)
}

func (d driverItem) FilterValue() string { return d.Title() }

type eventEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	sched *scheduler.Scheduler
	stats *dali.Statistics
	info  string

	driverList list.Model
	drivers    int

	levelInput   textinput.Model
	focusedField int

	events    []eventEntry
	maxEvents int
	completed uint64

	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(sched *scheduler.Scheduler, stats *dali.Statistics, info string) controlModel {
	ti := textinput.New()
	ti.Placeholder = "254"
	ti.CharLimit = 3
	ti.Width = 5

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	driverList := list.New([]list.Item{}, delegate, 32, 12)
	driverList.Title = "Drivers"
	driverList.SetShowStatusBar(false)
	driverList.SetShowHelp(false)
	driverList.SetFilteringEnabled(false)

	m := controlModel{
		sched:      sched,
		stats:      stats,
		info:       info,
		driverList: driverList,
		drivers:    -1,
		levelInput: ti,
		maxEvents:  100,
		completed:  sched.Completed(),
		width:      80,
		height:     24,
	}
	m.refreshDrivers()
	return m
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return controlTickCmd()
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case controlTickMsg:
		m.refreshDrivers()
		m.checkTasks()
		return m, controlTickCmd()
	}

	var cmd tea.Cmd
	switch m.focusedField {
	case focusLevelInput:
		m.levelInput, cmd = m.levelInput.Update(msg)
		cmds = append(cmds, cmd)
	case focusDriverList:
		m.driverList, cmd = m.driverList.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "q":
		if m.focusedField != focusLevelInput {
			m.quitting = true
			return m, tea.Quit
		}

	case "tab":
		m.cycleFocus(1)
		return m, nil

	case "shift+tab":
		m.cycleFocus(-1)
		return m, nil

	case "enter":
		if m.focusedField != focusDriverList {
			m.sendLevel()
			return m, nil
		}
	}

	var cmd tea.Cmd
	switch m.focusedField {
	case focusLevelInput:
		m.levelInput, cmd = m.levelInput.Update(msg)
	case focusDriverList:
		m.driverList, cmd = m.driverList.Update(msg)
	}
	return m, cmd
}

func (m *controlModel) cycleFocus(delta int) {
	m.focusedField = (m.focusedField + delta + focusButton + 1) % (focusButton + 1)
	if m.focusedField == focusLevelInput {
		m.levelInput.Focus()
	} else {
		m.levelInput.Blur()
	}
}

//////////////////////////////////////////////////////////////
// Actions
//////////////////////////////////////////////////////////////

func (m *controlModel) selected() (driverItem, bool) {
	item, ok := m.driverList.SelectedItem().(driverItem)
	return item, ok
}

func (m *controlModel) sendLevel() {
	item, ok := m.selected()
	if !ok {
		m.addEvent("No driver selected", true)
		return
	}

	text := strings.TrimSpace(m.levelInput.Value())
	if text == "" {
		text = m.levelInput.Placeholder
	}
	level, err := strconv.Atoi(text)
	if err != nil || level < 0 || level > maxLevel {
		m.addEvent(fmt.Sprintf("Invalid level %q (0-%d)", text, maxLevel), true)
		return
	}

	t := &scheduler.SetLevel{AddrType: dali.BroadcastAll, Level: byte(level)}
	if item.index >= 0 {
		t.AddrType = dali.ShortAddress
		t.Addr = item.short
	}
	if _, err := m.sched.Submit(t); err != nil {
		m.addEvent(fmt.Sprintf("DAPC rejected: %v", err), true)
		return
	}
	m.addEvent(fmt.Sprintf("DAPC %s level=%s", dali.FormatAddress(t.AddrType, t.Addr), dali.FormatLevel(t.Level)), false)
}

// refreshDrivers rebuilds the list when the number of drivers changed
func (m *controlModel) refreshDrivers() {
	n := m.sched.Drivers()
	if n == m.drivers {
		return
	}
	m.drivers = n

	table := m.sched.Table()
	items := make([]list.Item, 0, n+1)
	for i := 0; i < n; i++ {
		rec := table.Record(i)
		items = append(items, driverItem{
			index:  i,
			short:  rec.ShortAddress,
			family: rec.Family.String(),
			gtin:   rec.Bank0.GTIN.String(),
			rated:  rec.RatedWattage,
		})
	}
	items = append(items, driverItem{index: -1})
	m.driverList.SetItems(items)
	m.addEvent(fmt.Sprintf("%d driver(s) in network table", n), false)
}

// checkTasks logs the last finished task
func (m *controlModel) checkTasks() {
	c := m.sched.Completed()
	if c == m.completed {
		return
	}
	m.completed = c

	r := m.sched.LastResult()
	switch r.Kind {
	case scheduler.KindSetLevel:
		return
	case scheduler.KindGetPower, scheduler.KindGetEnergy, scheduler.KindGetOutputVoltage,
		scheduler.KindGetOutputCurrent, scheduler.KindGetGearTemperature:
		if r.Err == nil {
			return
		}
	}
	if r.Err != nil {
		m.addEvent(fmt.Sprintf("%s failed: %v", r.Kind, r.Err), true)
		return
	}
	m.addEvent(fmt.Sprintf("%s complete", r.Kind), false)
}

func (m *controlModel) addEvent(message string, isError bool) {
	m.events = append(m.events, eventEntry{timestamp: time.Now(), message: message, isError: isError})
	if len(m.events) > m.maxEvents {
		m.events = m.events[len(m.events)-m.maxEvents:]
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	buttonStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12")).
		Padding(0, 2)

	focusedButtonStyle := buttonStyle.
		Background(lipgloss.Color("10"))

	s.WriteString(titleStyle.Render("DALISTAT CONTROL"))
	s.WriteString(" ")
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit Tab=switch Enter=send", m.info)))
	s.WriteString("\n\n")

	leftWidth := 34
	rightWidth := max(m.width-leftWidth-6, 20)

	listStyle := boxStyle.Width(leftWidth)
	if m.focusedField == focusDriverList {
		listStyle = focusedBoxStyle.Width(leftWidth)
	}
	driverPanel := listStyle.Render(m.driverList.View())

	levelPanel := boxStyle.Width(rightWidth).Render(m.renderLevelPanel(labelStyle, valueStyle, headerStyle, buttonStyle, focusedButtonStyle))
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, driverPanel, " ", levelPanel))
	s.WriteString("\n\n")

	s.WriteString(m.renderStatisticsBar(labelStyle, valueStyle, errorStyle, boxStyle))
	s.WriteString("\n\n")

	s.WriteString(m.renderEventLog(labelStyle, headerStyle, errorStyle, boxStyle))
	return s.String()
}

func (m controlModel) renderLevelPanel(labelStyle, valueStyle, headerStyle, buttonStyle, focusedButtonStyle lipgloss.Style) string {
	var s strings.Builder

	item, ok := m.selected()
	if !ok {
		s.WriteString(headerStyle.Render("No driver selected"))
		return s.String()
	}
	fmt.Fprintf(&s, "%s %s\n\n", labelStyle.Render("Selected:"), item.Title())

	s.WriteString(labelStyle.Render("Level: "))
	if m.focusedField == focusLevelInput {
		s.WriteString(m.levelInput.View())
	} else {
		val := m.levelInput.Value()
		if val == "" {
			val = m.levelInput.Placeholder
		}
		fmt.Fprintf(&s, "[%s]", val)
	}
	s.WriteString("\n\n")

	btnText := "[ Send DAPC ]"
	if m.focusedField == focusButton {
		s.WriteString(focusedButtonStyle.Render(btnText))
	} else {
		s.WriteString(buttonStyle.Render(btnText))
	}
	s.WriteString("\n\n")

	if item.index < 0 {
		return s.String()
	}

	meas := publish.Snapshot(m.sched, item.index, time.Now())
	s.WriteString(labelStyle.Render("TELEMETRY"))
	s.WriteString("\n")
	power := "n/a"
	if meas.HasPower() {
		power = fmt.Sprintf("%.1f W", meas.PowerWatts)
	}
	fmt.Fprintf(&s, "%s %s  %s %s\n",
		labelStyle.Render("Power:"), valueStyle.Render(power),
		labelStyle.Render("Energy:"), valueStyle.Render(strconv.FormatUint(meas.Energy, 10)))
	fmt.Fprintf(&s, "%s %s  %s %s  %s %s",
		labelStyle.Render("Voltage:"), valueStyle.Render(strconv.Itoa(int(meas.Voltage))),
		labelStyle.Render("Current:"), valueStyle.Render(strconv.Itoa(int(meas.Current))),
		labelStyle.Render("Temp:"), valueStyle.Render(strconv.Itoa(int(meas.Temperature))))
	return s.String()
}

func (m controlModel) renderStatisticsBar(labelStyle, valueStyle, errorStyle, boxStyle lipgloss.Style) string {
	snap := m.stats.Snapshot()
	replies := snap.ValidReplies + snap.NoReplies + snap.CorruptReplies + snap.IncompleteReplies
	bad := snap.CorruptReplies + snap.IncompleteReplies

	var errorPercent float64
	if replies > 0 {
		errorPercent = float64(bad) * 100.0 / float64(replies)
	}
	errText := valueStyle.Render("0.0%")
	if bad > 0 {
		errText = errorStyle.Render(fmt.Sprintf("%.1f%%", errorPercent))
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s",
		labelStyle.Render("Frames:"), valueStyle.Render(strconv.FormatUint(snap.TotalFrames, 10)),
		labelStyle.Render("Replies:"), valueStyle.Render(strconv.FormatUint(snap.ValidReplies, 10)),
		labelStyle.Render("Errors:"), errText,
		labelStyle.Render("Rate:"), valueStyle.Render(fmt.Sprintf("%.1f frames/s", snap.FrameRate)),
	)
	return boxStyle.Width(m.width - 4).Render(content)
}

func (m controlModel) renderEventLog(labelStyle, headerStyle, errorStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("EVENTS"))
	s.WriteString("\n")

	logHeight := min(8, len(m.events))
	if len(m.events) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	}
	for _, entry := range m.events[len(m.events)-logHeight:] {
		icon := "i"
		style := headerStyle
		if entry.isError {
			icon = "x"
			style = errorStyle
		}
		fmt.Fprintf(&s, "%s %s %s\n",
			headerStyle.Render(entry.timestamp.Format("15:04:05.000")),
			style.Render(icon),
			entry.message)
	}
	return boxStyle.Width(m.width - 4).Render(s.String())
}
