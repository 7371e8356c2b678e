package main

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/sweeney/spa-bridge/internal/status"
	"github.com/sweeney/spa-bridge/internal/web"
)

const maxMonitorLog = 8

var monitorCmd = &cobra.Command{
	Use:   "monitor [URL]",
	Short: "Live terminal view of a running bridge",
	Long: `Connect to a bridge's WebSocket feed and show the spa state as it changes.

Keys: p power, h heater, f filter, b bubbles, u units, up/down target, q quit.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url := "ws://localhost/ws"
		if len(args) == 1 {
			url = args[0]
		}
		return runMonitor(cmd.Context(), url)
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(ctx context.Context, url string) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	dctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	conn, resp, err := dialer.DialContext(dctx, url, http.Header{})
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket connection failed: %w", err)
	}
	defer conn.Close()

	send := func(c web.Command) error {
		conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		return conn.WriteJSON(c)
	}
	p := tea.NewProgram(newMonitorModel(url, send), tea.WithAltScreen())

	go func() {
		for {
			var msg web.Message
			if err := conn.ReadJSON(&msg); err != nil {
				p.Send(wsClosedMsg{err: err})
				return
			}
			p.Send(wsMsg(msg))
		}
	}()

	_, err = p.Run()
	return err
}

type wsMsg web.Message

type wsClosedMsg struct{ err error }

type sentMsg struct {
	cmd web.Command
	err error
}

type monitorModel struct {
	url    string
	send   func(web.Command) error
	spa    status.SpaJSON
	have   bool
	ready  bool
	mqtt   bool
	bus    status.BusJSON
	log    []string
	closed error
	width  int
}

func newMonitorModel(url string, send func(web.Command) error) monitorModel {
	return monitorModel{url: url, send: send, width: 80}
}

func (m monitorModel) Init() tea.Cmd { return nil }

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tea.KeyMsg:
		return m.handleKey(msg)

	case wsMsg:
		switch msg.Type {
		case "state":
			if msg.Status != nil {
				m.spa = msg.Status.Spa
				m.ready = msg.Status.Ready
				m.mqtt = msg.Status.MQTT.Connected
				m.bus = msg.Status.Bus
				m.have = true
			}
		case "change":
			if msg.Spa != nil {
				m.spa = *msg.Spa
				m.have = true
			}
			m.addLog(fmt.Sprintf("%s changed", msg.Attribute))
		case "ack":
			m.addLog("sent " + msg.Intent)
		case "error":
			m.addLog("error: " + msg.Error)
		}

	case sentMsg:
		if msg.err != nil {
			m.addLog(fmt.Sprintf("send %s failed: %v", msg.cmd.Target, msg.err))
		}

	case wsClosedMsg:
		m.closed = msg.err
	}
	return m, nil
}

func (m monitorModel) handleKey(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	var c web.Command
	switch k.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "p":
		c = setCmd("power", onOffValue(!m.spa.Power))
	case "h":
		c = setCmd("heating_enabled", onOffValue(!m.spa.HeatingEnabled))
	case "f":
		c = setCmd("filter", onOffValue(!m.spa.Filter))
	case "b":
		c = setCmd("bubbles", onOffValue(!m.spa.Bubbles))
	case "u":
		unit := "F"
		if m.spa.TempUnits == "F" {
			unit = "C"
		}
		c = setCmd("temp_units", unit)
	case "up", "+", "down", "-":
		if m.spa.TargetTemp == nil {
			m.addLog("target temperature not known yet")
			return m, nil
		}
		v := *m.spa.TargetTemp + 1
		if k.String() == "down" || k.String() == "-" {
			v -= 2
		}
		c = setCmd("target_temp", strconv.Itoa(v))
	default:
		return m, nil
	}
	if m.closed != nil || m.send == nil {
		return m, nil
	}
	send := m.send
	return m, func() tea.Msg {
		return sentMsg{cmd: c, err: send(c)}
	}
}

func setCmd(target, value string) web.Command {
	return web.Command{Type: "set", Target: target, Value: value}
}

func onOffValue(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func (m *monitorModel) addLog(line string) {
	m.log = append(m.log, time.Now().Format(time.TimeOnly)+" "+line)
	if len(m.log) > maxMonitorLog {
		m.log = m.log[len(m.log)-maxMonitorLog:]
	}
}

func (m monitorModel) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)
	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true).Width(14)
	onStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	offStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	warningStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("SPA MONITOR"))
	s.WriteString(" ")
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit", m.url)))
	s.WriteString("\n\n")

	if m.closed != nil {
		s.WriteString(errorStyle.Render("connection closed: " + m.closed.Error()))
		s.WriteString("\n\n")
	}
	if !m.have {
		s.WriteString(warningStyle.Render("waiting for state..."))
		s.WriteString("\n")
		return s.String()
	}

	onOff := func(b bool) string {
		if b {
			return onStyle.Render("ON")
		}
		return offStyle.Render("OFF")
	}
	temp := func(v *int) string {
		if v == nil {
			return warningStyle.Render("unknown")
		}
		return fmt.Sprintf("%d°%s", *v, m.spa.TempUnits)
	}
	air := warningStyle.Render("unknown")
	if m.spa.AirTemp != nil {
		air = fmt.Sprintf("%.1f°%s", *m.spa.AirTemp, m.spa.TempUnits)
	}

	var b strings.Builder
	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}
	row("Power", onOff(m.spa.Power))
	row("Heater", onOff(m.spa.HeatingEnabled))
	row("Heating", onOff(m.spa.Heating))
	row("Filter", onOff(m.spa.Filter))
	row("Bubbles", onOff(m.spa.Bubbles))
	row("Water", temp(m.spa.Temp))
	row("Target", temp(m.spa.TargetTemp))
	row("Air", air)
	if m.spa.Error != "" {
		row("Error", errorStyle.Render(m.spa.Error))
	}
	if m.spa.Pending > 0 {
		row("Pending", strconv.Itoa(m.spa.Pending))
	}
	s.WriteString(boxStyle.Render(strings.TrimRight(b.String(), "\n")))
	s.WriteString("\n")

	mqttState := errorStyle.Render("disconnected")
	if m.mqtt {
		mqttState = onStyle.Render("connected")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("MQTT %s  frames %d  dropped %d", mqttState, m.bus.Frames, m.bus.Dropped)))
	s.WriteString("\n\n")

	for _, line := range m.log {
		s.WriteString(headerStyle.Render(line))
		s.WriteString("\n")
	}
	s.WriteString(headerStyle.Render("p power  h heater  f filter  b bubbles  u units  ↑/↓ target"))
	s.WriteString("\n")
	return s.String()
}
