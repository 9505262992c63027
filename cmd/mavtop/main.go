// Command mavtop is a live telemetry dashboard: it opens its own vehicle
// connection, taps the decoded packet feed the same way mavmond does, and
// renders the latest HEARTBEAT and SYS_STATUS fields with bubbletea. The
// teacher's go.mod declares bubbletea and its full terminal-rendering
// dependency set without ever importing them (no TUI client was retrieved
// alongside rttd) — this command is that paired client, built from
// bubbletea's own model/update/view contract rather than from a teacher
// file, since none exists to ground it on.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"mavgo/pkg/framer"
	"mavgo/pkg/mavlink"
	"mavgo/pkg/monitor"
	"mavgo/pkg/schema"
	"mavgo/pkg/transport"
)

func main() {
	dialectDir := flag.String("dialect-dir", "dialects/common", "directory of *.xml dialect files")
	serialPort := flag.String("serial", "", "serial port device path")
	tcpAddr := flag.String("tcp-addr", "", "connect to a TCP MAVLink proxy instead of a serial port")
	baudRate := flag.Int("baud", 57600, "serial baud rate")
	flag.Parse()

	registry, err := schema.Load(filepath.Join(*dialectDir, "*.xml"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load dialect:", err)
		os.Exit(1)
	}

	stream, err := openTransport(*serialPort, *tcpAddr, *baudRate)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to open transport:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	hub := monitor.NewHub()
	go hub.Run(ctx)

	conn := mavlink.Open(stream, registry, mavlink.Options{}, mavlink.WithPacketObserver(hub.Publish))
	defer conn.Close()

	p := tea.NewProgram(newModel())
	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub)

	go func() {
		for {
			select {
			case <-ctx.Done():
				p.Quit()
				return
			case pkt, ok := <-sub:
				if !ok {
					return
				}
				p.Send(packetMsg(pkt))
			}
		}
	}()

	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "mavtop exited:", err)
		os.Exit(1)
	}
}

func openTransport(serialPort, tcpAddr string, baudRate int) (transport.Stream, error) {
	if tcpAddr != "" {
		return transport.DialTCP(tcpAddr, 64*1024)
	}
	return transport.OpenSerial(serialPort, baudRate, 64*1024)
}

type packetMsg framer.Packet

type model struct {
	heartbeat  map[string]any
	sysStatus  map[string]any
	count      int
	lastUpdate time.Time
}

func newModel() model {
	return model{}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case packetMsg:
		m.count++
		m.lastUpdate = time.Now()
		switch msg.Message.Name {
		case "HEARTBEAT":
			m.heartbeat = msg.Content
		case "SYS_STATUS":
			m.sysStatus = msg.Content
		}
	}
	return m, nil
}

func (m model) View() string {
	out := "mavtop — live telemetry (q to quit)\n\n"
	out += fmt.Sprintf("packets received: %d   last update: %s\n\n", m.count, formatTime(m.lastUpdate))
	out += "HEARTBEAT\n"
	out += formatFields(m.heartbeat)
	out += "\nSYS_STATUS\n"
	out += formatFields(m.sysStatus)
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format("15:04:05.000")
}

func formatFields(fields map[string]any) string {
	if len(fields) == 0 {
		return "  (no data yet)\n"
	}
	out := ""
	for k, v := range fields {
		out += fmt.Sprintf("  %-20s %v\n", k, v)
	}
	return out
}
