// Command mavmond is the host-side MAVLink monitor daemon: it owns one
// vehicle connection, fans every decoded packet out to a JSONL log and a
// websocket live-feed, and requests the configured telemetry streams at
// startup. Shaped after the teacher's cmd/rttd/main.go subcommand/flag
// layout and pipeline wiring (transport -> hub -> logger), generalized
// from a raw COBS/RatPacket feed to a MAVLink registry/connection/monitor
// stack.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"mavgo/pkg/config"
	"mavgo/pkg/mavlink"
	"mavgo/pkg/monitor"
	"mavgo/pkg/schema"
	"mavgo/pkg/transport"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		return runServe([]string{}, stdout, stderr)
	}

	switch args[0] {
	case "serve":
		return runServe(args[1:], stdout, stderr)
	case "-h", "--help", "help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintln(stderr, "unknown command:", args[0])
		printUsage(stderr)
		return 2
	}
}

func runServe(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", config.DefaultConfigPath, "path to mavmond.toml")
	dialectDir := fs.String("dialect-dir", "", "override: directory of *.xml MAVLink dialect files")
	serialPort := fs.String("serial", "", "override: serial port device path")
	tcpAddr := fs.String("tcp-addr", "", "override: connect to a TCP MAVLink proxy instead of a serial port")
	baudRate := fs.Int("baud", 0, "override: serial baud rate")
	logPath := fs.String("log", "", "override: JSONL output path")
	wsAddr := fs.String("ws-addr", "", "override: websocket live-feed listen address")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, _, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, "failed to load config:", err)
		return 1
	}
	applyOverrides(&cfg, *dialectDir, *serialPort, *tcpAddr, *baudRate, *logPath, *wsAddr)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, "invalid config:", err)
		return 2
	}

	registry, err := schema.Load(filepath.Join(cfg.Connection.DialectDir, "*.xml"))
	if err != nil {
		fmt.Fprintln(stderr, "failed to load dialect:", err)
		return 1
	}

	stream, err := openTransport(cfg.Connection)
	if err != nil {
		fmt.Fprintln(stderr, "failed to open transport:", err)
		return 1
	}

	var out io.Writer = stdout
	if cfg.Daemon.LogPath != "" {
		file, err := os.Create(cfg.Daemon.LogPath)
		if err != nil {
			fmt.Fprintln(stderr, "failed to open log file:", err)
			return 1
		}
		defer file.Close()
		out = file
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	hub := monitor.NewHub(
		monitor.WithBroadcastBuffer(cfg.Daemon.HubBuf),
		monitor.WithClientBuffer(cfg.Daemon.ClientBuf),
	)
	go hub.Run(ctx)

	logWriter := monitor.NewJSONLWriter(out)
	go logWriter.Consume(ctx, hub.Subscribe())

	bridge := monitor.NewWSBridge(cfg.Daemon.WSAddr, hub)
	go func() {
		if err := bridge.Run(ctx); err != nil {
			fmt.Fprintln(stderr, "websocket bridge stopped:", err)
		}
	}()

	conn := mavlink.Open(stream, registry, connectionOptions(cfg.Connection), mavlink.WithPacketObserver(hub.Publish))
	defer conn.Close()

	requestConfiguredStreams(ctx, conn, registry, cfg.Connection, stderr)

	<-ctx.Done()
	return 0
}

func applyOverrides(cfg *config.Config, dialectDir, serialPort, tcpAddr string, baudRate int, logPath, wsAddr string) {
	if dialectDir != "" {
		cfg.Connection.DialectDir = dialectDir
	}
	if serialPort != "" {
		cfg.Connection.SerialPort = serialPort
		cfg.Connection.TCPAddr = ""
	}
	if tcpAddr != "" {
		cfg.Connection.TCPAddr = tcpAddr
		cfg.Connection.SerialPort = ""
	}
	if baudRate > 0 {
		cfg.Connection.BaudRate = baudRate
	}
	if logPath != "" {
		cfg.Daemon.LogPath = logPath
	}
	if wsAddr != "" {
		cfg.Daemon.WSAddr = wsAddr
	}
}

func openTransport(cc config.ConnectionConfig) (transport.Stream, error) {
	if cc.TCPAddr != "" {
		return transport.DialTCP(cc.TCPAddr, cc.ReaderBuf)
	}
	return transport.OpenSerial(cc.SerialPort, cc.BaudRate, cc.ReaderBuf)
}

func connectionOptions(cc config.ConnectionConfig) mavlink.Options {
	opts := mavlink.Options{
		SysID:         byte(cc.SysID),
		CompID:        byte(cc.CompID),
		TargetSysID:   byte(cc.TargetSysID),
		TargetCompID:  byte(cc.TargetCompID),
		UseV2:         cc.UseV2,
		IncompatFlags: 0,
		CompatFlags:   0,
	}
	if d, err := time.ParseDuration(cc.WaitTimeout); err == nil {
		opts.WaitTimeout = d
	}
	return opts
}

// requestConfiguredStreams issues MAV_CMD_SET_MESSAGE_INTERVAL for every
// message named in Connection.StreamMessages, the "request the streams this
// daemon cares about at startup" feature spec.md's distillation dropped but
// the original host tooling always did.
func requestConfiguredStreams(ctx context.Context, conn *mavlink.Connection, registry *schema.Registry, cc config.ConnectionConfig, stderr io.Writer) {
	for _, name := range cc.StreamMessages {
		msg, ok := registry.MessageByName(name)
		if !ok {
			fmt.Fprintf(stderr, "stream request: unknown message %q, skipping\n", name)
			continue
		}
		reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := conn.SetMessageInterval(reqCtx, int64(msg.ID), float64(cc.StreamIntervalUS))
		cancel()
		if err != nil {
			fmt.Fprintf(stderr, "stream request for %s failed: %v\n", name, err)
		}
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  mavmond serve [--config mavmond.toml] [--dialect-dir dir] [--serial /dev/ttyUSB0] [--tcp-addr host:port] [--baud 57600] [--log file.jsonl] [--ws-addr host:port]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve   connect to a vehicle and serve its telemetry feed")
}
