package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"mavgo/pkg/config"
)

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func TestLoadOrDefaultFillsMissingFields(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "mavmond.toml")
	mustWriteFile(t, cfgPath, "[connection]\nserial_port = \"/dev/ttyACM0\"\n")

	cfg, exists, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if !exists {
		t.Fatalf("expected exists=true when file is present")
	}
	if cfg.Connection.BaudRate == 0 {
		t.Fatalf("expected a default baud rate")
	}
	if cfg.Connection.DialectDir == "" {
		t.Fatalf("expected a default dialect dir")
	}
	if cfg.Daemon.WSAddr == "" {
		t.Fatalf("expected a default websocket addr")
	}
}

func TestLoadOrDefaultResolvesDialectDirRelativeToConfig(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "etc")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	cfgPath := filepath.Join(sub, "mavmond.toml")
	mustWriteFile(t, cfgPath, "[connection]\nserial_port = \"/dev/ttyACM0\"\ndialect_dir = \"dialects\"\n")

	cfg, _, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}

	want := filepath.Clean(filepath.Join(sub, "dialects"))
	if cfg.Connection.DialectDir != want {
		t.Fatalf("got dialect dir %q, want %q", cfg.Connection.DialectDir, want)
	}
}

func TestLoadOrDefaultMissingFileReturnsDefault(t *testing.T) {
	cfg, exists, err := config.LoadOrDefault(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if exists {
		t.Fatalf("expected exists=false for a missing file")
	}
	if cfg.Connection.SerialPort == "" && cfg.Connection.TCPAddr == "" {
		t.Fatalf("default config should still name a transport target")
	}
}

func TestValidateRejectsOutOfRangeSysID(t *testing.T) {
	cfg := config.Default()
	cfg.Connection.SysID = 999
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected an error for an out-of-range sys_id")
	}
}

func TestValidateRejectsMissingTransport(t *testing.T) {
	cfg := config.Default()
	cfg.Connection.SerialPort = ""
	cfg.Connection.TCPAddr = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected an error when neither serial_port nor tcp_addr is set")
	}
}

func TestValidateRejectsMalformedWaitTimeout(t *testing.T) {
	cfg := config.Default()
	cfg.Connection.WaitTimeout = "not-a-duration"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected an error for a malformed wait_timeout")
	}
}

func TestWaitTimeoutDurationParsesConfiguredValue(t *testing.T) {
	cfg := config.Default()
	cfg.Connection.WaitTimeout = "2500ms"
	if got, want := cfg.WaitTimeoutDuration().Milliseconds(), int64(2500); got != want {
		t.Fatalf("got %dms, want %dms", got, want)
	}
}
