// Package config loads mavmond's daemon and connection settings from TOML,
// following the shape of the teacher's pkg/config/ratitude.go: a Default(),
// a LoadOrDefault() that tolerates a missing file, a normalize() that fills
// zero values, and a Validate() that rejects out-of-range settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// DefaultConfigPath mirrors the teacher's DefaultConfigPath constant.
const DefaultConfigPath = "mavmond.toml"

// Config is the full mavmond daemon configuration.
type Config struct {
	Connection ConnectionConfig `toml:"connection"`
	Daemon     DaemonConfig     `toml:"daemon"`

	configPath string `toml:"-"`
}

// ConnectionConfig describes how to reach the vehicle and how the library
// should identify itself and behave while waiting for responses.
type ConnectionConfig struct {
	DialectDir       string   `toml:"dialect_dir"`
	SerialPort       string   `toml:"serial_port"`
	BaudRate         int      `toml:"baud_rate"`
	TCPAddr          string   `toml:"tcp_addr,omitempty"`
	ReaderBuf        int      `toml:"reader_buf"`
	SysID            int      `toml:"sys_id"`
	CompID           int      `toml:"comp_id"`
	TargetSysID      int      `toml:"target_sys_id"`
	TargetCompID     int      `toml:"target_comp_id"`
	UseV2            bool     `toml:"use_v2"`
	WaitTimeout      string   `toml:"wait_timeout"`
	Reconnect        string   `toml:"reconnect"`
	StreamMessages   []string `toml:"stream_messages"`
	StreamIntervalUS int      `toml:"stream_interval_us"`
}

// DaemonConfig describes mavmond's own outward-facing surfaces.
type DaemonConfig struct {
	LogPath      string `toml:"log_path"`
	WSAddr       string `toml:"ws_addr"`
	HubBuf       int    `toml:"hub_buf"`
	ClientBuf    int    `toml:"client_buf"`
	HeartbeatSec int    `toml:"heartbeat_sec"`
}

// Default returns the built-in configuration used whenever a setting is
// absent from a loaded file, or no file exists at all.
func Default() Config {
	return Config{
		Connection: ConnectionConfig{
			DialectDir:       "dialects/common",
			SerialPort:       "/dev/ttyUSB0",
			BaudRate:         57600,
			ReaderBuf:        64 * 1024,
			SysID:            1,
			CompID:           1,
			TargetSysID:      1,
			TargetCompID:     1,
			UseV2:            true,
			WaitTimeout:      "10s",
			Reconnect:        "1s",
			StreamMessages:   []string{"HEARTBEAT", "SYS_STATUS"},
			StreamIntervalUS: 1000000,
		},
		Daemon: DaemonConfig{
			LogPath:      "mavmond.jsonl",
			WSAddr:       "127.0.0.1:8765",
			HubBuf:       256,
			ClientBuf:    64,
			HeartbeatSec: 1,
		},
	}
}

// Load reads and validates a config file, failing if it does not exist.
func Load(path string) (Config, error) {
	cfg, exists, err := LoadOrDefault(path)
	if err != nil {
		return Config{}, err
	}
	if !exists {
		return Config{}, os.ErrNotExist
	}
	return cfg, nil
}

// LoadOrDefault reads path if present, merging its values over Default();
// if path does not exist it returns Default() (exists=false). In both cases
// the result is normalized, so a relative dialect_dir is resolved against
// the directory of path.
func LoadOrDefault(path string) (cfg Config, exists bool, err error) {
	cfg = Default()
	cfg.configPath = path

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.normalize()
			return cfg, false, nil
		}
		return Config{}, false, fmt.Errorf("read config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, true, fmt.Errorf("parse config: %w", err)
	}
	cfg.configPath = path
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, true, err
	}
	return cfg, true, nil
}

// ConfigPath returns the path this config was loaded from, if any.
func (cfg *Config) ConfigPath() string {
	return cfg.configPath
}

// WaitTimeoutDuration parses Connection.WaitTimeout, already validated by
// Validate to be a well-formed duration.
func (cfg *Config) WaitTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(cfg.Connection.WaitTimeout)
	return d
}

// ReconnectDuration parses Connection.Reconnect.
func (cfg *Config) ReconnectDuration() time.Duration {
	d, _ := time.ParseDuration(cfg.Connection.Reconnect)
	return d
}

// Validate rejects settings that would fail later in confusing ways: out of
// range sysid/compid, malformed durations, and a missing transport target.
func (cfg *Config) Validate() error {
	if cfg.Connection.SysID < 0 || cfg.Connection.SysID > 255 {
		return fmt.Errorf("connection.sys_id out of range: %d", cfg.Connection.SysID)
	}
	if cfg.Connection.CompID < 0 || cfg.Connection.CompID > 255 {
		return fmt.Errorf("connection.comp_id out of range: %d", cfg.Connection.CompID)
	}
	if cfg.Connection.TargetSysID < 0 || cfg.Connection.TargetSysID > 255 {
		return fmt.Errorf("connection.target_sys_id out of range: %d", cfg.Connection.TargetSysID)
	}
	if cfg.Connection.TargetCompID < 0 || cfg.Connection.TargetCompID > 255 {
		return fmt.Errorf("connection.target_comp_id out of range: %d", cfg.Connection.TargetCompID)
	}
	if cfg.Connection.DialectDir == "" {
		return fmt.Errorf("connection.dialect_dir is required")
	}
	if cfg.Connection.SerialPort == "" && cfg.Connection.TCPAddr == "" {
		return fmt.Errorf("connection needs either serial_port or tcp_addr")
	}
	if _, err := time.ParseDuration(cfg.Connection.WaitTimeout); err != nil {
		return fmt.Errorf("connection.wait_timeout: %w", err)
	}
	if _, err := time.ParseDuration(cfg.Connection.Reconnect); err != nil {
		return fmt.Errorf("connection.reconnect: %w", err)
	}
	if cfg.Connection.StreamIntervalUS < 0 {
		return fmt.Errorf("connection.stream_interval_us must not be negative")
	}
	return nil
}

func (cfg *Config) normalize() {
	def := Default()

	if cfg.Connection.DialectDir == "" {
		cfg.Connection.DialectDir = def.Connection.DialectDir
	}
	if cfg.Connection.BaudRate <= 0 {
		cfg.Connection.BaudRate = def.Connection.BaudRate
	}
	if cfg.Connection.ReaderBuf <= 0 {
		cfg.Connection.ReaderBuf = def.Connection.ReaderBuf
	}
	if cfg.Connection.SysID == 0 {
		cfg.Connection.SysID = def.Connection.SysID
	}
	if cfg.Connection.CompID == 0 {
		cfg.Connection.CompID = def.Connection.CompID
	}
	if cfg.Connection.TargetSysID == 0 {
		cfg.Connection.TargetSysID = def.Connection.TargetSysID
	}
	if cfg.Connection.TargetCompID == 0 {
		cfg.Connection.TargetCompID = def.Connection.TargetCompID
	}
	if cfg.Connection.WaitTimeout == "" {
		cfg.Connection.WaitTimeout = def.Connection.WaitTimeout
	}
	if cfg.Connection.Reconnect == "" {
		cfg.Connection.Reconnect = def.Connection.Reconnect
	}
	if len(cfg.Connection.StreamMessages) == 0 {
		cfg.Connection.StreamMessages = append([]string(nil), def.Connection.StreamMessages...)
	}
	if cfg.Connection.StreamIntervalUS == 0 {
		cfg.Connection.StreamIntervalUS = def.Connection.StreamIntervalUS
	}

	if cfg.Daemon.LogPath == "" {
		cfg.Daemon.LogPath = def.Daemon.LogPath
	}
	if cfg.Daemon.WSAddr == "" {
		cfg.Daemon.WSAddr = def.Daemon.WSAddr
	}
	if cfg.Daemon.HubBuf <= 0 {
		cfg.Daemon.HubBuf = def.Daemon.HubBuf
	}
	if cfg.Daemon.ClientBuf <= 0 {
		cfg.Daemon.ClientBuf = def.Daemon.ClientBuf
	}
	if cfg.Daemon.HeartbeatSec <= 0 {
		cfg.Daemon.HeartbeatSec = def.Daemon.HeartbeatSec
	}

	path := cfg.configPath
	if path == "" {
		path = DefaultConfigPath
	}
	cfg.configPath = path

	baseDir := filepath.Dir(path)
	if baseDir == "" {
		baseDir = "."
	}
	if cfg.Connection.DialectDir != "" && !filepath.IsAbs(cfg.Connection.DialectDir) {
		cfg.Connection.DialectDir = filepath.Clean(filepath.Join(baseDir, cfg.Connection.DialectDir))
	}

	for i := range cfg.Connection.StreamMessages {
		cfg.Connection.StreamMessages[i] = strings.ToUpper(strings.TrimSpace(cfg.Connection.StreamMessages[i]))
	}
}
