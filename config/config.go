// Package config persists user preferences between runs as a TOML file.
//
// Values are loaded once at start up and handed explicitly to the components that need them;
// nothing in the module reads configuration from a shared global.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/BurntSushi/toml"
	"github.com/rflandau/arpchat/ktp"
	"github.com/rs/zerolog"
)

const (
	// FileName is the name of the config file inside the config directory.
	FileName = "config.toml"
	// DefaultLogFile is where logs go if no log file is configured.
	DefaultLogFile = "arpchat.log"
	// DefaultLevel is the log level used if none (or an invalid one) is configured.
	DefaultLevel = zerolog.WarnLevel

	// InitialUsername replaces usernames that are too short.
	InitialUsername   = "Anonymous"
	MinUsernameLength = 2
	MaxUsernameLength = 25
)

// Config is the set of persisted preferences.
// Every field is optional; the zero value is a valid, empty configuration.
type Config struct {
	EtherType     *ktp.EtherType `toml:"ether_type,omitempty"`
	InterfaceName string         `toml:"interface_name,omitempty"`
	// Language is stored for the UI but not interpreted.
	Language string `toml:"language,omitempty"`
	LogLevel string `toml:"log_level,omitempty"`
	LogFile  string `toml:"log_file,omitempty"`
	Username string `toml:"username,omitempty"`
}

// DefaultPath returns the per-user config file location,
// falling back to the working directory if the OS does not define a config directory.
func DefaultPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "arpchat", FileName)
	}
	return FileName
}

// Load reads the config at path.
// A missing file is not an error; it yields the zero Config.
func Load(path string) (Config, error) {
	var (
		cfg Config
		raw Config
	)
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}

	if meta.IsDefined("ether_type") {
		cfg.EtherType = raw.EtherType
	}
	if meta.IsDefined("interface_name") {
		cfg.InterfaceName = strings.TrimSpace(raw.InterfaceName)
	}
	if meta.IsDefined("language") {
		cfg.Language = strings.TrimSpace(raw.Language)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("log_file") {
		cfg.LogFile = strings.TrimSpace(raw.LogFile)
	}
	if meta.IsDefined("username") {
		cfg.Username = raw.Username
	}
	return cfg, nil
}

// Save writes cfg to path, creating parent directories as needed.
func (cfg *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		return fmt.Errorf("encode config: %w", err)
	}
	return f.Close()
}

// EtherTypeOrDefault returns the configured ether type, or ktp.DefaultEtherType.
func (cfg Config) EtherTypeOrDefault() ktp.EtherType {
	if cfg.EtherType == nil {
		return ktp.DefaultEtherType
	}
	return *cfg.EtherType
}

// ResolvedUsername returns the configured username, falling back to the short host name.
// The result is always normalized.
func (cfg Config) ResolvedUsername() string {
	name := cfg.Username
	if name == "" {
		name = shortHostname()
	}
	return NormalizeUsername(name)
}

// Level returns the configured log level, or DefaultLevel if unset or unparseable.
func (cfg Config) Level() zerolog.Level {
	if cfg.LogLevel == "" {
		return DefaultLevel
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || lvl == zerolog.NoLevel {
		return DefaultLevel
	}
	return lvl
}

// LogFileOrDefault returns the configured log file, or DefaultLogFile.
func (cfg Config) LogFileOrDefault() string {
	if cfg.LogFile == "" {
		return DefaultLogFile
	}
	return cfg.LogFile
}

// NormalizeUsername trims name and truncates it to MaxUsernameLength runes.
// Names shorter than MinUsernameLength become InitialUsername.
func NormalizeUsername(name string) string {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > MaxUsernameLength {
		name = string([]rune(name)[:MaxUsernameLength])
	}
	if utf8.RuneCountInString(name) < MinUsernameLength {
		return InitialUsername
	}
	return name
}

func shortHostname() string {
	host, err := os.Hostname()
	if err != nil {
		return ""
	}
	short, _, _ := strings.Cut(host, ".")
	return short
}
