package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid configuration")

// envRef matches ${VAR}. A bare $ is left alone so that account keys such
// as $a:name and passwords containing $ survive.
var envRef = regexp.MustCompile(`\$\{(\w+)\}`)

func expandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(ref []byte) []byte {
		return []byte(os.Getenv(string(envRef.FindSubmatch(ref)[1])))
	})
}

// Config holds all bot configuration
type Config struct {
	DataDir         string        `yaml:"data_dir"`
	LogLevel        string        `yaml:"log_level"`
	CommandPrefixes []string      `yaml:"command_prefixes"`
	Networks        []Network     `yaml:"networks"`
	Plugins         []Plugin      `yaml:"plugins"`
	Accounts        []SeedAccount `yaml:"accounts"`
}

// Network is one IRC network to connect to.
type Network struct {
	Name         string   `yaml:"name"`
	Server       string   `yaml:"server"`
	Port         int      `yaml:"port"`
	TLS          bool     `yaml:"tls"`
	TLSInsecure  bool     `yaml:"tls_insecure"`
	Nick         string   `yaml:"nick"`
	Alternate    string   `yaml:"alternate"`
	Username     string   `yaml:"username"`
	IRCName      string   `yaml:"irc_name"`
	ServerPass   string   `yaml:"server_pass"`
	NickPass     string   `yaml:"nick_pass"`
	SASLLogin    string   `yaml:"sasl_login"`
	SASLPassword string   `yaml:"sasl_password"`
	Channels     []string `yaml:"channels"`

	CommandPrefixes []string            `yaml:"command_prefixes"`
	ChannelPrefixes map[string][]string `yaml:"channel_prefixes"`

	// SendRate is the sustained outgoing message rate per second.
	SendRate  float64 `yaml:"send_rate"`
	SendBurst int     `yaml:"send_burst"`
}

// Plugin activates a builtin plugin under a key.
type Plugin struct {
	Key      string   `yaml:"key"`
	Type     string   `yaml:"type"`
	Channels []string `yaml:"channels"`
}

// SeedAccount is created in the account store when the store has no account
// under that name yet. Password is plaintext and hashed on creation.
type SeedAccount struct {
	Name        string   `yaml:"name"`
	Password    string   `yaml:"password"`
	Permissions []string `yaml:"permissions"`
}

// Load reads and parses a YAML configuration file. A .env file next to it
// is loaded into the environment first, and ${VAR} references in the file
// are expanded.
func Load(path string) (*Config, error) {
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", envPath, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(expandEnv(data))
}

// Parse parses configuration YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	if len(cfg.CommandPrefixes) == 0 {
		cfg.CommandPrefixes = []string{"!"}
	}

	seen := make(map[string]bool)
	for i := range cfg.Networks {
		n := &cfg.Networks[i]
		if n.Name == "" {
			return nil, fmt.Errorf("%w: network %d has no name", ErrInvalid, i+1)
		}
		if seen[strings.ToLower(n.Name)] {
			return nil, fmt.Errorf("%w: duplicate network %q", ErrInvalid, n.Name)
		}
		seen[strings.ToLower(n.Name)] = true
		if n.Server == "" || n.Nick == "" {
			return nil, fmt.Errorf("%w: network %q needs a server and a nick", ErrInvalid, n.Name)
		}
		if n.Port == 0 {
			n.Port = 6667
			if n.TLS {
				n.Port = 6697
			}
		}
		if n.Alternate == "" {
			n.Alternate = n.Nick + "_"
		}
		if n.Username == "" {
			n.Username = n.Nick
		}
		if n.IRCName == "" {
			n.IRCName = "CBot"
		}
		if n.SendRate <= 0 {
			n.SendRate = 2
		}
		if n.SendBurst <= 0 {
			n.SendBurst = 4
		}
	}

	keys := make(map[string]bool)
	for i, p := range cfg.Plugins {
		if p.Type == "" {
			return nil, fmt.Errorf("%w: plugin %d has no type", ErrInvalid, i+1)
		}
		if p.Key == "" {
			cfg.Plugins[i].Key = p.Type
		}
		if len(p.Channels) == 0 {
			cfg.Plugins[i].Channels = []string{"*"}
		}
		k := strings.ToLower(cfg.Plugins[i].Key)
		if keys[k] {
			return nil, fmt.Errorf("%w: duplicate plugin key %q", ErrInvalid, cfg.Plugins[i].Key)
		}
		keys[k] = true
	}

	return &cfg, nil
}

// Level returns the configured log level, defaulting to info.
func (c *Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Network returns the network with the given name.
func (c *Config) Network(name string) (*Network, bool) {
	for i := range c.Networks {
		if strings.EqualFold(c.Networks[i].Name, name) {
			return &c.Networks[i], true
		}
	}
	return nil, false
}

// Prefixes returns the command prefixes for a channel on a network, or for
// private messages when channel is empty. Channel overrides win over network
// overrides, which win over the global list.
func (c *Config) Prefixes(network, channel string) []string {
	n, ok := c.Network(network)
	if !ok {
		return c.CommandPrefixes
	}
	if channel != "" {
		for name, prefixes := range n.ChannelPrefixes {
			if strings.EqualFold(name, channel) && len(prefixes) > 0 {
				return prefixes
			}
		}
	}
	if len(n.CommandPrefixes) > 0 {
		return n.CommandPrefixes
	}
	return c.CommandPrefixes
}
