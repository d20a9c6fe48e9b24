package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v2"
)

const (
	configDir  string = ".debugd"
	configFile string = "config.yml"

	// configDirEnv overrides the directory holding config.yml.
	configDirEnv = "DEBUGD_CONFIG_DIR"
)

// DefaultActionTimeout bounds every call made to the debuggee when the
// configuration does not say otherwise.
const DefaultActionTimeout = 10 * time.Second

// SubstitutePathRule describes a rule for substitution of path to source code file.
type SubstitutePathRule struct {
	// Directory path will be substituted if it matches `From`.
	From string
	// Path to which substitution is performed.
	To string
}

// SubstitutePathRules is a slice of source code path substitution rules.
type SubstitutePathRules []SubstitutePathRule

// Substitute applies the first matching rule to path.
func (rules SubstitutePathRules) Substitute(path string) string {
	for _, r := range rules {
		if r.From == "" {
			continue
		}
		if path == r.From {
			return r.To
		}
		rel, err := filepath.Rel(r.From, path)
		if err == nil && rel != ".." && !startsWithParent(rel) {
			return filepath.Join(r.To, rel)
		}
	}
	return path
}

func startsWithParent(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}

// StoreConfig selects and configures the persistence backend used for
// breakpoints and debug configurations.
type StoreConfig struct {
	// Backend is one of "file", "redis", "http" or "memory".
	Backend string `yaml:"backend"`
	// Path is the directory used by the file backend.
	Path string `yaml:"path,omitempty"`
	// Addr is the redis server address, or the base URL of the http backend.
	Addr string `yaml:"addr,omitempty"`
	// DB is the redis database number.
	DB int `yaml:"db,omitempty"`
	// Prefix namespaces keys in shared backends.
	Prefix string `yaml:"prefix,omitempty"`
	// CacheSize, when positive, puts an LRU read cache in front of the backend.
	CacheSize int `yaml:"cache-size,omitempty"`
}

// Config defines all configuration options available to be set through the config file.
type Config struct {
	// Commands aliases.
	Aliases map[string][]string `yaml:"aliases"`
	// Source code path substitution rules.
	SubstitutePath SubstitutePathRules `yaml:"substitute-path"`

	// ActionTimeout bounds every remote call made to the debuggee.
	ActionTimeout time.Duration `yaml:"action-timeout,omitempty"`

	// Store configures breakpoint and debug configuration persistence.
	Store StoreConfig `yaml:"store"`

	// Source list line-number color (3/4 bit color codes as defined
	// here: https://en.wikipedia.org/wiki/ANSI_escape_code#Colors)
	SourceListLineColor int `yaml:"source-list-line-color"`
}

// GetActionTimeout returns the configured action timeout or DefaultActionTimeout.
func (c *Config) GetActionTimeout() time.Duration {
	if c == nil || c.ActionTimeout <= 0 {
		return DefaultActionTimeout
	}
	return c.ActionTimeout
}

// LoadConfig attempts to populate a Config object from the config.yml file.
func LoadConfig() *Config {
	err := createConfigPath()
	if err != nil {
		fmt.Printf("Could not create config directory: %v.", err)
		return &Config{}
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		fmt.Printf("Unable to get config file path: %v.", err)
		return &Config{}
	}

	f, err := os.Open(fullConfigFile)
	if err != nil {
		f, err = createDefaultConfig(fullConfigFile)
		if err != nil {
			fmt.Printf("Error creating default config file: %v", err)
			return &Config{}
		}
	}
	defer f.Close()

	c, err := decode(f)
	if err != nil {
		fmt.Printf("Unable to decode config file: %v.", err)
		return &Config{}
	}
	return c
}

func decode(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// SaveConfig will marshal and save the config struct
// to disk.
func SaveConfig(conf *Config) error {
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(*conf)
	if err != nil {
		return err
	}
	return os.WriteFile(fullConfigFile, out, 0600)
}

func createDefaultConfig(path string) (*os.File, error) {
	if err := os.WriteFile(path, []byte(defaultConfig), 0600); err != nil {
		return nil, fmt.Errorf("unable to write default configuration: %v", err)
	}
	return os.Open(path)
}

const defaultConfig = `# Configuration file for debugd.

# This is the default configuration file. Available options are provided, but disabled.
# Delete the leading hash mark to enable an item.

# Provided aliases will be added to the default aliases for a given command.
aliases:
  # command: ["alias1", "alias2"]

# Rewrite source paths reported by the debuggee.
substitute-path:
  # - {from: path, to: path}

# Maximum time to wait for the debuggee to acknowledge an action.
# action-timeout: 10s

# Persistence of breakpoints and debug configurations.
# backend is one of file, redis, http, memory.
store:
  backend: file
  # path: ~/.debugd/store
  # addr: localhost:6379
  # cache-size: 128
`

// createConfigPath creates the directory structure at which all config files are saved.
func createConfigPath() error {
	path, err := GetConfigFilePath("")
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0700)
}

// GetConfigFilePath gets the full path to the given config file name.
func GetConfigFilePath(file string) (string, error) {
	if dir := os.Getenv(configDirEnv); dir != "" {
		return filepath.Join(dir, file), nil
	}
	home, err := homedir.Dir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, configDir, file), nil
}

// StorePath returns the directory used by the file store backend.
func (c *Config) StorePath() (string, error) {
	if c != nil && c.Store.Path != "" {
		return homedir.Expand(c.Store.Path)
	}
	return GetConfigFilePath("store")
}
