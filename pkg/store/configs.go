package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v2"
)

const configurationsPrefix = "configurations/"

// DebugConfiguration describes how to reach a debuggee.
type DebugConfiguration struct {
	Name string `yaml:"name"`
	// Type selects the transport: sim, dap or ws.
	Type string `yaml:"type"`
	// Script is the program run by the sim transport.
	Script string `yaml:"script,omitempty"`
	// Address of a dap adapter or a websocket agent.
	Address string `yaml:"address,omitempty"`
	// Properties are passed to the debug adapter on launch.
	Properties map[string]string `yaml:"properties,omitempty"`
}

// Validate checks that c can be saved and used.
func (c *DebugConfiguration) Validate() error {
	if c.Name == "" || strings.ContainsAny(c.Name, "/ \t") {
		return fmt.Errorf("invalid configuration name %q", c.Name)
	}
	switch c.Type {
	case "sim":
		if c.Script == "" {
			return fmt.Errorf("configuration %s: sim needs a script", c.Name)
		}
	case "dap", "ws":
		if c.Address == "" {
			return fmt.Errorf("configuration %s: %s needs an address", c.Name, c.Type)
		}
	default:
		return fmt.Errorf("configuration %s: unknown type %q", c.Name, c.Type)
	}
	return nil
}

// SaveConfiguration creates or replaces c.
func SaveConfiguration(ctx context.Context, s Store, c *DebugConfiguration) error {
	if err := c.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return s.Save(ctx, configurationsPrefix+c.Name, data)
}

// LoadConfiguration returns the configuration called name.
func LoadConfiguration(ctx context.Context, s Store, name string) (*DebugConfiguration, error) {
	data, err := s.Load(ctx, configurationsPrefix+name)
	if err != nil {
		return nil, fmt.Errorf("configuration %s: %w", name, err)
	}
	var c DebugConfiguration
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("configuration %s: %v", name, err)
	}
	return &c, nil
}

// DeleteConfiguration removes the configuration called name.
func DeleteConfiguration(ctx context.Context, s Store, name string) error {
	return s.Delete(ctx, configurationsPrefix+name)
}

// ListConfigurations returns every saved configuration sorted by name.
func ListConfigurations(ctx context.Context, s Store) ([]*DebugConfiguration, error) {
	keys, err := s.List(ctx, configurationsPrefix)
	if err != nil {
		return nil, err
	}
	r := make([]*DebugConfiguration, 0, len(keys))
	for _, k := range keys {
		c, err := LoadConfiguration(ctx, s, strings.TrimPrefix(k, configurationsPrefix))
		if err != nil {
			return nil, err
		}
		r = append(r, c)
	}
	sort.Slice(r, func(i, j int) bool { return r[i].Name < r[j].Name })
	return r, nil
}
