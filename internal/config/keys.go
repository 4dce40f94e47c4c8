package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

var backends = []string{"auto", "x11", "win32", "windows"}

func validBackend(name string) bool {
	return slices.Contains(backends, name)
}

type field struct {
	get func(*Config) string
	set func(*Config, string) error
}

func stringField(p func(*Config) *string) field {
	return field{
		get: func(c *Config) string { return *p(c) },
		set: func(c *Config, v string) error { *p(c) = v; return nil },
	}
}

func intField(p func(*Config) *int) field {
	return field{
		get: func(c *Config) string { return strconv.Itoa(*p(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("not an integer: %q", v)
			}
			*p(c) = n
			return nil
		},
	}
}

func boolField(p func(*Config) *bool) field {
	return field{
		get: func(c *Config) string { return strconv.FormatBool(*p(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("not a boolean: %q", v)
			}
			*p(c) = b
			return nil
		},
	}
}

var fields = map[string]field{
	"backend":                  stringField(func(c *Config) *string { return &c.Backend }),
	"display":                  stringField(func(c *Config) *string { return &c.Display }),
	"screen":                   intField(func(c *Config) *int { return &c.Screen }),
	"log_level":                stringField(func(c *Config) *string { return &c.LogLevel }),
	"window.width":             intField(func(c *Config) *int { return &c.Window.Width }),
	"window.height":            intField(func(c *Config) *int { return &c.Window.Height }),
	"window.title":             stringField(func(c *Config) *string { return &c.Window.Title }),
	"window.background":        stringField(func(c *Config) *string { return &c.Window.Background }),
	"window.border":            stringField(func(c *Config) *string { return &c.Window.Border }),
	"window.override_redirect": boolField(func(c *Config) *bool { return &c.Window.OverrideRedirect }),
	"window.no_content":        boolField(func(c *Config) *bool { return &c.Window.NoContent }),
	"inspect.enabled":          boolField(func(c *Config) *bool { return &c.Inspect.Enabled }),
	"inspect.port":             intField(func(c *Config) *int { return &c.Inspect.Port }),
}

// Keys lists the dotted keys accepted by Get and Set, sorted.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// GetKey returns the value stored under a dotted key such as "window.width".
func (m *Manager) GetKey(key string) (string, error) {
	f, ok := fields[strings.ToLower(key)]
	if !ok {
		return "", fmt.Errorf("unknown config key %q", key)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return f.get(m.config), nil
}

// Apply parses value into the dotted key without validating or saving. It
// is used for command-line overrides.
func (c *Config) Apply(key, value string) error {
	f, ok := fields[strings.ToLower(key)]
	if !ok {
		return fmt.Errorf("unknown config key %q", key)
	}
	if err := f.set(c, value); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

// Set parses value into the dotted key and saves. The file is left untouched
// when the result does not validate.
func (m *Manager) Set(key, value string) error {
	m.mu.Lock()
	next := *m.config
	if err := next.Apply(key, value); err != nil {
		m.mu.Unlock()
		return err
	}
	if err := next.Validate(); err != nil {
		m.mu.Unlock()
		return err
	}
	m.config = &next
	m.mu.Unlock()

	return m.Save()
}
