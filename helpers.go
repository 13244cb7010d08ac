package etlkit

import (
	"time"

	"github.com/spf13/cast"
)

// Option accessors coerce loosely typed values coming from YAML or callers.
// A missing key or a value that cannot be coerced yields the default.

// OptString returns the string option key
func (c StoreConfig) OptString(key, def string) string {
	v, ok := c.Options[key]
	if !ok {
		return def
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return def
	}
	return s
}

// OptInt returns the integer option key
func (c StoreConfig) OptInt(key string, def int) int {
	v, ok := c.Options[key]
	if !ok {
		return def
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return def
	}
	return n
}

// OptBool returns the boolean option key
func (c StoreConfig) OptBool(key string, def bool) bool {
	v, ok := c.Options[key]
	if !ok {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}

// OptDuration returns the duration option key. Strings use time.ParseDuration
// syntax and bare numbers are nanoseconds.
func (c StoreConfig) OptDuration(key string, def time.Duration) time.Duration {
	v, ok := c.Options[key]
	if !ok {
		return def
	}
	d, err := cast.ToDurationE(v)
	if err != nil {
		return def
	}
	return d
}

// WithOption returns a copy of the config with key set
func (c StoreConfig) WithOption(key string, value any) StoreConfig {
	opts := make(map[string]any, len(c.Options)+1)
	for k, v := range c.Options {
		opts[k] = v
	}
	opts[key] = value
	c.Options = opts
	return c
}
