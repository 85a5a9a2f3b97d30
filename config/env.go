package config

import (
	"fmt"
	"strconv"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

type envBinding struct {
	name  string
	apply func(c *Config, v string) error
}

func stringVar(dst func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*dst(c) = v
		return nil
	}
}

func intVar(dst func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst(c) = n
		return nil
	}
}

func boolVar(dst func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst(c) = b
		return nil
	}
}

func durationVar(dst func(*Config) *Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		return dst(c).UnmarshalText([]byte(v))
	}
}

// envBindings lists every override, without the prefix.
var envBindings = []envBinding{
	{"API_BASE_URL", stringVar(func(c *Config) *string { return &c.API.BaseURL })},
	{"API_TIMEOUT", durationVar(func(c *Config) *Duration { return &c.API.Timeout })},
	{"API_RESOURCE", stringVar(func(c *Config) *string { return &c.API.Resource })},
	{"API_PAGE_LIMIT", intVar(func(c *Config) *int { return &c.API.PageLimit })},
	{"CACHE_BACKEND", stringVar(func(c *Config) *string { return &c.Cache.Backend })},
	{"CACHE_STALE_TIME", durationVar(func(c *Config) *Duration { return &c.Cache.StaleTime })},
	{"CACHE_REFETCH", stringVar(func(c *Config) *string { return &c.Cache.Refetch })},
	{"PERSIST_ENABLED", boolVar(func(c *Config) *bool { return &c.Persist.Enabled })},
	{"PERSIST_BACKEND", stringVar(func(c *Config) *string { return &c.Persist.Backend })},
	{"PERSIST_PATH", stringVar(func(c *Config) *string { return &c.Persist.Path })},
	{"PERSIST_CODEC", stringVar(func(c *Config) *string { return &c.Persist.Codec })},
	{"REDIS_ADDR", stringVar(func(c *Config) *string { return &c.Persist.RedisAddr })},
	{"OFFLINE", boolVar(func(c *Config) *bool { return &c.Online.ForceOffline })},
	{"LOG_LEVEL", stringVar(func(c *Config) *string { return &c.Logging.Level })},
	{"LOG_FORMAT", stringVar(func(c *Config) *string { return &c.Logging.Format })},
	{"LOG_ADAPTER", stringVar(func(c *Config) *string { return &c.Logging.Adapter })},
}

// EnvNames returns the full names of the supported overrides.
func EnvNames() []string {
	names := make([]string, len(envBindings))
	for i, b := range envBindings {
		names[i] = EnvPrefix + b.name
	}
	return names
}

// ApplyEnv overrides fields from the environment. Empty values are ignored.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	for _, b := range envBindings {
		v, ok := lookup(EnvPrefix + b.name)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if err := b.apply(c, strings.TrimSpace(v)); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryBadInput, fmt.Sprintf("invalid %s%s", EnvPrefix, b.name)).
				WithTextCode("CONFIG_ENV")
		}
	}
	return nil
}
