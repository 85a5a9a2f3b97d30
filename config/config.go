// Package config loads the expensectl configuration from a YAML or TOML
// file, applies EXPENSECTL_ environment overrides and validates the result.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/codec"
	"github.com/goliatone/go-query-cache/internal/cacheinfra"
	"github.com/goliatone/go-query-cache/persist"
	"github.com/goliatone/go-query-cache/transport"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "EXPENSECTL_"

// Refetch modes accepted in Cache.Refetch.
const (
	RefetchBackground = "background"
	RefetchBlocking   = "blocking"
)

// Logger adapters accepted in Logging.Adapter.
const (
	AdapterZerolog = "zerolog"
	AdapterZap     = "zap"
	AdapterLogrus  = "logrus"
	AdapterSlog    = "slog"
)

// Log formats accepted in Logging.Format.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Duration is a time.Duration written as "30s" or "5m" in config files.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config is the full application configuration.
type Config struct {
	API     API     `yaml:"api" toml:"api" json:"api"`
	Cache   Cache   `yaml:"cache" toml:"cache" json:"cache"`
	Persist Persist `yaml:"persist" toml:"persist" json:"persist"`
	Online  Online  `yaml:"online" toml:"online" json:"online"`
	Logging Logging `yaml:"logging" toml:"logging" json:"logging"`
}

// API configures the REST backend.
type API struct {
	BaseURL   string   `yaml:"base_url" toml:"base_url" json:"base_url"`
	Timeout   Duration `yaml:"timeout" toml:"timeout" json:"timeout"`
	UserAgent string   `yaml:"user_agent" toml:"user_agent" json:"user_agent"`
	// Resource is the collection path, relative to BaseURL.
	Resource  string `yaml:"resource" toml:"resource" json:"resource"`
	PageLimit int    `yaml:"page_limit" toml:"page_limit" json:"page_limit"`
}

// Cache configures the in-memory query cache.
type Cache struct {
	StaleTime Duration `yaml:"stale_time" toml:"stale_time" json:"stale_time"`
	// GCTime is how long an entry survives after its last write.
	GCTime             Duration `yaml:"gc_time" toml:"gc_time" json:"gc_time"`
	Backend            string   `yaml:"backend" toml:"backend" json:"backend"`
	Capacity           int      `yaml:"capacity" toml:"capacity" json:"capacity"`
	Shards             int      `yaml:"shards" toml:"shards" json:"shards"`
	EvictionPercentage int      `yaml:"eviction_percentage" toml:"eviction_percentage" json:"eviction_percentage"`
	RetryAttempts      int      `yaml:"retry_attempts" toml:"retry_attempts" json:"retry_attempts"`
	RetryBackoff       Duration `yaml:"retry_backoff" toml:"retry_backoff" json:"retry_backoff"`
	RetryMaxBackoff    Duration `yaml:"retry_max_backoff" toml:"retry_max_backoff" json:"retry_max_backoff"`
	Refetch            string   `yaml:"refetch" toml:"refetch" json:"refetch"`
	// QueueOnNetworkError queues writes that fail with a network error.
	QueueOnNetworkError bool `yaml:"queue_on_network_error" toml:"queue_on_network_error" json:"queue_on_network_error"`
}

// Persist configures where the cache snapshot is written.
type Persist struct {
	Enabled bool   `yaml:"enabled" toml:"enabled" json:"enabled"`
	Backend string `yaml:"backend" toml:"backend" json:"backend"`
	// Path is a directory for the file backend and a database file for sqlite.
	Path      string   `yaml:"path" toml:"path" json:"path"`
	RedisAddr string   `yaml:"redis_addr" toml:"redis_addr" json:"redis_addr"`
	RedisDB   int      `yaml:"redis_db" toml:"redis_db" json:"redis_db"`
	Prefix    string   `yaml:"prefix" toml:"prefix" json:"prefix"`
	Expiry    Duration `yaml:"expiry" toml:"expiry" json:"expiry"`
	Key       string   `yaml:"key" toml:"key" json:"key"`
	Buster    string   `yaml:"buster" toml:"buster" json:"buster"`
	MaxAge    Duration `yaml:"max_age" toml:"max_age" json:"max_age"`
	Codec     string   `yaml:"codec" toml:"codec" json:"codec"`
	Throttle  Duration `yaml:"throttle" toml:"throttle" json:"throttle"`
}

// Online configures connectivity probing.
type Online struct {
	ProbeInterval Duration `yaml:"probe_interval" toml:"probe_interval" json:"probe_interval"`
	ProbeTimeout  Duration `yaml:"probe_timeout" toml:"probe_timeout" json:"probe_timeout"`
	PingPath      string   `yaml:"ping_path" toml:"ping_path" json:"ping_path"`
	// ForceOffline starts the client offline and disables probing.
	ForceOffline bool `yaml:"force_offline" toml:"force_offline" json:"force_offline"`
}

// Logging selects the logger.
type Logging struct {
	Level   string `yaml:"level" toml:"level" json:"level"`
	Format  string `yaml:"format" toml:"format" json:"format"`
	Adapter string `yaml:"adapter" toml:"adapter" json:"adapter"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	store := cacheinfra.DefaultConfig()
	query := cache.DefaultConfig()
	return Config{
		API: API{
			BaseURL:   "http://localhost:3000",
			Timeout:   Duration(10 * time.Second),
			UserAgent: "expensectl",
			Resource:  "expenses",
			PageLimit: 10,
		},
		Cache: Cache{
			StaleTime:           Duration(query.Query.StaleTime),
			GCTime:              Duration(store.TTL),
			Backend:             store.Backend,
			Capacity:            store.Capacity,
			Shards:              store.NumShards,
			EvictionPercentage:  store.EvictionPercentage,
			RetryAttempts:       query.Query.Retry.MaxAttempts,
			RetryBackoff:        Duration(query.Query.Retry.Backoff),
			RetryMaxBackoff:     Duration(query.Query.Retry.MaxBackoff),
			Refetch:             RefetchBackground,
			QueueOnNetworkError: query.QueueOnNetworkError,
		},
		Persist: Persist{
			Enabled:  true,
			Backend:  persist.BackendFile,
			Path:     defaultDataDir(),
			Prefix:   "expensectl:",
			Key:      query.PersistKey,
			MaxAge:   Duration(query.MaxAge),
			Codec:    codec.NameJSON,
			Throttle: Duration(query.PersistThrottle),
		},
		Online: Online{
			ProbeInterval: Duration(15 * time.Second),
			ProbeTimeout:  Duration(3 * time.Second),
			PingPath:      "/",
		},
		Logging: Logging{
			Level:   "info",
			Format:  FormatConsole,
			Adapter: AdapterZerolog,
		},
	}
}

// Dir returns the configuration directory: $EXPENSECTL_HOME, or
// ~/.expensectl.
func Dir() (string, error) {
	if home := os.Getenv(EnvPrefix + "HOME"); home != "" {
		return home, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to get user home directory")
	}
	return filepath.Join(home, ".expensectl"), nil
}

func defaultDataDir() string {
	dir, err := Dir()
	if err != nil {
		return filepath.Join(os.TempDir(), "expensectl")
	}
	return filepath.Join(dir, "data")
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path loads the defaults only. Unknown keys
// are rejected.
func Load(path string) (Config, error) {
	return LoadEnv(path, os.LookupEnv)
}

// LoadEnv is Load with an explicit environment lookup.
func LoadEnv(path string, lookup LookupFunc) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return Config{}, goerrors.Wrap(err, goerrors.CategoryNotFound, fmt.Sprintf("read config %s", path)).
				WithTextCode("CONFIG_READ")
		}
		if err := decode(path, data, &cfg); err != nil {
			return Config{}, err
		}
	}
	if lookup != nil {
		if err := cfg.ApplyEnv(lookup); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(cfg)
		if errors.Is(err, io.EOF) {
			err = nil
		}
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(cfg)
	default:
		return goerrors.New(fmt.Sprintf("unsupported config format %q", filepath.Ext(path)), goerrors.CategoryBadInput).
			WithTextCode("CONFIG_FORMAT")
	}
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, fmt.Sprintf("parse config %s", path)).
			WithTextCode("CONFIG_PARSE")
	}
	return nil
}

// Validate checks every section.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.API),
		validation.Field(&c.Cache),
		validation.Field(&c.Persist),
		validation.Field(&c.Online),
		validation.Field(&c.Logging),
	)
	if err == nil {
		return nil
	}
	return goerrors.FromOzzoValidation(err, "invalid configuration")
}

func (a API) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.BaseURL, validation.Required, validation.By(absoluteURL)),
		validation.Field(&a.Timeout, validation.Min(Duration(0))),
		validation.Field(&a.Resource, validation.Required),
		validation.Field(&a.PageLimit, validation.Required, validation.Min(1)),
	)
}

func (c Cache) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Backend, validation.In(cacheinfra.BackendSturdyc, cacheinfra.BackendRistretto)),
		validation.Field(&c.Capacity, validation.Required, validation.Min(1)),
		validation.Field(&c.GCTime, validation.Required, validation.Min(Duration(1))),
		validation.Field(&c.EvictionPercentage, validation.Min(0), validation.Max(100)),
		validation.Field(&c.RetryAttempts, validation.Min(0)),
		validation.Field(&c.RetryBackoff, validation.Min(Duration(0))),
		validation.Field(&c.RetryMaxBackoff, validation.Min(Duration(0))),
		validation.Field(&c.Refetch, validation.In(RefetchBackground, RefetchBlocking)),
	)
}

func (p Persist) Validate() error {
	if !p.Enabled {
		return nil
	}
	return validation.ValidateStruct(&p,
		validation.Field(&p.Backend, validation.In(persist.BackendFile, persist.BackendSQLite, persist.BackendRedis, persist.BackendMemory)),
		validation.Field(&p.Path, validation.When(p.Backend == persist.BackendFile || p.Backend == persist.BackendSQLite || p.Backend == "", validation.Required)),
		validation.Field(&p.RedisAddr, validation.When(p.Backend == persist.BackendRedis, validation.Required)),
		validation.Field(&p.Key, validation.Required),
		validation.Field(&p.Codec, validation.In(codec.NameJSON, codec.NameMsgpack, codec.NameCBOR)),
		validation.Field(&p.MaxAge, validation.Min(Duration(0))),
		validation.Field(&p.Throttle, validation.Min(Duration(0))),
	)
}

func (o Online) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.ProbeInterval, validation.Min(Duration(0))),
		validation.Field(&o.ProbeTimeout, validation.Min(Duration(0))),
	)
}

func (l Logging) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.In("debug", "info", "warn", "error")),
		validation.Field(&l.Format, validation.In(FormatConsole, FormatJSON)),
		validation.Field(&l.Adapter, validation.In(AdapterZerolog, AdapterZap, AdapterLogrus, AdapterSlog)),
	)
}

func absoluteURL(value any) error {
	s, _ := value.(string)
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return validation.NewError("validation_absolute_url", "must be an absolute URL")
	}
	return nil
}

// CacheConfig converts the cache and persist sections for cache.NewClient.
func (c Config) CacheConfig() cache.Config {
	cfg := cache.DefaultConfig()
	cfg.Store = cache.StoreConfig{
		Backend:            c.Cache.Backend,
		Capacity:           c.Cache.Capacity,
		NumShards:          c.Cache.Shards,
		TTL:                c.Cache.GCTime.Std(),
		EvictionPercentage: c.Cache.EvictionPercentage,
	}
	cfg.Query.StaleTime = c.Cache.StaleTime.Std()
	cfg.Query.Retry = cache.Retry{
		MaxAttempts: c.Cache.RetryAttempts,
		Backoff:     c.Cache.RetryBackoff.Std(),
		MaxBackoff:  c.Cache.RetryMaxBackoff.Std(),
	}
	cfg.Query.Refetch = cache.RefetchBackground
	if c.Cache.Refetch == RefetchBlocking {
		cfg.Query.Refetch = cache.RefetchBlocking
	}
	cfg.QueueOnNetworkError = c.Cache.QueueOnNetworkError
	cfg.PersistKey = c.Persist.Key
	cfg.Buster = c.Persist.Buster
	cfg.MaxAge = c.Persist.MaxAge.Std()
	cfg.PersistThrottle = c.Persist.Throttle.Std()
	return cfg
}

// PersistOptions converts the persist section for persist.Open.
func (c Config) PersistOptions() persist.Options {
	return persist.Options{
		Backend:   c.Persist.Backend,
		Path:      c.Persist.Path,
		RedisAddr: c.Persist.RedisAddr,
		RedisDB:   c.Persist.RedisDB,
		Prefix:    c.Persist.Prefix,
		Expiry:    c.Persist.Expiry.Std(),
	}
}

// TransportConfig converts the API section for transport.New.
func (c Config) TransportConfig() transport.Config {
	return transport.Config{
		BaseURL:   c.API.BaseURL,
		Timeout:   c.API.Timeout.Std(),
		UserAgent: c.API.UserAgent,
		PingPath:  c.Online.PingPath,
	}
}
