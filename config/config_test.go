package config

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/persist"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func fixedEnv(vars map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
}

func TestLoad_FileFormats(t *testing.T) {
	t.Setenv("EXPENSECTL_HOME", t.TempDir())

	tests := []struct {
		name string
		file string
		body string
	}{
		{
			name: "yaml",
			file: "expensectl.yaml",
			body: `
api:
  base_url: https://api.example.com
  timeout: 5s
  page_limit: 20
cache:
  stale_time: 1m
  refetch: blocking
persist:
  backend: sqlite
  path: /tmp/expensectl.db
  codec: msgpack
logging:
  adapter: zap
`,
		},
		{
			name: "toml",
			file: "expensectl.toml",
			body: `
[api]
base_url = "https://api.example.com"
timeout = "5s"
page_limit = 20

[cache]
stale_time = "1m"
refetch = "blocking"

[persist]
backend = "sqlite"
path = "/tmp/expensectl.db"
codec = "msgpack"

[logging]
adapter = "zap"
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeFile(t, tt.file, tt.body))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}

			want := Default()
			want.API.BaseURL = "https://api.example.com"
			want.API.Timeout = Duration(5 * time.Second)
			want.API.PageLimit = 20
			want.Cache.StaleTime = Duration(time.Minute)
			want.Cache.Refetch = RefetchBlocking
			want.Persist.Backend = persist.BackendSQLite
			want.Persist.Path = "/tmp/expensectl.db"
			want.Persist.Codec = "msgpack"
			want.Logging.Adapter = AdapterZap

			if diff := cmp.Diff(want, cfg); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
		code string
	}{
		{"unknown yaml key", "c.yaml", "api:\n  base_uri: http://x\n", "CONFIG_PARSE"},
		{"unknown toml key", "c.toml", "[api]\nbase_uri = \"http://x\"\n", "CONFIG_PARSE"},
		{"bad duration", "c.yaml", "api:\n  timeout: soon\n", "CONFIG_PARSE"},
		{"unsupported format", "c.json", "{}", "CONFIG_FORMAT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.body))
			var gerr *goerrors.Error
			if !goerrors.As(err, &gerr) || gerr.TextCode != tt.code {
				t.Fatalf("Load() error = %v, want text code %s", err, tt.code)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !goerrors.IsNotFound(err) {
		t.Errorf("Load(missing) error = %v, want not found", err)
	}
}

func TestLoad_EmptyYAMLKeepsDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("EXPENSECTL_HOME", home)

	cfg, err := Load(writeFile(t, "empty.yml", ""))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Persist.Path != filepath.Join(home, "data") {
		t.Errorf("Persist.Path = %q", cfg.Persist.Path)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(fixedEnv(map[string]string{
		"EXPENSECTL_API_BASE_URL":   "https://env.example.com",
		"EXPENSECTL_API_PAGE_LIMIT": "25",
		"EXPENSECTL_API_TIMEOUT":    "2s",
		"EXPENSECTL_OFFLINE":        "true",
		"EXPENSECTL_LOG_LEVEL":      "  debug ",
		"EXPENSECTL_PERSIST_PATH":   "",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if cfg.API.BaseURL != "https://env.example.com" || cfg.API.PageLimit != 25 || cfg.API.Timeout != Duration(2*time.Second) {
		t.Errorf("API = %+v", cfg.API)
	}
	if !cfg.Online.ForceOffline || cfg.Logging.Level != "debug" {
		t.Errorf("Online = %+v, Logging = %+v", cfg.Online, cfg.Logging)
	}
	if cfg.Persist.Path != Default().Persist.Path {
		t.Errorf("empty override replaced Persist.Path with %q", cfg.Persist.Path)
	}

	err = cfg.ApplyEnv(fixedEnv(map[string]string{"EXPENSECTL_API_PAGE_LIMIT": "ten"}))
	if !goerrors.IsCategory(err, goerrors.CategoryBadInput) {
		t.Errorf("ApplyEnv(bad int) error = %v", err)
	}
}

func TestEnvNames(t *testing.T) {
	names := EnvNames()
	if len(names) != len(envBindings) {
		t.Fatalf("EnvNames() len = %d", len(names))
	}
	seen := make(map[string]bool)
	for _, n := range names {
		if seen[n] {
			t.Errorf("duplicate override %s", n)
		}
		seen[n] = true
	}
	if !seen["EXPENSECTL_OFFLINE"] {
		t.Error("missing EXPENSECTL_OFFLINE")
	}
}

func TestValidate_FieldErrors(t *testing.T) {
	cfg := Default()
	cfg.API.BaseURL = "/relative"
	cfg.API.PageLimit = 0
	cfg.Cache.Refetch = "eventually"
	cfg.Persist.Backend = persist.BackendRedis
	cfg.Logging.Adapter = "glog"

	err := cfg.Validate()
	if !goerrors.IsValidation(err) {
		t.Fatalf("Validate() error = %v, want validation", err)
	}
	fields, ok := goerrors.GetValidationErrors(err)
	if !ok {
		t.Fatalf("no field errors in %v", err)
	}
	var got []string
	for _, f := range fields {
		got = append(got, f.Field)
	}
	sort.Strings(got)
	want := []string{"api.base_url", "api.page_limit", "cache.refetch", "logging.adapter", "persist.redis_addr"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("field errors (-want +got):\n%s", diff)
	}
}

func TestValidate_DisabledPersistSkipsChecks(t *testing.T) {
	cfg := Default()
	cfg.Persist = Persist{Enabled: false, Backend: "floppy"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Cache.Refetch = RefetchBlocking
	cfg.Cache.StaleTime = Duration(time.Minute)
	cfg.Persist.Buster = "v2"
	cfg.Online.PingPath = "/health"

	cc := cfg.CacheConfig()
	if err := cc.Validate(); err != nil {
		t.Fatalf("CacheConfig().Validate() error = %v", err)
	}
	if cc.Query.Refetch != cache.RefetchBlocking || cc.Query.StaleTime != time.Minute || cc.Buster != "v2" {
		t.Errorf("CacheConfig() = %+v", cc)
	}
	if cc.Store.TTL != cfg.Cache.GCTime.Std() || cc.PersistKey != cfg.Persist.Key {
		t.Errorf("CacheConfig().Store = %+v", cc.Store)
	}

	po := cfg.PersistOptions()
	if po.Backend != persist.BackendFile || po.Path != cfg.Persist.Path {
		t.Errorf("PersistOptions() = %+v", po)
	}

	tc := cfg.TransportConfig()
	if tc.BaseURL != cfg.API.BaseURL || tc.Timeout != 10*time.Second || tc.PingPath != "/health" {
		t.Errorf("TransportConfig() = %+v", tc)
	}
}
