package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goliatone/go-query-cache/internal/cli"
	"github.com/goliatone/go-query-cache/pkg/testsupport"
)

func noEnv(string) (string, bool) { return "", false }

func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	dir := t.TempDir()
	body := "api:\n  base_url: " + baseURL + "\npersist:\n  backend: file\n  path: " +
		filepath.Join(dir, "data") + "\nlogging:\n  level: error\n"
	path := filepath.Join(dir, "expensectl.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestRunGet(t *testing.T) {
	srv := testsupport.NewFakeServer(t, "expenses", "title")
	srv.Seed(testsupport.Record{"title": "Lunch", "amount": 12.5, "category": "food", "createdAt": 1709575500})
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}

	code := run(context.Background(), []string{"--config", writeConfig(t, srv.URL), "get", "1"}, stdout, stderr, cli.WithLookupEnv(noEnv))
	if code != 0 {
		t.Fatalf("exit code = %d, want 0; stderr=%q", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "Lunch") || !strings.Contains(stdout.String(), "$ 12.50") {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestRunReportsErrors(t *testing.T) {
	srv := testsupport.NewFakeServer(t, "expenses", "title")
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}

	code := run(context.Background(), []string{"--config", writeConfig(t, srv.URL), "add", "--amount", "4"}, stdout, stderr, cli.WithLookupEnv(noEnv))
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	want := "Error: invalid expense\n  category: Please select a category\n  title: Please enter title\n"
	if stderr.String() != want {
		t.Errorf("stderr = %q, want %q", stderr.String(), want)
	}
	if stdout.Len() != 0 {
		t.Errorf("unexpected stdout %q", stdout.String())
	}
}

func TestRootCommand(t *testing.T) {
	root := cli.NewRootCmd(version)
	if root == nil {
		t.Fatal("expected root command to be non-nil")
	}
	if root.Use == "" {
		t.Error("expected root command to have a use string")
	}
	for _, name := range []string{"list", "get", "add", "update", "delete", "sync", "status", "cancel"} {
		if _, _, err := root.Find([]string{name}); err != nil {
			t.Errorf("missing subcommand %q: %v", name, err)
		}
	}
}
