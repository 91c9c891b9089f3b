package config

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/gitcensus/gitcensus/census/application"
)

func parse(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	return Parse(args, io.Discard)
}

func TestParseDefaults(t *testing.T) {
	cfg, err := parse(t)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Source != SourceGitHub {
		t.Errorf("Source = %q, want github", cfg.Source)
	}
	if cfg.Days != 90 {
		t.Errorf("Days = %d, want 90", cfg.Days)
	}
	if cfg.Format != "console" || cfg.SortBy != "email" {
		t.Errorf("Format/SortBy = %q/%q", cfg.Format, cfg.SortBy)
	}
}

func TestParseCSVLists(t *testing.T) {
	cfg, err := parse(t, "-orgs", "a, b ,c", "-skip-repos", "a/x")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !reflect.DeepEqual(cfg.Orgs, []string{"a", "b", "c"}) {
		t.Errorf("Orgs = %v", cfg.Orgs)
	}
	if !reflect.DeepEqual(cfg.SkipRepos, []string{"a/x"}) {
		t.Errorf("SkipRepos = %v", cfg.SkipRepos)
	}
}

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown source", []string{"-source", "sourceforge"}},
		{"server without url", []string{"-source", "bitbucket-server"}},
		{"local without path", []string{"-source", "local"}},
		{"azure without scope", []string{"-source", "azure"}},
		{"non-positive days", []string{"-days", "0"}},
		{"unknown format", []string{"-format", "xml"}},
		{"unknown sort", []string{"-sort", "commits"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(t, tt.args...)
			if !errors.Is(err, application.ErrValidation) {
				t.Errorf("Parse(%v) = %v, want ErrValidation", tt.args, err)
			}
		})
	}
}

func TestParseTokenFromEnv(t *testing.T) {
	t.Setenv(EnvToken, "env-token")
	cfg, err := parse(t)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Token != "env-token" {
		t.Errorf("Token = %q, want the environment fallback", cfg.Token)
	}

	cfg, err = parse(t, "-token", "flag-token")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Token != "flag-token" {
		t.Errorf("Token = %q, want the flag to win", cfg.Token)
	}
}

func TestParseConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "census.toml")
	content := `
source = "gitlab"
days = 30
orgs = ["acme"]
exclude = ["@bots\\."]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := parse(t, "-config", path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Source != SourceGitLab || cfg.Days != 30 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.Orgs, []string{"acme"}) {
		t.Errorf("Orgs = %v", cfg.Orgs)
	}

	// Explicit flags beat the file.
	cfg, err = parse(t, "-config", path, "-days", "7")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Days != 7 {
		t.Errorf("Days = %d, want the flag to win over the file", cfg.Days)
	}
}

func TestSince(t *testing.T) {
	cfg := &Config{Days: 90}
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	if got, want := cfg.Since(now), now.AddDate(0, 0, -90); !got.Equal(want) {
		t.Errorf("Since = %v, want %v", got, want)
	}
}

func TestReadLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repos.txt")
	content := "org/a\n\n# a comment\n  org/b  \n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	lines, err := readLines(path)
	if err != nil {
		t.Fatalf("readLines: %v", err)
	}
	if !reflect.DeepEqual(lines, []string{"org/a", "org/b"}) {
		t.Errorf("readLines = %v", lines)
	}

	if got, err := readLines(""); got != nil || err != nil {
		t.Errorf("readLines(\"\") = %v, %v", got, err)
	}

	if _, err := readLines(filepath.Join(t.TempDir(), "missing.txt")); !errors.Is(err, application.ErrValidation) {
		t.Errorf("missing file error = %v, want ErrValidation", err)
	}
}

func TestSelectionReadsFiles(t *testing.T) {
	dir := t.TempDir()
	repoFile := filepath.Join(dir, "repos.txt")
	if err := os.WriteFile(repoFile, []byte("org/a\norg/b\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := parse(t, "-repo-file", repoFile)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sel, err := cfg.Selection()
	if err != nil {
		t.Fatalf("Selection: %v", err)
	}
	if !reflect.DeepEqual(sel.RepoFile, []string{"org/a", "org/b"}) {
		t.Errorf("RepoFile = %v", sel.RepoFile)
	}
}
