// Package config centralises flag, environment, and file configuration for
// the CLI. It should be imported only by cmd/gitcensus (and test code);
// pipeline layers receive an already-built Config via dependency injection.
package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/gitcensus/gitcensus/census/application"
)

// Source names accepted by -source.
const (
	SourceGitHub          = "github"
	SourceGitLab          = "gitlab"
	SourceBitbucketCloud  = "bitbucket-cloud"
	SourceBitbucketServer = "bitbucket-server"
	SourceAzure           = "azure"
	SourceLocal           = "local"
)

// EnvToken supplies the credential when -token is not given.
const EnvToken = "GITCENSUS_TOKEN"

// Config holds every runtime option the run needs, flattened and typed.
// Precedence: flags > environment > config file > defaults.
type Config struct {
	Source string
	URL    string
	Token  string
	User   string // Bitbucket Cloud username for app-password auth

	Days int

	Orgs            []string
	Repos           []string
	RepoFile        string
	SkipRepos       []string
	SkipRepoFile    string
	Projects        []string
	ProjectFile     string
	SkipProjects    []string
	SkipProjectFile string

	IncludePublic bool
	Exclude       []string

	Format string
	SortBy string
	CACert string
	Path   string // root directory for -source local
	Debug  bool
}

// Parse reads flags, an optional .env file, and an optional TOML config file.
// Validation failures come back wrapped in application.ErrValidation so the
// caller can map them to the right exit code.
func Parse(args []string, stderr io.Writer) (*Config, error) {
	// A missing .env is fine; environment wins over it either way.
	_ = godotenv.Load()

	cfg := &Config{}
	var orgs, repos, skipRepos, projects, skipProjects, exclude string
	var configPath string

	fs := flag.NewFlagSet("gitcensus", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&configPath, "config", "", "path to a TOML config file")
	fs.StringVar(&cfg.Source, "source", SourceGitHub, "platform: github, gitlab, bitbucket-cloud, bitbucket-server, azure, local")
	fs.StringVar(&cfg.URL, "url", "", "API base URL for self-hosted instances")
	fs.StringVar(&cfg.Token, "token", "", "API credential (or set "+EnvToken+")")
	fs.StringVar(&cfg.User, "user", "", "username for Bitbucket Cloud app-password auth")
	fs.IntVar(&cfg.Days, "days", 90, "trailing window in days")
	fs.StringVar(&orgs, "orgs", "", "comma-separated org/group/workspace names")
	fs.StringVar(&repos, "repos", "", "comma-separated qualified repo names")
	fs.StringVar(&cfg.RepoFile, "repo-file", "", "file with one qualified repo name per line")
	fs.StringVar(&skipRepos, "skip-repos", "", "comma-separated repos to exclude")
	fs.StringVar(&cfg.SkipRepoFile, "skip-repo-file", "", "file with repos to exclude, one per line")
	fs.StringVar(&projects, "projects", "", "comma-separated org/project names (Azure DevOps)")
	fs.StringVar(&cfg.ProjectFile, "project-file", "", "file with org/project names, one per line")
	fs.StringVar(&skipProjects, "skip-projects", "", "comma-separated projects to exclude (Azure DevOps)")
	fs.StringVar(&cfg.SkipProjectFile, "skip-project-file", "", "file with projects to exclude, one per line")
	fs.BoolVar(&cfg.IncludePublic, "include-public", false, "count public repos too")
	fs.StringVar(&exclude, "exclude", "", "comma-separated extra email exclusion regexes")
	fs.StringVar(&cfg.Format, "format", "console", "output format: console, json, csv")
	fs.StringVar(&cfg.SortBy, "sort", "email", "contributor sort field: email, name, date")
	fs.StringVar(&cfg.CACert, "ca-cert", "", "PEM bundle for TLS verification against a private CA")
	fs.StringVar(&cfg.Path, "path", "", "directory to scan for local clones (-source local)")
	fs.BoolVar(&cfg.Debug, "debug", false, "verbose logging")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %v", application.ErrValidation, err)
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if configPath != "" {
		if err := applyFile(cfg, configPath, set); err != nil {
			return nil, err
		}
	}

	cfg.Orgs = appendCSV(cfg.Orgs, orgs)
	cfg.Repos = appendCSV(cfg.Repos, repos)
	cfg.SkipRepos = appendCSV(cfg.SkipRepos, skipRepos)
	cfg.Projects = appendCSV(cfg.Projects, projects)
	cfg.SkipProjects = appendCSV(cfg.SkipProjects, skipProjects)
	cfg.Exclude = appendCSV(cfg.Exclude, exclude)

	if cfg.Token == "" {
		cfg.Token = os.Getenv(EnvToken)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fileConfig mirrors the flag surface for TOML runs.
type fileConfig struct {
	Source        string   `toml:"source"`
	URL           string   `toml:"url"`
	Token         string   `toml:"token"`
	User          string   `toml:"user"`
	Days          int      `toml:"days"`
	Orgs          []string `toml:"orgs"`
	Repos         []string `toml:"repos"`
	SkipRepos     []string `toml:"skip_repos"`
	Projects      []string `toml:"projects"`
	SkipProjects  []string `toml:"skip_projects"`
	IncludePublic bool     `toml:"include_public"`
	Exclude       []string `toml:"exclude"`
	Format        string   `toml:"format"`
	Sort          string   `toml:"sort"`
	CACert        string   `toml:"ca_cert"`
	Path          string   `toml:"path"`
}

// applyFile fills cfg from a TOML file, without overriding anything the user
// set explicitly on the command line.
func applyFile(cfg *Config, path string, set map[string]bool) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("%w: config file %s: %v", application.ErrValidation, path, err)
	}

	if !set["source"] && fc.Source != "" {
		cfg.Source = fc.Source
	}
	if !set["url"] && fc.URL != "" {
		cfg.URL = fc.URL
	}
	if !set["token"] && fc.Token != "" {
		cfg.Token = fc.Token
	}
	if !set["user"] && fc.User != "" {
		cfg.User = fc.User
	}
	if !set["days"] && fc.Days != 0 {
		cfg.Days = fc.Days
	}
	if !set["include-public"] {
		cfg.IncludePublic = fc.IncludePublic
	}
	if !set["format"] && fc.Format != "" {
		cfg.Format = fc.Format
	}
	if !set["sort"] && fc.Sort != "" {
		cfg.SortBy = fc.Sort
	}
	if !set["ca-cert"] && fc.CACert != "" {
		cfg.CACert = fc.CACert
	}
	if !set["path"] && fc.Path != "" {
		cfg.Path = fc.Path
	}
	cfg.Orgs = fc.Orgs
	cfg.Repos = fc.Repos
	cfg.SkipRepos = fc.SkipRepos
	cfg.Projects = fc.Projects
	cfg.SkipProjects = fc.SkipProjects
	cfg.Exclude = fc.Exclude
	return nil
}

func (c *Config) validate() error {
	switch c.Source {
	case SourceGitHub, SourceGitLab, SourceBitbucketCloud, SourceAzure:
	case SourceBitbucketServer:
		if c.URL == "" {
			return fmt.Errorf("%w: -source %s requires -url", application.ErrValidation, c.Source)
		}
	case SourceLocal:
		if c.Path == "" {
			return fmt.Errorf("%w: -source local requires -path", application.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown source %q", application.ErrValidation, c.Source)
	}

	if c.Source == SourceAzure &&
		len(c.Orgs) == 0 && len(c.Projects) == 0 && c.ProjectFile == "" &&
		len(c.Repos) == 0 && c.RepoFile == "" {
		return fmt.Errorf("%w: Azure DevOps needs -orgs, -projects, or -repos; it has no credential-wide repo listing", application.ErrValidation)
	}

	if c.Days <= 0 {
		return fmt.Errorf("%w: -days must be positive, got %d", application.ErrValidation, c.Days)
	}

	switch c.Format {
	case "console", "json", "csv":
	default:
		return fmt.Errorf("%w: unknown format %q", application.ErrValidation, c.Format)
	}
	switch c.SortBy {
	case "email", "name", "date":
	default:
		return fmt.Errorf("%w: unknown sort field %q", application.ErrValidation, c.SortBy)
	}
	return nil
}

// Since returns the cutoff instant for the configured window.
func (c *Config) Since(now time.Time) time.Time {
	return now.UTC().AddDate(0, 0, -c.Days)
}

// Selection reads any configured list files and assembles the resolver
// input. File reading happens here, at the boundary, so the resolver stays
// free of I/O.
func (c *Config) Selection() (application.Selection, error) {
	sel := application.Selection{
		Orgs:         c.Orgs,
		Repos:        c.Repos,
		SkipRepos:    c.SkipRepos,
		Projects:     c.Projects,
		SkipProjects: c.SkipProjects,
	}

	var err error
	if sel.RepoFile, err = readLines(c.RepoFile); err != nil {
		return sel, err
	}
	if sel.SkipRepoFile, err = readLines(c.SkipRepoFile); err != nil {
		return sel, err
	}
	if sel.ProjectFile, err = readLines(c.ProjectFile); err != nil {
		return sel, err
	}
	if sel.SkipProjectFile, err = readLines(c.SkipProjectFile); err != nil {
		return sel, err
	}
	return sel, nil
}

// readLines reads a list file: one entry per line, blank lines and
// #-comments ignored.
func readLines(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading list file: %v", application.ErrValidation, err)
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func appendCSV(base []string, csv string) []string {
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			base = append(base, part)
		}
	}
	return base
}
