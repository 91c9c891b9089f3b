package domain

import (
	"context"
	"time"
)

// Source describes one version-control platform for a run. It is built once
// by the adapter and never mutated afterwards.
type Source struct {
	// BaseURL is the API root the adapter talks to.
	BaseURL string
	// RepoTerm and OrgTerm are the platform's words for a repository and a
	// repository namespace ("project"/"group", "workspace", ...). Used only
	// in diagnostics.
	RepoTerm string
	OrgTerm  string
	// OrgFlag names the CLI option that supplies org names on this platform,
	// so validation errors can point the user at the right flag.
	OrgFlag string
	// MinSegments and MaxSegments bound the slash-separated segment count of
	// a qualified repo spec (GitHub: exactly 2, Azure DevOps: exactly 3).
	// MaxSegments 0 means unbounded (GitLab subgroups).
	MinSegments int
	MaxSegments int
	// IncludePublic controls whether public repos survive the visibility
	// filter.
	IncludePublic bool
	// RequiresEnrichment is set when listing responses do not carry
	// visibility, so explicitly-named repos need a follow-up metadata fetch.
	RequiresEnrichment bool
}

// Adapter is the contract every platform implementation satisfies. The
// resolver and runner only ever speak through it.
type Adapter interface {
	// Commits returns commits authored on or after since, in canonical
	// shape. An empty or commit-less repository yields an empty slice, not
	// an error.
	Commits(ctx context.Context, repo Repo, since time.Time) ([]Commit, error)
	// OrgRepos lists the repos owned by a named org/group/workspace.
	OrgRepos(ctx context.Context, org string) ([]Repo, error)
	// VisibleRepos lists every repo visible to the credential. Used only
	// when no org or explicit repo input was given.
	VisibleRepos(ctx context.Context) ([]Repo, error)
	// Enrich fills repo.Private (and platform extras) from single-repo
	// metadata. On failure Private stays nil; the adapter never guesses.
	Enrich(ctx context.Context, repo *Repo) error
	// Source returns the platform descriptor.
	Source() Source
}

// ProjectLister is implemented by adapters for platforms with an intermediate
// project tier between the organization and its repositories (Azure DevOps:
// org -> project -> repo). Project keys are qualified "org/project" strings.
type ProjectLister interface {
	OrgProjects(ctx context.Context, org string) ([]string, error)
	ProjectRepos(ctx context.Context, project string) ([]Repo, error)
}

// Bool is a convenience for building tri-state visibility values.
func Bool(v bool) *bool {
	return &v
}
