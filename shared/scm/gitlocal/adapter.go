// Package gitlocal counts contributors in local clones. It walks a directory
// tree for .git roots and reads history by shelling out to git; there is no
// remote API, so no pagination and no throttling.
package gitlocal

import (
	"context"
	"io/fs"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/gitcensus/gitcensus/census/domain"
)

// fieldSep separates the fields of the git log pretty format. A unit
// separator cannot appear in names or emails.
const fieldSep = "\x1f"

type Adapter struct {
	root  string
	paths map[string]string // repo full name -> working tree path
	src   domain.Source
}

// New builds an adapter rooted at dir. Repositories are discovered lazily on
// the first VisibleRepos call.
func New(dir string) *Adapter {
	return &Adapter{
		root:  dir,
		paths: make(map[string]string),
		src: domain.Source{
			BaseURL:     dir,
			RepoTerm:    "repo",
			OrgTerm:     "directory",
			OrgFlag:     "--path",
			MinSegments: 1,
			// Local clones have no remote visibility; they count as private.
			IncludePublic: false,
		},
	}
}

func (a *Adapter) Source() domain.Source { return a.src }

// VisibleRepos walks the root for directories containing .git. The walk does
// not descend into repositories, so nested checkouts (vendored trees,
// submodule working copies) are not double counted.
func (a *Adapter) VisibleRepos(ctx context.Context) ([]domain.Repo, error) {
	var repos []domain.Repo
	err := filepath.WalkDir(a.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("skipping unreadable directory")
			return fs.SkipDir
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.IsDir() || d.Name() != ".git" {
			return nil
		}

		clone := filepath.Dir(path)
		repo := domain.Repo{
			Owner:   filepath.ToSlash(filepath.Base(filepath.Dir(clone))),
			Name:    filepath.Base(clone),
			Private: domain.Bool(true),
		}
		a.paths[repo.FullName()] = clone
		repos = append(repos, repo)
		return fs.SkipDir
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walking %s", a.root)
	}
	return repos, nil
}

// Commits reads author lines from git log. A repository without any commits
// yields an empty slice.
func (a *Adapter) Commits(ctx context.Context, repo domain.Repo, since time.Time) ([]domain.Commit, error) {
	path, ok := a.paths[repo.FullName()]
	if !ok {
		return nil, errors.Errorf("unknown local repo %s", repo.FullName())
	}

	cmd := exec.CommandContext(ctx, "git", "-C", path, "log",
		"--since="+since.UTC().Format(time.RFC3339),
		"--pretty=format:%an"+fieldSep+"%ae"+fieldSep+"%aI")
	out, err := cmd.CombinedOutput()
	if err != nil {
		if strings.Contains(string(out), "does not have any commits yet") {
			return []domain.Commit{}, nil
		}
		return nil, errors.Wrapf(err, "git log in %s: %s", path, strings.TrimSpace(string(out)))
	}

	var commits []domain.Commit
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Split(line, fieldSep)
		if len(fields) != 3 {
			continue
		}
		commits = append(commits, domain.Commit{
			Username: fields[0],
			Email:    fields[1],
			Date:     domain.CanonicalDate(fields[2]),
		})
	}
	return commits, nil
}

// OrgRepos has no meaning on the filesystem.
func (a *Adapter) OrgRepos(ctx context.Context, org string) ([]domain.Repo, error) {
	return nil, errors.New("local clones have no orgs; point --path at a directory instead")
}

// Enrich is a no-op; local clones are always private.
func (a *Adapter) Enrich(ctx context.Context, repo *domain.Repo) error {
	repo.Private = domain.Bool(true)
	return nil
}
