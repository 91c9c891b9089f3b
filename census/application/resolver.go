package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/gitcensus/gitcensus/census/domain"
)

// ErrValidation marks fatal input errors. The run aborts immediately and the
// process exits non-zero, as opposed to per-org and per-repo failures which
// are logged and tolerated.
var ErrValidation = errors.New("invalid input")

// Selection is the repo-selection input for one run, already read from the
// CLI and any list files. Inline lists and file lists are kept apart because
// the precedence rule between them (inline wins, with a warning) belongs to
// resolution, not flag parsing.
type Selection struct {
	Orgs []string

	Repos    []string
	RepoFile []string

	SkipRepos    []string
	SkipRepoFile []string

	// Project-tier inputs, meaningful only on platforms with an
	// org -> project -> repo hierarchy (Azure DevOps).
	Projects        []string
	ProjectFile     []string
	SkipProjects    []string
	SkipProjectFile []string
}

// Resolver produces the definitive repo list for one run.
type Resolver struct {
	adapter domain.Adapter
}

func NewResolver(adapter domain.Adapter) *Resolver {
	return &Resolver{adapter: adapter}
}

// Resolve merges org-derived repos, explicit repos, and skip lists into the
// final ordered, deduplicated repo set, then applies visibility filtering.
// A failing org contributes zero repos and the run continues; a malformed
// explicit spec aborts with ErrValidation.
func (r *Resolver) Resolve(ctx context.Context, sel Selection) ([]domain.Repo, error) {
	src := r.adapter.Source()

	var working []domain.Repo
	var err error
	if pl, ok := r.adapter.(domain.ProjectLister); ok {
		working, err = r.projectTier(ctx, pl, sel, src)
		if err != nil {
			return nil, err
		}
	} else {
		for _, org := range sel.Orgs {
			repos, orgErr := r.adapter.OrgRepos(ctx, org)
			if orgErr != nil {
				log.Warn().Err(orgErr).Str(src.OrgTerm, org).
					Msgf("could not list %ss, continuing without this %s", src.RepoTerm, src.OrgTerm)
				continue
			}
			working = append(working, repos...)
		}
	}

	seen := make(map[string]bool, len(working))
	for _, repo := range working {
		seen[repo.FullName()] = true
	}

	var added []domain.Repo
	for _, spec := range pickList(sel.Repos, sel.RepoFile, src.RepoTerm) {
		if err := validateSegments(spec, src.MinSegments, src.MaxSegments, src.RepoTerm); err != nil {
			return nil, err
		}
		repo := domain.ParseRepo(spec)
		if seen[repo.FullName()] {
			log.Debug().Str(src.RepoTerm, repo.FullName()).Msg("already fetched, skipping duplicate")
			continue
		}
		seen[repo.FullName()] = true
		added = append(added, repo)
	}

	// Explicitly-named repos arrive without visibility. When the platform
	// cannot tell us in the listing, or we are going to filter on
	// visibility anyway, each one needs a metadata fetch; a repo whose
	// metadata we cannot get is dropped rather than guessed at.
	if len(added) > 0 && (src.RequiresEnrichment || !src.IncludePublic) {
		enriched := make([]domain.Repo, 0, len(added))
		for i := range added {
			if err := r.adapter.Enrich(ctx, &added[i]); err != nil {
				log.Warn().Err(err).Str(src.RepoTerm, added[i].FullName()).
					Msgf("dropping %s, could not fetch its metadata", src.RepoTerm)
				continue
			}
			enriched = append(enriched, added[i])
		}
		added = enriched
	}
	working = append(working, added...)

	if len(working) == 0 {
		log.Info().Msgf("no %ss selected, falling back to all %ss visible to the credential", src.RepoTerm, src.RepoTerm)
		working, err = r.adapter.VisibleRepos(ctx)
		if err != nil {
			return nil, err
		}
	}

	skip := make(map[string]bool)
	for _, spec := range pickList(sel.SkipRepos, sel.SkipRepoFile, "skip-"+src.RepoTerm) {
		skip[domain.ParseRepo(spec).FullName()] = true
	}

	final := make([]domain.Repo, 0, len(working))
	for _, repo := range working {
		if skip[repo.FullName()] {
			log.Debug().Str(src.RepoTerm, repo.FullName()).Msg("on the skip list")
			continue
		}
		if !src.IncludePublic {
			if repo.Private == nil {
				log.Warn().Str(src.RepoTerm, repo.FullName()).
					Msg("visibility unknown, excluding since public repos are not counted")
				continue
			}
			if !*repo.Private {
				log.Debug().Str(src.RepoTerm, repo.FullName()).Msg("public, excluded")
				continue
			}
		}
		final = append(final, repo)
	}
	return final, nil
}

// projectTier runs the same merge/skip logic one level up for platforms
// where orgs contain projects which contain repos. Org enumeration yields
// project keys, explicit projects are unioned in, skip-projects filter, and
// each surviving project expands to its repos.
func (r *Resolver) projectTier(ctx context.Context, pl domain.ProjectLister, sel Selection, src domain.Source) ([]domain.Repo, error) {
	var projects []string
	seen := make(map[string]bool)
	for _, org := range sel.Orgs {
		list, err := pl.OrgProjects(ctx, org)
		if err != nil {
			log.Warn().Err(err).Str(src.OrgTerm, org).
				Msgf("could not list projects, continuing without this %s", src.OrgTerm)
			continue
		}
		for _, project := range list {
			if !seen[project] {
				seen[project] = true
				projects = append(projects, project)
			}
		}
	}

	for _, spec := range pickList(sel.Projects, sel.ProjectFile, "project") {
		if err := validateSegments(spec, 2, 2, "project"); err != nil {
			return nil, err
		}
		if seen[spec] {
			log.Debug().Str("project", spec).Msg("already fetched, skipping duplicate")
			continue
		}
		seen[spec] = true
		projects = append(projects, spec)
	}

	skip := make(map[string]bool)
	for _, spec := range pickList(sel.SkipProjects, sel.SkipProjectFile, "skip-project") {
		skip[spec] = true
	}

	var repos []domain.Repo
	for _, project := range projects {
		if skip[project] {
			log.Debug().Str("project", project).Msg("on the skip list")
			continue
		}
		list, err := pl.ProjectRepos(ctx, project)
		if err != nil {
			log.Warn().Err(err).Str("project", project).
				Msgf("could not list %ss, continuing without this project", src.RepoTerm)
			continue
		}
		repos = append(repos, list...)
	}
	return repos, nil
}

// pickList applies the inline-over-file precedence rule: giving both forms is
// a warning, not an error, and the file variant is ignored.
func pickList(inline, file []string, kind string) []string {
	if len(inline) > 0 && len(file) > 0 {
		log.Warn().Msgf("both an inline %s list and a %s list file were given; using the inline list", kind, kind)
	}
	if len(inline) > 0 {
		return inline
	}
	return file
}

func validateSegments(spec string, min, max int, term string) error {
	n := domain.Segments(spec)
	if n >= min && (max == 0 || n <= max) {
		return nil
	}
	if min == max {
		return fmt.Errorf("%w: %s %q must have exactly %d slash-separated path segments", ErrValidation, term, spec, min)
	}
	if max == 0 {
		return fmt.Errorf("%w: %s %q must have at least %d slash-separated path segments", ErrValidation, term, spec, min)
	}
	return fmt.Errorf("%w: %s %q must have between %d and %d slash-separated path segments", ErrValidation, term, spec, min, max)
}
