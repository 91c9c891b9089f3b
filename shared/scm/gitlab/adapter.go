// Package gitlab adapts the GitLab REST API (gitlab.com and self-managed) to
// the census adapter contract. Pagination follows Link headers; throttling
// reacts to the RateLimit-* headers. GitLab has no dedicated rate-limit
// status endpoint, so the limiter only learns its budget from real responses.
package gitlab

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/gitcensus/gitcensus/census/domain"
	"github.com/gitcensus/gitcensus/shared/scm"
)

const DefaultBaseURL = "https://gitlab.com"

type Config struct {
	// BaseURL is the instance root (without /api/v4) for self-managed
	// installs.
	BaseURL       string
	Token         string
	IncludePublic bool
	CACert        string
	Buffer        int
}

type Adapter struct {
	client  *scm.Client
	limiter scm.Limiter
	api     string
	src     domain.Source
}

func New(cfg Config) (*Adapter, error) {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	client, err := scm.NewClient(scm.ClientOptions{
		CACert: cfg.CACert,
		Headers: map[string]string{
			"PRIVATE-TOKEN": cfg.Token,
			"User-Agent":    "gitcensus",
		},
	})
	if err != nil {
		return nil, err
	}

	return &Adapter{
		client:  client,
		limiter: scm.NewHeaderLimiter(client, "RateLimit-Remaining", "RateLimit-Reset", "", cfg.Buffer),
		api:     strings.TrimSuffix(base, "/") + "/api/v4",
		src: domain.Source{
			BaseURL:       base,
			RepoTerm:      "project",
			OrgTerm:       "group",
			OrgFlag:       "--groups",
			MinSegments:   2,
			MaxSegments:   0, // subgroups nest arbitrarily deep
			IncludePublic: cfg.IncludePublic,
		},
	}, nil
}

func (a *Adapter) Source() domain.Source { return a.src }

func (a *Adapter) Commits(ctx context.Context, repo domain.Repo, since time.Time) ([]domain.Commit, error) {
	u := fmt.Sprintf("%s/projects/%s/repository/commits?since=%s&per_page=100",
		a.api, url.PathEscape(repo.FullName()), url.QueryEscape(since.UTC().Format(time.RFC3339)))
	items, err := a.list(ctx, u)
	if err != nil {
		if scm.IsStatus(err, http.StatusNotFound) {
			// A project with no repository content 404s on the commits
			// endpoint; treat it as empty rather than failing the repo.
			return []domain.Commit{}, nil
		}
		return nil, err
	}

	commits := make([]domain.Commit, 0, len(items))
	for _, item := range items {
		commits = append(commits, mapCommit(item))
	}
	return commits, nil
}

// OrgRepos lists a group's projects, including those of its subgroups.
// A 404 is retried against the user listing, since a bare name may be a user
// namespace rather than a group.
func (a *Adapter) OrgRepos(ctx context.Context, org string) ([]domain.Repo, error) {
	u := fmt.Sprintf("%s/groups/%s/projects?include_subgroups=true&per_page=100", a.api, url.PathEscape(org))
	items, err := a.list(ctx, u)
	if scm.IsStatus(err, http.StatusNotFound) {
		u = fmt.Sprintf("%s/users/%s/projects?per_page=100", a.api, url.PathEscape(org))
		items, err = a.list(ctx, u)
	}
	if err != nil {
		return nil, err
	}
	return mapProjects(items), nil
}

func (a *Adapter) VisibleRepos(ctx context.Context) ([]domain.Repo, error) {
	items, err := a.list(ctx, a.api+"/projects?membership=true&per_page=100")
	if err != nil {
		return nil, err
	}
	return mapProjects(items), nil
}

func (a *Adapter) Enrich(ctx context.Context, repo *domain.Repo) error {
	u := fmt.Sprintf("%s/projects/%s", a.api, url.PathEscape(repo.FullName()))
	page, err := a.client.Get(ctx, u, a.limiter)
	if err != nil {
		return errors.Wrapf(err, "fetching metadata for %s", repo.FullName())
	}
	body := gjson.ParseBytes(page.Body)
	repo.Private = visibility(body.Get("visibility").String())
	repo.DefaultBranch = body.Get("default_branch").String()
	return nil
}

func (a *Adapter) list(ctx context.Context, u string) ([]gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "building request for %s", u)
	}
	return a.client.FetchAll(ctx, req, &scm.LinkPager{}, a.limiter, scm.FetchOptions{})
}

func mapProjects(items []gjson.Result) []domain.Repo {
	repos := make([]domain.Repo, 0, len(items))
	for _, item := range items {
		repo := domain.ParseRepo(item.Get("path_with_namespace").String())
		repo.Private = visibility(item.Get("visibility").String())
		repo.DefaultBranch = item.Get("default_branch").String()
		repos = append(repos, repo)
	}
	return repos
}

// visibility maps GitLab's three-valued visibility onto the tri-state flag.
// Internal projects are not reachable anonymously, so they count as private.
func visibility(v string) *bool {
	if v == "" {
		return nil
	}
	return domain.Bool(v != "public")
}

func mapCommit(item gjson.Result) domain.Commit {
	return domain.Commit{
		Username: item.Get("author_name").String(),
		Email:    item.Get("author_email").String(),
		Date:     domain.CanonicalDate(item.Get("authored_date").String()),
	}
}
