// Package github adapts the GitHub REST API (github.com and GitHub
// Enterprise) to the census adapter contract. Pagination follows Link
// headers; throttling reacts to the X-RateLimit-* headers, primed from the
// /rate_limit endpoint.
package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/gitcensus/gitcensus/census/domain"
	"github.com/gitcensus/gitcensus/shared/scm"
)

const DefaultBaseURL = "https://api.github.com"

// Config carries what the adapter needs from the run configuration.
type Config struct {
	// BaseURL overrides the api.github.com root for Enterprise instances.
	BaseURL       string
	Token         string
	IncludePublic bool
	CACert        string
	// Buffer is the rate-limit safety buffer; zero means the default.
	Buffer int
}

type Adapter struct {
	client  *scm.Client
	limiter scm.Limiter
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
			"Accept":        "application/vnd.github+json",
			"Authorization": "Bearer " + cfg.Token,
			"User-Agent":    "gitcensus",
		},
	})
	if err != nil {
		return nil, err
	}

	return &Adapter{
		client:  client,
		limiter: scm.NewHeaderLimiter(client, "X-RateLimit-Remaining", "X-RateLimit-Reset", base+"/rate_limit", cfg.Buffer),
		src: domain.Source{
			BaseURL:       base,
			RepoTerm:      "repo",
			OrgTerm:       "org",
			OrgFlag:       "--orgs",
			MinSegments:   2,
			MaxSegments:   2,
			IncludePublic: cfg.IncludePublic,
		},
	}, nil
}

func (a *Adapter) Source() domain.Source { return a.src }

// Commits lists commits authored on or after since. GitHub answers 409 for a
// repository with no commits; that is an empty result, not a failure.
func (a *Adapter) Commits(ctx context.Context, repo domain.Repo, since time.Time) ([]domain.Commit, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/commits?since=%s&per_page=100",
		a.src.BaseURL, url.PathEscape(repo.Owner), url.PathEscape(repo.Name),
		url.QueryEscape(since.UTC().Format(time.RFC3339)))

	items, err := a.list(ctx, u, scm.FetchOptions{})
	if err != nil {
		if scm.IsStatus(err, http.StatusConflict) {
			log.Debug().Str("repo", repo.FullName()).Msg("repository is empty")
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

// OrgRepos lists an org's repos. A 404 may just mean the name is a user
// account, so it is retried against the user listing before failing.
func (a *Adapter) OrgRepos(ctx context.Context, org string) ([]domain.Repo, error) {
	items, err := a.list(ctx, fmt.Sprintf("%s/orgs/%s/repos?per_page=100", a.src.BaseURL, url.PathEscape(org)), scm.FetchOptions{})
	if scm.IsStatus(err, http.StatusNotFound) {
		log.Debug().Str("org", org).Msg("not an org, retrying as user account")
		items, err = a.list(ctx, fmt.Sprintf("%s/users/%s/repos?per_page=100", a.src.BaseURL, url.PathEscape(org)), scm.FetchOptions{})
	}
	if err != nil {
		return nil, err
	}
	return mapRepos(items), nil
}

func (a *Adapter) VisibleRepos(ctx context.Context) ([]domain.Repo, error) {
	items, err := a.list(ctx, a.src.BaseURL+"/user/repos?per_page=100", scm.FetchOptions{})
	if err != nil {
		return nil, err
	}
	return mapRepos(items), nil
}

func (a *Adapter) Enrich(ctx context.Context, repo *domain.Repo) error {
	u := fmt.Sprintf("%s/repos/%s/%s", a.src.BaseURL, url.PathEscape(repo.Owner), url.PathEscape(repo.Name))
	page, err := a.client.Get(ctx, u, a.limiter)
	if err != nil {
		return errors.Wrapf(err, "fetching metadata for %s", repo.FullName())
	}
	body := gjson.ParseBytes(page.Body)
	repo.Private = domain.Bool(body.Get("private").Bool())
	repo.DefaultBranch = body.Get("default_branch").String()
	return nil
}

func (a *Adapter) list(ctx context.Context, u string, opts scm.FetchOptions) ([]gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "building request for %s", u)
	}
	return a.client.FetchAll(ctx, req, &scm.LinkPager{}, a.limiter, opts)
}

func mapRepos(items []gjson.Result) []domain.Repo {
	repos := make([]domain.Repo, 0, len(items))
	for _, item := range items {
		repos = append(repos, domain.Repo{
			Owner:         item.Get("owner.login").String(),
			Name:          item.Get("name").String(),
			Private:       domain.Bool(item.Get("private").Bool()),
			DefaultBranch: item.Get("default_branch").String(),
		})
	}
	return repos
}

func mapCommit(item gjson.Result) domain.Commit {
	username := item.Get("author.login").String()
	if username == "" {
		username = item.Get("commit.author.name").String()
	}
	return domain.Commit{
		Username: username,
		Email:    item.Get("commit.author.email").String(),
		Date:     domain.CanonicalDate(item.Get("commit.author.date").String()),
	}
}
