package bitbucket

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

// ServerConfig configures the Bitbucket Server / Data Center adapter.
// BaseURL is required; there is no hosted default.
type ServerConfig struct {
	BaseURL         string
	Token           string
	IncludePublic   bool
	CACert          string
	RequestsPerHour int
}

type Server struct {
	client  *scm.Client
	limiter scm.Limiter
	api     string
	src     domain.Source
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("bitbucket server requires --url")
	}
	client, err := scm.NewClient(scm.ClientOptions{
		CACert: cfg.CACert,
		Headers: map[string]string{
			"Authorization": "Bearer " + cfg.Token,
			"User-Agent":    "gitcensus",
		},
	})
	if err != nil {
		return nil, err
	}

	perHour := cfg.RequestsPerHour
	if perHour <= 0 {
		perHour = DefaultRequestsPerHour
	}

	return &Server{
		client:  client,
		limiter: scm.NewReservoir(perHour),
		api:     strings.TrimSuffix(cfg.BaseURL, "/") + "/rest/api/1.0",
		src: domain.Source{
			BaseURL:            cfg.BaseURL,
			RepoTerm:           "repo",
			OrgTerm:            "project",
			OrgFlag:            "--projects",
			MinSegments:        2,
			MaxSegments:        2,
			IncludePublic:      cfg.IncludePublic,
			RequiresEnrichment: true,
		},
	}, nil
}

func (a *Server) Source() domain.Source { return a.src }

// Commits walks the commit list newest-first and stops at the first commit
// older than since; the endpoint has no date filter.
func (a *Server) Commits(ctx context.Context, repo domain.Repo, since time.Time) ([]domain.Commit, error) {
	u := fmt.Sprintf("%s/projects/%s/repos/%s/commits?limit=100",
		a.api, url.PathEscape(repo.Owner), url.PathEscape(repo.Name))
	cutoffMillis := since.UnixMilli()

	items, err := a.list(ctx, u, scm.FetchOptions{
		Stop: func(item gjson.Result) bool {
			return item.Get("authorTimestamp").Int() < cutoffMillis
		},
	})
	if err != nil {
		return nil, err
	}

	commits := make([]domain.Commit, 0, len(items))
	for _, item := range items {
		commits = append(commits, mapServerCommit(item))
	}
	return commits, nil
}

func (a *Server) OrgRepos(ctx context.Context, org string) ([]domain.Repo, error) {
	u := fmt.Sprintf("%s/projects/%s/repos?limit=100", a.api, url.PathEscape(org))
	items, err := a.list(ctx, u, scm.FetchOptions{})
	if err != nil {
		return nil, err
	}
	return mapServerRepos(items), nil
}

func (a *Server) VisibleRepos(ctx context.Context) ([]domain.Repo, error) {
	items, err := a.list(ctx, a.api+"/repos?limit=100", scm.FetchOptions{})
	if err != nil {
		return nil, err
	}
	return mapServerRepos(items), nil
}

func (a *Server) Enrich(ctx context.Context, repo *domain.Repo) error {
	u := fmt.Sprintf("%s/projects/%s/repos/%s", a.api, url.PathEscape(repo.Owner), url.PathEscape(repo.Name))
	page, err := a.client.Get(ctx, u, a.limiter)
	if err != nil {
		return errors.Wrapf(err, "fetching metadata for %s", repo.FullName())
	}
	repo.Private = domain.Bool(!gjson.GetBytes(page.Body, "public").Bool())
	return nil
}

func (a *Server) list(ctx context.Context, u string, opts scm.FetchOptions) ([]gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "building request for %s", u)
	}
	pager := &scm.OffsetPager{ItemsPath: "values", NextPath: "nextPageStart", Param: "start"}
	return a.client.FetchAll(ctx, req, pager, a.limiter, opts)
}

func mapServerRepos(items []gjson.Result) []domain.Repo {
	repos := make([]domain.Repo, 0, len(items))
	for _, item := range items {
		repo := domain.Repo{
			Owner: item.Get("project.key").String(),
			Name:  item.Get("slug").String(),
		}
		if v := item.Get("public"); v.Exists() {
			repo.Private = domain.Bool(!v.Bool())
		}
		repos = append(repos, repo)
	}
	return repos
}

func mapServerCommit(item gjson.Result) domain.Commit {
	username := item.Get("author.displayName").String()
	if username == "" {
		username = item.Get("author.name").String()
	}
	return domain.Commit{
		Username: username,
		Email:    item.Get("author.emailAddress").String(),
		Date:     domain.DateOf(time.UnixMilli(item.Get("authorTimestamp").Int())),
	}
}
