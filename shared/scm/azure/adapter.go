// Package azure adapts the Azure DevOps REST API to the census adapter
// contract. Azure has no "next page" signal; list endpoints are walked with
// an increasing $skip until a page comes back empty. Throttling is a
// client-side reservoir, since Azure's TSTU accounting is not exposed in a
// form worth reacting to.
//
// Azure inserts a project tier between the organization and its repos, so a
// qualified repo spec is org/project/repo and the adapter also implements
// domain.ProjectLister.
package azure

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/gitcensus/gitcensus/census/domain"
	"github.com/gitcensus/gitcensus/shared/scm"
)

const (
	DefaultBaseURL = "https://dev.azure.com"

	apiVersion = "7.1"

	// DefaultRequestsPerHour sizes the reservoir.
	DefaultRequestsPerHour = 1000
)

type Config struct {
	BaseURL         string
	Token           string // personal access token
	IncludePublic   bool
	CACert          string
	RequestsPerHour int
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
			"Authorization": "Basic " + base64.StdEncoding.EncodeToString([]byte(":"+cfg.Token)),
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

	return &Adapter{
		client:  client,
		limiter: scm.NewReservoir(perHour),
		src: domain.Source{
			BaseURL:       base,
			RepoTerm:      "repo",
			OrgTerm:       "org",
			OrgFlag:       "--orgs",
			MinSegments:   3,
			MaxSegments:   3,
			IncludePublic: cfg.IncludePublic,
		},
	}, nil
}

func (a *Adapter) Source() domain.Source { return a.src }

// OrgProjects lists an org's projects as qualified "org/project" keys.
func (a *Adapter) OrgProjects(ctx context.Context, org string) ([]string, error) {
	u := fmt.Sprintf("%s/%s/_apis/projects?api-version=%s&$top=100", a.src.BaseURL, url.PathEscape(org), apiVersion)
	items, err := a.list(ctx, u, scm.FetchOptions{})
	if err != nil {
		return nil, err
	}
	projects := make([]string, 0, len(items))
	for _, item := range items {
		projects = append(projects, org+"/"+item.Get("name").String())
	}
	return projects, nil
}

// ProjectRepos lists the repos of one "org/project".
func (a *Adapter) ProjectRepos(ctx context.Context, project string) ([]domain.Repo, error) {
	org, name, err := splitProject(project)
	if err != nil {
		return nil, err
	}
	u := fmt.Sprintf("%s/%s/%s/_apis/git/repositories?api-version=%s",
		a.src.BaseURL, url.PathEscape(org), url.PathEscape(name), apiVersion)
	page, err := a.client.Get(ctx, u, a.limiter)
	if err != nil {
		return nil, err
	}

	items := gjson.GetBytes(page.Body, "value").Array()
	repos := make([]domain.Repo, 0, len(items))
	for _, item := range items {
		repos = append(repos, domain.Repo{
			Owner:         org + "/" + item.Get("project.name").String(),
			Name:          item.Get("name").String(),
			Private:       projectVisibility(item.Get("project.visibility").String()),
			DefaultBranch: item.Get("defaultBranch").String(),
		})
	}
	return repos, nil
}

// OrgRepos expands every project of the org. The resolver prefers the
// project-tier walk through ProjectLister, but the composed form keeps the
// base contract complete.
func (a *Adapter) OrgRepos(ctx context.Context, org string) ([]domain.Repo, error) {
	projects, err := a.OrgProjects(ctx, org)
	if err != nil {
		return nil, err
	}
	var repos []domain.Repo
	for _, project := range projects {
		prs, err := a.ProjectRepos(ctx, project)
		if err != nil {
			return nil, err
		}
		repos = append(repos, prs...)
	}
	return repos, nil
}

// VisibleRepos cannot be answered with a PAT alone; Azure scopes every
// listing under an organization.
func (a *Adapter) VisibleRepos(ctx context.Context) ([]domain.Repo, error) {
	return nil, errors.Errorf("Azure DevOps needs at least one %s via %s", a.src.OrgTerm, a.src.OrgFlag)
}

func (a *Adapter) Enrich(ctx context.Context, repo *domain.Repo) error {
	org, project, err := splitProject(repo.Owner)
	if err != nil {
		return err
	}
	u := fmt.Sprintf("%s/%s/%s/_apis/git/repositories/%s?api-version=%s",
		a.src.BaseURL, url.PathEscape(org), url.PathEscape(project), url.PathEscape(repo.Name), apiVersion)
	page, err := a.client.Get(ctx, u, a.limiter)
	if err != nil {
		return errors.Wrapf(err, "fetching metadata for %s", repo.FullName())
	}
	body := gjson.ParseBytes(page.Body)
	repo.Private = projectVisibility(body.Get("project.visibility").String())
	repo.DefaultBranch = body.Get("defaultBranch").String()
	return nil
}

func (a *Adapter) Commits(ctx context.Context, repo domain.Repo, since time.Time) ([]domain.Commit, error) {
	org, project, err := splitProject(repo.Owner)
	if err != nil {
		return nil, err
	}
	u := fmt.Sprintf("%s/%s/%s/_apis/git/repositories/%s/commits?api-version=%s&searchCriteria.fromDate=%s&$top=100",
		a.src.BaseURL, url.PathEscape(org), url.PathEscape(project), url.PathEscape(repo.Name), apiVersion,
		url.QueryEscape(since.UTC().Format(time.RFC3339)))

	items, err := a.list(ctx, u, scm.FetchOptions{})
	if err != nil {
		return nil, err
	}

	commits := make([]domain.Commit, 0, len(items))
	for _, item := range items {
		commits = append(commits, domain.Commit{
			Username: item.Get("author.name").String(),
			Email:    item.Get("author.email").String(),
			Date:     domain.CanonicalDate(item.Get("author.date").String()),
		})
	}
	return commits, nil
}

func (a *Adapter) list(ctx context.Context, u string, opts scm.FetchOptions) ([]gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "building request for %s", u)
	}
	pager := &scm.SkipPager{ItemsPath: "value", Param: "$skip"}
	return a.client.FetchAll(ctx, req, pager, a.limiter, opts)
}

func splitProject(project string) (org, name string, err error) {
	repo := domain.ParseRepo(project)
	if repo.Owner == "" || repo.Name == "" {
		return "", "", errors.Errorf("%q is not a qualified org/project", project)
	}
	return repo.Owner, repo.Name, nil
}

func projectVisibility(v string) *bool {
	if v == "" {
		return nil
	}
	return domain.Bool(v != "public")
}
