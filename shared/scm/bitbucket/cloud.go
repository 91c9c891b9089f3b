// Package bitbucket adapts Bitbucket Cloud and Bitbucket Server (Data
// Center) to the census adapter contract. Neither commits endpoint accepts a
// date filter, so both variants rely on the engine's predicate truncation
// over the date-descending commit order; and neither exposes usable
// rate-limit headers, so both throttle with a client-side reservoir.
package bitbucket

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/gitcensus/gitcensus/census/domain"
	"github.com/gitcensus/gitcensus/shared/scm"
)

const (
	DefaultCloudBaseURL = "https://api.bitbucket.org/2.0"

	// DefaultRequestsPerHour sizes the reservoir. Bitbucket Cloud allows
	// 1000 API requests per hour for most endpoints.
	DefaultRequestsPerHour = 1000
)

// CloudConfig configures the Bitbucket Cloud adapter. Username plus app
// password is the usual credential pair; with Username empty, Token is sent
// as a bearer access token instead.
type CloudConfig struct {
	BaseURL         string
	Username        string
	Token           string
	IncludePublic   bool
	CACert          string
	RequestsPerHour int
}

type Cloud struct {
	client  *scm.Client
	limiter scm.Limiter
	src     domain.Source
}

func NewCloud(cfg CloudConfig) (*Cloud, error) {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultCloudBaseURL
	}
	client, err := scm.NewClient(scm.ClientOptions{
		CACert: cfg.CACert,
		Headers: map[string]string{
			"Authorization": authHeader(cfg.Username, cfg.Token),
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

	return &Cloud{
		client:  client,
		limiter: scm.NewReservoir(perHour),
		src: domain.Source{
			BaseURL:       base,
			RepoTerm:      "repo",
			OrgTerm:       "workspace",
			OrgFlag:       "--workspaces",
			MinSegments:   2,
			MaxSegments:   2,
			IncludePublic: cfg.IncludePublic,
			// Workspace listings carry visibility, but membership in a
			// workspace says nothing about an explicitly-named repo, so
			// added repos always get a metadata fetch.
			RequiresEnrichment: true,
		},
	}, nil
}

func (a *Cloud) Source() domain.Source { return a.src }

// Commits walks the commit list newest-first and stops at the first commit
// older than since. Bitbucket Cloud has no server-side date filter.
func (a *Cloud) Commits(ctx context.Context, repo domain.Repo, since time.Time) ([]domain.Commit, error) {
	u := fmt.Sprintf("%s/repositories/%s/%s/commits?pagelen=100",
		a.src.BaseURL, url.PathEscape(repo.Owner), url.PathEscape(repo.Name))
	cutoff := domain.DateOf(since)

	items, err := a.list(ctx, u, &scm.CursorPager{ItemsPath: "values", NextPath: "next"}, scm.FetchOptions{
		Stop: func(item gjson.Result) bool {
			return domain.CanonicalDate(item.Get("date").String()) < cutoff
		},
	})
	if err != nil {
		if scm.IsStatus(err, http.StatusNotFound) {
			// The commits endpoint 404s on a repository with no commits.
			log.Debug().Str("repo", repo.FullName()).Msg("repository is empty")
			return []domain.Commit{}, nil
		}
		return nil, err
	}

	commits := make([]domain.Commit, 0, len(items))
	for _, item := range items {
		commits = append(commits, mapCloudCommit(item))
	}
	return commits, nil
}

func (a *Cloud) OrgRepos(ctx context.Context, org string) ([]domain.Repo, error) {
	u := fmt.Sprintf("%s/repositories/%s?pagelen=100", a.src.BaseURL, url.PathEscape(org))
	items, err := a.list(ctx, u, &scm.CursorPager{ItemsPath: "values", NextPath: "next"}, scm.FetchOptions{})
	if err != nil {
		return nil, err
	}
	return mapCloudRepos(items), nil
}

func (a *Cloud) VisibleRepos(ctx context.Context) ([]domain.Repo, error) {
	u := a.src.BaseURL + "/repositories?role=member&pagelen=100"
	items, err := a.list(ctx, u, &scm.CursorPager{ItemsPath: "values", NextPath: "next"}, scm.FetchOptions{})
	if err != nil {
		return nil, err
	}
	return mapCloudRepos(items), nil
}

func (a *Cloud) Enrich(ctx context.Context, repo *domain.Repo) error {
	u := fmt.Sprintf("%s/repositories/%s/%s", a.src.BaseURL, url.PathEscape(repo.Owner), url.PathEscape(repo.Name))
	page, err := a.client.Get(ctx, u, a.limiter)
	if err != nil {
		return errors.Wrapf(err, "fetching metadata for %s", repo.FullName())
	}
	body := gjson.ParseBytes(page.Body)
	repo.Private = domain.Bool(body.Get("is_private").Bool())
	repo.DefaultBranch = body.Get("mainbranch.name").String()
	return nil
}

func (a *Cloud) list(ctx context.Context, u string, pager scm.Pager, opts scm.FetchOptions) ([]gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "building request for %s", u)
	}
	return a.client.FetchAll(ctx, req, pager, a.limiter, opts)
}

func mapCloudRepos(items []gjson.Result) []domain.Repo {
	repos := make([]domain.Repo, 0, len(items))
	for _, item := range items {
		repo := domain.ParseRepo(item.Get("full_name").String())
		if v := item.Get("is_private"); v.Exists() {
			repo.Private = domain.Bool(v.Bool())
		}
		repo.DefaultBranch = item.Get("mainbranch.name").String()
		repos = append(repos, repo)
	}
	return repos
}

func mapCloudCommit(item gjson.Result) domain.Commit {
	username := item.Get("author.user.display_name").String()
	name, email := splitRawAuthor(item.Get("author.raw").String())
	if username == "" {
		username = name
	}
	return domain.Commit{
		Username: username,
		Email:    email,
		Date:     domain.CanonicalDate(item.Get("date").String()),
	}
}

// splitRawAuthor splits git's "Name <email>" author form.
func splitRawAuthor(raw string) (name, email string) {
	open := strings.LastIndex(raw, "<")
	end := strings.LastIndex(raw, ">")
	if open < 0 || end < open {
		return strings.TrimSpace(raw), ""
	}
	return strings.TrimSpace(raw[:open]), strings.TrimSpace(raw[open+1 : end])
}

func authHeader(username, token string) string {
	if username == "" {
		return "Bearer " + token
	}
	cred := base64.StdEncoding.EncodeToString([]byte(username + ":" + token))
	return "Basic " + cred
}
