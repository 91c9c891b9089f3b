package application

import (
	"fmt"
	"regexp"

	"github.com/rs/zerolog/log"

	"github.com/gitcensus/gitcensus/census/domain"
)

// noReplyPattern matches the no-reply addresses platforms attribute web edits
// and squash merges to. These are never real contributor identities and are
// always excluded.
var noReplyPattern = regexp.MustCompile(`(?i)no-?reply`)

// Aggregator folds fetched commits into one contributor map per repository
// and one global map. Both maps are fed independently from the same commits;
// the global map is not derived from the per-repo maps.
type Aggregator struct {
	exclude []*regexp.Regexp
	global  domain.ContributorMap
	perRepo map[string]domain.ContributorMap
	order   []string
}

// NewAggregator compiles any extra exclusion patterns on top of the built-in
// no-reply rule. A pattern that does not compile is a validation error.
func NewAggregator(extraPatterns ...string) (*Aggregator, error) {
	exclude := []*regexp.Regexp{noReplyPattern}
	for _, pattern := range extraPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: exclusion pattern %q does not compile: %v", ErrValidation, pattern, err)
		}
		exclude = append(exclude, re)
	}
	return &Aggregator{
		exclude: exclude,
		global:  make(domain.ContributorMap),
		perRepo: make(map[string]domain.ContributorMap),
	}, nil
}

// Track records a repository even when it contributes no commits, so an empty
// or failed repo still shows up in the output with a zero count.
func (a *Aggregator) Track(repo domain.Repo) {
	name := repo.FullName()
	if _, ok := a.perRepo[name]; !ok {
		a.perRepo[name] = make(domain.ContributorMap)
		a.order = append(a.order, name)
	}
}

// Fold upserts each non-excluded commit into the repo's map and the global
// map.
func (a *Aggregator) Fold(repo domain.Repo, commits []domain.Commit) {
	a.Track(repo)
	m := a.perRepo[repo.FullName()]
	for _, commit := range commits {
		if a.excluded(commit.Email) {
			log.Debug().Str("email", commit.Email).Str("repo", repo.FullName()).
				Msg("commit email matches an exclusion pattern")
			continue
		}
		m.Add(commit)
		a.global.Add(commit)
	}
}

func (a *Aggregator) excluded(email string) bool {
	for _, re := range a.exclude {
		if re.MatchString(email) {
			return true
		}
	}
	return false
}

// Report snapshots the aggregation result in repo processing order.
func (a *Aggregator) Report() *Report {
	repos := make([]RepoResult, 0, len(a.order))
	for _, name := range a.order {
		repos = append(repos, RepoResult{Repo: name, Contributors: a.perRepo[name]})
	}
	return &Report{Repos: repos, Contributors: a.global}
}

// RepoResult is one repository's slice of the report.
type RepoResult struct {
	Repo         string                 `json:"repo"`
	Contributors domain.ContributorMap `json:"contributors"`
}

// Report is the run's aggregate outcome handed to the output layer.
type Report struct {
	Repos        []RepoResult           `json:"repos"`
	Contributors domain.ContributorMap `json:"contributors"`
}

// Total is the number of unique active contributors across every repo.
func (r *Report) Total() int {
	return len(r.Contributors)
}
