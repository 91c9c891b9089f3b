package application

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gitcensus/gitcensus/census/domain"
)

// Runner is the run pipeline: resolve the repo list, then fetch and fold each
// repo's commits in order. Repos are processed strictly sequentially; that
// keeps the adapter's rate-limit accounting trivially correct.
type Runner struct {
	adapter  domain.Adapter
	resolver *Resolver
	agg      *Aggregator
}

func NewRunner(adapter domain.Adapter, agg *Aggregator) *Runner {
	return &Runner{
		adapter:  adapter,
		resolver: NewResolver(adapter),
		agg:      agg,
	}
}

// Run executes the pipeline. Resolution errors abort; a commit-fetch failure
// is logged with the repo's identity and that repo is reported with zero
// contributors.
func (r *Runner) Run(ctx context.Context, sel Selection, since time.Time) (*Report, error) {
	repos, err := r.resolver.Resolve(ctx, sel)
	if err != nil {
		return nil, err
	}

	src := r.adapter.Source()
	log.Info().
		Int("repos", len(repos)).
		Time("since", since).
		Msgf("counting contributors across %d %ss", len(repos), src.RepoTerm)

	for _, repo := range repos {
		commits, err := r.adapter.Commits(ctx, repo, since)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn().Err(err).Str(src.RepoTerm, repo.FullName()).
				Msg("commit fetch failed, reporting zero contributors for it")
			r.agg.Track(repo)
			continue
		}
		log.Debug().Str(src.RepoTerm, repo.FullName()).Int("commits", len(commits)).Msg("fetched")
		r.agg.Fold(repo, commits)
	}
	return r.agg.Report(), nil
}
