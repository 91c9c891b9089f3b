package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gitcensus/gitcensus/census/application"
	"github.com/gitcensus/gitcensus/census/domain"
	"github.com/gitcensus/gitcensus/internal/config"
	"github.com/gitcensus/gitcensus/internal/output"
	"github.com/gitcensus/gitcensus/shared/scm"
	"github.com/gitcensus/gitcensus/shared/scm/azure"
	"github.com/gitcensus/gitcensus/shared/scm/bitbucket"
	"github.com/gitcensus/gitcensus/shared/scm/github"
	"github.com/gitcensus/gitcensus/shared/scm/gitlab"
	"github.com/gitcensus/gitcensus/shared/scm/gitlocal"
)

const (
	exitOK         = 0
	exitError      = 1
	exitValidation = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Parse(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(os.Stderr, err)
		return exitValidation
	}

	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	adapter, err := buildAdapter(cfg)
	if err != nil {
		log.Error().Err(err).Msg("could not set up the platform adapter")
		return exitCode(err)
	}

	agg, err := application.NewAggregator(cfg.Exclude...)
	if err != nil {
		log.Error().Err(err).Msg("invalid exclusion patterns")
		return exitCode(err)
	}

	sel, err := cfg.Selection()
	if err != nil {
		log.Error().Err(err).Msg("could not read repo list files")
		return exitCode(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	report, err := application.NewRunner(adapter, agg).Run(ctx, sel, cfg.Since(time.Now()))
	if err != nil {
		log.Error().Err(err).Msg("run failed")
		return exitCode(err)
	}

	if err := output.Render(os.Stdout, report, cfg.Format, cfg.SortBy); err != nil {
		log.Error().Err(err).Msg("could not render the report")
		return exitError
	}
	return exitOK
}

func buildAdapter(cfg *config.Config) (domain.Adapter, error) {
	buffer := scm.BufferFromEnv()

	switch cfg.Source {
	case config.SourceGitHub:
		return github.New(github.Config{
			BaseURL:       cfg.URL,
			Token:         cfg.Token,
			IncludePublic: cfg.IncludePublic,
			CACert:        cfg.CACert,
			Buffer:        buffer,
		})
	case config.SourceGitLab:
		return gitlab.New(gitlab.Config{
			BaseURL:       cfg.URL,
			Token:         cfg.Token,
			IncludePublic: cfg.IncludePublic,
			CACert:        cfg.CACert,
			Buffer:        buffer,
		})
	case config.SourceBitbucketCloud:
		return bitbucket.NewCloud(bitbucket.CloudConfig{
			BaseURL:       cfg.URL,
			Username:      cfg.User,
			Token:         cfg.Token,
			IncludePublic: cfg.IncludePublic,
			CACert:        cfg.CACert,
		})
	case config.SourceBitbucketServer:
		return bitbucket.NewServer(bitbucket.ServerConfig{
			BaseURL:       cfg.URL,
			Token:         cfg.Token,
			IncludePublic: cfg.IncludePublic,
			CACert:        cfg.CACert,
		})
	case config.SourceAzure:
		return azure.New(azure.Config{
			BaseURL:       cfg.URL,
			Token:         cfg.Token,
			IncludePublic: cfg.IncludePublic,
			CACert:        cfg.CACert,
		})
	case config.SourceLocal:
		return gitlocal.New(cfg.Path), nil
	}
	return nil, fmt.Errorf("%w: unknown source %q", application.ErrValidation, cfg.Source)
}

func exitCode(err error) int {
	if errors.Is(err, application.ErrValidation) {
		return exitValidation
	}
	return exitError
}
