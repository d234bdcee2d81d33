package wire

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/wire"
	"github.com/jmoiron/sqlx"

	"github.com/sevigo/patch-warden/internal/app"
	"github.com/sevigo/patch-warden/internal/config"
	"github.com/sevigo/patch-warden/internal/core"
	"github.com/sevigo/patch-warden/internal/db"
	"github.com/sevigo/patch-warden/internal/github"
	"github.com/sevigo/patch-warden/internal/hgutil"
	"github.com/sevigo/patch-warden/internal/jobs"
	"github.com/sevigo/patch-warden/internal/logger"
	"github.com/sevigo/patch-warden/internal/mapping"
	"github.com/sevigo/patch-warden/internal/phabricator"
	"github.com/sevigo/patch-warden/internal/report"
	"github.com/sevigo/patch-warden/internal/repomanager"
	"github.com/sevigo/patch-warden/internal/server"
	"github.com/sevigo/patch-warden/internal/server/handler"
	"github.com/sevigo/patch-warden/internal/storage"
	"github.com/sevigo/patch-warden/internal/treestatus"
	"github.com/sevigo/patch-warden/internal/visibility"
)

// AppSet provides every component of the service.
var AppSet = wire.NewSet(
	app.NewApp,
	server.NewServer,
	config.LoadConfig,
	logger.NewLogger,
	storage.NewStore,
	provideLoggerConfig,
	provideLogWriter,
	provideDatabase,
	provideSqlx,
	provideHTTPClient,
	providePhabricator,
	provideCommitLookup,
	provideMapper,
	provideHgClient,
	provideRepositories,
	provideLookups,
	provideTracker,
	provideTreeStatus,
	provideTryWorker,
	providePublisher,
	providePipeline,
	provideDispatcher,
	wire.Bind(new(core.JobDispatcher), new(jobs.Dispatcher)),
	wire.Bind(new(handler.ScopeLoader), new(storage.Store)),
	wire.Bind(new(app.Cloner), new(*repomanager.Manager)),
)

func provideLoggerConfig(cfg *config.Config) logger.Config {
	return cfg.Logging
}

// provideLogWriter defers to the configured output.
func provideLogWriter() io.Writer {
	return nil
}

func provideDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*db.DB, func(), error) {
	return db.NewDatabase(ctx, &cfg.Database, logger)
}

func provideSqlx(conn *db.DB) *sqlx.DB {
	return conn.DB
}

func provideHTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxConnsPerHost:     10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   2 * time.Minute,
	}
}

func providePhabricator(cfg *config.Config, client *http.Client, logger *slog.Logger) *phabricator.Client {
	return phabricator.NewClient(cfg.Phabricator.URL, cfg.Phabricator.Token, client, logger)
}

func provideCommitLookup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (github.CommitLookup, error) {
	return github.NewCommitLookupFromConfig(ctx, cfg.GitHub, logger)
}

func provideMapper(cfg *config.Config, client *http.Client, logger *slog.Logger) *mapping.Client {
	return mapping.NewClient(cfg.Mapping.URL, cfg.Mapping.Repo, client, logger)
}

func provideHgClient(cfg *config.Config, logger *slog.Logger) *hgutil.Client {
	return hgutil.NewClient(hgutil.NewExecRunner(cfg.Hg.Binary), logger)
}

func provideRepositories(cfg *config.Config, client *hgutil.Client, commits github.CommitLookup, mapper *mapping.Client, logger *slog.Logger) *repomanager.Manager {
	return repomanager.NewManagerFromConfig(cfg, client, repomanager.Options{
		Commits: commits,
		Mapper:  mapper,
	}, logger)
}

func provideLookups(ctx context.Context, cfg *config.Config, phab *phabricator.Client, repos *repomanager.Manager, logger *slog.Logger) (*app.Lookups, error) {
	return app.ResolveLookups(ctx, phab, cfg, repos, logger)
}

func provideTracker(cfg *config.Config, phab *phabricator.Client, lookups *app.Lookups, logger *slog.Logger) *visibility.Tracker {
	return visibility.NewTracker(phab, lookups.SecureProjects, cfg.Visibility, logger)
}

func provideTreeStatus(cfg *config.Config, client *http.Client, logger *slog.Logger) *treestatus.Client {
	return treestatus.NewClient(cfg.TreeStatus.URL, client, logger)
}

func provideTryWorker(cfg *config.Config, status *treestatus.Client, logger *slog.Logger) *jobs.TryWorker {
	return jobs.NewTryWorker(cfg, status, logger)
}

func providePublisher(cfg *config.Config, phab *phabricator.Client, logger *slog.Logger) *report.Publisher {
	return report.NewPublisher(phab, cfg.Phabricator.Publish, logger)
}

func providePipeline(
	cfg *config.Config,
	tracker *visibility.Tracker,
	phab *phabricator.Client,
	repos *repomanager.Manager,
	worker *jobs.TryWorker,
	publisher *report.Publisher,
	lookups *app.Lookups,
	logger *slog.Logger,
) *jobs.Pipeline {
	return jobs.NewPipeline(tracker, phab, repos, worker, publisher, lookups.Blacklist, cfg.Phabricator.PollInterval, logger)
}

func provideDispatcher(cfg *config.Config, pipeline *jobs.Pipeline, logger *slog.Logger) jobs.Dispatcher {
	return jobs.NewDispatcher(pipeline, cfg.Server.QueueSize, logger)
}
