package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Phil-Grim/london-properties-analysis/config"
	"github.com/Phil-Grim/london-properties-analysis/internal/api"
	"github.com/Phil-Grim/london-properties-analysis/internal/database"
	"github.com/Phil-Grim/london-properties-analysis/internal/fetch"
	"github.com/Phil-Grim/london-properties-analysis/internal/lock"
	"github.com/Phil-Grim/london-properties-analysis/internal/notify"
	"github.com/Phil-Grim/london-properties-analysis/internal/pipeline"
	"github.com/Phil-Grim/london-properties-analysis/internal/processor"
	"github.com/Phil-Grim/london-properties-analysis/internal/scheduler"
	"github.com/Phil-Grim/london-properties-analysis/internal/scraping"
	"github.com/Phil-Grim/london-properties-analysis/internal/search"
	"github.com/Phil-Grim/london-properties-analysis/internal/storage"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	testMode := flag.Bool("test", false, "crawl only the first result page after page 0")
	serve := flag.Bool("serve", false, "run the daily scheduler and the operator API")
	upload := flag.String("upload", "", "upload a reference file as local_path=logical_path and exit")
	flag.Parse()

	if err := run(logger, *testMode, *serve, *upload); err != nil {
		logger.WithError(err).Fatal("Ingest failed")
	}
}

func run(logger *logrus.Logger, testMode, serve bool, upload string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if testMode {
		cfg.Crawl.TestMode = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if upload != "" {
		return uploadReference(ctx, logger, store, upload)
	}

	logger.Infof("Using database at: %s", cfg.Catalog.SQLitePath)
	db, err := database.NewDatabase(cfg.Catalog.SQLitePath)
	if err != nil {
		return err
	}
	defer db.Close()

	logger.Info("Running database migrations...")
	if err := db.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	catalog, closeCatalog, err := openCatalog(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeCatalog()

	locker, closeLocker, err := openLocker(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLocker()

	notifier, closeNotifier := openNotifier(cfg, logger)
	defer closeNotifier()

	crawler, criteria, err := newCrawler(cfg, logger)
	if err != nil {
		return err
	}

	schema, err := config.LoadSchema()
	if err != nil {
		return err
	}
	ingestor := processor.NewIngestor(store, catalog, schema, processor.IngestorConfig{
		TableName:  cfg.Catalog.TableName,
		TempDir:    cfg.Storage.TempDir,
		MaxRetries: cfg.Storage.MaxRetries,
		RetryDelay: cfg.Storage.RetryDelay,
	}, logger)

	runner := pipeline.NewRunner(pipeline.Options{
		Crawler:    crawler,
		Ingester:   ingestor,
		Runs:       db,
		Locker:     locker,
		Notifier:   notifier,
		Criteria:   criteria,
		RunTimeout: cfg.Crawl.RunTimeout,
	}, logger)

	if serve {
		return serveDaemon(ctx, cfg, logger, db, runner)
	}

	_, err = runner.Run(ctx, cfg.Crawl.TestMode)
	return err
}

func newCrawler(cfg *config.Config, logger *logrus.Logger) (*scraping.Crawler, search.Criteria, error) {
	criteria, err := search.NewCriteria(
		cfg.Search.LocationIdentifier,
		cfg.Search.PropertyTypes,
		cfg.Search.MaxDaysSinceAdded,
		cfg.Search.Keywords,
	)
	if err != nil {
		return nil, search.Criteria{}, err
	}

	client := fetch.NewClient(cfg.Source.RequestTimeout, cfg.Source.UserAgent)
	retrier := &fetch.Retrier{
		Attempts:   cfg.Crawl.FetchAttempts,
		BackoffMin: cfg.Crawl.RetryBackoffMin,
		BackoffMax: cfg.Crawl.RetryBackoffMax,
		Logger:     logger,
	}

	paginator := scraping.NewPaginator(client, retrier, scraping.PaginatorOptions{
		SearchURL: strings.TrimRight(cfg.Source.BaseURL, "/") + cfg.Source.SearchPath,
		DelayMin:  cfg.Crawl.PageDelayMin,
		DelayMax:  cfg.Crawl.PageDelayMax,
	}, logger)

	extractor, err := scraping.NewExtractor(client, retrier, scraping.ExtractorOptions{
		BaseURL:             cfg.Source.BaseURL,
		DescriptionSelector: cfg.Source.DescriptionSelector,
	})
	if err != nil {
		return nil, search.Criteria{}, err
	}

	return scraping.NewCrawler(paginator, extractor, cfg.Crawl.Workers, cfg.Crawl.RequestsPerSecond, logger), criteria, nil
}

func openStore(ctx context.Context, cfg *config.Config) (storage.BlobStore, func(), error) {
	switch cfg.Storage.Backend {
	case "gcs":
		store, err := storage.NewGCSStore(ctx, cfg.Storage.Bucket)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case "local", "":
		store, err := storage.NewDirStore(cfg.Storage.LocalDir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func openCatalog(ctx context.Context, cfg *config.Config, db *database.Database) (database.Catalog, func(), error) {
	switch cfg.Catalog.Backend {
	case "postgres":
		catalog, err := database.NewPostgresCatalog(ctx, cfg.Catalog.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return catalog, catalog.Close, nil
	case "sqlite", "":
		return db, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown catalog backend %q", cfg.Catalog.Backend)
	}
}

func openLocker(ctx context.Context, cfg *config.Config) (lock.Locker, func(), error) {
	if cfg.Redis.Addr == "" {
		return lock.NewLocal(), func() {}, nil
	}
	locker := lock.NewRedis(cfg.Redis.Addr, cfg.Redis.LockTTL)
	if err := locker.Ping(ctx); err != nil {
		_ = locker.Close()
		return nil, nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
	}
	return locker, func() { _ = locker.Close() }, nil
}

func openNotifier(cfg *config.Config, logger *logrus.Logger) (notify.Notifier, func()) {
	var notifiers notify.Multi
	closeFn := func() {}

	if cfg.Notify.TelegramToken != "" {
		notifiers = append(notifiers, notify.NewTelegram(cfg.Notify.TelegramAPIURL, cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID, logger))
	}
	if cfg.Notify.KafkaBroker != "" {
		publisher := notify.NewKafkaPublisher(cfg.Notify.KafkaBroker, cfg.Notify.KafkaTopic)
		notifiers = append(notifiers, publisher)
		closeFn = func() { _ = publisher.Close() }
	}

	if len(notifiers) == 0 {
		return nil, closeFn
	}
	return notifiers, closeFn
}

func uploadReference(ctx context.Context, logger *logrus.Logger, store storage.BlobStore, arg string) error {
	local, logical, ok := strings.Cut(arg, "=")
	if !ok || local == "" || logical == "" {
		return fmt.Errorf("invalid -upload %q, want local_path=logical_path", arg)
	}
	if err := store.Upload(ctx, local, logical); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"local_path": local,
		"uri":        store.URI(logical),
	}).Info("Reference file uploaded")
	return nil
}

func serveDaemon(ctx context.Context, cfg *config.Config, logger *logrus.Logger, db *database.Database, runner *pipeline.Runner) error {
	sched := scheduler.NewScheduler(func(ctx context.Context, _ scheduler.JobType) error {
		_, err := runner.Run(ctx, cfg.Crawl.TestMode)
		return err
	}, cfg.Schedule.Hour, cfg.Schedule.Minute, false, logger)
	sched.Start()
	defer sched.Stop()

	handler := api.NewHandler(ctx, db, runner, logger)
	srv := &http.Server{
		Addr:    cfg.API.Addr,
		Handler: api.NewRouter(handler),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Starting server on %s", cfg.API.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Server shutdown incomplete")
	}
	handler.Wait()
	return nil
}
