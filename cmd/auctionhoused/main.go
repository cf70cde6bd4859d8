package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/jensholdgaard/auctionhouse/internal/announce"
	"github.com/jensholdgaard/auctionhouse/internal/api"
	"github.com/jensholdgaard/auctionhouse/internal/auction"
	"github.com/jensholdgaard/auctionhouse/internal/clock"
	"github.com/jensholdgaard/auctionhouse/internal/config"
	"github.com/jensholdgaard/auctionhouse/internal/economy"
	"github.com/jensholdgaard/auctionhouse/internal/health"
	"github.com/jensholdgaard/auctionhouse/internal/leader"
	"github.com/jensholdgaard/auctionhouse/internal/mailbox"
	"github.com/jensholdgaard/auctionhouse/internal/scheduler"
	"github.com/jensholdgaard/auctionhouse/internal/store"
	"github.com/jensholdgaard/auctionhouse/internal/telemetry"
	"github.com/jensholdgaard/auctionhouse/internal/txlog"

	// Register store drivers so they are available via store.OpenBackend.
	_ "github.com/jensholdgaard/auctionhouse/internal/store/filestore"
	_ "github.com/jensholdgaard/auctionhouse/internal/store/postgres"
	_ "github.com/jensholdgaard/auctionhouse/internal/store/sqlitestore"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("reading .env failed", slog.Any("error", err))
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

// collections bundles the four snapshot-backed collections.
type collections struct {
	auctions     *store.Collection[auction.Auction]
	mailbox      *store.Collection[mailbox.Item]
	transactions *store.Collection[txlog.Transaction]
	accounts     *store.Collection[economy.Account]
}

func (c *collections) Close() error {
	var errs error
	if c.auctions != nil {
		errs = multierr.Append(errs, c.auctions.Close())
	}
	if c.mailbox != nil {
		errs = multierr.Append(errs, c.mailbox.Close())
	}
	if c.transactions != nil {
		errs = multierr.Append(errs, c.transactions.Close())
	}
	if c.accounts != nil {
		errs = multierr.Append(errs, c.accounts.Close())
	}
	return errs
}

func openCollections(ctx context.Context, backend store.Backend, opts store.Options) (*collections, error) {
	c := &collections{}
	var err error
	if c.auctions, err = store.Open[auction.Auction](ctx, auction.CollectionName, backend, store.JSONCodec[auction.Auction]{}, opts); err != nil {
		return nil, multierr.Append(err, c.Close())
	}
	if c.mailbox, err = store.Open[mailbox.Item](ctx, mailbox.CollectionName, backend, store.JSONCodec[mailbox.Item]{}, opts); err != nil {
		return nil, multierr.Append(err, c.Close())
	}
	if c.transactions, err = store.Open[txlog.Transaction](ctx, txlog.CollectionName, backend, store.JSONCodec[txlog.Transaction]{}, opts); err != nil {
		return nil, multierr.Append(err, c.Close())
	}
	if c.accounts, err = store.Open[economy.Account](ctx, economy.CollectionName, backend, store.JSONCodec[economy.Account]{}, opts); err != nil {
		return nil, multierr.Append(err, c.Close())
	}
	return c, nil
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	tp, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewNopProvider()
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clock.Real{}

	backend, err := store.OpenBackend(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Storage.Driver, err)
	}
	defer backend.Close()

	cols, err := openCollections(ctx, backend, store.Options{
		Logger:         logger,
		TracerProvider: tp.TracerProvider,
		MeterProvider:  tp.MeterProvider,
	})
	if err != nil {
		return fmt.Errorf("loading collections: %w", err)
	}
	defer func() {
		if closeErr := cols.Close(); closeErr != nil {
			logger.Error("closing collections", slog.Any("error", closeErr))
		}
	}()

	logger.InfoContext(ctx, "storage ready",
		slog.String("driver", cfg.Storage.Driver),
		slog.Int("auctions", cols.auctions.Len()),
		slog.Int("mailbox", cols.mailbox.Len()),
	)

	ledger := economy.NewLedger(cols.accounts, cfg.Economy, logger, tp.TracerProvider, clk)
	mail := mailbox.NewService(cols.mailbox, ledger, mailbox.Handoff{}, cfg.Mailbox, logger, tp.TracerProvider, clk)
	txs := txlog.New(cols.transactions, logger, tp.TracerProvider)

	var notifier auction.Notifier = announce.Nop{}
	if cfg.Announce.Enabled {
		discord, discordErr := announce.NewDiscord(cfg.Announce, ledger, logger, tp.TracerProvider)
		if discordErr != nil {
			return fmt.Errorf("creating announcer: %w", discordErr)
		}
		defer func() {
			if closeErr := discord.Close(); closeErr != nil {
				logger.Error("closing announcer", slog.Any("error", closeErr))
			}
		}()
		notifier = discord
	}

	auctions := auction.NewService(cols.auctions, ledger, mail, txs, notifier, cfg.Auction, logger, tp.TracerProvider, clk)

	healthHandler := health.NewHandler(clk, health.Ping("storage", backend))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	sweeps, closeSweeps, err := newSchedulers(cfg, auctions, mail, clk, logger, scheduler.NewMetrics(reg), healthHandler)
	if err != nil {
		return fmt.Errorf("creating schedulers: %w", err)
	}
	defer closeSweeps()

	router := chi.NewRouter()
	router.Get("/healthz", healthHandler.LivenessHandler())
	router.Get("/readyz", healthHandler.ReadinessHandler())
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	router.Mount("/v1", api.New(auctions, mail, ledger, txs, logger).Routes())

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.InfoContext(gctx, "starting http server", slog.Int("port", cfg.Server.Port))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", listenErr)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		healthHandler.SetReady(false)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		if !cfg.LeaderElection.Enabled {
			return runSchedulers(gctx, sweeps)
		}
		client, clientErr := leader.InClusterClient()
		if clientErr != nil {
			return fmt.Errorf("leader election: %w", clientErr)
		}
		elector := leader.NewElector(client, cfg.LeaderElection, logger)
		return elector.Campaign(gctx, func(lctx context.Context) {
			if runErr := runSchedulers(lctx, sweeps); runErr != nil {
				logger.ErrorContext(lctx, "scheduler stopped", slog.Any("error", runErr))
			}
			logger.InfoContext(lctx, "sweeps paused", slog.String("identity", elector.Identity()))
		})
	})

	healthHandler.SetReady(true)
	logger.InfoContext(ctx, "auctionhouse is running", slog.String("version", version))

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// newSchedulers builds the expiry and retention schedulers. Each gets its
// own lock: a Redis lock shared across replicas when scheduler.redis_addr is
// set, otherwise an in-process one.
func newSchedulers(
	cfg *config.Config,
	auctions *auction.Service,
	mail *mailbox.Service,
	clk clock.Clock,
	logger *slog.Logger,
	metrics *scheduler.Metrics,
	hh *health.Handler,
) ([]*scheduler.Service, func(), error) {
	sc := cfg.Scheduler
	closeFn := func() {}

	newLock := func(string) (scheduler.Lock, error) { return &scheduler.LocalLock{}, nil }
	if sc.RedisAddr != "" {
		client := scheduler.NewRedisClient(sc.RedisAddr, sc.RedisPassword, sc.RedisDB)
		hh.Add(health.Ping("redis", client))
		closeFn = func() {
			if err := client.Close(); err != nil {
				logger.Error("closing redis client", slog.Any("error", err))
			}
		}
		newLock = func(name string) (scheduler.Lock, error) {
			return scheduler.NewRedisLock(client, "auctionhouse:scheduler:"+name, sc.LockTTL)
		}
	}

	expiryLock, err := newLock("expiry")
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	retentionLock, err := newLock("retention")
	if err != nil {
		closeFn()
		return nil, nil, err
	}

	expiry, err := scheduler.NewService(scheduler.ServiceParams{
		Name:     "expiry",
		Logger:   logger,
		Registry: scheduler.NewRegistry(scheduler.NewExpiryJob(auctions, sc.ExpiryBatchSize, clk, logger)),
		Lock:     expiryLock,
		Metrics:  metrics,
		Interval: sc.ExpiryInterval,
	})
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	retention, err := scheduler.NewService(scheduler.ServiceParams{
		Name:   "retention",
		Logger: logger,
		Registry: scheduler.NewRegistry(
			scheduler.NewMailboxRetentionJob(mail, sc.MailboxRetentionDays, logger),
			scheduler.NewAuctionRetentionJob(auctions, sc.AuctionRetentionDays, logger),
		),
		Lock:     retentionLock,
		Metrics:  metrics,
		Interval: sc.RetentionInterval,
	})
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return []*scheduler.Service{expiry, retention}, closeFn, nil
}

// runSchedulers runs every scheduler until ctx is done.
func runSchedulers(ctx context.Context, services []*scheduler.Service) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range services {
		g.Go(func() error {
			if err := svc.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}
