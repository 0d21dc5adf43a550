package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"predictionmarket/internal/auth"
	"predictionmarket/internal/config"
	"predictionmarket/internal/handlers"
	"predictionmarket/internal/logger"
	"predictionmarket/internal/oracle"
	"predictionmarket/internal/service"
	"predictionmarket/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the TOML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "predictionmarket: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := logger.Init(cfg.LogLevel); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize SQLite database
	log.Info("initializing database", zap.String("path", cfg.Database.Path))
	if err := storage.InitDB(cfg.Database.Path); err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer storage.CloseDB()

	if err := storage.SetLedgerOwner(ctx, storage.DB(), common.HexToAddress(cfg.Owner)); err != nil {
		return fmt.Errorf("set ledger owner: %w", err)
	}
	for _, f := range cfg.Feeds {
		if err := storage.UpsertPriceFeed(ctx, storage.DB(), f.Asset, common.HexToAddress(f.Address), time.Now().UTC()); err != nil {
			return fmt.Errorf("register feed %s: %w", f.Asset, err)
		}
	}

	// Price source: Chainlink aggregators when a node is configured
	var src oracle.Oracle
	if cfg.Chain.RPCURL != "" {
		cl, err := oracle.DialChainlink(ctx, cfg.Chain.RPCURL, oracle.StoredFeeds{})
		if err != nil {
			return fmt.Errorf("dial chain: %w", err)
		}
		defer cl.Close()
		src = cl
	} else {
		log.Warn("no rpc_url configured, markets cannot resolve until prices are available")
		src = oracle.NewStatic()
	}

	svc := service.NewSettlementService(service.Config{
		FeeBps:         cfg.Market.FeeBps,
		PriceTolerance: cfg.Market.PriceTolerance.Duration,
		MinDuration:    cfg.Market.MinDuration.Duration,
		MaxDuration:    cfg.Market.MaxDuration.Duration,
		WelcomeGrant:   cfg.Market.WelcomeGrant,
	}, src)

	if cfg.Redis.Addr != "" {
		rdb, err := oracle.NewRedisClient(ctx, oracle.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer rdb.Close()
		svc.SetQuoteSource(oracle.NewCached(src, oracle.NewPriceCache(rdb, cfg.Redis.PriceTTL.Duration)))
		log.Info("price cache enabled", zap.String("addr", cfg.Redis.Addr))
	}

	if cfg.Notify.TelegramToken != "" {
		ns, err := service.NewNotificationService(cfg.Notify.TelegramToken, cfg.Notify.ChannelID)
		if err != nil {
			log.Warn("channel notifications disabled", zap.Error(err))
		} else {
			svc.SetNotificationService(ns)
		}
	}

	// Set up HTTP server with auth middleware
	mux := http.NewServeMux()
	mux.Handle("/api/", handlers.NewAPI(svc).Routes())
	mux.Handle("/", http.FileServer(http.Dir(cfg.Server.StaticDir)))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           auth.Middleware(auth.NewVerifier(cfg.Auth.MaxAge.Duration))(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Worker.Enabled {
		worker := service.NewMarketWorker(svc, cfg.Worker.Interval.Duration)
		g.Go(func() error { return worker.Run(gctx) })
	}

	g.Go(func() error {
		log.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
