package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tradeflow/cache"
	"tradeflow/config"
	"tradeflow/fetcher"
	"tradeflow/ledger"
	"tradeflow/logger"
	"tradeflow/provider"
	"tradeflow/provider/binance"
	"tradeflow/provider/eastmoney"
	"tradeflow/provider/yahoo"
	"tradeflow/router"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	warmupTopN := flag.Int("warmup", 0, "Warm up the cache for the N most traded symbols instead of a full run")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Tradeflow.Name,
		"version": cfg.Tradeflow.Version,
	}).Info("starting tradeflow batch fetch")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleShutdown(cancel, log)

	if cfg.Storage.S3.Enabled {
		logger.InitCloudWatch(cfg.Storage.S3.Region, cfg.Tradeflow.Name, cfg.Logging.DashboardName)
	}
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	barStore, db, err := cache.OpenBarStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.WithError(err).Error("failed to open durable bar store")
		os.Exit(1)
	}
	defer db.Close()

	blobStore, err := cache.NewBlobStore(cfg.Cache.BlobDir, cfg.Cache.ExpiryDays, cfg.Storage.S3)
	if err != nil {
		log.WithError(err).Error("failed to open blob store")
		os.Exit(1)
	}

	cacheMgr := cache.NewManager(cfg.Cache, barStore, blobStore)
	rt := buildRouter(ctx, cfg, log)
	ledgerStore := ledger.NewSQLStore(db)
	batchFetcher := fetcher.New(cfg.Fetcher, ledgerStore, cacheMgr, rt)

	if *warmupTopN > 0 {
		if err := batchFetcher.WarmupCache(ctx, *warmupTopN); err != nil {
			log.WithError(err).Error("warmup failed")
			os.Exit(1)
		}
		return
	}

	stats, err := batchFetcher.FetchRequiredData(ctx)
	if err != nil {
		log.WithError(err).Error("batch run failed")
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(stats, "", "  ")
	fmt.Println(string(out))
}

// buildRouter probes each enabled provider once at startup and wires the
// available ones into the market router. Yahoo doubles as the generic
// fallback.
func buildRouter(ctx context.Context, cfg *config.Config, log *logger.Log) *router.Router {
	probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	providers := make(map[router.Market]provider.Client)
	var fallback provider.Client

	if cfg.Providers.Yahoo.Enabled {
		p := yahoo.New(cfg.Providers.Yahoo)
		if p.IsAvailable(probeCtx) {
			providers[router.MarketUS] = p
			providers[router.MarketHK] = p
			fallback = p
		} else {
			log.WithComponent("main").Warn("yahoo provider unavailable, skipping")
		}
	}

	if cfg.Providers.Eastmoney.Enabled {
		p := eastmoney.New(cfg.Providers.Eastmoney)
		if p.IsAvailable(probeCtx) {
			providers[router.MarketCNA] = p
		} else {
			log.WithComponent("main").Warn("eastmoney provider unavailable, skipping")
		}
	}

	if cfg.Providers.Binance.Enabled {
		p := binance.New(cfg.Providers.Binance)
		if p.IsAvailable(probeCtx) {
			providers[router.MarketCrypto] = p
		} else {
			log.WithComponent("main").Warn("binance provider unavailable, skipping")
		}
	}

	return router.New(providers, fallback)
}

func handleShutdown(cancel context.CancelFunc, log *logger.Log) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
	cancel()
}
