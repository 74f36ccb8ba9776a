package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/shafeequrrehman007/wagpt/internal/config"
	"github.com/shafeequrrehman007/wagpt/internal/handlers"
	"github.com/shafeequrrehman007/wagpt/internal/i18n"
	"github.com/shafeequrrehman007/wagpt/internal/middleware"
	"github.com/shafeequrrehman007/wagpt/internal/services/ai"
	"github.com/shafeequrrehman007/wagpt/internal/services/dedup"
	"github.com/shafeequrrehman007/wagpt/internal/services/images"
	"github.com/shafeequrrehman007/wagpt/internal/services/storage"
	"github.com/shafeequrrehman007/wagpt/internal/transport/telegram"
	"github.com/shafeequrrehman007/wagpt/pkg/clock"
	"github.com/shafeequrrehman007/wagpt/pkg/logger"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	envFile := flag.String("env", ".env", "Path to .env file")
	keyFile := flag.String("keys", "key.json", "Path to legacy JSON key file")
	flag.Parse()

	// It's okay if .env doesn't exist
	if err := godotenv.Load(*envFile); err != nil {
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := config.ApplyKeyFile(cfg, *keyFile); err != nil {
		fmt.Printf("Failed to load key file: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info("Starting bot...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := middleware.NewMetrics()
	if cfg.Monitoring.Metrics.Enabled {
		go func() {
			log.WithFields(logrus.Fields{
				"port": cfg.Monitoring.Metrics.Port,
				"path": cfg.Monitoring.Metrics.Path,
			}).Info("Starting metrics server")

			if err := middleware.StartMetricsServer(ctx, cfg.Monitoring.Metrics.Port, cfg.Monitoring.Metrics.Path); err != nil {
				log.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	storageManager, err := storage.NewManager(cfg, log, metrics)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize storage")
	}
	defer storageManager.Close()

	prompt, err := storage.ReadText(cfg.Prompt.Path)
	if err != nil {
		log.WithError(err).Error("Failed to read custom prompt, continuing without it")
		prompt = ""
	}
	log.WithField("prompt_chars", len(prompt)).Info("Custom prompt loaded")

	aiService, err := ai.NewService(ctx, &cfg.AI, log)
	if err != nil {
		log.WithError(err).Error("Failed to initialize AI service, AI features are disabled")
		aiService = ai.Disabled{}
	}
	if cfg.AI.ValidateOnStart {
		aiService = ai.Verify(ctx, aiService, log)
	}
	defer aiService.Close()

	searcher, err := images.NewGoogleSearch(ctx, &cfg.Search, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize image search")
	}
	fetcher := images.NewHTTPFetcher(cfg.Images.DownloadTimeout, cfg.Images.MaxBytes)

	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize i18n")
	}

	clk := clock.Real{}
	globalLimiter := middleware.NewWindowLimiter("global", cfg.RateLimit.Global.Window, cfg.RateLimit.Global.Requests, clk, log)
	userLimiter := middleware.NewWindowLimiter("user", cfg.RateLimit.User.Window, cfg.RateLimit.User.Requests, clk, log)
	go globalLimiter.Run(ctx)
	go userLimiter.Run(ctx)

	client, err := telegram.New(&cfg.Telegram, fetcher, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create bot")
	}

	router := handlers.NewRouter(&handlers.Deps{
		Config:   cfg,
		Client:   client,
		AI:       aiService,
		Searcher: searcher,
		Fetcher:  fetcher,
		Processor: images.Processor{
			MaxWidth:  cfg.Images.MaxWidth,
			MaxHeight: cfg.Images.MaxHeight,
			Quality:   cfg.Images.Quality,
			MaxPixels: cfg.Images.MaxPixels,
		},
		Storage:       storageManager,
		Dedup:         dedup.New(cfg.Dedup.Expiry),
		GlobalLimiter: globalLimiter,
		UserLimiter:   userLimiter,
		Localizer:     localizer,
		Metrics:       metrics,
		Clock:         clk,
		Prompt:        prompt,
		Logger:        log,
	})

	log.WithField("prefix", cfg.Bot.Prefix).Info("Bot is ready")

	// Run returns once the signal context is cancelled and handlers drain.
	client.Run(ctx, router.Handle)

	log.Info("Bot stopped")
}
