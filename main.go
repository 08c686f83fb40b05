package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"medreport/internal/api"
	"medreport/internal/auth"
	"medreport/internal/chat"
	"medreport/internal/completion"
	"medreport/internal/config"
	"medreport/internal/extract"
	"medreport/internal/gate"
	"medreport/internal/logging"
	"medreport/internal/normalize"
	"medreport/internal/prompt"
	"medreport/internal/redis"
	"medreport/internal/service/report"
	"medreport/internal/storage"
	"medreport/internal/worker"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("env.load_failed", "error", err)
	}
	cfg, err := config.Load(os.Getenv("MEDREPORT_CONFIG"))
	if err != nil {
		slog.Error("config.load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log.Env, cfg.Log.Level)
	slog.SetDefault(logger)
	if strings.EqualFold(cfg.Log.Env, "prod") {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	online, err := newOnlineClient(ctx, cfg.Completion, logger)
	if err != nil {
		logger.Error("completion.init_failed", "provider", cfg.Completion.Provider, "error", err)
		os.Exit(1)
	}
	var local completion.Client
	if cfg.LocalModel.Enabled {
		local = completion.NewLocalModel(completion.LocalConfig{
			Path:            cfg.LocalModel.Path,
			Repo:            cfg.LocalModel.Repo,
			File:            cfg.LocalModel.File,
			Binary:          cfg.LocalModel.Binary,
			ContextSize:     cfg.LocalModel.ContextSize,
			Threads:         cfg.LocalModel.Threads,
			Temperature:     cfg.LocalModel.Temperature,
			MaxTokens:       cfg.LocalModel.MaxTokens,
			Timeout:         cfg.LocalModel.Timeout.Std(),
			DownloadTimeout: cfg.LocalModel.DownloadTimeout.Std(),
		}, completion.ExecRunner{Logger: logger}, logger)
	}
	router := completion.NewRouter(online, local, logger)

	mode, err := prompt.ParseMode(cfg.Analysis.PromptMode)
	if err != nil {
		logger.Error("config.prompt_mode_invalid", "error", err)
		os.Exit(1)
	}

	var classifier report.Classifier
	if cfg.Analysis.GateOn() {
		classifier = gate.New(online, cfg.Analysis.GateCap, logger)
	}

	var repo *storage.AnalysisRepository
	if cfg.Database.Driver != "" {
		db, err := storage.Open(cfg.Database)
		if err != nil {
			logger.Error("database.open_failed", "driver", cfg.Database.Driver, "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := storage.Migrate(db, cfg.Database.Driver); err != nil {
			logger.Error("database.migrate_failed", "error", err)
			os.Exit(1)
		}
		repo = storage.NewAnalysisRepository(db, cfg.Database.Driver)
	}

	store, closeStore, err := newChatStore(cfg)
	if err != nil {
		logger.Error("chat.store_init_failed", "backend", cfg.Chat.HistoryBackend, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	reports := report.NewService(report.Options{
		Extractor:  extract.NewExtractor(extract.NewOCRClient(cfg.OCR.URL, cfg.OCR.Timeout.Std(), logger), logger),
		Gate:       classifier,
		Prompts:    prompt.NewBuilder(mode, cfg.Analysis.ExcerptCap),
		Backend:    router,
		Normalizer: normalize.New(mode, logger),
		Repository: optionalRepo(repo),
		Logger:     logger,
	})

	handler := api.NewHandler(api.Options{
		Analyzer:       reports,
		Chat:           chat.NewService(router, store, cfg.Chat.MaxTurns, logger),
		Analyses:       optionalStore(repo),
		Admission:      worker.NewPool(cfg.Server.MaxConcurrentAnalyses),
		Auth:           auth.NewService(cfg.Server.APIKeys),
		MaxUploadBytes: cfg.Server.MaxUploadBytes(),
		LocalModel:     router.LocalAvailable(),
		Logger:         logger,
	})

	engine := gin.New()
	handler.RegisterRoutes(engine)

	logger.Info("server.start", "addr", cfg.Server.Address, "provider", cfg.Completion.Provider,
		"prompt_mode", mode, "gate", cfg.Analysis.GateOn(), "local_model", cfg.LocalModel.Enabled,
		"history", cfg.Chat.HistoryBackend, "database", cfg.Database.Driver)
	if err := engine.Run(cfg.Server.Address); err != nil {
		logger.Error("server.stopped", "error", err)
		os.Exit(1)
	}
}

func newOnlineClient(ctx context.Context, cfg config.CompletionConfig, logger *slog.Logger) (completion.Client, error) {
	if cfg.Provider == "http" {
		return completion.NewHTTPClient(completion.HTTPConfig{
			URL:     cfg.URL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout.Std(),
		}, logger), nil
	}
	client, err := completion.NewEinoClient(ctx, completion.EinoConfig{
		Provider:    cfg.Provider,
		BaseURL:     cfg.URL,
		Model:       cfg.Model,
		APIKey:      cfg.APIKey,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     cfg.Timeout.Std(),
	}, logger)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func newChatStore(cfg *config.Config) (chat.Store, func(), error) {
	if cfg.Chat.HistoryBackend == "redis" {
		rdb, err := redis.NewRedisClient(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return chat.NewRedisStore(rdb, cfg.Chat.MaxTurns, cfg.Chat.SessionTTL.Std()), func() { rdb.Close() }, nil
	}
	return chat.NewMemoryStore(cfg.Chat.MaxTurns, cfg.Chat.MaxSessions, cfg.Chat.SessionTTL.Std()), func() {}, nil
}

// optional* keep a nil repository from becoming a non-nil interface.
func optionalRepo(r *storage.AnalysisRepository) report.Repository {
	if r == nil {
		return nil
	}
	return r
}

func optionalStore(r *storage.AnalysisRepository) api.AnalysisStore {
	if r == nil {
		return nil
	}
	return r
}
