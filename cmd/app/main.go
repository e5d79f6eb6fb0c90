// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"telegram-match-bridge/internal/application"
	"telegram-match-bridge/internal/config"
	"telegram-match-bridge/internal/domain/ports/adapter"
	pg "telegram-match-bridge/internal/infra/db/postgres"
	"telegram-match-bridge/internal/infra/logging"
	"telegram-match-bridge/internal/infra/matcher"
	"telegram-match-bridge/internal/infra/metrics"
	red "telegram-match-bridge/internal/infra/redis"
	"telegram-match-bridge/internal/infra/retry"
	"telegram-match-bridge/internal/infra/sched"
	tele "telegram-match-bridge/internal/infra/telegram"
	"telegram-match-bridge/internal/infra/web"
	"telegram-match-bridge/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (noop bots, console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)
	rateLimiter := red.NewRateLimiter(redisClient)
	sessionCache := red.NewSessionCache(redisClient, cfg.Redis.TTL)

	// ---- Repositories ----
	userRepo := pg.NewPostgresUserRepo(pool)
	matchRepo := pg.NewPostgresMatchRepo(pool)
	requestRepo := pg.NewPostgresRequestRepo(pool)
	sessionRepo := pg.NewPostgresSessionRepo(pool)
	answerRepo := pg.NewPostgresAnswerRepo(pool)
	txManager := pg.NewTxManager(pool)

	policy := retry.Policy{
		Attempts:  cfg.Retry.Attempts,
		BaseDelay: cfg.Retry.BaseDelay,
		MaxDelay:  cfg.Retry.MaxDelay,
	}

	// ---- Telegram adapters ----
	var messenger adapter.MessengerAdapter
	var dualBot *tele.DualBotAdapter
	if cfg.Runtime.Dev {
		messenger = tele.NewNoopBotAdapter(logger)
	} else {
		dualBot, err = tele.NewDualBotAdapter(&cfg.Bot, &cfg.Communicator, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram")
		}
		messenger = dualBot
	}
	links := tele.NewDeepLinkBuilder(cfg.Communicator.Username, logger)

	// ---- Use cases ----
	ledger := usecase.NewLedgerUseCase(userRepo, policy, logger)
	bridge := usecase.NewSessionBridge(sessionRepo, userRepo, sessionCache, links, messenger, cfg.Handoff.SessionIdleTTL, logger)
	coordinator := usecase.NewRequestCoordinator(requestRepo, matchRepo, bridge, cfg.Handoff.RequestTTL, logger)
	relay := usecase.NewRelay(sessionRepo, userRepo, sessionCache, messenger, policy, cfg.Handoff.SessionIdleTTL, logger)
	candidateMatcher := matcher.NewCohesionMatcher(answerRepo, cfg.Matching.MinSharedAnswers, logger)
	orchestrator := usecase.NewHandoffOrchestrator(
		candidateMatcher, ledger, coordinator, bridge, relay, matchRepo, txManager,
		locker, rateLimiter,
		usecase.MatchingOptions{
			SearchCost:       cfg.Matching.SearchCost,
			MaxCandidates:    cfg.Matching.MaxCandidates,
			SearchRateLimit:  cfg.Matching.SearchRateLimit,
			SearchRateWindow: cfg.Matching.SearchRateWindow,
		},
		logger,
	)

	// ---- Facade + polling ----
	facade := application.NewBotFacade(userRepo, sessionRepo, orchestrator, ledger, relay, messenger, logger)
	if dualBot != nil {
		dualBot.SetFacade(facade)
		if strings.ToLower(cfg.Bot.Mode) != "polling" {
			logger.Warn().Str("mode", cfg.Bot.Mode).Msg("unsupported bot mode, falling back to polling")
		}
		go func() {
			if err := dualBot.StartPolling(ctx); err != nil {
				logger.Error().Err(err).Msg("telegram polling stopped")
			}
		}()
	}

	// ---- Ops HTTP server ----
	auth := web.NewAuthManager(cfg.Ops.JWTSecret, 0)
	opsServer := web.NewServer(sessionRepo, auth, logger)
	go func() {
		if err := opsServer.ListenAndServe(cfg.Ops.Port); err != nil {
			logger.Error().Err(err).Msg("ops server stopped")
		}
	}()

	// ---- Expiry sweeper ----
	worker := sched.NewExpiryWorker(cfg.Handoff.SweepInterval, coordinator, bridge, logger)
	go func() { _ = worker.Run(ctx) }()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	if dualBot != nil {
		dualBot.StopPolling()
	}
	cancel()
}
