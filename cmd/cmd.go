package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ecoproof-backend/internal/config"
	"ecoproof-backend/internal/handlers"
	"ecoproof-backend/internal/ledger"
	"ecoproof-backend/internal/repository"
	"ecoproof-backend/internal/scheduler"
	"ecoproof-backend/internal/services"
	"ecoproof-backend/internal/weather"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// store is the persistence surface shared by every component
type store interface {
	services.SubmissionRepository
	services.VoteRepository
	services.UserRepository
	services.ChallengeRepository
}

func Run() {
	// Load configuration
	path := "config.yaml"
	if p := os.Getenv("ECOPROOF_CONFIG"); p != "" {
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level)

	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("JWT secret is not configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeRepo := openStore(ctx, cfg.Database)
	defer closeRepo()

	// Initialize services
	challenges := services.NewChallengeRegistry(repo, nil)
	submissions := services.NewSubmissionStore(repo, challenges, services.SubmissionConfig{
		TTL:          cfg.Submission.SubmissionTTL(),
		ChallengeTTL: cfg.Submission.ChallengeTTL(),
	}, nil)
	votes := services.NewVoteLedger(repo, submissions)
	submissions.SetTallier(votes)
	users := services.NewUserDirectory(repo)

	if err := challenges.Restore(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to restore challenges")
	}
	if err := submissions.Restore(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to restore submissions")
	}
	if err := votes.Restore(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to restore votes")
	}
	if err := users.Restore(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to restore users")
	}

	tokens := services.NewTokenService(cfg.JWT.Secret, cfg.JWT.TTL, nil)
	hub := services.NewEventHub(nil)

	var guard services.Reserver
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to connect to redis")
		}
		guard = services.NewRedisReserver(rdb, cfg.Redis.ReserveTTL)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Redis reward guard enabled")
	}

	var transfers services.Transferrer
	if cfg.Ledger.BaseURL != "" {
		transfers = ledger.NewClient(cfg.Ledger.BaseURL, cfg.Ledger.APIKey, cfg.Ledger.Timeout)
		log.Info().Str("base_url", cfg.Ledger.BaseURL).Msg("Ledger payouts enabled")
	} else {
		log.Warn().Msg("Ledger is not configured, rewards are credited to in-app balances")
	}

	rewards := services.NewRewardEngine(submissions, votes, users, transfers, guard, services.RewardConfig{
		Amount:          cfg.Reward.Amount,
		TransferTimeout: cfg.Ledger.Timeout,
		FromSubaccount:  cfg.Ledger.FromSubaccount,
	}, nil)
	rewards.AddNotifier(hub)

	if cfg.APNs.KeyPath != "" {
		push, err := services.NewPushNotifier(services.PushConfig{
			KeyPath:    cfg.APNs.KeyPath,
			KeyID:      cfg.APNs.KeyID,
			TeamID:     cfg.APNs.TeamID,
			Topic:      cfg.APNs.Topic,
			Production: cfg.APNs.Production,
		}, users)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create push notifier")
		}
		rewards.AddNotifier(push)
	}

	var evidence *services.EvidenceService
	if cfg.AWS.S3Bucket != "" {
		evidence, err = services.NewEvidenceService(ctx, services.EvidenceConfig{
			Region:    cfg.AWS.Region,
			Bucket:    cfg.AWS.S3Bucket,
			AccessKey: cfg.AWS.AccessKey,
			SecretKey: cfg.AWS.SecretKey,
			Endpoint:  cfg.AWS.Endpoint,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create evidence service")
		}
	}

	var (
		weatherClient *weather.Client
		tracker       *weather.Tracker
	)
	if cfg.Weather.APIKey != "" {
		weatherClient, err = weather.NewClient(weather.Config{
			BaseURL:       cfg.Weather.BaseURL,
			APIKey:        cfg.Weather.APIKey,
			CacheTTL:      cfg.Weather.CacheTTL,
			RatePerSecond: cfg.Weather.RatePerSecond,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create weather client")
		}
		tracker = weather.NewTracker(weatherClient, challenges)
	}

	// Background jobs
	jobs := scheduler.New(time.Minute)
	finalize := func(ctx context.Context) error {
		results, err := submissions.FinalizeExpired(ctx)
		for _, res := range results {
			hub.NotifyFinalized(res.UserID, res)
		}
		return err
	}
	if err := jobs.Every(cfg.Scheduler.FinalizeInterval, "finalize-expired", finalize); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule finalize job")
	}
	if tracker != nil {
		if err := jobs.Every(cfg.Weather.RefreshInterval, "weather-refresh", tracker.Refresh); err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule weather job")
		}
	}

	// Initialize handlers
	router := handlers.NewRouter(handlers.Handlers{
		Users:       handlers.NewUserHandler(users, tokens),
		Submissions: handlers.NewSubmissionHandler(submissions, rewards, hub),
		Votes:       handlers.NewVoteHandler(votes, submissions, hub),
		Challenges:  handlers.NewChallengeHandler(challenges),
		Evidence:    handlers.NewEvidenceHandler(evidence),
		Weather:     handlers.NewWeatherHandler(weatherClient, tracker),
		WebSocket:   handlers.NewWebSocketHandler(hub, tokens),
	}, tokens, users)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		jobs.Start()
		if tracker != nil {
			jobs.RunNow("weather-refresh", tracker.Refresh)
		}
		<-gctx.Done()

		log.Info().Msg("Shutting down server...")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := jobs.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Scheduler did not stop in time")
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server exited with error")
		return
	}
	log.Info().Msg("Server exited")
}

// openStore connects to PostgreSQL, or keeps state in memory when no host is configured
func openStore(ctx context.Context, cfg config.DatabaseConfig) (store, func()) {
	if cfg.InMemory() {
		log.Warn().Msg("Database is not configured, state is kept in memory")
		return repository.NewMemoryStore(), func() {}
	}

	db, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	// Test database connection
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Database connection established")

	s := repository.NewStore(db)
	if err := s.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}
	return s, db.Close
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
