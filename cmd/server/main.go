package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/applifix/backend/internal/app"
	"github.com/applifix/backend/internal/channel"
	"github.com/applifix/backend/internal/config"
	"github.com/applifix/backend/internal/conversation"
	"github.com/applifix/backend/internal/db"
	"github.com/applifix/backend/internal/events"
	httpapi "github.com/applifix/backend/internal/http"
	"github.com/applifix/backend/internal/rules"
	"github.com/applifix/backend/internal/scheduler"
	"github.com/applifix/backend/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := log.Level(level).With().Str("service", "applifix-backend").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect db")
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate db")
	}

	kw, err := rules.Load(cfg.RulesFile)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.RulesFile).Msg("failed to load keyword rules")
	}
	resolver, err := app.NewResolver(cfg, kw, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure classifier")
	}
	if resolver.AI.Enabled() {
		logger.Info().Str("provider", cfg.ResolvedAIProvider()).Msg("ai classification enabled")
	} else {
		logger.Info().Msg("no AI provider configured, using keyword rules")
	}

	var sinks events.Multi
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		sinks = append(sinks, events.NewKafkaPublisher(brokers, cfg.KafkaTasksTopic, logger))
		logger.Info().Strs("brokers", brokers).Str("topic", cfg.KafkaTasksTopic).Msg("publishing task events to kafka")
	}
	if cfg.MQTTBrokerURL != "" {
		mp, err := events.NewMQTTPublisher(events.MQTTConfig{
			BrokerURL:   cfg.MQTTBrokerURL,
			ClientID:    cfg.MQTTClientID,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			TopicPrefix: cfg.MQTTTopicPrefix,
		}, logger)
		if err != nil {
			logger.Error().Err(err).Msg("mqtt unavailable, task events not pushed to devices")
		} else {
			sinks = append(sinks, mp)
			logger.Info().Str("broker", cfg.MQTTBrokerURL).Msg("publishing task events to mqtt")
		}
	}
	var publisher events.Publisher = events.NopPublisher{}
	if len(sinks) > 0 {
		publisher = sinks
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn().Err(err).Msg("event publisher close failed")
		}
	}()

	sessions := conversation.NewStore(kw)
	chat := &service.ChatService{
		Sessions:  sessions,
		Resolver:  resolver,
		Gateway:   store,
		Publisher: publisher,
		Validator: service.NewValidator(),
		Logger:    logger,
	}
	processor := &service.ProcessingService{Store: store, Resolver: resolver, Logger: logger}

	sched, err := scheduler.New(scheduler.Config{
		SessionTTL:       cfg.SessionTTL,
		SessionSweepSpec: cfg.SessionSweepSchedule,
		ReclassifySpec:   cfg.ReclassifySchedule,
	}, sessions, processor, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid schedule")
	}

	router := httpapi.Router(cfg, httpapi.Deps{
		Store:     store,
		Chat:      chat,
		Resolver:  resolver,
		Processor: processor,
	}, logger)

	var handler http.Handler = router
	if cfg.RequestTimeout > 0 {
		handler = http.TimeoutHandler(router, cfg.RequestTimeout, `{"error":{"code":"TIMEOUT","message":"Request timed out"}}`)
	}
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctxShutdown)
	})
	g.Go(func() error {
		return sched.Run(gctx)
	})
	if cfg.TelegramToken != "" {
		tg, err := channel.NewTelegram(cfg.TelegramToken, chat, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure telegram")
		}
		g.Go(func() error {
			if err := tg.Run(gctx); err != nil {
				logger.Error().Err(err).Msg("telegram channel stopped")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
	logger.Info().Msg("server stopped")
}
