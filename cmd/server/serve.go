package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aldoetobex/falacomigo-backend/internal/cache"
	"github.com/aldoetobex/falacomigo-backend/internal/events"
	"github.com/aldoetobex/falacomigo-backend/internal/mpesa"
	"github.com/aldoetobex/falacomigo-backend/internal/payments"
	"github.com/aldoetobex/falacomigo-backend/internal/router"
	"github.com/aldoetobex/falacomigo-backend/pkg/database"
)

func serveCmd() *cobra.Command {
	var autoMigrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, db, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			defer func() { _ = database.Close(db) }()

			if err := cfg.Validate(); err != nil {
				return err
			}
			if autoMigrate {
				if err := database.Migrate(db); err != nil {
					return err
				}
			}

			gw := mpesa.NewClient(mpesa.Config{
				BaseURL:             cfg.Mpesa.BaseURL,
				APIKey:              cfg.Mpesa.APIKey,
				PublicKey:           cfg.Mpesa.PublicKey,
				ServiceProviderCode: cfg.Mpesa.ServiceProviderCode,
				Timeout:             cfg.Mpesa.Timeout,
				Simulate:            cfg.Mpesa.Simulate,
			}, log.Named("mpesa"))

			var pub events.Publisher = events.Nop{}
			if len(cfg.Kafka.Brokers) > 0 {
				kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
				defer func() { _ = kp.Close() }()
				pub = kp
				log.Info("publishing events to kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
			}

			var throttle payments.PollThrottle
			if cfg.Redis.Addr != "" {
				rc, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
				if err != nil {
					// polling still works without the throttle
					log.Warn("redis unavailable, status polling is not throttled", zap.Error(err))
				} else {
					defer func() { _ = rc.Close() }()
					throttle = rc
				}
			}

			app := router.New(router.Deps{
				Config:   cfg,
				DB:       db,
				Log:      log,
				Gateway:  gw,
				Events:   pub,
				Throttle: throttle,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				log.Info("server running", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
				errCh <- app.Listen(":" + cfg.Port)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return app.ShutdownWithContext(shutdownCtx)
		},
	}
	cmd.Flags().BoolVar(&autoMigrate, "migrate", true, "run schema migration before serving")
	return cmd
}
