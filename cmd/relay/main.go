// cmd/relay/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"amocrm-relay/internal/common/amocrm"
	"amocrm-relay/internal/common/aws"
	"amocrm-relay/internal/common/config"
	"amocrm-relay/internal/common/logger"
	"amocrm-relay/internal/common/observability"
	"amocrm-relay/internal/common/phone"
	"amocrm-relay/internal/common/telegram"
	"amocrm-relay/internal/server"
	leadstagenotify "amocrm-relay/internal/workers/crm/lead-stage-notify"
)

const serviceName = "amocrm-relay"

func main() {
	startedAt := time.Now()

	cfg, err := config.Load()
	if err != nil {
		boot := logger.New("info", "console")
		boot.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting amoCRM relay...",
		zap.String("environment", cfg.App.Environment),
		zap.String("version", cfg.App.Version),
		zap.String("envFile", cfg.EnvFile),
	)
	for _, warning := range cfg.Warnings {
		zapLog.Warn(warning)
	}

	obsOpts := observability.Options{}
	if cfg.Tracing.Enabled {
		obsOpts.TraceWriter = os.Stdout
		if cfg.Tracing.Output == "stderr" {
			obsOpts.TraceWriter = os.Stderr
		}
	}
	obs, err := observability.New(serviceName, obsOpts)
	if err != nil {
		zapLog.Warn("observability init failed, continuing without OTel", zap.Error(err))
	}
	zapLog.Info("Observability initialized",
		zap.Bool("tracing", obs.TracingEnabled()),
		zap.String("traceOutput", cfg.Tracing.Output),
	)

	ctx := context.Background()

	crm := amocrm.NewCRMClient(cfg.Amo.BaseURL, cfg.Amo.AccessToken, config.GetDuration(cfg.Amo.Timeout))
	zapLog.Info("amoCRM client ready",
		zap.String("baseUrl", crm.BaseURL()),
		zap.Bool("configured", crm.Configured()),
	)

	notifiers := []leadstagenotify.Notifier{
		telegram.NewSender(telegram.Config{
			BotToken:     cfg.Telegram.BotToken,
			ChatID:       cfg.Telegram.ChatID,
			APIEndpoint:  cfg.Telegram.APIEndpoint,
			Timeout:      config.GetDuration(cfg.Telegram.Timeout),
			MessageLimit: cfg.Telegram.MessageLimit,
		}, log),
	}

	if cfg.Notifications.SNS.Enabled {
		sns, err := aws.NewSNSNotifier(ctx, cfg.Notifications.SNS.Region, cfg.Notifications.SNS.TopicARN, cfg.Notifications.SNS.Subject)
		if err != nil {
			zapLog.Error("SNS notifier disabled", zap.Error(err))
		} else {
			notifiers = append(notifiers, sns)
			zapLog.Info("SNS notifier enabled", zap.String("topicArn", cfg.Notifications.SNS.TopicARN))
		}
	}

	webhook, err := leadstagenotify.NewHandler(leadstagenotify.HandlerOptions{
		AppConfig:     cfg,
		Logger:        log,
		CRM:           crm,
		Notifiers:     notifiers,
		Phones:        phone.NewNormalizer(cfg.CF.PhoneRegion),
		Observability: obs,
	})
	if err != nil {
		zapLog.Fatal("failed to create webhook handler", zap.Error(err))
	}

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := server.New(server.Options{
		Logger:      log,
		Webhook:     webhook,
		WebhookPath: cfg.Server.WebhookPath,
		Ready: func() map[string]bool {
			return map[string]bool{
				"amocrm":   crm.Configured(),
				"telegram": cfg.Telegram.Configured(),
				"sns":      len(notifiers) > 1,
			}
		},
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: config.GetDuration(cfg.Server.ReadHeaderTimeout),
	}

	go func() {
		zapLog.Info("HTTP server listening",
			zap.String("addr", srv.Addr),
			zap.String("webhookPath", cfg.Server.WebhookPath),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining requests...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down observability", zap.Error(err))
	}

	zapLog.Info("Relay stopped gracefully", zap.Duration("uptime", time.Since(startedAt)))
}
