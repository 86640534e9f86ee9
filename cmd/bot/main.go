package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/kiribu/expense-bot/internal/bot/client"
	"github.com/kiribu/expense-bot/internal/bot/handler"
	"github.com/kiribu/expense-bot/internal/bot/health"
	"github.com/kiribu/expense-bot/internal/bot/webhook"
	"github.com/kiribu/expense-bot/internal/pkg/config"
	"github.com/kiribu/expense-bot/internal/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	cfg := config.MustLoad()

	log := logger.MustNew(cfg.LogLevel)
	defer log.Sync()

	log.Info("Starting Bot Service",
		zap.String("service_url", cfg.ServiceURL),
		zap.String("mode", string(cfg.Mode())))

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		log.Fatal("Failed to create bot", zap.Error(err))
	}

	bot.Debug = false
	log.Info("Authorized", zap.String("bot_username", bot.Self.UserName))

	c := client.NewClient(cfg.ServiceURL, cfg.ServiceAPIKey, cfg.ServiceTimeout, log)
	h := handler.NewHandler(bot, c, log)

	probe := health.NewProbe(c, log)
	if err := probe.Start(cfg.HealthCheckSchedule); err != nil {
		log.Fatal("Failed to start health probe", zap.Error(err))
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cfg.Mode() {
	case config.ModeWebhook:
		err = runWebhook(ctx, cfg, bot, h, log)
	default:
		err = runPolling(ctx, bot, h, log)
	}

	probe.Stop()
	if err != nil {
		log.Fatal("Bot Service failed", zap.Error(err))
	}

	log.Info("Bot Service stopped")
}

func runWebhook(ctx context.Context, cfg config.BotConfig, bot *tgbotapi.BotAPI, h *handler.Handler, log *zap.Logger) error {
	log.Info("Launching bot in webhook mode")

	secret, err := webhook.NewSecretToken()
	if err != nil {
		return err
	}

	path := webhook.Path(cfg.Token)
	if err := webhook.Register(bot, webhook.URL(cfg.WebhookDomain, path), secret); err != nil {
		return err
	}

	srv := webhook.NewServer(cfg.Port, path, secret, h, log)
	log.Info("Bot is running", zap.Int("port", cfg.Port))
	if err := srv.Run(ctx); err != nil {
		return err
	}
	log.Info("Shutting down Bot Service")
	return nil
}

func runPolling(ctx context.Context, bot *tgbotapi.BotAPI, h *handler.Handler, log *zap.Logger) error {
	log.Info("Launching bot in polling mode")

	if err := webhook.Unregister(bot); err != nil {
		return err
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := bot.GetUpdatesChan(u)

	log.Info("Bot is running and waiting for updates")

	go func() {
		<-ctx.Done()
		log.Info("Shutting down Bot Service")
		bot.StopReceivingUpdates()
	}()

	h.Run(ctx, updates)
	return nil
}
