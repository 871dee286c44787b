package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agka1/agka-tg-bot/internal/gemini"
	"github.com/agka1/agka-tg-bot/internal/healthcheck"
	"github.com/agka1/agka-tg-bot/internal/relay"
	"github.com/agka1/agka-tg-bot/internal/session"
)

// startupFailureDelay gives the hosting platform time to flush logs before
// the process dies.
const startupFailureDelay = 60 * time.Second

func newTelegramCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "telegram",
		Short: "Run the Telegram relay bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := loggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			token := strings.TrimSpace(flagOrViperString(cmd, "telegram-bot-token", "telegram.bot_token"))
			apiKey := strings.TrimSpace(flagOrViperString(cmd, "gemini-api-key", "gemini.api_key"))
			if token == "" || apiKey == "" {
				return fatalStartup(logger, fmt.Errorf("missing credentials: set TELEGRAM_BOT_TOKEN and GEMINI_API_KEY"))
			}

			baseURL := strings.TrimSpace(flagOrViperString(cmd, "telegram-base-url", "telegram.base_url"))
			pollTimeout := flagOrViperDuration(cmd, "telegram-poll-timeout", "telegram.poll_timeout")
			requestTimeout := flagOrViperDuration(cmd, "gemini-request-timeout", "gemini.request_timeout")
			historyMax := flagOrViperInt(cmd, "history-max-messages", "telegram.history_max_messages")
			port := flagOrViperInt(cmd, "port", "health.port")
			if port <= 0 {
				port = 8000
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			backend, err := gemini.NewClient(ctx, apiKey, requestTimeout)
			if err != nil {
				return fatalStartup(logger, err)
			}

			// Liveness listener is best-effort: a bind failure must not take
			// the relay down.
			healthListen := healthcheck.NormalizeListen(strconv.Itoa(port))
			healthServer, err := healthcheck.StartServer(ctx, logger, healthListen, "telegram")
			if err != nil {
				logger.Warn("telegram_health_server_start_error", "addr", healthListen, "error", err.Error())
			} else {
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					_ = healthServer.Shutdown(shutdownCtx)
					cancel()
				}()
			}

			store := session.NewStore(historyMax)
			rt := relay.New(backend, store, logger, relay.Options{
				BotToken:    token,
				BaseURL:     baseURL,
				PollTimeout: pollTimeout,
			})

			if err := rt.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fatalStartup(logger, err)
			}
			logger.Info("telegram_stopped")
			return nil
		},
	}

	cmd.Flags().String("telegram-bot-token", "", "Telegram bot token.")
	cmd.Flags().String("gemini-api-key", "", "Gemini API key.")
	cmd.Flags().String("telegram-base-url", "https://api.telegram.org", "Telegram API base URL.")
	cmd.Flags().Duration("telegram-poll-timeout", 30*time.Second, "Long polling timeout for getUpdates.")
	cmd.Flags().Duration("gemini-request-timeout", 2*time.Minute, "Per-request Gemini timeout.")
	cmd.Flags().Int("history-max-messages", session.MaxHistory, "Max conversation turns to keep per chat.")
	cmd.Flags().Int("port", 8000, "Health-check listener port.")

	return cmd
}

func fatalStartup(logger *slog.Logger, err error) error {
	logger.Error("startup_failed", "error", err.Error())
	time.Sleep(startupFailureDelay)
	return err
}
