// Command budgetbot-listen subscribes to one user's realtime channel and logs
// every event that arrives. It is handy for checking a deployment end to end.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"budgetbot/internal/models"
	"budgetbot/internal/subscriber"
)

func main() {
	wsURL := pflag.String("url", "ws://localhost:8080/app/"+os.Getenv("PUSHER_KEY")+"?protocol=7", "broker websocket URL")
	authURL := pflag.String("auth", "http://localhost:8080/pusher/auth", "channel authorization endpoint")
	userID := pflag.String("user", "", "user id whose channel to join")
	token := pflag.String("token", os.Getenv("BUDGETBOT_TOKEN"), "bearer token for the authorization endpoint")
	verbose := pflag.BoolP("verbose", "v", false, "debug logging")
	pflag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if *userID == "" {
		logger.Error("--user is required")
		pflag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := subscriber.NewDispatcher()
	for _, name := range models.BrokerEvents {
		d.On(models.CustomEventName(name), func(ev subscriber.CustomEvent) {
			logger.Info("[LISTEN] Event",
				"name", ev.Name,
				"type", ev.Detail.Type,
				"title", ev.Detail.Title,
				"message", ev.Detail.Message,
			)
		})
	}

	c := subscriber.New(subscriber.Config{
		URL:          *wsURL,
		AuthEndpoint: *authURL,
		UserID:       *userID,
		Token:        *token,
		Logger:       logger,
	}, d, nil)
	if err := c.Connect(ctx); err != nil {
		logger.Error("Failed to subscribe", "error", err)
		os.Exit(1)
	}

	select {
	case <-ctx.Done():
		c.Close()
	case <-c.Done():
		if err := c.Err(); err != nil {
			logger.Error("Connection lost", "error", err)
			os.Exit(1)
		}
	}
	logger.Info("[LISTEN] Stopped", "received", len(c.Inbox().Items()))
}
