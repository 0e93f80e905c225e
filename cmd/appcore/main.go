// Command appcore runs the client core headless: it restores the
// session from local storage, refreshes the profile in the background,
// and optionally follows one ticket's realtime comments. It is the
// development harness for the library packages; a real frontend embeds
// them directly.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"storefront-core/internal/api"
	"storefront-core/internal/appstate"
	"storefront-core/internal/config"
	"storefront-core/internal/logging"
	"storefront-core/internal/model"
	"storefront-core/internal/notify"
	"storefront-core/internal/realtime"
	"storefront-core/internal/session"
	"storefront-core/internal/storage"
	"storefront-core/internal/token"
)

// logRenderer stands in for a platform notification surface.
type logRenderer struct {
	log *slog.Logger
}

func (r *logRenderer) EnsureChannel(id, importance string) error {
	r.log.Info("notification channel ready", "channelId", id, "importance", importance)
	return nil
}

func (r *logRenderer) Display(n notify.LocalNotification) error {
	r.log.Info("notification", "title", n.Title, "body", n.Body)
	return nil
}

func main() {
	cfg, err := config.LoadClientConfig()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	log := logging.Setup(cfg.LogLevel)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Error("create data dir", "error", err)
		os.Exit(1)
	}
	prefs, err := storage.Open(filepath.Join(cfg.DataDir, "app.db"))
	if err != nil {
		log.Error("open preference store", "error", err)
		os.Exit(1)
	}
	defer prefs.Close()

	tokens := token.NewStore(prefs)
	state := appstate.New()
	client := api.NewClient(cfg.APIBaseURL, http.DefaultClient)

	cancelWatch := state.Watch(func(change appstate.Change) {
		log.Debug("state changed", "change", string(change))
	})
	defer cancelWatch()

	dispatcher := notify.NewDispatcher(&logRenderer{log: log}, state, tokens, client)
	if err := dispatcher.Bootstrap(); err != nil {
		log.Warn("notification channel setup failed", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initializer := session.NewInitializer(tokens, client, state)
	snapshot := initializer.Initialize(ctx)
	branch := session.PickBranch(snapshot)
	log.Info("session restored",
		"branch", string(branch),
		"loggedIn", snapshot.IsLoggedIn,
		"deviceId", tokens.DeviceID())

	if ticketID := os.Getenv("TICKET_ID"); ticketID != "" && snapshot.IsLoggedIn {
		channel := realtime.NewChannel(cfg.SocketURL, tokens.Token())
		defer channel.Close()

		unsubscribe, err := channel.Subscribe(ctx, ticketID, func(comment model.TicketComment) {
			state.AppendTicketComment(comment.TicketID, comment)
			log.Info("ticket comment",
				"ticketId", comment.TicketID,
				"internal", comment.Internal,
				"body", comment.Body)
		})
		if err != nil {
			log.Error("ticket subscription failed", "ticketId", ticketID, "error", err)
		} else {
			defer unsubscribe()
			log.Info("following ticket", "ticketId", ticketID)
		}
	}

	<-ctx.Done()
	log.Info("shutting down")
}
