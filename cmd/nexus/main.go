// nexus is the personal assistant backend: a Gemini-driven
// conversation engine with task, finance and Google Calendar tools,
// served over HTTP and optionally relayed through Discord.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/eduplay1216-alt/myjarvis/internal/api"
	"github.com/eduplay1216-alt/myjarvis/internal/calendar"
	"github.com/eduplay1216-alt/myjarvis/internal/config"
	"github.com/eduplay1216-alt/myjarvis/internal/conversation"
	"github.com/eduplay1216-alt/myjarvis/internal/gemini"
	"github.com/eduplay1216-alt/myjarvis/internal/logging"
	"github.com/eduplay1216-alt/myjarvis/internal/reconcile"
	"github.com/eduplay1216-alt/myjarvis/internal/store"
	"github.com/eduplay1216-alt/myjarvis/internal/surface"
	"github.com/eduplay1216-alt/myjarvis/internal/tools"
)

func main() {
	// .env is optional; real deployments use environment variables.
	if err := godotenv.Load(); err == nil {
		logging.Info("config", "loaded .env file")
	}

	cfgPath := os.Getenv("NEXUS_CONFIG")
	if cfgPath == "" {
		cfgPath = "nexus.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logging.Info("config", "fatal: %v", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		logging.Info("store", "fatal: %v", err)
		os.Exit(1)
	}
	defer st.Close()

	loc, err := time.LoadLocation(cfg.Calendar.Timezone)
	if err != nil {
		logging.Warn("config", "invalid timezone %q, using UTC: %v", cfg.Calendar.Timezone, err)
		loc = time.UTC
	}

	model := gemini.NewClient(cfg.Gemini.APIKey, cfg.Gemini.Model)

	var cal calendar.Service
	if cfg.Calendar.CredentialsFile != "" && cfg.Calendar.CalendarID != "" {
		client, err := calendar.NewClient(calendar.Config{
			CredentialsFile: cfg.Calendar.CredentialsFile,
			CalendarID:      cfg.Calendar.CalendarID,
			Timezone:        cfg.Calendar.Timezone,
		})
		if err != nil {
			logging.Warn("calendar", "disabled: %v", err)
		} else {
			cal = client
			logging.Info("calendar", "using calendar %s", cfg.Calendar.CalendarID)
		}
	} else {
		logging.Info("calendar", "not configured, calendar tools disabled")
	}

	registry := tools.NewRegistry()
	tools.RegisterAssistantTools(registry, &tools.Deps{
		Store:    st,
		Calendar: cal,
		Location: loc,
	})
	logging.Info("tools", "registered %d tools", len(registry.Names()))

	var syncer *reconcile.Service
	engineOpts := []conversation.Option{}
	if cal != nil {
		syncer = reconcile.NewService(st, cal)
		// Keep the calendar converged while a turn is still running:
		// after every tool batch a reconciliation pass is kicked off in
		// the background.
		engineOpts = append(engineOpts, conversation.WithRefresh(func(ctx context.Context, owner string) {
			go func() {
				syncCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
				defer cancel()
				if _, err := syncer.Sync(syncCtx, owner); err != nil {
					logging.Warn("reconcile", "refresh pass: %v", err)
				}
			}()
		}))
	}

	engine := conversation.New(model, st, registry, cfg.MaxTurnIterations, engineOpts...)

	var apiSyncer api.Syncer
	if syncer != nil {
		apiSyncer = syncer
	}
	server := api.NewServer(st, engine, model, apiSyncer, cfg.Owner, cfg.AuthToken)

	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: server.Handler(),
	}

	// Optional Discord relay.
	var discord *surface.Discord
	if cfg.Discord.Token != "" {
		discord, err = surface.NewDiscord(surface.DiscordConfig{
			Token:     cfg.Discord.Token,
			ChannelID: cfg.Discord.ChannelID,
			OwnerID:   cfg.Owner,
		}, engine)
		if err != nil {
			logging.Warn("discord", "disabled: %v", err)
			discord = nil
		} else if err := discord.Start(); err != nil {
			logging.Warn("discord", "disabled: %v", err)
			discord = nil
		}
	}

	// Periodic reconciliation ticker.
	stopSync := make(chan struct{})
	if syncer != nil && cfg.Sync.Interval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.Sync.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-stopSync:
					return
				case <-ticker.C:
					ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
					if _, err := syncer.Sync(ctx, cfg.Owner); err != nil {
						logging.Warn("reconcile", "periodic pass: %v", err)
					}
					cancel()
				}
			}
		}()
		logging.Info("reconcile", "periodic sync every %s", cfg.Sync.Interval)
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("nexus", "shutting down...")
		close(stopSync)
		if discord != nil {
			discord.Stop()
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(ctx)
	}()

	logging.Info("nexus", "listening on %s (owner %s, model %s)", cfg.Listen, cfg.Owner, cfg.Gemini.Model)
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		logging.Info("nexus", "server error: %v", err)
		os.Exit(1)
	}
}
