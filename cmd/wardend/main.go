// Command wardend is the Warden orchestration daemon.
// It loads the YAML config, bootstraps the world from it, and serves the
// REST API and SSE event stream.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/GoCodeAlone/warden/agent"
	"github.com/GoCodeAlone/warden/briefing"
	"github.com/GoCodeAlone/warden/comms"
	"github.com/GoCodeAlone/warden/config"
	"github.com/GoCodeAlone/warden/internal/version"
	"github.com/GoCodeAlone/warden/provider"
	"github.com/GoCodeAlone/warden/provider/mock"
	"github.com/GoCodeAlone/warden/resilience"
	"github.com/GoCodeAlone/warden/server"
	"github.com/GoCodeAlone/warden/store"
	"github.com/GoCodeAlone/warden/tool"
	"github.com/GoCodeAlone/warden/world"
)

var configPath = flag.String("config", "warden.yaml", "path to config file")

func main() {
	flag.Parse()

	cfg := config.DefaultConfig()
	if _, err := os.Stat(*configPath); err == nil {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))

	logger.Info("starting wardend",
		"version", version.Version,
		"commit", version.Commit,
	)

	state := world.NewState(world.CreditProtection{
		DailyLimit:        cfg.Credit.DailyLimitUSD,
		MonthlyLimit:      cfg.Credit.MonthlyLimitUSD,
		HardStopThreshold: cfg.Credit.HardStopThreshold,
	})
	controller := world.NewController(state)

	for _, tc := range cfg.Teams {
		level := world.AutomationLevel(tc.Automation)
		if tc.Automation == "" {
			level = world.AutomationManual
		}
		team := world.Team{
			ID:           tc.ID,
			Name:         tc.Name,
			Emoji:        tc.Emoji,
			SystemPrompt: tc.SystemPrompt,
		}
		if err := state.AddTeam(team, level); err != nil {
			log.Fatalf("Failed to register team %s: %v", tc.ID, err)
		}
	}

	bus := comms.NewInMemoryBus()
	registry := tool.NewRegistry(state, controller, bus)

	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		ResetTimeout:     cfg.Breaker.ResetTimeout.Std(),
		RequestTimeout:   cfg.Breaker.RequestTimeout.Std(),
	})
	caller := resilience.NewCaller(breaker, resilience.RetryConfig{
		MaxRetries:  cfg.Retry.MaxRetries,
		BackoffBase: cfg.Retry.BackoffBase.Std(),
	})

	var prov provider.Provider
	switch cfg.Provider.Name {
	case "anthropic":
		prov = provider.NewAnthropicProvider(provider.AnthropicConfig{
			APIKey:    cfg.Provider.APIKey,
			Model:     cfg.Provider.Model,
			BaseURL:   cfg.Provider.BaseURL,
			MaxTokens: cfg.Provider.MaxTokens,
		})
	default:
		prov = mock.New()
	}
	logger.Info("model provider ready", "provider", prov.Name())

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("Failed to create data dir: %v", err)
	}
	st, err := store.NewSQLiteStore(filepath.Join(cfg.DataDir, "warden.db"))
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close() //nolint:errcheck

	mgr := agent.NewManager(agent.Deps{
		Provider:          prov,
		Caller:            caller,
		Registry:          registry,
		State:             state,
		Controller:        controller,
		Builder:           briefing.NewBuilder(),
		Store:             st,
		Logger:            logger,
		MaxIterations:     cfg.Loop.MaxIterations,
		EstimatedCallCost: cfg.Credit.EstimatedCallUSD,
	})

	srv := server.New(*cfg, server.Deps{
		State:      state,
		Controller: controller,
		Registry:   registry,
		Loops:      mgr,
		Bus:        bus,
		Breaker:    breaker,
	}, version.Version, logger)
	mgr.SetNotify(srv.BroadcastEvent)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go resetSpendOnSchedule(ctx, controller, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		logger.Error("server error", "error", err)
	}

	cancel()
	for _, teamID := range mgr.Running() {
		if err := mgr.Stop(teamID); err != nil {
			logger.Error("stop loop", "team", teamID, "error", err)
		}
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("server stop error", "error", err)
	}
	if err := persistSnapshot(st, state); err != nil {
		logger.Error("persist world snapshot", "error", err)
	}
	logger.Info("shutdown complete")
}

// persistSnapshot saves the final world view for post-mortem inspection.
func persistSnapshot(st store.Store, state *world.State) error {
	snap := state.Snapshot()
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return st.Put(store.Record{
		Partition: store.PartitionWorld,
		Key:       snap.TakenAt.UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	})
}

// resetSpendOnSchedule zeroes the daily counter at local midnight and the
// monthly counter on the first of the month.
func resetSpendOnSchedule(ctx context.Context, ctrl *world.Controller, logger *slog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if now.Day() != last.Day() {
				ctrl.ResetDailySpend()
				logger.Info("daily spend counter reset")
				if now.Month() != last.Month() {
					ctrl.ResetMonthlySpend()
					logger.Info("monthly spend counter reset")
				}
			}
			last = now
		}
	}
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
