package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/inkpilot/internal/api"
	"github.com/user/inkpilot/internal/bus"
	"github.com/user/inkpilot/internal/creator"
	"github.com/user/inkpilot/internal/delivery"
	"github.com/user/inkpilot/internal/edit"
	"github.com/user/inkpilot/internal/gateway"
	"github.com/user/inkpilot/internal/intent"
	"github.com/user/inkpilot/internal/runtime"
	"github.com/user/inkpilot/internal/scheduler"
	"github.com/user/inkpilot/internal/state"
	"github.com/user/inkpilot/internal/syncer"
	"github.com/user/inkpilot/internal/telegram"
	"github.com/user/inkpilot/internal/types"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the inkpilot daemon",
	RunE:  runServe,
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, "inkpilot.pid")
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	snaps, err := openSnapshots(cfg)
	if err != nil {
		return err
	}
	defer snaps.Close()

	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	// Stores
	conversations := state.NewConversationStore(cfg.DataDir)
	messages := state.NewMessageLog(cfg.DataDir)
	documents := state.NewDocumentStore(cfg.DataDir)
	uploadsDir := filepath.Join(cfg.DataDir, "uploads")
	if err := os.MkdirAll(uploadsDir, 0755); err != nil {
		return fmt.Errorf("create uploads dir: %w", err)
	}

	// Model adapter
	resolver := newResolver(cfg)
	router := newRouter(cfg, resolver)
	engine, err := newContextEngine(cfg)
	if err != nil {
		return err
	}

	// Orchestration
	editorBus := bus.New(time.Duration(cfg.Editor.RequestTimeoutMs) * time.Millisecond)
	classifier := intent.NewClassifier(router, cfg.LLM.ClassifierModel)
	orchestrator := creator.New(router, engine, newSearcher(cfg), cfg.Search.ResultLimit)
	modifier := edit.NewModifier(router, engine)
	rt := runtime.New(classifier, orchestrator, modifier, editorBus, conversations, messages, runtime.DefaultHistoryLimit)

	gw := gateway.New(conversations, cfg.LLM.DefaultModel, int64(cfg.MaxConcurrent))
	gw.Queue.SetProcessor(rt.ProcessRun)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw.Start(ctx)
	defer gw.Stop()

	// Notifications
	deliveryReg := delivery.NewRegistry()
	deliveryReg.Register("log:", delivery.LogHandler)
	deliveryReg.Subscribe("log:notify", bus.LevelInfo)
	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != 0 {
		notifier, err := telegram.New(cfg.Telegram.Token)
		if err != nil {
			return fmt.Errorf("create telegram notifier: %w", err)
		}
		deliveryReg.Register(telegram.TargetPrefix, notifier.Deliver)
		deliveryReg.Subscribe(telegram.Target(cfg.Telegram.ChatID), bus.LevelError)
		slog.Info("telegram notifications enabled", "chat_id", cfg.Telegram.ChatID)
	} else {
		slog.Warn("telegram notifications disabled (no token or chat id)")
	}
	go deliveryReg.Run(ctx, editorBus)

	// Sync
	remoteStore, err := newRemote(cfg, documents)
	if err != nil {
		return err
	}
	syncEngine := syncer.New(snaps, remoteStore, syncer.Options{
		MinSpacing: time.Duration(cfg.Sync.MinUpdateSpacingMs) * time.Millisecond,
		OnChange: func(id types.ArtifactID, st types.SyncState) {
			if st.Status == types.SyncStatusError {
				editorBus.Notify(fmt.Sprintf("Sync failed for %s: %s", id, st.Error), bus.LevelError, 0)
			}
		},
	})
	if err := syncEngine.Start(ctx); err != nil {
		return fmt.Errorf("start sync engine: %w", err)
	}

	sched := scheduler.New(ctx)
	interval := time.Duration(cfg.Sync.IntervalSeconds) * time.Second
	if err := sched.Add("sync-sweep", scheduler.Every(interval), func(ctx context.Context) error {
		if err := syncEngine.Sweep(ctx); err != nil && !errors.Is(err, syncer.ErrOffline) {
			return err
		}
		return nil
	}); err != nil {
		return fmt.Errorf("schedule sync sweep: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	slog.Info("inkpilot started",
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"max_concurrent", cfg.MaxConcurrent,
		"default_model", cfg.LLM.DefaultModel,
		"classifier_model", cfg.LLM.ClassifierModel,
		"sync_remote", cfg.Sync.Remote,
		"sync_interval", interval,
		"pid_file", pidPath,
	)

	// HTTP server
	if cfg.HTTP.Enabled {
		srv := api.NewServer(api.Deps{
			Gateway:       gw,
			Modifier:      modifier,
			Sync:          syncEngine,
			Snapshots:     snaps,
			Conversations: conversations,
			Messages:      messages,
			Bus:           editorBus,
			Media:         resolver,
			Documents:     documents,
			UploadsDir:    uploadsDir,
			Token:         cfg.Sync.RemoteToken,
			DefaultModel:  cfg.LLM.DefaultModel,
		})
		httpServer := &http.Server{
			Addr:    cfg.HTTP.Listen,
			Handler: srv,
		}
		go func() {
			slog.Info("http server started", "listen", cfg.HTTP.Listen)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("http server error", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			httpServer.Shutdown(shutdownCtx)
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			slog.Info("received SIGHUP, restarting")
			execPath, err := os.Executable()
			if err != nil {
				slog.Error("failed to get executable path", "error", err)
				continue
			}
			os.Remove(pidPath)
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				slog.Error("failed to re-exec", "error", err)
				if _, writeErr := writePIDFile(cfg.DataDir); writeErr != nil {
					slog.Error("failed to re-write PID file", "error", writeErr)
				}
				continue
			}
		}
		slog.Info("shutting down", "signal", sig)
		return nil
	}
}
