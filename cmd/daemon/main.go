package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/worksnap/backend/internal/adapters"
	"github.com/worksnap/backend/internal/browser/cdp"
	"github.com/worksnap/backend/internal/browser/intercept"
	"github.com/worksnap/backend/internal/capture"
	"github.com/worksnap/backend/internal/config"
	"github.com/worksnap/backend/internal/domain/session"
	"github.com/worksnap/backend/internal/logging"
	"github.com/worksnap/backend/internal/osproc"
	"github.com/worksnap/backend/internal/shared/types"
	"github.com/worksnap/backend/internal/store"
	"go.uber.org/zap"
)

func main() {
	user := flag.String("user", "local", "User ID owning captured sessions")
	captureNow := flag.Bool("capture", false, "Run one capture immediately after startup")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.LoadOrDefault()

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stdout"},
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	repo, err := store.NewSQLite(cfg.Storage.Path)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("path", cfg.Storage.Path), zap.Error(err))
	}
	defer repo.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	proc := osproc.New()
	client := cdp.NewClient(time.Duration(cfg.Browser.ProbeTimeoutMs)*time.Millisecond, logger.Named("cdp"))
	capturer := cdp.NewCapturer(client, proc, cfg.Browser.PortRangeStart, cfg.Browser.PortRangeEnd, logger.Named("cdp"))

	steps := []adapters.Adapter{
		adapters.NewEditorAdapter(cfg.Capture.EditorDir, logger.Named("editor")),
		adapters.NewTerminalAdapter(logger.Named("terminal")),
		adapters.NewBrowserAdapter(capturer),
		adapters.NewNotesAdapter(cfg.Capture.NotesDir, logger.Named("notes")),
	}
	orchestrator := capture.New(repo, steps, proc, cfg.Capture.RetentionLimit, logger.Named("capture"))

	sessions := session.NewService(repo, cfg.Capture.UserTimezone, logger.Named("session"))
	if cfg.Capture.AutoCapture {
		sessions.OnDayRollover(func(hookCtx context.Context, ws *types.WorkSession) {
			// Rollover capture must not block the session lookup that
			// triggered it.
			go func() {
				_, err := orchestrator.Run(ctx, capture.Options{
					UserID:     ws.UserID,
					SessionID:  ws.ID,
					OnProgress: logProgress(logger),
				})
				if err != nil {
					logger.Warn("rollover capture failed",
						zap.String("kind", string(types.KindOf(err))),
						zap.Error(err))
				}
			}()
		})
	}

	if flagged, err := sessions.AutoRecoverRecent(ctx); err != nil {
		logger.Warn("auto-recovery scan failed", zap.Error(err))
	} else if flagged > 0 {
		logger.Info("unclean shutdown suspected", zap.Int("sessions", flagged))
	}

	current, err := sessions.GetCurrentSession(ctx, *user)
	if err != nil {
		logger.Fatal("failed to resolve current session", zap.Error(err))
	}
	logger.Info("current work session",
		zap.String("session_id", current.Session.ID),
		zap.Bool("created", current.Created),
		zap.Bool("new_day", current.WasNewDaySession))

	var interceptor *intercept.Interceptor
	if cfg.Interceptor.Enabled {
		icfg := intercept.DefaultConfig()
		icfg.TickInterval = time.Duration(cfg.Interceptor.TickIntervalMs) * time.Millisecond
		icfg.SettleDelay = time.Duration(cfg.Interceptor.SettleDelayMs) * time.Millisecond
		interceptor = intercept.New(icfg, proc, client, cdp.Families, logger.Named("intercept"))
		interceptor.Start(ctx)
	}

	if *captureNow {
		go func() {
			_, err := orchestrator.Run(ctx, capture.Options{
				UserID:     *user,
				SessionID:  current.Session.ID,
				OnProgress: logProgress(logger),
			})
			if err != nil {
				logger.Error("startup capture failed",
					zap.String("kind", string(types.KindOf(err))),
					zap.Error(err))
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	if interceptor != nil {
		interceptor.Stop()
	}
	cancel()
	if err := repo.Flush(context.Background()); err != nil {
		logger.Warn("final flush failed", zap.Error(err))
	}
}

func logProgress(logger *logging.Logger) types.ProgressFunc {
	return func(event types.ProgressEvent) {
		logger.Info("capture progress",
			zap.String("step", event.Step),
			zap.String("status", string(event.Status)),
			zap.Int("current", event.CurrentStep),
			zap.Int("total", event.TotalSteps),
			zap.Int("assets", event.AssetsCount))
	}
}
