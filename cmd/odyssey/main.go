package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-cms/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-cms/internal/admin"
	"github.com/odyssey-erp/odyssey-cms/internal/app"
	"github.com/odyssey-erp/odyssey-cms/internal/audit"
	audithttp "github.com/odyssey-erp/odyssey-cms/internal/audit/http"
	"github.com/odyssey-erp/odyssey-cms/internal/auth"
	"github.com/odyssey-erp/odyssey-cms/internal/content"
	"github.com/odyssey-erp/odyssey-cms/internal/observability"
	"github.com/odyssey-erp/odyssey-cms/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-cms/internal/platform/db"
	"github.com/odyssey-erp/odyssey-cms/internal/rbac"
	"github.com/odyssey-erp/odyssey-cms/internal/shared"
	"github.com/odyssey-erp/odyssey-cms/internal/users"
	"github.com/odyssey-erp/odyssey-cms/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		if err := runJobsCommand(ctx, cfg, os.Args[2:]); err != nil {
			logger.Error("jobs command", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookieName, cfg.SessionTTL, cfg.IsProduction())
	metrics := observability.NewMetrics()

	auditService := audit.NewService(audit.NewPGStore(dbpool), logger)

	usersService := users.NewService(users.NewRepository(dbpool), auditService, logger)
	contentService := content.NewService(content.NewRepository(dbpool), auditService)

	resources, err := rbac.NewResourceTable(
		rbac.ResourceBinding{Kind: rbac.KindContent, Fetch: contentService.Fetch},
		rbac.ResourceBinding{Kind: rbac.KindUser, Fetch: usersService.Fetch},
	)
	if err != nil {
		logger.Error("bind resources", slog.Any("error", err))
		os.Exit(1)
	}
	gate := rbac.NewGate(rbac.GateConfig{
		Registry:             rbac.DefaultRegistry(),
		Resources:            resources,
		Recorder:             auditService,
		Observer:             metrics,
		Logger:               logger,
		AuditUnauthenticated: cfg.AuditUnauthenticated,
	})
	rbacMiddleware := rbac.Middleware{Gate: gate}

	authService := auth.NewService(usersService, auth.NewRepository(dbpool), auditService, logger)
	authHandler := auth.NewHandler(logger, authService, sessionManager, rbacMiddleware)
	usersHandler := users.NewHandler(logger, usersService, rbacMiddleware)
	contentHandler := content.NewHandler(logger, contentService, rbacMiddleware)
	auditHandler := audithttp.NewHandler(logger, auditService, rbacMiddleware)
	adminHandler := admin.NewHandler(logger, admin.NewService(usersService, auditService), rbacMiddleware)
	permissionsHandler := rbac.NewPermissionsHandler(gate.Registry(), rbacMiddleware)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		RBACMiddleware:     rbacMiddleware,
		AuthHandler:        authHandler,
		UsersHandler:       usersHandler,
		ContentHandler:     contentHandler,
		AuditHandler:       auditHandler,
		AdminHandler:       adminHandler,
		PermissionsHandler: permissionsHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

// runJobsCommand handles `odyssey jobs trigger <task>` and `odyssey jobs stats`.
func runJobsCommand(ctx context.Context, cfg *app.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: odyssey jobs <trigger|stats>")
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer jobsCLI.Close()

	switch args[0] {
	case "trigger":
		fs := flag.NewFlagSet("trigger", flag.ContinueOnError)
		retention := fs.Duration("retention", 0, "override audit retention window")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		name := jobs.TaskAuditPrune
		if fs.NArg() > 0 {
			name = fs.Arg(0)
		}
		info, err := jobsCLI.Trigger(ctx, name, *retention)
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n", stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		scheduled, err := jobsCLI.ListScheduled(ctx, 10)
		if err != nil {
			return err
		}
		for _, t := range scheduled {
			fmt.Printf("scheduled %s id=%s next=%s\n", t.Type, t.ID, t.NextProcessAt.Format(time.RFC3339))
		}
	default:
		return fmt.Errorf("unknown jobs command %q", args[0])
	}
	return nil
}
