package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/backoffice/cmd/backofficectl/cli"
	"github.com/odyssey-erp/backoffice/internal/app"
	"github.com/odyssey-erp/backoffice/internal/orders"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/users"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(connect)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func connect(ctx context.Context) (*cli.Env, func(), error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolConfig{MaxConns: 2})
	if err != nil {
		return nil, nil, err
	}
	auditLogger := shared.NewAuditLogger(pool)
	jobsCLI := cli.NewJobsCLI(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})

	env := &cli.Env{
		Migrate: func(ctx context.Context) error { return db.ApplySchema(ctx, pool) },
		Roles:   rbac.NewService(rbac.NewStore(pool), auditLogger, logger),
		Orders: orders.NewService(orders.NewRepository(pool), orders.Deps{
			Audit:  auditLogger,
			Logger: logger,
		}, orders.ServiceConfig{TxTimeout: cfg.OrderTxTimeout, MaxRetries: cfg.OrderTxRetries}),
		Users: users.NewService(users.NewRepository(pool)),
		Jobs:  jobsCLI,
	}
	release := func() {
		if err := jobsCLI.Close(); err != nil {
			logger.Warn("jobs cli close", slog.Any("error", err))
		}
		pool.Close()
	}
	return env, release, nil
}
