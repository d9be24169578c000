package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/StewieC/DApp-PropertyVault/internal/events"
	"github.com/StewieC/DApp-PropertyVault/internal/ledger"
	"github.com/StewieC/DApp-PropertyVault/internal/metrics"
	"github.com/StewieC/DApp-PropertyVault/internal/router"
	"github.com/StewieC/DApp-PropertyVault/internal/token"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), *configPath)
		},
	}
}

func serve(ctx context.Context, configPath string) error {
	e, err := bootstrap(configPath)
	if err != nil {
		return err
	}
	defer e.close()
	cfg, log := e.cfg, e.logger

	tok, err := token.New(e.db, cfg.Vault.Address)
	if err != nil {
		return fmt.Errorf("init token: %w", err)
	}

	m := metrics.New()
	custody, err := tok.BalanceOf(ctx, tok.Vault())
	if err != nil {
		return fmt.Errorf("read vault balance: %w", err)
	}
	m.SetVaultCustody(custody)

	opts := ledger.Options{
		Owner:    cfg.Vault.Owner,
		Gateway:  tok,
		Observer: m,
		Logger:   log.Named("ledger"),
	}

	var pub *events.Publisher
	if cfg.Events.RedisAddr != "" {
		pub = events.NewPublisher(events.NewClient(cfg.Events), cfg.Events.Stream, 0)
		defer pub.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := pub.Ping(pingCtx); err != nil {
			log.Warn("event stream unreachable, facts will be published once it is back",
				zap.String("addr", cfg.Events.RedisAddr), zap.Error(err))
		}
		cancel()
		opts.Publisher = pub
	}

	svc, err := ledger.NewService(e.db, opts)
	if err != nil {
		return fmt.Errorf("init ledger: %w", err)
	}

	engine := router.SetupRouter(router.Deps{
		Config:  cfg,
		DB:      e.db,
		Ledger:  svc,
		Token:   tok,
		Events:  pub,
		Metrics: m,
		Logger:  log,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("owner", svc.Owner()),
			zap.String("vault", tok.Vault()))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("run server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
