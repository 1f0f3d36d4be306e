// Package app boots the identity service: configuration, logging,
// database, correlation store, provider gateways, flows and the HTTP
// server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vibepatch/identity/internal/accounts"
	"github.com/vibepatch/identity/internal/audit"
	"github.com/vibepatch/identity/internal/config"
	"github.com/vibepatch/identity/internal/correlation"
	"github.com/vibepatch/identity/internal/db"
	"github.com/vibepatch/identity/internal/flow"
	"github.com/vibepatch/identity/internal/gateway/alipay"
	"github.com/vibepatch/identity/internal/gateway/wechat"
	identityhttp "github.com/vibepatch/identity/internal/http"
	"github.com/vibepatch/identity/internal/identity"
	"github.com/vibepatch/identity/internal/logging"
	"github.com/vibepatch/identity/internal/security"
)

// shutdownTimeout bounds how long in-flight requests may run after a
// stop signal.
const shutdownTimeout = 10 * time.Second

// AppConfig holds process-level inputs.
type AppConfig struct {
	ConfigPath string
}

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, appCfg AppConfig) error {
	cfg, errLoad := config.Load(config.ResolveConfigPath(appCfg.ConfigPath))
	if errLoad != nil {
		return errLoad
	}
	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	return db.Migrate(conn)
}

// RunServer boots the identity service and blocks until ctx is canceled
// or the listener fails.
func RunServer(ctx context.Context, appCfg AppConfig) error {
	configPath := config.ResolveConfigPath(appCfg.ConfigPath)
	cfg, errLoad := config.Load(configPath)
	if errLoad != nil {
		return errLoad
	}
	if errValidate := cfg.Validate(); errValidate != nil {
		return errValidate
	}
	logging.Setup(cfg.Logging)
	log.Infof("starting identity service with config=%s", configPath)

	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	store, errStore := buildCorrelationStore(ctx, cfg)
	if errStore != nil {
		return errStore
	}

	// Bad key material must stop the process here, not fail the first
	// verification at runtime.
	verifyClient, errVerify := alipay.New(alipay.Config{
		AppID:      cfg.Alipay.AppID,
		PrivateKey: cfg.Alipay.PrivateKey,
		PublicKey:  cfg.Alipay.PublicKey,
		Gateway:    cfg.Alipay.Gateway,
		ReturnURL:  cfg.Alipay.ReturnURL,
		Timeout:    cfg.Alipay.Timeout.Std(),
	})
	if errVerify != nil {
		return fmt.Errorf("alipay client: %w", errVerify)
	}
	if !verifyClient.Configured() {
		log.Warn("alipay provider not configured, real-name verification disabled")
	}

	socialClient := wechat.New(wechat.Config{
		AppID:       cfg.WeChat.AppID,
		Secret:      cfg.WeChat.Secret,
		RedirectURL: cfg.WeChat.RedirectURL,
	})
	if !socialClient.Configured() {
		log.Warn("wechat provider not configured, social login disabled")
	}

	sessions := security.NewSessions(cfg.JWT.Secret, cfg.JWT.AccessTTL.Std(), cfg.JWT.RefreshTTL.Std())
	accountStore := accounts.NewStore(conn)
	ledger := identity.NewLedger(conn)
	recorder := audit.NewRecorder(conn)
	if cleaner := audit.NewRetentionCleaner(conn, cfg.Audit.RetentionDays); cleaner != nil {
		cleaner.Start(ctx)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	identityhttp.RegisterRoutes(engine, identityhttp.Deps{
		Accounts: accountStore,
		Ledger:   ledger,
		Sessions: sessions,
		Social:   flow.NewSocialFlow(socialClient, store, ledger, accountStore, sessions),
		Verify:   flow.NewVerifyFlow(verifyClient, store, accountStore),
		Audit:    recorder,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	log.Infof("identity service listening on %s", cfg.Server.Addr)

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case errServe := <-errCh:
		if errors.Is(errServe, http.ErrServerClosed) {
			return nil
		}
		return errServe
	}
}

// buildCorrelationStore selects the pending-flow state backend. Memory
// is the default; Redis lets callbacks land on any replica.
func buildCorrelationStore(ctx context.Context, cfg *config.Config) (correlation.Store, error) {
	ttl := cfg.Correlation.TTL.Std()
	if cfg.Correlation.Store == config.StoreRedis {
		client, errClient := correlation.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if errClient != nil {
			return nil, errClient
		}
		log.Infof("correlation store: redis at %s", cfg.Redis.Addr)
		return correlation.NewRedisStore(client, ttl), nil
	}

	memory := correlation.NewMemoryStore(ttl)
	memory.Start(ctx)
	return memory, nil
}
