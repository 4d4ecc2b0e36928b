package server

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/dwarvesf/secret-bridge/internal/allowance"
	"github.com/dwarvesf/secret-bridge/internal/assets"
	"github.com/dwarvesf/secret-bridge/internal/consts"
	"github.com/dwarvesf/secret-bridge/internal/gateway/evm"
	"github.com/dwarvesf/secret-bridge/internal/gateway/secret"
	"github.com/dwarvesf/secret-bridge/internal/handler"
	"github.com/dwarvesf/secret-bridge/internal/handler/health"
	"github.com/dwarvesf/secret-bridge/internal/handler/metrics"
	"github.com/dwarvesf/secret-bridge/internal/mirror"
	"github.com/dwarvesf/secret-bridge/internal/model"
	"github.com/dwarvesf/secret-bridge/internal/monitoring"
	"github.com/dwarvesf/secret-bridge/internal/operationstore"
	"github.com/dwarvesf/secret-bridge/internal/orchestrator"
	transport "github.com/dwarvesf/secret-bridge/internal/transport/http"
	"github.com/dwarvesf/secret-bridge/internal/utils/config"
	"github.com/dwarvesf/secret-bridge/internal/utils/logger"
	"github.com/dwarvesf/secret-bridge/internal/utils/vault"
	"github.com/dwarvesf/secret-bridge/internal/utils/webhook"
)

const (
	jobTimeout      = 2 * time.Minute
	shutdownTimeout = 30 * time.Second
	stalledInterval = time.Minute
)

func Init() {
	appConfig := config.New()
	logger := logger.New(appConfig.Environment)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := Run(ctx, appConfig, logger); err != nil {
		logger.Fatal("[Server] stopped with error", map[string]string{
			"error": err.Error(),
		})
	}
}

// loadSigningKeys replaces the EVM signer key from the environment with the
// one kept in Vault.
func loadSigningKeys(ctx context.Context, appConfig *config.AppConfig) error {
	vc, err := vault.New(ctx, vault.Config{
		Addr:   appConfig.Vault.Addr,
		KVPath: appConfig.Vault.KVPath,
		Role:   appConfig.Vault.Role,
	})
	if err != nil {
		return errors.Wrap(err, "vault login")
	}

	key, err := vc.GetKV(ctx, consts.VAULT_EVM_SIGNER_KEY)
	if err != nil {
		return errors.Wrap(err, "load evm signer key")
	}
	appConfig.Ethereum.SignerPrivateKey = key
	return nil
}

// Run wires the daemon and serves until ctx ends.
func Run(ctx context.Context, appConfig *config.AppConfig, logger *logger.Logger) error {
	registry := metrics.NewRegistry()
	apiMetrics := monitoring.NewExternalAPIMetrics()
	apiMetrics.MustRegister(registry)
	httpMetrics := monitoring.NewHTTPMetrics()
	httpMetrics.MustRegister(registry)
	opMetrics := monitoring.NewOperationMetrics()
	opMetrics.MustRegister(registry)
	jobMetrics := monitoring.NewBackgroundJobMetrics()
	jobMetrics.MustRegister(registry)

	if appConfig.Vault.Addr != "" {
		if err := loadSigningKeys(ctx, appConfig); err != nil {
			return err
		}
	}

	evmGateway, err := evm.New(appConfig, logger)
	if err != nil {
		return errors.Wrap(err, "init evm gateway")
	}
	secretGateway, err := secret.New(appConfig, logger)
	if err != nil {
		return errors.Wrap(err, "init secret gateway")
	}
	for name, cbConfig := range monitoring.CircuitBreakerConfigs {
		if err := monitoring.ValidateCircuitBreakerConfig(cbConfig); err != nil {
			return errors.Wrapf(err, "circuit breaker %s", name)
		}
	}
	evmBreaker := monitoring.NewCircuitBreakerGatewayWithTimeout(evmGateway,
		monitoring.CircuitBreakerConfigs[monitoring.APIEvmRPC], monitoring.DefaultTimeoutConfig, apiMetrics, logger)
	secretBreaker := monitoring.NewCircuitBreakerGatewayWithTimeout(secretGateway,
		monitoring.CircuitBreakerConfigs[monitoring.APISecretLCD], monitoring.DefaultTimeoutConfig, apiMetrics, logger)

	// the store retries reads itself, the breaker must not cut the last attempt short
	storeTimeouts := monitoring.RetryingTimeoutConfig(appConfig.OperationStore.RequestTimeout,
		appConfig.OperationStore.ReadRetries, appConfig.Orchestrator.RetryBaseDelay)
	store := monitoring.NewCircuitBreakerOperationStore(operationstore.New(appConfig, logger),
		monitoring.CircuitBreakerConfigs[monitoring.APIOperationStore], storeTimeouts, apiMetrics, logger)

	history, err := mirror.New(appConfig, logger)
	if err != nil {
		return errors.Wrap(err, "open mirror")
	}
	defer history.Close()

	var fileTokens []model.Token
	if appConfig.TokensFile != "" {
		fileTokens, err = assets.LoadTokensFile(appConfig.TokensFile)
		if err != nil {
			return err
		}
	}
	tokenRegistry := assets.New(fileTokens, assets.ProxyTokensFromConfig(appConfig), appConfig.TestCoins)
	refresher := &tokenRefresher{
		store:      store,
		registry:   tokenRegistry,
		fileTokens: fileTokens,
		logger:     logger,
	}
	if err := refresher.Refresh(ctx); err != nil {
		// the file tokens are enough to start, the cron job retries
		logger.Warn("[Server][TokenRefresh]", map[string]string{
			"error": err.Error(),
		})
	}

	orch := orchestrator.New(orchestrator.Deps{
		EVM:       evmBreaker,
		Secret:    secretBreaker,
		Store:     store,
		Mirror:    history,
		Assets:    tokenRegistry,
		Allowance: monitoring.NewInstrumentedAllowanceCache(allowance.New(appConfig.Orchestrator.AllowanceTTL), opMetrics),
	}, orchestrator.ConfigFromApp(appConfig), logger)
	defer orch.Close()

	metricChanges, cancelMetrics := orch.Subscribe(64)
	defer cancelMetrics()
	go opMetrics.Consume(ctx, metricChanges)

	if appConfig.WebhookURL != "" {
		hookChanges, cancelHook := orch.Subscribe(64)
		defer cancelHook()
		go webhook.New(appConfig.WebhookURL, logger).Consume(ctx, hookChanges)
	}

	jsm := monitoring.NewJobStatusManager(logger, jobMetrics)
	go jsm.WatchStalled(ctx, stalledInterval)

	recovery := monitoring.NewInstrumentedJob(consts.JOB_OPERATION_RECOVERY, recoveryJob(orch), jsm, logger, jobTimeout)
	tokens := monitoring.NewInstrumentedJob(consts.JOB_TOKEN_REFRESH, refresher.Refresh, jsm, logger, jobTimeout)

	// resume whatever the last run left in flight before taking new work
	recovery.Execute(ctx)

	c := cron.New()
	if _, err := c.AddJob(appConfig.RecoveryPeriod, recovery); err != nil {
		return errors.Wrapf(err, "schedule %s", consts.JOB_OPERATION_RECOVERY)
	}
	if _, err := c.AddJob("@every 10m", tokens); err != nil {
		return errors.Wrapf(err, "schedule %s", consts.JOB_TOKEN_REFRESH)
	}
	c.Start()
	defer func() { <-c.Stop().Done() }()

	h := handler.New(logger, handler.Deps{
		Orchestrator: orch,
		Mirror:       history,
		Store:        store,
		Checkers: map[string]health.Checker{
			consts.CHECK_EVM_RPC:      evmBreaker,
			consts.CHECK_SECRET_LCD:   secretBreaker,
			consts.CHECK_RECORD_STORE: store,
		},
		JobStatusManager: jsm,
		Registry:         registry,
	})

	srv := &http.Server{
		Addr:    ":" + appConfig.ApiServer.Port,
		Handler: transport.NewHttpServer(appConfig, logger, h, httpMetrics),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("[Server] listening", map[string]string{"port": appConfig.ApiServer.Port})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "serve http")
		}
	case <-ctx.Done():
	}

	logger.Info("[Server] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
