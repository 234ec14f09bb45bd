package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/paygate-labs/x402-gateway-go/api"
	"github.com/paygate-labs/x402-gateway-go/auth"
	"github.com/paygate-labs/x402-gateway-go/config"
	"github.com/paygate-labs/x402-gateway-go/dispatch"
	"github.com/paygate-labs/x402-gateway-go/gate"
	"github.com/paygate-labs/x402-gateway-go/idempotency"
	"github.com/paygate-labs/x402-gateway-go/pricing"
	"github.com/paygate-labs/x402-gateway-go/rail"
	"github.com/paygate-labs/x402-gateway-go/rail/evm"
	"github.com/paygate-labs/x402-gateway-go/registry"
	"github.com/paygate-labs/x402-gateway-go/tasks"
	"github.com/paygate-labs/x402-gateway-go/types"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithField("error", err).Fatal("failed to load configuration")
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	// Registry: postgres when configured, in-memory otherwise
	var store registry.Store
	if cfg.RegistryDBURL != "" {
		pgStore, err := registry.NewPostgresStore(cfg.RegistryDBURL)
		if err != nil {
			log.WithField("error", err).Fatal("failed to open registry database")
		}
		defer pgStore.Close()
		store = pgStore
	} else {
		store = registry.NewMemoryStore()
	}

	// Requirements generator for the configured asset
	generator := pricing.NewGenerator(pricing.AssetConfig{
		Address:  cfg.AssetAddress,
		Decimals: cfg.AssetDecimals,
		Name:     cfg.AssetName,
		Version:  cfg.AssetVersion,
	}, cfg.MaxTimeoutSeconds)

	// EVM payment rail with idempotent settlement
	var paymentRail rail.PaymentRail = evm.New(evm.Config{
		Network:    types.Network(cfg.Network),
		ChainID:    cfg.ChainID,
		RPCURL:     cfg.RPCURL,
		PrivateKey: cfg.PrivateKey,
	})

	var dedup idempotency.Store
	if cfg.RedisAddr != "" {
		dedup = idempotency.NewRedisStore(cfg.RedisAddr, idempotency.DefaultTTL)
	} else {
		dedup = idempotency.NewMemoryStore(idempotency.DefaultTTL)
	}
	paymentRail = idempotency.Wrap(paymentRail, dedup)

	accessGate := gate.New(store, generator, paymentRail, log)

	// Task handlers
	dispatcher := dispatch.New()
	tasks.RegisterBuiltins(dispatcher)

	authenticator, err := auth.New(cfg.StaticAPIKey, cfg.AuthDBURL)
	if err != nil {
		log.WithField("error", err).Fatal("invalid auth configuration")
	}

	supported := api.SupportedKinds(map[types.Network]string{
		types.Network(cfg.Network): cfg.RPCURL,
	})

	handler := api.NewHandler(store, accessGate, dispatcher, authenticator, supported, log)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Serve until interrupted, then drain
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("gateway listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithField("error", err).Fatal("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithField("error", err).Error("shutdown failed")
	}
}
