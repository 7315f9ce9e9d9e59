// authstub runs the development auth collaborator the session manager refreshes
// against. Never expose it outside a development machine.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jcarweb/repuestospro-sub005/internal/authstub"
	"github.com/jcarweb/repuestospro-sub005/internal/config"
	"github.com/jcarweb/repuestospro-sub005/internal/logger"
	"github.com/jcarweb/repuestospro-sub005/internal/security"
)

const accessTTL = 15 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if cfg.Env == "production" {
		log.Fatal("authstub refuses to run with APP_ENV=production")
	}

	signer, pub, err := security.SigningKeys(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	if err != nil {
		log.Fatal("jwt keys", zap.Error(err))
	}
	if cfg.JWTPrivateKey == "" {
		log.Warn("no JWT keys configured; using an ephemeral key pair")
	}
	tokens := security.NewTokenProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience, accessTTL, cfg.SessionTTL())

	svc := authstub.NewService(authstub.Options{
		Hasher:            security.NewHasher(cfg.BcryptCost),
		Tokens:            tokens,
		OTPReturnToClient: true,
		Logger:            log,
	})
	if err := authstub.SeedDevUsers(svc); err != nil {
		log.Fatal("seed users", zap.Error(err))
	}

	srv := &http.Server{
		Addr:         cfg.AuthStubAddr,
		Handler:      authstub.NewHandler(svc, log).Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		log.Info("authstub listening", zap.String("addr", cfg.AuthStubAddr), zap.String("dev_user", authstub.DevUserEmail))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("authstub serve", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down authstub...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("authstub shutdown", zap.Error(err))
	}
	log.Info("authstub stopped")
}
