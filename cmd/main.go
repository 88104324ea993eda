package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	httpctx "github.com/keyward/keyward-server/internal/api/http/context"
	"github.com/keyward/keyward-server/internal/api/http/handler"
	"github.com/keyward/keyward-server/internal/api/http/router"
	httpServer "github.com/keyward/keyward-server/internal/api/http/server"
	"github.com/keyward/keyward-server/internal/config"
	"github.com/keyward/keyward-server/internal/gpg"
	"github.com/keyward/keyward-server/internal/keys"
	"github.com/keyward/keyward-server/internal/logger"
	"github.com/keyward/keyward-server/internal/model"
	"github.com/keyward/keyward-server/internal/repository/postgres"
	"github.com/keyward/keyward-server/internal/server"
	"github.com/keyward/keyward-server/internal/service"
	"github.com/keyward/keyward-server/internal/token"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.New(cfg.LogLevel)

	storage, err := postgres.NewStorage(ctx, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("failed to initialize storage", "error", err)
	}
	defer storage.Close()

	material, err := keys.Load(keys.Config{
		ServerKeyFingerprint: cfg.GPG.ServerKeyFingerprint,
		ServerKeyPassphrase:  cfg.GPG.ServerKeyPassphrase,
		JWTPrivateKeyFile:    cfg.JWT.PrivateKeyFile,
		JWTPublicKeyFile:     cfg.JWT.PublicKeyFile,
	})
	if err != nil {
		logger.Fatal("failed to load key material", "error", err)
	}
	if err := material.Ready(); err != nil {
		logger.Fatal("key material is not usable", "error", err)
	}

	keyring := gpg.NewKeyring(cfg.GPG.ServerKeyFile)
	if err := keyring.ImportServerKey(); err != nil {
		logger.Fatal("failed to import server OpenPGP key", "error", err)
	}

	tokenManager := token.NewJWT(material.SigningKey(), material.VerifyKey(), cfg.Auth.BaseURL, cfg.JWT.AccessTokenTTL)

	protocol := service.NewChallengeProtocol(service.ChallengeConfig{
		ServerFingerprint: material.ServerKeyFingerprint(),
		ServerPassphrase:  material.ServerKeyPassphrase(),
		BaseURL:           cfg.Auth.BaseURL,
	}, keyring.Factory(), storage.Users(), logger)

	refreshService := service.NewRefreshToken(storage.AuthenticationTokens(), cfg.Auth.RefreshTokenTTL, logger)
	authService := service.NewAuth(protocol, tokenManager, refreshService, cfg.Auth.BaseURL, logger)

	ctxMgr := httpctx.NewManager()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	authHandler := handler.NewAuth(authService, material, ctxMgr, logger)
	r := router.New(authHandler, tokenManager, ctxMgr, registry, logger)

	srv := httpServer.NewHTTPServer(r.Register(), fmt.Sprintf(":%s", cfg.HTTP.Port))

	var sl model.SecurityLayer
	if cfg.HTTP.EnableHTTPS {
		sl = server.NewTLSListener(cfg.HTTP.CertFileName, cfg.HTTP.PrivateKeyFileName)
	} else {
		sl = server.NewPlainListener()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func(s model.Server) {
		defer wg.Done()
		logger.Info("Starting server on", "address", s.Address())
		if err := s.Start(sl); err != nil {
			logger.Error("failed to start server", "error", err)
		}
	}(srv)

	logAppVersion()

	<-ctx.Done()
	logger.Info("received interruption signal, shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", "error", err, "address", srv.Address())
	}

	wg.Wait()
	logger.Info("shutdown complete")
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}
