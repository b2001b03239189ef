package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/tallyapp/tally/internal/auth"
	"github.com/tallyapp/tally/internal/config"
	"github.com/tallyapp/tally/internal/events"
	"github.com/tallyapp/tally/internal/service"
	"github.com/tallyapp/tally/internal/storage/sqlite"
	"github.com/tallyapp/tally/internal/syncer"
	"github.com/tallyapp/tally/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Log.Level)

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		slog.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("storage initialized", "database", cfg.Database.Path)

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		// Tokens issued under an ephemeral secret do not survive a restart.
		secret = randomSecret()
		slog.Warn("no JWT secret configured, generated an ephemeral one")
	}
	tokens := auth.NewJWTManager(secret, cfg.Auth.TokenTTL)
	authenticator := auth.NewPasswordAuthenticator(store)

	publisher := events.NewMemoryPublisher()
	coordinator := syncer.NewCoordinator(store, publisher)

	router := service.NewRouter(service.RouterDeps{
		Store:         store,
		Coordinator:   coordinator,
		Authenticator: authenticator,
		Tokens:        tokens,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	slog.Info("server starting", "address", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
