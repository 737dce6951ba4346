// Command clanforged runs the weighted clan assignment service.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/talgya/clanforge/internal/api"
	"github.com/talgya/clanforge/internal/clans"
	"github.com/talgya/clanforge/internal/config"
	"github.com/talgya/clanforge/internal/engine"
	"github.com/talgya/clanforge/internal/entropy"
	"github.com/talgya/clanforge/internal/history"
	"github.com/talgya/clanforge/internal/ledger"
	"github.com/talgya/clanforge/internal/persistence"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("clanforge — weighted clan assignment engine")

	// ── Catalog & Modifiers ───────────────────────────────────────────
	catalog := clans.SeedCatalog()
	if cfg.CatalogPath != "" {
		catalog, err = clans.LoadCatalog(cfg.CatalogPath)
		if err != nil {
			slog.Error("failed to load clan catalog", "path", cfg.CatalogPath, "error", err)
			os.Exit(1)
		}
	}
	modifiers := clans.SeedModifiers()
	if cfg.ModifiersPath != "" {
		modifiers, err = clans.LoadModifierTable(cfg.ModifiersPath)
		if err != nil {
			slog.Error("failed to load modifier table", "path", cfg.ModifiersPath, "error", err)
			os.Exit(1)
		}
	}
	slog.Info("catalog loaded", "clans", catalog.Len(), "traits", len(modifiers.Traits()))

	// ── Database ──────────────────────────────────────────────────────
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		os.MkdirAll(dir, 0755)
	}
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DBPath)

	led, err := ledger.Open(db, catalog)
	if err != nil {
		slog.Error("failed to load population ledger", "error", err)
		os.Exit(1)
	}
	hist := history.New(db)

	snap := led.Snapshot()
	slog.Info("population ledger loaded",
		"total_living", snap.TotalLiving,
		"total_assigned", snap.TotalAssigned(),
	)

	// ── Entropy ───────────────────────────────────────────────────────
	var rng entropy.Source = entropy.Crypto()
	if client := entropy.NewClient(cfg.RandomOrgKey); client != nil {
		rng = client
		slog.Info("entropy source: random.org pool with crypto/rand fallback")
	} else {
		slog.Info("entropy source: crypto/rand (RANDOM_ORG_KEY not set)")
	}

	// ── Engine & HTTP API ─────────────────────────────────────────────
	eng := engine.New(catalog, modifiers, led, hist, rng, engine.DefaultWeightParams())

	if cfg.AdminKey == "" {
		slog.Warn("CLANFORGE_ADMIN_KEY not set — assignment endpoints will be disabled")
	}
	server := &api.Server{
		Engine:   eng,
		Ledger:   led,
		History:  hist,
		Catalog:  catalog,
		Port:     cfg.Port,
		AdminKey: cfg.AdminKey,
	}
	server.Start()

	fmt.Printf("clanforge serving %d clans on http://localhost:%d/api/v1/status\n", catalog.Len(), cfg.Port)

	// ── Shutdown ──────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("received signal, shutting down", "signal", sig)
}
