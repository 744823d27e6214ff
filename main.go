package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"lp-trader/internal/api"
	"lp-trader/internal/auth"
	"lp-trader/internal/db"
	"lp-trader/internal/engine"
	"lp-trader/internal/esi"
	"lp-trader/internal/fuzzwork"
	"lp-trader/internal/logger"
	"lp-trader/internal/pgstore"
	"lp-trader/internal/refresh"

	"github.com/joho/godotenv"
)

var version = "dev"

func main() {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	defaultPort, _ := strconv.Atoi(envOrDefault("LP_TRADER_PORT", "13370"))
	port := flag.Int("port", defaultPort, "HTTP server port")
	dbPath := flag.String("db", "", "SQLite database path (default ./"+db.DefaultFile+")")
	flag.Parse()

	logger.Banner(version)

	wd, _ := os.Getwd()
	dataDir := filepath.Join(wd, "data")
	os.MkdirAll(dataDir, 0755)

	// Settings and sessions always live in SQLite.
	database, err := db.Open(*dbPath)
	if err != nil {
		logger.Error("DB", fmt.Sprintf("Failed to open database: %v", err))
		os.Exit(1)
	}
	defer database.Close()

	cfg := database.LoadConfig()

	var catalog engine.Catalog = database
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		pg, err := pgstore.Open(context.Background(), dsn)
		if err != nil {
			logger.Error("DB", fmt.Sprintf("Failed to open PostgreSQL catalogue: %v", err))
			os.Exit(1)
		}
		defer pg.Close()
		catalog = pg
	}

	esiClient := esi.NewClient()
	market := fuzzwork.NewClient(cfg.AggregatesURL)

	ssoConfig := &auth.SSOConfig{
		ClientID:     os.Getenv("ESI_CLIENT_ID"),
		ClientSecret: os.Getenv("ESI_CLIENT_SECRET"),
		CallbackURL:  envOrDefault("ESI_CALLBACK_URL", fmt.Sprintf("http://localhost:%d/api/auth/callback", *port)),
		Scopes:       auth.DefaultScopes,
	}
	if !ssoConfig.Configured() {
		logger.Warn("AUTH", "ESI_CLIENT_ID not set, character login disabled")
	}
	sessions := auth.NewSessionStore(database.SqlDB())

	refresher := refresh.NewService(catalog, esiClient, market, cfg, dataDir)
	srv := api.NewServer(cfg, database, catalog, esiClient, refresher, ssoConfig, sessions)

	logger.Section("Catalogue")
	if n, err := catalog.CountItems(); err == nil {
		logger.Stats("Items", n)
	}
	if corps, err := catalog.ListCorps(); err == nil {
		logger.Stats("LP stores", len(corps))
	}
	logger.Stats("Region", cfg.MarketRegionID)

	addr := fmt.Sprintf("127.0.0.1:%d", *port)
	logger.Server(addr)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		logger.Error("Server", fmt.Sprintf("Failed: %v", err))
		os.Exit(1)
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
