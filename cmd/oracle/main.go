package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"

	"github.com/mtlprog/oracle/internal/api"
	"github.com/mtlprog/oracle/internal/config"
	"github.com/mtlprog/oracle/internal/database"
	"github.com/mtlprog/oracle/internal/domain"
	"github.com/mtlprog/oracle/internal/evm"
	"github.com/mtlprog/oracle/internal/export"
	"github.com/mtlprog/oracle/internal/feeder"
	"github.com/mtlprog/oracle/internal/journal"
	"github.com/mtlprog/oracle/internal/metrics"
	"github.com/mtlprog/oracle/internal/registry"
	"github.com/mtlprog/oracle/internal/seed"
	"github.com/mtlprog/oracle/internal/worker"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:  "oracle",
		Usage: "price oracle and reference aggregator registry",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API and the price feeder",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply pending database migrations and exit",
				Action: migrate,
			},
			{
				Name:  "export-tokens",
				Usage: "register the seed token list and write it as an XLSX workbook",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "output file",
						Value:   "tokens.xlsx",
					},
				},
				Action: exportTokens,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func migrate(c *cli.Context) error {
	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	pool, err := connect(c.Context, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	pool.Close()
	return nil
}

// connect opens the pool and applies pending migrations.
func connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := database.Connect(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	migrationsSub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create migrations sub-fs: %w", err)
	}
	if err := database.RunMigrations(ctx, pool, migrationsSub); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return pool, nil
}

// newDialer binds aggregator and token addresses to contracts over RPC, or to
// an empty in-memory directory when no endpoint is configured.
func newDialer(ctx context.Context, cfg config.Config) (registry.Dialer, func(), error) {
	if cfg.EthRPCURL == "" {
		slog.Warn("ETH_RPC_URL not set, aggregator and token reads will fail")
		return registry.NewDirectory(), func() {}, nil
	}
	d, client, err := evm.Dial(ctx, cfg.EthRPCURL)
	if err != nil {
		return nil, nil, err
	}
	return d, client.Close, nil
}

func seedTokens(ctx context.Context, cfg config.Config, agg *registry.ReferenceAggregator) error {
	if cfg.TokensFile == "" {
		return nil
	}
	f, err := seed.Load(cfg.TokensFile)
	if err != nil {
		return err
	}
	seed.Apply(ctx, agg, domain.Call{Caller: cfg.Owner, Now: uint64(time.Now().Unix())}, f)
	return nil
}

func serve(c *cli.Context) error {
	ctx := c.Context
	cfg := config.Load()

	if domain.IsUnset(cfg.Owner) {
		slog.Warn("OWNER_ADDRESS not set, administrative operations are disabled")
	}
	if len(cfg.APIKeys) == 0 {
		slog.Warn("API_KEYS not set, write endpoints will reject every request")
	}

	m := metrics.New()
	oracleNotifier := journal.Multi{journal.LogNotifier{Registry: "oracle"}, m.Notifier("oracle")}
	aggNotifier := journal.Multi{journal.LogNotifier{Registry: "aggregator"}, m.Notifier("aggregator")}

	var events journal.Repository
	if cfg.DatabaseURL != "" {
		pool, err := connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		repo := journal.NewPgRepository(pool)
		events = repo
		writer := journal.NewWriter(repo, 1024)
		defer writer.Close()
		oracleNotifier = append(oracleNotifier, writer.Notifier("oracle"))
		aggNotifier = append(aggNotifier, writer.Notifier("aggregator"))
	} else {
		slog.Warn("DATABASE_URL not set, event journal disabled")
	}

	dialer, closeDialer, err := newDialer(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDialer()

	oracle := registry.NewPriceOracle(cfg.Owner, cfg.ExpirationPeriod, cfg.Sources, oracleNotifier)
	agg := registry.NewReferenceAggregator(cfg.Owner, dialer, aggNotifier)

	if err := seedTokens(ctx, cfg, agg); err != nil {
		return err
	}

	// Start the feeder
	if cfg.FeederEnabled() {
		if !oracle.IsSource(cfg.FeederAddress) {
			slog.Warn("FEEDER_ADDRESS is not in PRICE_SOURCES, pushes will be rejected", "feeder", cfg.FeederAddress.Hex())
		}
		coingecko := feeder.NewCoinGeckoClient(cfg.CoinGeckoURL, cfg.CoinGeckoRate, 3)
		feederSvc := feeder.NewService(coingecko, oracle, cfg.FeederAddress, cfg.FeederSymbols, m)
		go worker.NewFeedWorker(feederSvc, cfg.FeederInterval).Run(ctx)
	}

	// Start HTTP server
	srv := api.NewServer(cfg.HTTPPort, api.NewHandler(oracle, agg, events), cfg.APIKeys, m)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return fmt.Errorf("HTTP server error: %w", err)
	}
	slog.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
	return nil
}

func exportTokens(c *cli.Context) error {
	ctx := c.Context
	cfg := config.Load()
	if cfg.TokensFile == "" {
		return errors.New("TOKENS_FILE is required")
	}

	dialer, closeDialer, err := newDialer(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDialer()

	agg := registry.NewReferenceAggregator(cfg.Owner, dialer, nil)
	if err := seedTokens(ctx, cfg, agg); err != nil {
		return err
	}

	out, err := os.Create(c.String("out"))
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer out.Close()

	if err := export.NewService(agg).Export(ctx, out); err != nil {
		return err
	}
	slog.Info("tokens exported", "file", c.String("out"), "count", agg.TokensCount())
	return nil
}
