package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"

	"gridexchange/internal/api"
	"gridexchange/internal/exchange"
	"gridexchange/internal/model"
	"gridexchange/internal/providers"
	"gridexchange/internal/providers/swissgrid"
	"gridexchange/internal/store"
	"gridexchange/internal/store/redis"
	"gridexchange/internal/store/sqlite"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	slog.SetDefault(newLogger(os.Getenv("LOG_LEVEL")))

	switch os.Args[1] {
	case "run":
		run(os.Args[2:])
	case "serve":
		serve(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func run(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	pair := fs.String("pair", "", "comma-separated zone pair, e.g. CH,FR (empty = all neighbours)")
	fixture := fs.String("fixture", "", "replay a saved widget payload instead of fetching")
	dbPath := fs.String("db", "gridexchange.db", "sqlite database path (empty disables persistence)")
	redisAddr := fs.String("redis", "", "redis address for the latest-value sink (empty disables)")
	redisDB := fs.Int("redis-db", 0, "redis database number")
	verbose := fs.Bool("verbose", false, "print each exchange")
	fs.Parse(args)

	opts := runOptions{
		Pair:      *pair,
		Fixture:   *fixture,
		DBPath:    *dbPath,
		RedisAddr: *redisAddr,
		RedisDB:   *redisDB,
		Verbose:   *verbose,
	}
	if err := runCollector(context.Background(), opts); err != nil {
		slog.Error("collector run failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func serve(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	host := fs.String("host", getenv("HOST", "0.0.0.0"), "listen host")
	port := fs.String("port", getenv("PORT", "8080"), "listen port")
	fixture := fs.String("fixture", "", "serve a saved widget payload instead of fetching")
	dbPath := fs.String("db", "", "sqlite database exposed under /v1/stored (empty disables)")
	fs.Parse(args)

	if err := runServer(*host, *port, *fixture, *dbPath); err != nil {
		slog.Error("server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: collector <run|serve> [options]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "run options:")
	fmt.Fprintln(os.Stderr, "  -pair       zone pair such as CH,FR (default: all neighbours)")
	fmt.Fprintln(os.Stderr, "  -fixture    path to a saved widget payload")
	fmt.Fprintln(os.Stderr, "  -db         sqlite database path (default: gridexchange.db)")
	fmt.Fprintln(os.Stderr, "  -redis      redis address (default: disabled)")
	fmt.Fprintln(os.Stderr, "  -verbose    print each exchange")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "serve options:")
	fmt.Fprintln(os.Stderr, "  -host, -port  listen address (default: 0.0.0.0:8080)")
	fmt.Fprintln(os.Stderr, "  -fixture      path to a saved widget payload")
	fmt.Fprintln(os.Stderr, "  -db           sqlite database to expose (default: disabled)")
}

type runOptions struct {
	Pair      string
	Fixture   string
	DBPath    string
	RedisAddr string
	RedisDB   int
	Verbose   bool
}

func runCollector(ctx context.Context, opts runOptions) error {
	source, err := buildSource(opts.Fixture)
	if err != nil {
		return err
	}

	st, err := openStore(ctx, opts.DBPath, opts.RedisAddr, opts.RedisDB)
	if err != nil {
		return err
	}
	defer st.Close()

	normalizer := exchange.NewNormalizer()
	records, err := collect(ctx, normalizer, source, opts.Pair)
	if err != nil && len(records) == 0 {
		return err
	}

	failed := 0
	if err != nil {
		failed = countErrors(err)
		slog.Warn("some exchanges failed", slog.Any("error", err))
	}

	runID := uuid.NewString()
	stored := make([]model.StoredExchange, 0, len(records))
	for _, record := range records {
		stored = append(stored, model.StoredExchange{ExchangeRecord: record, RunID: runID})
		if opts.Verbose {
			fmt.Printf("%s %s %.1f %s\n",
				record.SortedZoneKeys,
				record.Datetime.Format(time.RFC3339),
				record.NetFlow,
				record.Source,
			)
		}
	}

	if err := st.UpsertExchanges(ctx, stored); err != nil {
		return err
	}
	fmt.Printf("collector run complete (source=%s run=%s exchanges=%d failed=%d)\n",
		source.Name(), runID, len(records), failed,
	)
	return nil
}

func collect(ctx context.Context, normalizer *exchange.Normalizer, source providers.ReadingSource, pair string) ([]model.ExchangeRecord, error) {
	if strings.TrimSpace(pair) == "" {
		return normalizer.FetchAll(ctx, source)
	}

	zones := parseList(pair)
	if len(zones) != 2 {
		return nil, fmt.Errorf("pair must name exactly two zones: %q", pair)
	}
	record, err := normalizer.FetchExchange(ctx, source, zones[0], zones[1])
	if err != nil {
		return nil, err
	}
	return []model.ExchangeRecord{record}, nil
}

func countErrors(err error) int {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		return len(joined.Unwrap())
	}
	return 1
}

func runServer(host, port, fixture, dbPath string) error {
	source, err := buildSource(fixture)
	if err != nil {
		return err
	}

	var st store.Store
	if strings.TrimSpace(dbPath) != "" {
		sqliteStore, err := sqlite.New(dbPath)
		if err != nil {
			return err
		}
		defer sqliteStore.Close()
		st = sqliteStore
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	server := &http.Server{
		Addr:              net.JoinHostPort(host, port),
		Handler:           api.New(source, exchange.NewNormalizer(), st, slog.Default()).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", slog.String("address", server.Addr), slog.String("source", source.Name()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	slog.Info("shutting down")
	return server.Shutdown(shutdownCtx)
}

func buildSource(fixture string) (providers.ReadingSource, error) {
	if strings.TrimSpace(fixture) == "" {
		return swissgrid.New()
	}

	file, err := os.Open(fixture)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	readings, err := swissgrid.DecodeReadings(file)
	if err != nil {
		return nil, err
	}
	return &providers.StaticSource{ID: "fixture", Readings: readings}, nil
}

func openStore(ctx context.Context, dbPath, redisAddr string, redisDB int) (store.Store, error) {
	var stores store.Multi
	if strings.TrimSpace(dbPath) != "" {
		st, err := sqlite.New(dbPath)
		if err != nil {
			return nil, err
		}
		stores = append(stores, st)
	}
	if strings.TrimSpace(redisAddr) != "" {
		st, err := redis.Dial(ctx, redisAddr, redisDB, slog.Default())
		if err != nil {
			_ = stores.Close()
			return nil, err
		}
		stores = append(stores, st)
	}
	if len(stores) == 0 {
		return &store.NopStore{}, nil
	}
	return stores, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func parseList(value string) []string {
	raw := strings.Split(value, ",")
	items := make([]string, 0, len(raw))
	for _, item := range raw {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		items = append(items, strings.ToUpper(trimmed))
	}
	return items
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
