package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gridexchange/internal/exchange"
	"gridexchange/internal/model"
	"gridexchange/internal/store/sqlite"
)

type metaFile struct {
	GeneratedAt string `json:"generated_at"`
	Source      string `json:"source"`
	LocalZone   string `json:"local_zone"`
}

type latestFile struct {
	GeneratedAt string        `json:"generated_at"`
	Rows        []latestEntry `json:"rows"`
}

type latestEntry struct {
	SortedZoneKeys string  `json:"sortedZoneKeys"`
	Datetime       string  `json:"datetime"`
	NetFlow        float64 `json:"netFlow"`
	Source         string  `json:"source"`
	Stale          bool    `json:"stale"`
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "build":
		build(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func build(args []string) {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	outDir := fs.String("out", "site/data", "output directory")
	dbPath := fs.String("db", "gridexchange.db", "sqlite database path")
	maxAge := fs.Duration("max-age", time.Hour, "mark rows older than this as stale (0 disables)")
	fs.Parse(args)

	if err := publish(context.Background(), *dbPath, *outDir, *maxAge, time.Now().UTC()); err != nil {
		slog.Error("publisher build failed", slog.Any("error", err))
		os.Exit(1)
	}
	fmt.Printf("publisher build complete (out=%s)\n", *outDir)
}

func publish(ctx context.Context, dbPath, outDir string, maxAge time.Duration, now time.Time) error {
	if strings.TrimSpace(dbPath) == "" {
		return fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	generatedAt := now.Format(time.RFC3339)
	meta := metaFile{GeneratedAt: generatedAt, Source: exchange.SourceName, LocalZone: exchange.LocalZone}
	if err := writeJSON(filepath.Join(outDir, "meta.json"), meta); err != nil {
		return fmt.Errorf("write meta.json: %w", err)
	}

	st, err := sqlite.New(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	stored, err := st.ListLatest(ctx)
	if err != nil {
		return fmt.Errorf("load exchanges: %w", err)
	}

	rows := buildLatest(stored, maxAge, now)
	if err := writeJSON(filepath.Join(outDir, "latest.json"), latestFile{GeneratedAt: generatedAt, Rows: rows}); err != nil {
		return fmt.Errorf("write latest.json: %w", err)
	}
	return nil
}

func buildLatest(stored []model.StoredExchange, maxAge time.Duration, now time.Time) []latestEntry {
	rows := make([]latestEntry, 0, len(stored))
	for _, record := range stored {
		rows = append(rows, latestEntry{
			SortedZoneKeys: record.SortedZoneKeys,
			Datetime:       record.Datetime.UTC().Format(time.RFC3339),
			NetFlow:        record.NetFlow,
			Source:         record.Source,
			Stale:          maxAge > 0 && now.Sub(record.Datetime) > maxAge,
		})
	}
	return rows
}

func writeJSON(path string, value any) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: publisher build [options]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "options:")
	fmt.Fprintln(os.Stderr, "  -out       output directory (default: site/data)")
	fmt.Fprintln(os.Stderr, "  -db        sqlite database path (default: gridexchange.db)")
	fmt.Fprintln(os.Stderr, "  -max-age   staleness threshold (default: 1h)")
}
