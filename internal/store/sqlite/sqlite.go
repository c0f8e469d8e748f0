package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"gridexchange/internal/model"
	"gridexchange/internal/store"
)

// Fixed width so TEXT comparison orders like time.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	st := &Store{db: db}
	if err := st.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return st, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// UpsertExchanges keeps one row per zone key. Older readings never replace a
// newer one.
func (s *Store) UpsertExchanges(ctx context.Context, exchanges []model.StoredExchange) error {
	if len(exchanges) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO latest_exchanges (
			sorted_zone_keys, datetime, net_flow, source, run_id, ingested_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(sorted_zone_keys)
		DO UPDATE SET
			datetime = excluded.datetime,
			net_flow = excluded.net_flow,
			source = excluded.source,
			run_id = excluded.run_id,
			ingested_at = excluded.ingested_at
		WHERE excluded.datetime >= latest_exchanges.datetime
	`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range exchanges {
		exchange := exchanges[i]
		if exchange.IngestedAt.IsZero() {
			exchange.IngestedAt = now
		}
		_, err = stmt.ExecContext(
			ctx,
			exchange.SortedZoneKeys,
			exchange.Datetime.UTC().Format(timeLayout),
			exchange.NetFlow,
			exchange.Source,
			exchange.RunID,
			exchange.IngestedAt.UTC().Format(timeLayout),
		)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) ListLatest(ctx context.Context) ([]model.StoredExchange, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sorted_zone_keys, datetime, net_flow, source, run_id, ingested_at
		FROM latest_exchanges
		ORDER BY sorted_zone_keys
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.StoredExchange, 0)
	for rows.Next() {
		var (
			exchange   model.StoredExchange
			datetime   string
			ingestedAt string
		)
		if err := rows.Scan(&exchange.SortedZoneKeys, &datetime, &exchange.NetFlow, &exchange.Source, &exchange.RunID, &ingestedAt); err != nil {
			return nil, err
		}
		if exchange.Datetime, err = time.Parse(timeLayout, datetime); err != nil {
			return nil, fmt.Errorf("sqlite: datetime for %s: %w", exchange.SortedZoneKeys, err)
		}
		if exchange.IngestedAt, err = time.Parse(timeLayout, ingestedAt); err != nil {
			return nil, fmt.Errorf("sqlite: ingested_at for %s: %w", exchange.SortedZoneKeys, err)
		}
		out = append(out, exchange)
	}
	return out, rows.Err()
}

func (s *Store) migrate() error {
	statements := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS latest_exchanges (
			sorted_zone_keys TEXT NOT NULL PRIMARY KEY,
			datetime TEXT NOT NULL,
			net_flow REAL NOT NULL,
			source TEXT NOT NULL,
			run_id TEXT NOT NULL,
			ingested_at TEXT NOT NULL
		);`,
	}

	for _, statement := range statements {
		if _, err := s.db.Exec(statement); err != nil {
			return err
		}
	}

	return nil
}

var _ store.Store = (*Store)(nil)
