package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridexchange/internal/model"
	"gridexchange/internal/store/sqlite"
)

func TestPublish(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "gridexchange.db")
	outDir := filepath.Join(dir, "out")
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	st, err := sqlite.New(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.UpsertExchanges(context.Background(), []model.StoredExchange{
		{ExchangeRecord: model.ExchangeRecord{SortedZoneKeys: "CH->FR", Datetime: now.Add(-time.Minute), NetFlow: -2234, Source: "swissgrid.ch"}, RunID: "r1"},
		{ExchangeRecord: model.ExchangeRecord{SortedZoneKeys: "AT->CH", Datetime: now.Add(-3 * time.Hour), NetFlow: 539, Source: "swissgrid.ch"}, RunID: "r0"},
	}))
	require.NoError(t, st.Close())

	require.NoError(t, publish(context.Background(), dbPath, outDir, time.Hour, now))

	raw, err := os.ReadFile(filepath.Join(outDir, "latest.json"))
	require.NoError(t, err)
	var latest latestFile
	require.NoError(t, json.Unmarshal(raw, &latest))
	require.Len(t, latest.Rows, 2)
	assert.Equal(t, "2024-03-01T12:00:00Z", latest.GeneratedAt)
	assert.Equal(t, latestEntry{SortedZoneKeys: "AT->CH", Datetime: "2024-03-01T09:00:00Z", NetFlow: 539, Source: "swissgrid.ch", Stale: true}, latest.Rows[0])
	assert.False(t, latest.Rows[1].Stale)

	raw, err = os.ReadFile(filepath.Join(outDir, "meta.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"generated_at":"2024-03-01T12:00:00Z","source":"swissgrid.ch","local_zone":"CH"}`, string(raw))
}

func TestBuildLatestWithoutMaxAge(t *testing.T) {
	now := time.Now().UTC()
	rows := buildLatest([]model.StoredExchange{
		{ExchangeRecord: model.ExchangeRecord{SortedZoneKeys: "CH->DE", Datetime: now.Add(-48 * time.Hour)}},
	}, 0, now)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Stale)
}

func TestPublishRequiresDB(t *testing.T) {
	assert.Error(t, publish(context.Background(), "", t.TempDir(), time.Hour, time.Now()))
}
