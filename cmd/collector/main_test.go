package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridexchange/internal/exchange"
	"gridexchange/internal/store"
	"gridexchange/internal/store/sqlite"
)

const fixturePath = "../../internal/providers/swissgrid/testdata/CH.json"

func TestRunCollectorFixture(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "collector.db")

	err := runCollector(context.Background(), runOptions{Fixture: fixturePath, DBPath: dbPath})
	require.NoError(t, err)

	st, err := sqlite.New(dbPath)
	require.NoError(t, err)
	defer st.Close()

	latest, err := st.ListLatest(context.Background())
	require.NoError(t, err)
	require.Len(t, latest, 4)

	flows := map[string]float64{}
	for _, record := range latest {
		flows[record.SortedZoneKeys] = record.NetFlow
		assert.NotEmpty(t, record.RunID)
	}
	assert.Equal(t, map[string]float64{
		"AT->CH":    539,
		"CH->DE":    1117,
		"CH->FR":    -2234,
		"CH->IT-NO": 1304,
	}, flows)
}

func TestRunCollectorSinglePair(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "collector.db")

	require.NoError(t, runCollector(context.Background(), runOptions{Fixture: fixturePath, DBPath: dbPath, Pair: "it-no,ch"}))

	st, err := sqlite.New(dbPath)
	require.NoError(t, err)
	defer st.Close()

	latest, err := st.ListLatest(context.Background())
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "CH->IT-NO", latest[0].SortedZoneKeys)
	assert.Equal(t, 1304.0, latest[0].NetFlow)
}

func TestRunCollectorErrors(t *testing.T) {
	err := runCollector(context.Background(), runOptions{Fixture: fixturePath, Pair: "CH,ES"})
	assert.ErrorIs(t, err, exchange.ErrUnknownPair)

	err = runCollector(context.Background(), runOptions{Fixture: fixturePath, Pair: "CH"})
	assert.Error(t, err)

	err = runCollector(context.Background(), runOptions{Fixture: "does-not-exist.json"})
	assert.Error(t, err)
}

func TestOpenStoreWithoutSinks(t *testing.T) {
	st, err := openStore(context.Background(), "", "", 0)
	require.NoError(t, err)
	assert.IsType(t, &store.NopStore{}, st)
}

func TestCountErrors(t *testing.T) {
	assert.Equal(t, 1, countErrors(errors.New("one")))
	assert.Equal(t, 2, countErrors(errors.Join(errors.New("a"), errors.New("b"))))
}

func TestParseList(t *testing.T) {
	assert.Equal(t, []string{"CH", "IT-NO"}, parseList(" ch , it-no,,"))
	assert.Empty(t, parseList(""))
}
