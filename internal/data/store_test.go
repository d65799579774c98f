package data

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finiex/internal/core"
	apperrors "finiex/pkg/errors"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{})                {}
func (nopLogger) Info(string, ...interface{})                 {}
func (nopLogger) Warn(string, ...interface{})                 {}
func (nopLogger) Error(string, ...interface{})                {}
func (nopLogger) Fatal(string, ...interface{})                {}
func (l nopLogger) WithField(string, interface{}) core.Logger { return l }
func (l nopLogger) WithFields(map[string]interface{}) core.Logger {
	return l
}

func makeTick(ts time.Time, bid, ask float64) core.Tick {
	return core.Tick{
		Timestamp: ts,
		Symbol:    "EURUSD",
		Bid:       decimal.NewFromFloat(bid),
		Ask:       decimal.NewFromFloat(ask),
		Volume:    1,
		TimeMsc:   ts.UnixMilli(),
	}
}

func TestTickFileRoundTrip(t *testing.T) {
	base := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	ticks := []core.Tick{
		makeTick(base, 1.1000, 1.1002),
		makeTick(base.Add(250*time.Millisecond), 1.1001, 1.1003),
		makeTick(base.Add(900*time.Millisecond), 1.0999, 1.1001),
	}

	path := filepath.Join(t.TempDir(), "EURUSD_001.parquet")
	require.NoError(t, WriteTickFile(path, ticks))

	got, err := ReadTickFile(path)
	require.NoError(t, err)
	require.Len(t, got, len(ticks))
	for i := range ticks {
		assert.True(t, got[i].Timestamp.Equal(ticks[i].Timestamp), "tick %d timestamp", i)
		assert.Equal(t, time.UTC, got[i].Timestamp.Location())
		assert.True(t, got[i].Bid.Equal(ticks[i].Bid), "tick %d bid", i)
		assert.True(t, got[i].Ask.Equal(ticks[i].Ask), "tick %d ask", i)
		assert.Equal(t, ticks[i].TimeMsc, got[i].TimeMsc)
	}
}

func TestBarFileRoundTrip(t *testing.T) {
	bar := core.Bar{
		Symbol:    "EURUSD",
		Timeframe: core.M5,
		Timestamp: time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
		Open:      decimal.NewFromFloat(1.1000),
		High:      decimal.NewFromFloat(1.1010),
		Low:       decimal.NewFromFloat(1.0990),
		Close:     decimal.NewFromFloat(1.1005),
		Volume:    42,
		TickCount: 17,
		BarType:   core.BarTypeReal,
	}

	path := filepath.Join(t.TempDir(), "EURUSD_M5_BARS.parquet")
	require.NoError(t, WriteBarFile(path, []core.Bar{bar}))

	got, err := ReadBarFile(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, core.M5, got[0].Timeframe)
	assert.True(t, got[0].Open.Equal(bar.Open))
	assert.True(t, got[0].Close.Equal(bar.Close))
	assert.Equal(t, 17, got[0].TickCount)
	assert.True(t, got[0].IsComplete)
	assert.Equal(t, core.BarTypeReal, got[0].BarType)
}

func TestReadTickFileCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.parquet")
	require.NoError(t, os.WriteFile(path, []byte("not parquet"), 0o644))

	_, err := ReadTickFile(path)
	assert.ErrorIs(t, err, apperrors.ErrCorruptDataFile)
}

func TestStorePaths(t *testing.T) {
	store := NewStore("/data/processed", "mt5")
	assert.Equal(t, filepath.Join("/data/processed", "mt5"), store.Root())
	assert.Equal(t, filepath.Join(store.Root(), "ticks", "EURUSD"), store.TickDir("EURUSD"))
	assert.Equal(t,
		filepath.Join(store.Root(), "bars", "EURUSD", "EURUSD_M5_BARS.parquet"),
		store.BarPath("EURUSD", core.M5))
}

func TestTickSymbols(t *testing.T) {
	store := NewStore(t.TempDir(), "mt5")

	symbols, err := store.TickSymbols()
	require.NoError(t, err)
	assert.Empty(t, symbols)

	require.NoError(t, os.MkdirAll(filepath.Join(store.Root(), "ticks", "EURUSD"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(store.Root(), "ticks", "GBPUSD"), 0o755))

	symbols, err = store.TickSymbols()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"EURUSD", "GBPUSD"}, symbols)
}
