package concurrency

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finiex/internal/core"
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

func TestWorkerPoolRunsAllTasks(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{Name: "test", MaxWorkers: 4, MaxCapacity: 32}, nopLogger{})

	var counter atomic.Int64
	for i := 0; i < 20; i++ {
		require.NoError(t, pool.Submit(func() { counter.Add(1) }))
	}
	pool.StopAndWait()
	assert.Equal(t, int64(20), counter.Load())
}

func TestWorkerPoolRecoversPanics(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{Name: "test", MaxWorkers: 2, MaxCapacity: 8}, nopLogger{})

	var ran atomic.Bool
	require.NoError(t, pool.Submit(func() { panic("boom") }))
	require.NoError(t, pool.Submit(func() { ran.Store(true) }))
	pool.StopAndWait()
	assert.True(t, ran.Load())
}

func TestWorkerPoolStats(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{Name: "test"}, nopLogger{})
	require.NoError(t, pool.Submit(func() {}))
	pool.StopAndWait()

	stats := pool.Stats()
	assert.Contains(t, stats, "submitted_tasks")
	assert.Contains(t, stats, "successful_tasks")
}
