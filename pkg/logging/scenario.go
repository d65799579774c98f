package logging

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"finiex/internal/core"
)

// ScenarioLogger buffers one scenario's console output and flushes it in a
// single write on completion or error. Timestamps are elapsed time since
// scenario start. Every scenario in a run shares the run timestamp so file
// logs land under one per-run directory.
type ScenarioLogger struct {
	*ZapLogger

	scenarioSet  string
	scenarioName string
	runTimestamp string
	startedAt    time.Time

	mu      sync.Mutex
	buf     bytes.Buffer
	flushed bool

	fileDir string // empty disables file logging
}

type lockedBuffer struct {
	mu  *sync.Mutex
	buf *bytes.Buffer
}

func (w lockedBuffer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w lockedBuffer) Sync() error { return nil }

// NewScenarioLogger creates a buffered logger for one scenario.
func NewScenarioLogger(scenarioSet, scenarioName, runTimestamp, levelStr, fileDir string) *ScenarioLogger {
	sl := &ScenarioLogger{
		scenarioSet:  scenarioSet,
		scenarioName: scenarioName,
		runTimestamp: runTimestamp,
		startedAt:    time.Now(),
		fileDir:      fileDir,
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	start := sl.startedAt
	encoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(fmt.Sprintf("+%09.3fs", t.Sub(start).Seconds()))
	}

	zcore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		lockedBuffer{mu: &sl.mu, buf: &sl.buf},
		parseZapLevel(levelStr),
	)

	sl.ZapLogger = &ZapLogger{logger: zap.New(zcore).With(zap.String("scenario", scenarioName))}
	return sl
}

// WithField keeps the returned logger writing into the same buffer.
func (sl *ScenarioLogger) WithField(key string, value interface{}) core.Logger {
	return sl.ZapLogger.WithField(key, value)
}

// Buffer returns the buffered output accumulated so far.
func (sl *ScenarioLogger) Buffer() string {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.buf.String()
}

// Flush writes the buffered output to stdout (and to the per-run log file
// when file logging is enabled). Safe to call more than once; subsequent
// calls only append output produced since the previous flush.
func (sl *ScenarioLogger) Flush() error {
	_ = sl.ZapLogger.Sync()

	sl.mu.Lock()
	out := sl.buf.String()
	sl.buf.Reset()
	continuation := sl.flushed
	sl.flushed = true
	sl.mu.Unlock()

	if out == "" {
		return nil
	}

	header := fmt.Sprintf("===== %s / %s (started %s) =====\n",
		sl.scenarioSet, sl.scenarioName, sl.startedAt.UTC().Format(time.RFC3339))
	if continuation {
		header = fmt.Sprintf("===== %s / %s (continued) =====\n", sl.scenarioSet, sl.scenarioName)
	}

	if _, err := os.Stdout.WriteString(header + out); err != nil {
		return err
	}

	if sl.fileDir == "" {
		return nil
	}
	dir := filepath.Join(sl.fileDir, sl.runTimestamp)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log dir: %w", err)
	}
	path := filepath.Join(dir, sl.scenarioName+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open scenario log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(header + out); err != nil {
		return err
	}
	return nil
}
