package engine

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// RunArchive persists batch results in a local sqlite database so past
// runs can be compared without re-running scenarios.
type RunArchive struct {
	db *sql.DB
}

const archiveSchema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	scenario_set TEXT NOT NULL,
	started_at INTEGER NOT NULL,
	scenario_count INTEGER NOT NULL,
	failed_count INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS results (
	run_id TEXT NOT NULL,
	scenario_index INTEGER NOT NULL,
	scenario_name TEXT NOT NULL,
	success INTEGER NOT NULL,
	data TEXT NOT NULL,
	checksum BLOB NOT NULL,
	PRIMARY KEY (run_id, scenario_index),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);`

// OpenRunArchive opens (and if needed initializes) the archive database.
func OpenRunArchive(dbPath string) (*RunArchive, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping archive database: %w", err)
	}
	// WAL mode for crash recovery
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(archiveSchema); err != nil {
		return nil, fmt.Errorf("failed to initialize archive schema: %w", err)
	}
	return &RunArchive{db: db}, nil
}

// SaveRun stores a completed batch under a fresh run id and returns it.
func (a *RunArchive) SaveRun(ctx context.Context, scenarioSet string, results []ProcessResult) (string, error) {
	runID := uuid.NewString()

	tx, err := a.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	failed := 0
	for _, res := range results {
		if !res.Success {
			failed++
		}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, scenario_set, started_at, scenario_count, failed_count) VALUES (?, ?, ?, ?, ?)`,
		runID, scenarioSet, time.Now().UnixNano(), len(results), failed)
	if err != nil {
		return "", fmt.Errorf("failed to write run row: %w", err)
	}

	for _, res := range results {
		data, err := json.Marshal(res)
		if err != nil {
			return "", fmt.Errorf("failed to marshal result %s: %w", res.ScenarioName, err)
		}
		checksum := sha256.Sum256(data)
		_, err = tx.ExecContext(ctx,
			`INSERT INTO results (run_id, scenario_index, scenario_name, success, data, checksum) VALUES (?, ?, ?, ?, ?, ?)`,
			runID, res.ScenarioIndex, res.ScenarioName, boolToInt(res.Success), string(data), checksum[:])
		if err != nil {
			return "", fmt.Errorf("failed to write result row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return runID, nil
}

// LoadRun returns the archived results of one run in scenario order,
// verifying each row's checksum.
func (a *RunArchive) LoadRun(ctx context.Context, runID string) ([]ProcessResult, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT data, checksum FROM results WHERE run_id = ? ORDER BY scenario_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}
	defer rows.Close()

	var results []ProcessResult
	for rows.Next() {
		var data string
		var stored []byte
		if err := rows.Scan(&data, &stored); err != nil {
			return nil, err
		}
		computed := sha256.Sum256([]byte(data))
		if len(stored) != len(computed) {
			return nil, fmt.Errorf("checksum length mismatch for run %s", runID)
		}
		for i := range computed {
			if stored[i] != computed[i] {
				return nil, fmt.Errorf("checksum verification failed for run %s: data corruption detected", runID)
			}
		}
		var res ProcessResult
		if err := json.Unmarshal([]byte(data), &res); err != nil {
			return nil, fmt.Errorf("failed to unmarshal archived result: %w", err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

func (a *RunArchive) Close() error {
	return a.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
