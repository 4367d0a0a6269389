package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/pthm-cable/neuroevo/evolution"
)

// SQLiteStore persists runs in a single SQLite file using JSON payloads.
type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run RunRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeRun(run)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (id, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, run.ID, run.SchemaVersion, run.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (RunRecord, bool, error) {
	payload, ok, err := s.queryPayload(ctx, `SELECT payload FROM runs WHERE id = ?`, id)
	if err != nil || !ok {
		return RunRecord{}, false, err
	}
	run, err := DecodeRun(payload)
	if err != nil {
		return RunRecord{}, false, fmt.Errorf("decode run %s: %w", id, err)
	}
	return run, true, nil
}

func (s *SQLiteStore) SavePopulation(ctx context.Context, snap PopulationSnapshot) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodePopulation(snap)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO populations (run_id, generation, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, generation) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, snap.RunID, snap.Generation, snap.SchemaVersion, snap.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetPopulation(ctx context.Context, runID string, generation int) (PopulationSnapshot, bool, error) {
	payload, ok, err := s.queryPayload(ctx,
		`SELECT payload FROM populations WHERE run_id = ? AND generation = ?`, runID, generation)
	if err != nil || !ok {
		return PopulationSnapshot{}, false, err
	}
	snap, err := DecodePopulation(payload)
	if err != nil {
		return PopulationSnapshot{}, false, fmt.Errorf("decode population %s/%d: %w", runID, generation, err)
	}
	return snap, true, nil
}

func (s *SQLiteStore) LatestPopulation(ctx context.Context, runID string) (PopulationSnapshot, bool, error) {
	payload, ok, err := s.queryPayload(ctx,
		`SELECT payload FROM populations WHERE run_id = ? ORDER BY generation DESC LIMIT 1`, runID)
	if err != nil || !ok {
		return PopulationSnapshot{}, false, err
	}
	snap, err := DecodePopulation(payload)
	if err != nil {
		return PopulationSnapshot{}, false, fmt.Errorf("decode latest population %s: %w", runID, err)
	}
	return snap, true, nil
}

func (s *SQLiteStore) AppendGeneration(ctx context.Context, runID string, stats evolution.Stats) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeStats(stats)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO generations (run_id, generation, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(run_id, generation) DO UPDATE SET
			payload = excluded.payload
	`, runID, stats.Generation, payload)
	return err
}

func (s *SQLiteStore) GetHistory(ctx context.Context, runID string) ([]evolution.Stats, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT payload FROM generations WHERE run_id = ? ORDER BY generation ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []evolution.Stats
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		stats, err := DecodeStats(payload)
		if err != nil {
			return nil, fmt.Errorf("decode generation stats %s: %w", runID, err)
		}
		history = append(history, stats)
	}
	return history, rows.Err()
}

func (s *SQLiteStore) SaveModel(ctx context.Context, entry ModelEntry) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeModel(entry)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO models (run_id, name, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, name) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, entry.RunID, entry.Name, entry.SchemaVersion, entry.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetModel(ctx context.Context, runID, name string) (ModelEntry, bool, error) {
	payload, ok, err := s.queryPayload(ctx,
		`SELECT payload FROM models WHERE run_id = ? AND name = ?`, runID, name)
	if err != nil || !ok {
		return ModelEntry{}, false, err
	}
	entry, err := DecodeModel(payload)
	if err != nil {
		return ModelEntry{}, false, fmt.Errorf("decode model %s/%s: %w", runID, name, err)
	}
	return entry, true, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) queryPayload(ctx context.Context, query string, args ...any) ([]byte, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, query, args...).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return payload, true, nil
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrNotInitialized
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS populations (
			run_id TEXT NOT NULL,
			generation INTEGER NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (run_id, generation)
		);
		CREATE TABLE IF NOT EXISTS generations (
			run_id TEXT NOT NULL,
			generation INTEGER NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (run_id, generation)
		);
		CREATE TABLE IF NOT EXISTS models (
			run_id TEXT NOT NULL,
			name TEXT NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (run_id, name)
		);
	`)
	return err
}
