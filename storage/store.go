// Package storage persists runs explicitly requested by the host: run
// metadata, population snapshots, per-generation statistics and saved models.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/pthm-cable/neuroevo/evolution"
	"github.com/pthm-cable/neuroevo/neural"
)

// ErrNotInitialized is returned by stores used before Init.
var ErrNotInitialized = errors.New("store is not initialized")

// Store defines persistence operations for evolution runs.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run RunRecord) error
	GetRun(ctx context.Context, id string) (RunRecord, bool, error)
	SavePopulation(ctx context.Context, snap PopulationSnapshot) error
	GetPopulation(ctx context.Context, runID string, generation int) (PopulationSnapshot, bool, error)
	LatestPopulation(ctx context.Context, runID string) (PopulationSnapshot, bool, error)
	AppendGeneration(ctx context.Context, runID string, stats evolution.Stats) error
	GetHistory(ctx context.Context, runID string) ([]evolution.Stats, error)
	SaveModel(ctx context.Context, entry ModelEntry) error
	GetModel(ctx context.Context, runID, name string) (ModelEntry, bool, error)
}

// VersionedRecord tags every stored payload with the format it was written in.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

func currentVersion() VersionedRecord {
	return VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

// RunRecord describes one evolution run.
type RunRecord struct {
	VersionedRecord
	ID             string            `json:"id"`
	Seed           int64             `json:"seed"`
	Topology       neural.Descriptor `json:"topology"`
	PopulationSize int               `json:"population_size"`
	CreatedAt      time.Time         `json:"created_at"`
}

// NewRunRecord creates a run record with a fresh random ID.
func NewRunRecord(seed int64, t *neural.Topology, populationSize int) RunRecord {
	return RunRecord{
		VersionedRecord: currentVersion(),
		ID:              uuid.NewString(),
		Seed:            seed,
		Topology:        t.Descriptor(),
		PopulationSize:  populationSize,
		CreatedAt:       time.Now().UTC(),
	}
}

// ModelEntry is a named model saved under a run, e.g. "best".
type ModelEntry struct {
	VersionedRecord
	RunID      string             `json:"run_id"`
	Name       string             `json:"name"`
	Generation int                `json:"generation"`
	Fitness    float64            `json:"fitness"`
	Model      neural.ModelRecord `json:"model"`
}

// NewModelEntry wraps a model record for storage.
func NewModelEntry(runID, name string, generation int, fitness float64, model neural.ModelRecord) ModelEntry {
	return ModelEntry{
		VersionedRecord: currentVersion(),
		RunID:           runID,
		Name:            name,
		Generation:      generation,
		Fitness:         fitness,
		Model:           model,
	}
}
