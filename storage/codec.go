package storage

import (
	"encoding/json"
	"errors"

	"github.com/pthm-cable/neuroevo/evolution"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeRun(r RunRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (RunRecord, error) {
	var run RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return RunRecord{}, err
	}
	return run, nil
}

func EncodePopulation(s PopulationSnapshot) ([]byte, error) {
	return json.Marshal(s)
}

func DecodePopulation(data []byte) (PopulationSnapshot, error) {
	var snap PopulationSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return PopulationSnapshot{}, err
	}
	if err := checkVersion(snap.VersionedRecord); err != nil {
		return PopulationSnapshot{}, err
	}
	return snap, nil
}

func EncodeModel(m ModelEntry) ([]byte, error) {
	return json.Marshal(m)
}

func DecodeModel(data []byte) (ModelEntry, error) {
	var entry ModelEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return ModelEntry{}, err
	}
	if err := checkVersion(entry.VersionedRecord); err != nil {
		return ModelEntry{}, err
	}
	if _, _, err := entry.Model.Restore(); err != nil {
		return ModelEntry{}, err
	}
	return entry, nil
}

func EncodeStats(s evolution.Stats) ([]byte, error) {
	return json.Marshal(s)
}

func DecodeStats(data []byte) (evolution.Stats, error) {
	var stats evolution.Stats
	if err := json.Unmarshal(data, &stats); err != nil {
		return evolution.Stats{}, err
	}
	return stats, nil
}

func checkVersion(v VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
