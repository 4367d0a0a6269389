package neural

import (
	"encoding/json"
	"fmt"
	"os"
)

// ModelRecord is the flat persistence form of a trained model: the topology
// descriptor plus the parameter buffer in kernel layout order.
type ModelRecord struct {
	Topology   Descriptor `json:"topology"`
	Parameters []float64  `json:"parameters"`
}

// NewModelRecord copies params so the record stays valid if the genome mutates.
func NewModelRecord(t *Topology, params []float64) ModelRecord {
	p := make([]float64, len(params))
	copy(p, params)
	return ModelRecord{Topology: t.Descriptor(), Parameters: p}
}

// Restore rebuilds the topology and checks that the parameter count matches it.
func (r ModelRecord) Restore() (*Topology, []float64, error) {
	t, err := r.Topology.Build()
	if err != nil {
		return nil, nil, err
	}
	if len(r.Parameters) != t.ParamCount() {
		return nil, nil, fmt.Errorf("%w: record has %d parameters, topology %s expects %d",
			ErrShapeMismatch, len(r.Parameters), t, t.ParamCount())
	}
	return t, r.Parameters, nil
}

// SaveModel writes a record as indented JSON.
func SaveModel(path string, r ModelRecord) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling model: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing model file: %w", err)
	}
	return nil
}

// LoadModel reads a record written by SaveModel and validates it.
func LoadModel(path string) (ModelRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ModelRecord{}, fmt.Errorf("reading model file: %w", err)
	}
	var r ModelRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return ModelRecord{}, fmt.Errorf("parsing model file: %w", err)
	}
	if _, _, err := r.Restore(); err != nil {
		return ModelRecord{}, err
	}
	return r, nil
}
