package badger

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/poiesic/cinevec/core"
	"github.com/poiesic/cinevec/storage"
)

// collectionMeta is the stored schema of a collection.
type collectionMeta struct {
	Dimension int              `json:"dimension"`
	Distance  storage.Distance `json:"distance"`
	CreatedAt time.Time        `json:"createdAt"`
}

// pointRecord is the stored form of a point. Vectors are kept normalized.
type pointRecord struct {
	ID      core.PointID   `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload,omitempty"`
}

func marshalMeta(m *collectionMeta) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrSerializationFailed, err)
	}
	return data, nil
}

func unmarshalMeta(data []byte) (*collectionMeta, error) {
	var m collectionMeta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrSerializationFailed, err)
	}
	return &m, nil
}

func marshalPoint(p *pointRecord) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrSerializationFailed, err)
	}
	return data, nil
}

func unmarshalPoint(data []byte) (*pointRecord, error) {
	var p pointRecord
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrSerializationFailed, err)
	}
	return &p, nil
}

func (p *pointRecord) toPoint(withVector bool) *core.Point {
	point := &core.Point{ID: p.ID, Payload: p.Payload}
	if withVector {
		point.Vector = p.Vector
	}
	return point
}
