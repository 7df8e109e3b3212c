package qdrant

import (
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/poiesic/cinevec/core"
	"github.com/poiesic/cinevec/storage"
	"github.com/qdrant/go-client/qdrant"
)

// toPointIDs converts core IDs into numeric Qdrant point IDs.
func toPointIDs(ids []core.PointID) []*qdrant.PointId {
	out := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		out[i] = qdrant.NewIDNum(uint64(id))
	}
	return out
}

// fromPointID reads a numeric Qdrant point ID. UUID IDs are never written by
// this package and map to 0.
func fromPointID(id *qdrant.PointId) core.PointID {
	return core.PointID(id.GetNum())
}

// toFilter translates a storage filter into a Qdrant filter.
// A nil or empty filter yields nil.
func toFilter(f *storage.Filter) *qdrant.Filter {
	if f.IsEmpty() {
		return nil
	}
	out := &qdrant.Filter{}
	if len(f.MatchIDs) > 0 {
		out.Must = append(out.Must, qdrant.NewHasID(toPointIDs(f.MatchIDs)...))
	}
	if len(f.ExcludeIDs) > 0 {
		out.MustNot = append(out.MustNot, qdrant.NewHasID(toPointIDs(f.ExcludeIDs)...))
	}
	for _, key := range sortedKeys(f.MatchValues) {
		out.Must = append(out.Must, qdrant.NewMatchKeywords(key, f.MatchValues[key]...))
	}
	for _, key := range sortedKeys(f.ExcludeValues) {
		out.MustNot = append(out.MustNot, qdrant.NewMatchKeywords(key, f.ExcludeValues[key]...))
	}
	return out
}

// toPayload converts a payload map into Qdrant values.
func toPayload(payload map[string]any) (map[string]*qdrant.Value, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	out := make(map[string]*qdrant.Value, len(payload))
	for key, v := range payload {
		value, err := toValue(v)
		if err != nil {
			return nil, fmt.Errorf("%w: payload field %q: %v", storage.ErrSerializationFailed, key, err)
		}
		out[key] = value
	}
	return out, nil
}

func toValue(v any) (*qdrant.Value, error) {
	switch x := v.(type) {
	case nil:
		return &qdrant.Value{Kind: &qdrant.Value_NullValue{}}, nil
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: x}}, nil
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: x}}, nil
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(x)}}, nil
	case int32:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(x)}}, nil
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: x}}, nil
	case float32:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: float64(x)}}, nil
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: x}}, nil
	case []string:
		values := make([]*qdrant.Value, len(x))
		for i, s := range x {
			values[i] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
		}
		return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: values}}}, nil
	case []any:
		values := make([]*qdrant.Value, len(x))
		for i, item := range x {
			value, err := toValue(item)
			if err != nil {
				return nil, err
			}
			values[i] = value
		}
		return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: values}}}, nil
	case map[string]any:
		fields, err := toPayload(x)
		if err != nil {
			return nil, err
		}
		return &qdrant.Value{Kind: &qdrant.Value_StructValue{StructValue: &qdrant.Struct{Fields: fields}}}, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}

// fromPayload converts Qdrant values back into plain Go values.
// Integers come back as int64 and doubles as float64.
func fromPayload(payload map[string]*qdrant.Value) map[string]any {
	if len(payload) == 0 {
		return nil
	}
	out := make(map[string]any, len(payload))
	for key, v := range payload {
		out[key] = fromValue(v)
	}
	return out
}

func fromValue(v *qdrant.Value) any {
	switch x := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return x.StringValue
	case *qdrant.Value_BoolValue:
		return x.BoolValue
	case *qdrant.Value_IntegerValue:
		return x.IntegerValue
	case *qdrant.Value_DoubleValue:
		return x.DoubleValue
	case *qdrant.Value_ListValue:
		values := x.ListValue.GetValues()
		out := make([]any, len(values))
		for i, item := range values {
			out[i] = fromValue(item)
		}
		return out
	case *qdrant.Value_StructValue:
		return fromPayload(x.StructValue.GetFields())
	default:
		return nil
	}
}

// fromVectors extracts the default dense vector from a query result.
// Servers answer either with the nested dense form or with the legacy flat
// data field; both come out as a plain slice.
func fromVectors(v *qdrant.VectorsOutput) []float32 {
	vector := v.GetVector()
	if vector == nil {
		return nil
	}
	if dense := vector.GetDense().GetData(); len(dense) > 0 {
		return dense
	}
	return vector.GetData()
}

func fromRetrieved(points []*qdrant.RetrievedPoint, withVectors bool) []*core.Point {
	out := make([]*core.Point, 0, len(points))
	for _, p := range points {
		point := &core.Point{ID: fromPointID(p.GetId()), Payload: fromPayload(p.GetPayload())}
		if withVectors {
			point.Vector = fromVectors(p.GetVectors())
		}
		out = append(out, point)
	}
	return out
}

func fromScored(points []*qdrant.ScoredPoint) []*core.ScoredPoint {
	out := make([]*core.ScoredPoint, 0, len(points))
	for _, p := range points {
		out = append(out, &core.ScoredPoint{
			ID:      fromPointID(p.GetId()),
			Score:   p.GetScore(),
			Payload: fromPayload(p.GetPayload()),
		})
	}
	return out
}

// queryLimit converts a positive limit into the wire type.
func queryLimit(limit int) (*uint64, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}
	return qdrant.PtrOf(uint64(limit)), nil
}

// scrollLimit asks for one extra point so the next offset can be reported.
func scrollLimit(limit int) (*uint32, error) {
	if limit <= 0 || limit >= math.MaxUint32 {
		return nil, fmt.Errorf("%w: limit out of range", storage.ErrInvalidQuery)
	}
	return qdrant.PtrOf(uint32(limit + 1)), nil
}

func sortedKeys(m map[string][]string) []string {
	return slices.Sorted(maps.Keys(m))
}
