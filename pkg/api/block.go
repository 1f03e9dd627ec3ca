package api

import (
	"fmt"
	"time"

	"github.com/cuemby/flock/pkg/types"
	"google.golang.org/protobuf/types/known/structpb"
)

// Field names used in structpb messages
const (
	fieldKind       = "kind"
	fieldSize       = "size"
	fieldFrom       = "from"
	fieldTo         = "to"
	fieldStore      = "store"
	fieldCollection = "collection"
	fieldToken      = "token"
	fieldPID        = "pid"
	fieldStartedAt  = "started_at"
)

// EncodeBlock converts a work block into a Calculate request
func EncodeBlock(b types.WorkBlock) *structpb.Struct {
	fields := map[string]*structpb.Value{
		fieldKind: structpb.NewStringValue(string(b.Kind)),
	}
	switch b.Kind {
	case types.BlockKindRange:
		fields[fieldFrom] = structpb.NewNumberValue(float64(b.From))
		fields[fieldTo] = structpb.NewNumberValue(float64(b.To))
	default:
		fields[fieldSize] = structpb.NewNumberValue(float64(b.Size))
	}
	return &structpb.Struct{Fields: fields}
}

// DecodeBlock parses a Calculate request
func DecodeBlock(s *structpb.Struct) (types.WorkBlock, error) {
	kind := types.BlockKind(stringField(s, fieldKind))
	switch kind {
	case types.BlockKindSize:
		size, ok := intField(s, fieldSize)
		if !ok {
			return types.WorkBlock{}, fmt.Errorf("size block without size")
		}
		return types.SizeBlock(size), nil
	case types.BlockKindRange:
		from, okFrom := intField(s, fieldFrom)
		to, okTo := intField(s, fieldTo)
		if !okFrom || !okTo {
			return types.WorkBlock{}, fmt.Errorf("range block without bounds")
		}
		return types.RangeBlock(from, to), nil
	default:
		return types.WorkBlock{}, fmt.Errorf("unknown block kind %q", kind)
	}
}

// EncodeOpen builds an Open request
func EncodeOpen(storeURL, collection string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldStore:      structpb.NewStringValue(storeURL),
		fieldCollection: structpb.NewStringValue(collection),
	}}
}

// DecodeOpen parses an Open request
func DecodeOpen(s *structpb.Struct) (storeURL, collection string) {
	return stringField(s, fieldStore), stringField(s, fieldCollection)
}

// EncodeGeneration converts a generation into a Generation response
func EncodeGeneration(g types.Generation) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldToken:     structpb.NewStringValue(g.Token),
		fieldPID:       structpb.NewNumberValue(float64(g.PID)),
		fieldStartedAt: structpb.NewNumberValue(float64(g.StartedAt.Unix())),
	}}
}

// DecodeGeneration parses a Generation response
func DecodeGeneration(s *structpb.Struct) types.Generation {
	pid, _ := intField(s, fieldPID)
	started, _ := intField(s, fieldStartedAt)
	return types.Generation{
		Token:     stringField(s, fieldToken),
		PID:       int(pid),
		StartedAt: time.Unix(started, 0),
	}
}

// EncodeStats converts node stats into a Stats response
func EncodeStats(st types.NodeStats) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"hostname":      structpb.NewStringValue(st.Hostname),
		"cpu_count":     structpb.NewNumberValue(float64(st.CPUCount)),
		"goroutines":    structpb.NewNumberValue(float64(st.Goroutines)),
		"heap_bytes":    structpb.NewNumberValue(float64(st.HeapBytes)),
		"sys_bytes":     structpb.NewNumberValue(float64(st.SysBytes)),
		"uptime_ms":     structpb.NewNumberValue(float64(st.Uptime.Milliseconds())),
		"kernel":        structpb.NewStringValue(st.Kernel),
		"generation":    structpb.NewStringValue(st.Generation),
		"store_enabled": structpb.NewBoolValue(st.StoreEnabled),
	}}
}

// DecodeStats parses a Stats response
func DecodeStats(s *structpb.Struct) types.NodeStats {
	cpu, _ := intField(s, "cpu_count")
	goroutines, _ := intField(s, "goroutines")
	heap, _ := intField(s, "heap_bytes")
	sys, _ := intField(s, "sys_bytes")
	uptime, _ := intField(s, "uptime_ms")
	return types.NodeStats{
		Hostname:     stringField(s, "hostname"),
		CPUCount:     int(cpu),
		Goroutines:   int(goroutines),
		HeapBytes:    uint64(heap),
		SysBytes:     uint64(sys),
		Uptime:       time.Duration(uptime) * time.Millisecond,
		Kernel:       stringField(s, "kernel"),
		Generation:   stringField(s, "generation"),
		StoreEnabled: s.GetFields()["store_enabled"].GetBoolValue(),
	}
}

func stringField(s *structpb.Struct, name string) string {
	return s.GetFields()[name].GetStringValue()
}

func intField(s *structpb.Struct, name string) (int64, bool) {
	v, ok := s.GetFields()[name]
	if !ok {
		return 0, false
	}
	if _, isNum := v.GetKind().(*structpb.Value_NumberValue); !isNum {
		return 0, false
	}
	return int64(v.GetNumberValue()), true
}
