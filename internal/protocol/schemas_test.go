package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/tomslee/ridehail-sub001/internal/protocol"
	"github.com/tomslee/ridehail-sub001/internal/sim/engine"
)

func compileSchema(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	p := filepath.Join("..", "..", "schemas", name)
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

func validateMsg(t *testing.T, s *jsonschema.Schema, msg any) {
	t.Helper()
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := s.Validate(v); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestSchemas_ValidateMessages(t *testing.T) {
	validateMsg(t, compileSchema(t, "hello.schema.json"), protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ObserverName:    "animation",
	})

	validateMsg(t, compileSchema(t, "run.schema.json"), protocol.RunMsg{
		Type:            protocol.TypeRun,
		ProtocolVersion: protocol.Version,
		RunID:           "run_1",
		Scenario:        "default",
		CitySize:        8,
		VehicleCount:    4,
		BaseDemand:      0.2,
		TimeBlocks:      200,
		Seed:            1337,
	})

	validateMsg(t, compileSchema(t, "ctrl.schema.json"), protocol.CtrlMsg{
		Type:            protocol.TypeCtrl,
		ProtocolVersion: protocol.Version,
		Action:          protocol.CtrlPause,
	})
}

// Frames and results are validated against a live simulation so the
// schemas track what the engine actually emits.
func TestSchemas_FrameFromLiveSnapshot(t *testing.T) {
	s, err := engine.New(engine.Config{
		CitySize:     8,
		WrapCity:     true,
		VehicleCount: 3,
		BaseDemand:   0.8,
		Seed:         5,
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	for i := 0; i < 30; i++ {
		s.Step()
	}

	validateMsg(t, compileSchema(t, "frame.schema.json"), protocol.FrameMsg{
		Type:            protocol.TypeFrame,
		ProtocolVersion: protocol.Version,
		Snapshot:        s.Snapshot(),
	})
}

func TestSchemas_ResultFromLiveMetrics(t *testing.T) {
	s, err := engine.New(engine.Config{
		CitySize:     8,
		WrapCity:     true,
		VehicleCount: 2,
		BaseDemand:   0.3,
		Seed:         9,
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	for i := 0; i < 60; i++ {
		s.Step()
	}
	r := s.Results()

	validateMsg(t, compileSchema(t, "result.schema.json"), protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		RunID:           "run_1",
		Blocks:          r.Blocks,
		Metrics:         r.Metrics,
	})
}

func TestDecodeBase(t *testing.T) {
	m, err := protocol.DecodeBase([]byte(`{"type":"CTRL","protocol_version":"1.0","action":"step"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Type != protocol.TypeCtrl || m.ProtocolVersion != protocol.Version {
		t.Fatalf("decoded %+v", m)
	}
}
