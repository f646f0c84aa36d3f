package protocol

import "github.com/tomslee/ridehail-sub001/internal/sim/engine"

// HelloMsg opens an observer session.
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ObserverName    string `json:"observer_name,omitempty"`
}

// RunMsg announces the run an observer just attached to.
type RunMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	RunID           string  `json:"run_id"`
	Scenario        string  `json:"scenario"`
	CitySize        int     `json:"city_size"`
	VehicleCount    int     `json:"vehicle_count"`
	BaseDemand      float64 `json:"base_demand"`
	TimeBlocks      int     `json:"time_blocks"`
	Seed            int64   `json:"seed"`
}

// FrameMsg carries one block's read-only snapshot.
type FrameMsg struct {
	Type            string               `json:"type"`
	ProtocolVersion string               `json:"protocol_version"`
	Snapshot        engine.BlockSnapshot `json:"snapshot"`
}

// Control actions an observer may request. They take effect between blocks,
// never mid-block.
const (
	CtrlPause  = "pause"
	CtrlResume = "resume"
	CtrlStep   = "step"
	CtrlStop   = "stop"
)

// CtrlMsg asks the server to pause, resume, single-step, or stop the run.
type CtrlMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Action          string `json:"action"`
}

// ResultMsg closes a run with its final named metrics.
type ResultMsg struct {
	Type            string             `json:"type"`
	ProtocolVersion string             `json:"protocol_version"`
	RunID           string             `json:"run_id"`
	Blocks          int                `json:"blocks"`
	Metrics         map[string]float64 `json:"metrics"`
}
