// Package protocol defines the JSON messages exchanged with observer
// clients (animation front-ends and control consoles). Schemas for every
// message live under schemas/ and are validated in tests.
package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello  = "HELLO"
	TypeRun    = "RUN"
	TypeFrame  = "FRAME"
	TypeCtrl   = "CTRL"
	TypeResult = "RESULT"
	TypeError  = "ERROR"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
