package protocol

const (
	// Transport/handshake validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Control layer.
	ErrCtrlUnknown = "E_CTRL_UNKNOWN"
	ErrRunFinished = "E_RUN_FINISHED"
	ErrInternal    = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrCtrlUnknown:     {},
	ErrRunFinished:     {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// ErrorMsg reports a rejected message back to the observer. The session
// stays open unless the handshake itself failed.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Detail          string `json:"detail,omitempty"`
}
