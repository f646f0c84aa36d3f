package protocol_test

import (
	"testing"

	"github.com/tomslee/ridehail-sub001/internal/protocol"
)

func TestIsKnownCode(t *testing.T) {
	for _, code := range []string{
		"",
		protocol.ErrProtoBadRequest,
		protocol.ErrProtoVersion,
		protocol.ErrCtrlUnknown,
		protocol.ErrRunFinished,
		protocol.ErrInternal,
	} {
		if !protocol.IsKnownCode(code) {
			t.Fatalf("code %q should be known", code)
		}
	}
	if protocol.IsKnownCode("E_NO_SUCH_CODE") {
		t.Fatalf("unknown code accepted")
	}
}

func TestErrorSchemaValidatesErrorMsg(t *testing.T) {
	validateMsg(t, compileSchema(t, "error.schema.json"), protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            protocol.ErrCtrlUnknown,
		Detail:          "action \"rewind\" not recognized",
	})
}
