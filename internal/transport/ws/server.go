package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomslee/ridehail-sub001/internal/protocol"
)

type Server struct {
	hub *Hub
	log *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(hub *Hub, logger *log.Logger) *Server {
	return &Server{
		hub: hub,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if !s.handshake(conn) {
			return
		}

		sid, out, late := s.hub.attach()
		if late != nil {
			_ = writeMessage(conn, late)
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"), time.Now().Add(time.Second))
			return
		}
		defer s.hub.detach(sid)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b, ok := <-out:
					if !ok {
						_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"), time.Now().Add(time.Second))
						writeErr <- nil
						return
					}
					if err := writeMessage(conn, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Errors share the writer goroutine with frames; only one
		// goroutine may write to the conn.
		sendError := func(code, detail string) {
			b, err := json.Marshal(protocol.ErrorMsg{
				Type:            protocol.TypeError,
				ProtocolVersion: protocol.Version,
				Code:            code,
				Detail:          detail,
			})
			if err != nil {
				return
			}
			s.hub.send(sid, b)
		}

		// Reader loop: CTRL only.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeCtrl {
				sendError(protocol.ErrProtoBadRequest, "expected CTRL")
				continue
			}
			var ctrl protocol.CtrlMsg
			if err := json.Unmarshal(msg, &ctrl); err != nil {
				sendError(protocol.ErrProtoBadRequest, "bad CTRL payload")
				continue
			}
			if ctrl.ProtocolVersion != protocol.Version {
				sendError(protocol.ErrProtoVersion, "bad protocol_version")
				continue
			}
			switch ctrl.Action {
			case protocol.CtrlPause, protocol.CtrlResume, protocol.CtrlStep, protocol.CtrlStop:
			default:
				sendError(protocol.ErrCtrlUnknown, "action "+ctrl.Action)
				continue
			}
			if s.hub.isFinished() {
				sendError(protocol.ErrRunFinished, "")
				continue
			}
			if !s.hub.forwardCtrl(ctrl) {
				// Control queue full; the client may resend.
				sendError(protocol.ErrInternal, "control queue full")
			}
		}

		cancel()
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) bool {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return false
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return false
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return false
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return false
	}

	return writeJSON(conn, s.hub.Run()) == nil
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return writeMessage(conn, b)
}

func writeMessage(conn *websocket.Conn, b []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
