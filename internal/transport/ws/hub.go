// Package ws streams simulation frames to observer clients (animation
// front-ends, control consoles) over websockets. The simulation loop
// stays single-threaded; observers attach to a Hub that fans frames out
// on buffered channels and feeds control requests back between blocks.
package ws

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/tomslee/ridehail-sub001/internal/protocol"
)

const sessionQueue = 64

// Hub owns the observer sessions for one run. Broadcast never blocks
// the run loop: a session that cannot keep up loses frames.
type Hub struct {
	log *log.Logger
	run protocol.RunMsg

	mu       sync.Mutex
	sessions map[string]chan []byte
	finished bool
	result   []byte

	ctrl   chan protocol.CtrlMsg
	nextID atomic.Uint64

	dropped atomic.Uint64
}

func NewHub(run protocol.RunMsg, logger *log.Logger) *Hub {
	return &Hub{
		log:      logger,
		run:      run,
		sessions: make(map[string]chan []byte),
		ctrl:     make(chan protocol.CtrlMsg, 16),
	}
}

// Ctrl delivers observer control requests to the run loop. The loop
// drains it between blocks.
func (h *Hub) Ctrl() <-chan protocol.CtrlMsg { return h.ctrl }

// Run returns the announcement sent to each observer after HELLO.
func (h *Hub) Run() protocol.RunMsg { return h.run }

// Dropped reports frames discarded because a session queue was full.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

func (h *Hub) attach() (sid string, out chan []byte, late []byte) {
	sid = fmt.Sprintf("O%d", h.nextID.Add(1))
	out = make(chan []byte, sessionQueue)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.finished {
		// Late joiner: hand it the final result and nothing else.
		return sid, out, h.result
	}
	h.sessions[sid] = out
	return sid, out, nil
}

func (h *Hub) detach(sid string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, sid)
}

// Broadcast marshals v once and offers it to every session.
func (h *Hub) Broadcast(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		h.log.Printf("broadcast marshal: %v", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, out := range h.sessions {
		select {
		case out <- b:
		default:
			h.dropped.Add(1)
		}
	}
}

// send offers b to one session. Holding the lock here keeps sends
// ordered against Finish closing the channel.
func (h *Hub) send(sid string, b []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	out, ok := h.sessions[sid]
	if !ok {
		return false
	}
	select {
	case out <- b:
		return true
	default:
		h.dropped.Add(1)
		return false
	}
}

func (h *Hub) forwardCtrl(msg protocol.CtrlMsg) bool {
	select {
	case h.ctrl <- msg:
		return true
	default:
		return false
	}
}

// Finish broadcasts the final result and closes every session channel.
// Observers attaching afterwards still receive the result.
func (h *Hub) Finish(res protocol.ResultMsg) {
	b, err := json.Marshal(res)
	if err != nil {
		h.log.Printf("result marshal: %v", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.finished {
		return
	}
	h.finished = true
	h.result = b
	for sid, out := range h.sessions {
		select {
		case out <- b:
		default:
			h.dropped.Add(1)
		}
		close(out)
		delete(h.sessions, sid)
	}
}

func (h *Hub) isFinished() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.finished
}
