package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/TanviPoddar/CodeGenie/internal/pipeline"
)

const wsWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleWebSocket streams build events as JSON text frames. A build that
// already finished gets a single build_finished frame built from its
// snapshot before the connection is closed.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	b := s.lookupBuild(w, r, id)
	if b == nil {
		return
	}

	// Subscribe before the handshake so a connected client sees every
	// event published after it.
	var ch <-chan pipeline.Event
	if !b.Terminal() {
		var unsub func()
		ch, unsub = s.pipeline.Events().Subscribe(id)
		defer unsub()
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("websocket upgrade", "build_id", id, "error", err)
		return
	}
	defer conn.Close()

	// The read side only exists to notice the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	if b.Terminal() {
		s.wsWrite(conn, finishedEvent(b))
		s.wsClose(conn)
		return
	}

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				s.wsClose(conn)
				return
			}
			if err := s.wsWrite(conn, ev); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

func (s *Server) wsWrite(conn *websocket.Conn, ev pipeline.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(ev); err != nil {
		s.logger.Debugw("websocket write", "build_id", ev.BuildID, "error", err)
		return err
	}
	return nil
}

func (s *Server) wsClose(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "build finished")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}
