package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/TanviPoddar/CodeGenie/internal/model"
	"github.com/TanviPoddar/CodeGenie/internal/pipeline"
	"github.com/TanviPoddar/CodeGenie/internal/store"
)

// finishedEvent rebuilds the build_finished event from a terminal snapshot.
func finishedEvent(b *model.Build) pipeline.Event {
	at := time.Now().UTC()
	if b.FinishedAt != nil {
		at = *b.FinishedAt
	}
	return pipeline.Event{
		Type:        pipeline.EventBuildFinished,
		BuildID:     b.ID,
		Status:      b.Status,
		FailedStage: b.FailedStage,
		Error:       b.Error,
		Time:        at,
	}
}

// lookupBuild writes a 404 or 500 and returns nil when the build cannot be read.
func (s *Server) lookupBuild(w http.ResponseWriter, r *http.Request, id string) *model.Build {
	b, err := s.pipeline.GetBuildStatus(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "Build not found")
		return nil
	}
	if err != nil {
		s.logger.Errorw("get build for events", "build_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get build")
		return nil
	}
	return b
}

func (s *Server) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	b := s.lookupBuild(w, r, id)
	if b == nil {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if b.Terminal() {
		w.WriteHeader(http.StatusOK)
		data, err := json.Marshal(finishedEvent(b))
		if err != nil {
			s.logger.Errorw("encode build event", "build_id", id, "error", err)
			return
		}
		if err := writeSSEEvent(w, pipeline.EventBuildFinished, string(data)); err != nil {
			return
		}
		_ = writeSSEEvent(w, "done", "stream complete")
		return
	}

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Errorw("set write deadline for SSE", "error", err)
	}

	// A build that finished after the status check leaves a closed topic
	// behind, so this channel is already closed and the loop exits at once.
	ch, unsub := s.pipeline.Events().Subscribe(id)
	defer unsub()

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	if canFlush {
		flusher.Flush()
	}

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				_ = writeSSEEvent(w, "done", "stream complete")
				if canFlush {
					flusher.Flush()
				}
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Errorw("encode build event", "build_id", id, "error", err)
				continue
			}
			if err := writeSSEEvent(w, ev.Type, string(data)); err != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}

// writeSSEEvent writes a named SSE event (event: <type>\ndata: <data>\n\n).
func writeSSEEvent(w http.ResponseWriter, eventType, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return nil
}
