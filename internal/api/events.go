package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/modelrouter/internal/model"
)

// handleJobEvents streams job snapshots as server-sent events. The current
// snapshot is sent first; a "done" event follows the terminal snapshot.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	st, err := s.jobs.Status(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err, "job status")
		return
	}

	// Re-read after subscribing so no transition falls between the snapshot
	// and the stream. Subscribe on a finished job returns a closed channel.
	ch, unsub := s.jobs.Subscribe(id)
	defer unsub()
	if fresh, err := s.jobs.Status(r.Context(), id); err == nil {
		st = fresh
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Error("set write deadline for SSE", "error", err)
	}

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	flush := func() {
		if canFlush {
			flusher.Flush()
		}
	}

	if err := writeSSEStatus(w, *st); err != nil {
		return
	}
	flush()
	last := st.State

	if !st.State.IsTerminal() {
	stream:
		for {
			select {
			case snap, ok := <-ch:
				if !ok {
					break stream
				}
				if err := writeSSEStatus(w, snap); err != nil {
					return // Write failed (e.g. client gone).
				}
				flush()
				last = snap.State
			case <-r.Context().Done():
				return // Client disconnected.
			}
		}

		// A slow reader may have missed the terminal snapshot.
		if !last.IsTerminal() {
			if final, err := s.jobs.Status(r.Context(), id); err == nil {
				_ = writeSSEStatus(w, *final)
			}
		}
	}

	_ = writeSSEEvent(w, "done", "stream complete")
	flush()
}

// writeSSEStatus writes a snapshot as a "status" event with a JSON payload.
func writeSSEStatus(w http.ResponseWriter, st model.JobStatus) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprint(w, "event: status\n"); err != nil {
		return err
	}
	return writeSSEData(w, string(data))
}

// writeSSEData writes a payload as an SSE data event. Multi-line strings are
// split so that each segment gets its own "data:" prefix, per the SSE spec.
func writeSSEData(w http.ResponseWriter, line string) error {
	for seg := range strings.SplitSeq(line, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", seg); err != nil {
			return err
		}
	}
	// Blank line terminates the event.
	_, err := fmt.Fprint(w, "\n")
	return err
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
