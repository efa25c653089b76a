package entrypoint

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/BaSui01/agentflow-router/router"
)

// streamWriter is the common surface serve() drives regardless of which
// wire format the hit endpoint uses: the discriminated route/delta/done
// events on /ask/stream, or the plain data-frame format on /ask.
type streamWriter interface {
	writeDelta(chunk string)
	writeDone()
	writeError(err error)
}

// sseWriter frames a streaming response as Server-Sent Events: a leading
// "route" event naming the chosen vendor/model, one "delta" event per
// token chunk, and a terminal "done" or "error" event. Every write is
// flushed immediately so a client sees tokens as they arrive.
type sseWriter struct {
	w              http.ResponseWriter
	flusher        http.Flusher
	decision       router.RoutingDecision
	headersWritten bool
}

func newSSEWriter(w http.ResponseWriter, decision router.RoutingDecision) *sseWriter {
	s := &sseWriter{w: w, decision: decision}
	s.flusher, _ = w.(http.Flusher)
	return s
}

func (s *sseWriter) writeHeadersOnce() {
	if s.headersWritten {
		return
	}
	s.headersWritten = true
	s.w.Header().Set("Content-Type", "text/event-stream")
	s.w.Header().Set("Cache-Control", "no-cache")
	s.w.Header().Set("Connection", "keep-alive")
	s.w.Header().Set("X-Trace-ID", s.decision.RequestID)
}

func (s *sseWriter) writeEvent(event string, payload any) {
	s.writeHeadersOnce()
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data)
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

// writeRoute emits the routing decision before any tokens arrive so a
// client can render "answering via <vendor>/<model>" immediately.
func (s *sseWriter) writeRoute() {
	s.writeEvent("route", map[string]any{
		"vendor": string(s.decision.Vendor),
		"model":  s.decision.Model,
		"reason": string(s.decision.Reason),
	})
}

// writeDelta emits one token chunk.
func (s *sseWriter) writeDelta(chunk string) {
	s.writeEvent("delta", map[string]any{"text": chunk})
}

// writeDone emits the terminal sentinel for a successful stream.
func (s *sseWriter) writeDone() {
	s.writeEvent("done", map[string]any{
		"vendor": string(s.decision.Vendor),
		"model":  s.decision.Model,
	})
}

// writeError emits a terminal error event. Headers may already be
// flushed with a 200 status by the time a mid-stream error occurs, so
// this cannot fall back to an HTTP error status; the event itself is
// the client's only cancellation signal.
func (s *sseWriter) writeError(err error) {
	code := router.CodeOf(err)
	s.writeEvent("error", map[string]any{
		"code":    string(code),
		"message": err.Error(),
	})
}

// plainStreamWriter frames a streaming /ask response as bare SSE data
// frames, one per token chunk, with no route/done envelope. A mid-stream
// error is emitted inline as a "[error:<category>]" token since headers
// are already committed by the time a downstream failure surfaces.
type plainStreamWriter struct {
	w              http.ResponseWriter
	flusher        http.Flusher
	requestID      string
	headersWritten bool
}

func newPlainStreamWriter(w http.ResponseWriter, requestID string) *plainStreamWriter {
	s := &plainStreamWriter{w: w, requestID: requestID}
	s.flusher, _ = w.(http.Flusher)
	return s
}

func (s *plainStreamWriter) writeHeadersOnce() {
	if s.headersWritten {
		return
	}
	s.headersWritten = true
	s.w.Header().Set("Content-Type", "text/event-stream")
	s.w.Header().Set("Cache-Control", "no-cache")
	s.w.Header().Set("Connection", "keep-alive")
	s.w.Header().Set("X-Trace-ID", s.requestID)
}

func (s *plainStreamWriter) writeDelta(chunk string) {
	s.writeHeadersOnce()
	fmt.Fprintf(s.w, "data: %s\n\n", chunk)
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

// writeError emits the inline "[error:<category>]" terminal token
// documented for the plain /ask streaming format.
func (s *plainStreamWriter) writeError(err error) {
	s.writeHeadersOnce()
	code := router.CodeOf(err)
	fmt.Fprintf(s.w, "data: [error:%s]\n\n", code)
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

func (s *plainStreamWriter) writeDone() {
	s.writeHeadersOnce()
	fmt.Fprint(s.w, "data: [done]\n\n")
	if s.flusher != nil {
		s.flusher.Flush()
	}
}
