package webchat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/listing-lead-assistant/internal/conversation"
	"github.com/wolfman30/listing-lead-assistant/internal/leads"
	"github.com/wolfman30/listing-lead-assistant/internal/listing"
	"github.com/wolfman30/listing-lead-assistant/internal/otp"
	"github.com/wolfman30/listing-lead-assistant/internal/validation"
	"github.com/wolfman30/listing-lead-assistant/pkg/logging"
)

const (
	defaultPollWait = 25 * time.Second
	maxPollWait     = 55 * time.Second
)

// InboundMessage is what the widget sends.
type InboundMessage struct {
	Type  string `json:"type"` // "answer", "edit_number", "resend_otp", "restart", "city_search", "activity", "chat", "ping"
	Field string `json:"field,omitempty"`
	Value string `json:"value,omitempty"`
	Query string `json:"query,omitempty"`
	Text  string `json:"text,omitempty"`
}

// Handler serves the widget over a websocket or plain HTTP.
type Handler struct {
	registry *conversation.Registry
	logger   *logging.Logger
	pollWait time.Duration
}

// NewHandler creates a web chat handler.
func NewHandler(registry *conversation.Registry, logger *logging.Logger) *Handler {
	return &Handler{
		registry: registry,
		logger:   logging.OrDefault(logger),
		pollWait: defaultPollWait,
	}
}

// HandleWebSocket upgrades to WebSocket and runs one conversation per connection.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

// frameQueueSize bounds the frames a connection may have waiting behind the
// one being handled.
const frameQueueSize = 32

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())

	stream := NewStream()
	session := h.registry.Create(stream)
	defer h.registry.Remove(session.ID())
	logger := h.logger.With("session_id", session.ID())

	_ = websocket.JSON.Send(conn, OutboundMessage{Type: "session", SessionID: session.ID()})

	handle := func(msg InboundMessage) {
		if err := h.dispatch(ctx, session, msg); err != nil {
			h.reportError(logger, stream, err)
		}
	}

	queue := make(chan InboundMessage, frameQueueSize)
	var pending atomic.Int32
	var pump, worker, inflight sync.WaitGroup
	pump.Add(1)
	go func() {
		defer pump.Done()
		h.pump(ctx, conn, stream)
	}()
	worker.Add(1)
	go func() {
		defer worker.Done()
		for msg := range queue {
			handle(msg)
			pending.Add(-1)
		}
	}()
	defer pump.Wait()
	defer inflight.Wait()
	defer worker.Wait()
	defer close(queue)
	defer cancel()

	logger.Info("webchat: connection opened")
	session.Start(ctx)

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			logger.Debug("webchat: connection closed", "error", err)
			return
		}
		if msg.Type == "ping" {
			stream.push(OutboundMessage{Type: "pong"})
			continue
		}
		// Edit and restart supersede whatever the worker is waiting on.
		if supersedes(msg.Type) && pending.Load() > 0 {
			inflight.Add(1)
			go func() {
				defer inflight.Done()
				handle(msg)
			}()
			continue
		}
		pending.Add(1)
		select {
		case queue <- msg:
		default:
			pending.Add(-1)
			h.reportError(logger, stream, conversation.ErrBusy)
		}
	}
}

func supersedes(frameType string) bool {
	return frameType == "edit_number" || frameType == "restart"
}

// pump writes queued frames to conn until ctx is done.
func (h *Handler) pump(ctx context.Context, conn *websocket.Conn, stream *Stream) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stream.Ready():
			for _, msg := range stream.Drain() {
				if err := websocket.JSON.Send(conn, msg); err != nil {
					h.logger.Debug("webchat: send failed", "error", err)
					return
				}
			}
		}
	}
}

var errUnknownFrame = errors.New("webchat: unknown message type")

func (h *Handler) dispatch(ctx context.Context, s *conversation.Session, msg InboundMessage) error {
	switch msg.Type {
	case "answer":
		return s.Advance(ctx, listing.Field(msg.Field), msg.Value)
	case "edit_number":
		return s.EditNumber(ctx)
	case "resend_otp":
		return s.ResendOTP(ctx)
	case "restart":
		s.Reset(ctx)
		return nil
	case "city_search":
		s.SuggestCities(ctx, msg.Query)
		return nil
	case "activity":
		s.NoteActivity()
		return nil
	case "chat":
		return s.Chat(ctx, msg.Text)
	default:
		return errUnknownFrame
	}
}

// reportError pushes protocol errors the session has not already shown.
func (h *Handler) reportError(logger *logging.Logger, stream *Stream, err error) {
	code, shown := classify(err)
	if shown {
		return
	}
	logger.Debug("webchat: request rejected", "code", code, "error", err)
	stream.push(OutboundMessage{Type: "error", Code: code, Text: protocolText(code)})
}

// classify maps an error to a wire code and reports whether the session
// has already rendered a message for it.
func classify(err error) (string, bool) {
	var ve *validation.Error
	var oe *otp.Error
	var se *leads.SubmissionError
	switch {
	case errors.As(err, &ve):
		return "invalid_input", true
	case errors.As(err, &oe):
		return string(oe.Kind), true
	case errors.As(err, &se):
		return "submission_failed", true
	case errors.Is(err, conversation.ErrStale):
		return "stale", true
	case errors.Is(err, conversation.ErrBusy):
		return "busy", false
	case errors.Is(err, conversation.ErrWrongStep):
		return "wrong_step", false
	case errors.Is(err, conversation.ErrConversationClosed):
		return "closed", false
	case errors.Is(err, conversation.ErrNotAtOTPStep):
		return "not_at_otp_step", false
	case errors.Is(err, conversation.ErrNotChatting):
		return "not_chatting", false
	case errors.Is(err, conversation.ErrSessionNotFound):
		return "not_found", false
	default:
		return "bad_request", false
	}
}

func protocolText(code string) string {
	switch code {
	case "busy":
		return "Please wait, we are still working on your last answer."
	case "closed", "not_chatting":
		return "This conversation has ended. Please restart to list another property."
	case "not_found":
		return "Your session has expired. Please start again."
	default:
		return "Sorry, something went wrong. Please try again."
	}
}

type sessionResponse struct {
	SessionID string            `json:"session_id"`
	Events    []OutboundMessage `json:"events"`
	Error     string            `json:"error,omitempty"`
}

// CreateSession handles POST /chat/sessions for widgets without websockets.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	stream := NewStream()
	session := h.registry.Create(stream)
	session.Start(r.Context())
	h.logger.Info("webchat: http session opened", "session_id", session.ID())
	writeJSON(w, http.StatusCreated, sessionResponse{SessionID: session.ID(), Events: orEmpty(stream.Drain())})
}

// Answer handles POST /chat/sessions/{sessionID}/answer.
func (h *Handler) Answer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Field string `json:"field"`
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	h.act(w, r, InboundMessage{Type: "answer", Field: req.Field, Value: req.Value})
}

// EditNumber handles POST /chat/sessions/{sessionID}/edit-number.
func (h *Handler) EditNumber(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, InboundMessage{Type: "edit_number"})
}

// ResendOTP handles POST /chat/sessions/{sessionID}/resend-otp.
func (h *Handler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, InboundMessage{Type: "resend_otp"})
}

// Restart handles POST /chat/sessions/{sessionID}/restart.
func (h *Handler) Restart(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, InboundMessage{Type: "restart"})
}

// Chat handles POST /chat/sessions/{sessionID}/chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	h.act(w, r, InboundMessage{Type: "chat", Text: req.Text})
}

// Cities handles GET /chat/sessions/{sessionID}/cities?q=.
func (h *Handler) Cities(w http.ResponseWriter, r *http.Request) {
	session, stream, ok := h.lookup(w, r)
	if !ok {
		return
	}
	entries := session.SuggestCities(r.Context(), r.URL.Query().Get("q"))
	// The frame is returned inline, keep it off the poll queue.
	drained := stream.Drain()
	kept := drained[:0]
	for _, m := range drained {
		if m.Type != "cities" {
			kept = append(kept, m)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"cities": orEmpty(entries), "events": orEmpty(kept)})
}

// Events handles GET /chat/sessions/{sessionID}/events?wait=<seconds>.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	session, stream, ok := h.lookup(w, r)
	if !ok {
		return
	}
	wait := h.pollWait
	if raw := strings.TrimSpace(r.URL.Query().Get("wait")); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs < 0 {
			http.Error(w, "wait must be a non-negative number of seconds", http.StatusBadRequest)
			return
		}
		wait = min(time.Duration(secs)*time.Second, maxPollWait)
	}
	events := stream.Wait(r.Context(), wait)
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: session.ID(), Events: orEmpty(events)})
}

func (h *Handler) act(w http.ResponseWriter, r *http.Request, msg InboundMessage) {
	session, stream, ok := h.lookup(w, r)
	if !ok {
		return
	}
	resp := sessionResponse{SessionID: session.ID()}
	status := http.StatusOK
	if err := h.dispatch(r.Context(), session, msg); err != nil {
		code, shown := classify(err)
		resp.Error = code
		if !shown {
			status = http.StatusConflict
		}
	}
	resp.Events = orEmpty(stream.Drain())
	writeJSON(w, status, resp)
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*conversation.Session, *Stream, bool) {
	id := chi.URLParam(r, "sessionID")
	session, err := h.registry.Get(id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, sessionResponse{SessionID: id, Events: []OutboundMessage{}, Error: "not_found"})
		return nil, nil, false
	}
	stream, ok := session.Shell().(*Stream)
	if !ok {
		http.Error(w, "session cannot be polled", http.StatusConflict)
		return nil, nil, false
	}
	return session, stream, true
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
