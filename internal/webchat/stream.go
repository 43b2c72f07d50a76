package webchat

import (
	"context"
	"sync"
	"time"

	"github.com/wolfman30/listing-lead-assistant/internal/cities"
	"github.com/wolfman30/listing-lead-assistant/internal/conversation"
)

const defaultStreamLimit = 200

// OutboundMessage is what we send to the widget.
type OutboundMessage struct {
	Type      string                 `json:"type"` // "session", "step", "message", "error", "reminder", "typing", "sound", "terminal", "cities", "pong"
	Text      string                 `json:"text,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
	Step      *conversation.StepView `json:"step,omitempty"`
	Active    *bool                  `json:"active,omitempty"`
	Sound     string                 `json:"sound,omitempty"`
	Success   *bool                  `json:"success,omitempty"`
	Cities    []cities.Entry         `json:"cities,omitempty"`
	Code      string                 `json:"code,omitempty"`
	Timestamp string                 `json:"timestamp,omitempty"`
}

// Stream is a conversation.Shell that queues frames for the widget. Pushes
// never block; when the queue is full the oldest frames are dropped.
type Stream struct {
	mu     sync.Mutex
	queue  []OutboundMessage
	limit  int
	notify chan struct{}
	now    func() time.Time
}

func NewStream() *Stream {
	return &Stream{limit: defaultStreamLimit, notify: make(chan struct{}, 1), now: time.Now}
}

func (s *Stream) push(msg OutboundMessage) {
	msg.Timestamp = s.now().UTC().Format(time.RFC3339)
	s.mu.Lock()
	s.queue = append(s.queue, msg)
	if over := len(s.queue) - s.limit; over > 0 {
		s.queue = s.queue[over:]
	}
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Drain returns and clears the queued frames.
func (s *Stream) Drain() []OutboundMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.queue
	s.queue = nil
	return out
}

// Wait drains the queue, waiting up to timeout for the first frame.
func (s *Stream) Wait(ctx context.Context, timeout time.Duration) []OutboundMessage {
	if out := s.Drain(); len(out) > 0 || timeout <= 0 {
		return out
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.notify:
	case <-timer.C:
	case <-ctx.Done():
	}
	return s.Drain()
}

// Ready is signalled after frames are queued.
func (s *Stream) Ready() <-chan struct{} { return s.notify }

func (s *Stream) RenderStep(view conversation.StepView) {
	s.push(OutboundMessage{Type: "step", Step: &view})
}

func (s *Stream) ShowMessage(text string) { s.push(OutboundMessage{Type: "message", Text: text}) }

func (s *Stream) ShowError(text string) { s.push(OutboundMessage{Type: "error", Text: text}) }

func (s *Stream) ShowReminder(text string) { s.push(OutboundMessage{Type: "reminder", Text: text}) }

func (s *Stream) ShowTyping() { s.push(OutboundMessage{Type: "typing", Active: ptr(true)}) }

func (s *Stream) HideTyping() { s.push(OutboundMessage{Type: "typing", Active: ptr(false)}) }

func (s *Stream) PlayFeedbackSound(kind conversation.Sound) {
	s.push(OutboundMessage{Type: "sound", Sound: string(kind)})
}

func (s *Stream) ShowTerminal(success bool, message string) {
	s.push(OutboundMessage{Type: "terminal", Success: ptr(success), Text: message})
}

func (s *Stream) ShowCities(entries []cities.Entry) {
	s.push(OutboundMessage{Type: "cities", Cities: entries})
}

func ptr[T any](v T) *T { return &v }
