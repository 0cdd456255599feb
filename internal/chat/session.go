// Package chat runs the streaming chat exchange: one session per
// connection, a strict state machine per session and paragraph-aware
// assembly of the model's output into discrete messages.
package chat

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/foliolabs/foliod/internal/prompt"
)

// State is the session lifecycle state.
type State int

const (
	// StateIdle accepts inbound messages.
	StateIdle State = iota

	// StateAwaitingResponse covers retrieval and prompt assembly, before
	// the first model output arrives.
	StateAwaitingResponse

	// StateStreaming covers model output delivery.
	StateStreaming

	// StateClosed is terminal; the connection is gone.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// FragmentKind tags a piece of pipeline output.
type FragmentKind int

const (
	// FragmentProgress is a status update that overwrites the client's
	// in-progress display.
	FragmentProgress FragmentKind = iota

	// FragmentText is model output to append to the current message.
	FragmentText

	// FragmentDone marks the end of an exchange.
	FragmentDone
)

// Frame is one server-to-client message. Partial frames carry the growing
// buffer and are superseded by the next frame; a frame without Partial set
// is a finalized message. An exchange ends with exactly one terminal frame:
// empty response with Done set, or Error set.
type Frame struct {
	Response string `json:"response"`
	Step     string `json:"step,omitempty"`
	Partial  bool   `json:"partial,omitempty"`
	Error    string `json:"error,omitempty"`
	Done     bool   `json:"done"`
}

// Sink delivers frames to the client. Implementations are called from the
// exchange goroutine; the session serializes calls.
type Sink func(Frame) error

// Session is the per-connection chat state. All fields are guarded by mu
// except sink writes, which sendMu serializes.
type Session struct {
	id string

	mu      sync.Mutex
	state   State
	buffer  string
	history []prompt.Message
	cancel  context.CancelFunc

	sendMu sync.Mutex
	sink   Sink
}

func newSession(sink Sink) *Session {
	return &Session{
		id:    uuid.NewString(),
		state: StateIdle,
		sink:  sink,
	}
}

// ID returns the session's identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) send(f Frame) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.sink(f)
}

// appendText merges a text fragment into the buffer, emits any messages
// completed by a paragraph break and pushes the remaining buffer as a
// partial update so the client renders output as it arrives. Fragments join
// with a single space unless the boundary already has one; a "\n\n" inside
// the buffer finalizes the text before it as one message.
func (s *Session) appendText(text string) error {
	s.mu.Lock()
	switch {
	case s.buffer == "":
		s.buffer = text
	case strings.HasSuffix(s.buffer, " ") || strings.HasPrefix(text, " "):
		s.buffer += text
	default:
		s.buffer += " " + text
	}

	var messages []string
	for {
		before, after, found := strings.Cut(s.buffer, "\n\n")
		if !found {
			break
		}
		if msg := strings.TrimSpace(before); msg != "" {
			messages = append(messages, msg)
		}
		s.buffer = after
	}
	pending := s.buffer
	s.mu.Unlock()

	for _, msg := range messages {
		if err := s.send(Frame{Response: msg}); err != nil {
			return err
		}
	}
	if strings.TrimSpace(pending) != "" {
		return s.send(Frame{Response: pending, Partial: true})
	}
	return nil
}

// flushBuffer emits any pending text as a finalized message.
func (s *Session) flushBuffer() error {
	s.mu.Lock()
	msg := strings.TrimSpace(s.buffer)
	s.buffer = ""
	s.mu.Unlock()

	if msg == "" {
		return nil
	}
	return s.send(Frame{Response: msg})
}

// emit routes one pipeline fragment to the client. Progress flushes pending
// text first so a status update never swallows half a message.
func (s *Session) emit(kind FragmentKind, text string) error {
	switch kind {
	case FragmentProgress:
		if err := s.flushBuffer(); err != nil {
			return err
		}
		return s.send(Frame{Step: text})
	case FragmentText:
		return s.appendText(text)
	case FragmentDone:
		if err := s.flushBuffer(); err != nil {
			return err
		}
		return s.send(Frame{Done: true})
	}
	return nil
}
