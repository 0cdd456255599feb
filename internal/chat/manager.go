package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/foliolabs/foliod/internal/llm"
	"github.com/foliolabs/foliod/internal/logging"
	"github.com/foliolabs/foliod/internal/prompt"
)

// Progress steps shown while an exchange runs.
const (
	stepSearching  = "Searching knowledge base..."
	stepGenerating = "Generating response..."
)

// ErrBusy is sent when a message arrives while an exchange is running.
var ErrBusy = errors.New("previous message still processing")

// Builder assembles the retrieval-augmented prompt for an exchange.
type Builder interface {
	Build(ctx context.Context, in prompt.Input) prompt.Result
}

// Manager owns every live chat session and runs their exchanges.
type Manager struct {
	builder  Builder
	streamer llm.Streamer
	logger   *logging.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager.
func NewManager(builder Builder, streamer llm.Streamer, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		builder:  builder,
		streamer: streamer,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Open registers a fresh session for a new connection. Nothing is resumed;
// history lives and dies with the connection.
func (m *Manager) Open(sink Sink) *Session {
	s := newSession(sink)
	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	return s
}

// Close cancels the session's in-flight exchange, marks it closed and
// deregisters it. Safe to call more than once.
func (m *Manager) Close(s *Session) {
	s.mu.Lock()
	s.state = StateClosed
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	m.mu.Lock()
	delete(m.sessions, s.id)
	m.mu.Unlock()
}

// SessionCount returns the number of live sessions.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// HandleMessage starts an exchange for an inbound message. If the session
// is mid-exchange the message is rejected with an error frame; it is never
// queued or merged into the running stream. The exchange itself runs on its
// own goroutine so the caller's read loop stays free.
func (m *Manager) HandleMessage(ctx context.Context, s *Session, message string) {
	message = strings.TrimSpace(message)
	if message == "" {
		return
	}

	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		if state != StateClosed {
			_ = s.send(Frame{Error: ErrBusy.Error()})
		}
		return
	}
	s.state = StateAwaitingResponse
	// The user's turn enters the history at the transition, not on
	// completion, so a failed exchange still leaves it in later prompts.
	s.history = append(s.history, prompt.Message{Role: prompt.RoleUser, Content: message})
	exchangeCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	go m.runExchange(exchangeCtx, s, message)
}

// runExchange drives one full request/response cycle.
func (m *Manager) runExchange(ctx context.Context, s *Session, message string) {
	ctx = logging.WithSessionID(ctx, s.id)
	defer func() {
		s.mu.Lock()
		if s.cancel != nil {
			s.cancel()
			s.cancel = nil
		}
		s.mu.Unlock()
	}()

	if err := s.emit(FragmentProgress, stepSearching); err != nil {
		m.logger.Debug(ctx, "client gone before exchange start", zap.Error(err))
		return
	}

	// Prior turns only; the in-flight user message rides in as the query.
	s.mu.Lock()
	history := append([]prompt.Message(nil), s.history[:len(s.history)-1]...)
	s.mu.Unlock()

	built := m.builder.Build(ctx, prompt.Input{Query: message, History: history})

	if err := s.emit(FragmentProgress, stepGenerating); err != nil {
		return
	}

	var response strings.Builder
	streamErr := m.streamer.Stream(ctx, built.Prompt, func(chunk string) error {
		s.mu.Lock()
		if s.state == StateAwaitingResponse {
			s.state = StateStreaming
		}
		closed := s.state == StateClosed
		s.mu.Unlock()
		if closed {
			return context.Canceled
		}
		response.WriteString(chunk)
		return s.emit(FragmentText, chunk)
	})

	if streamErr != nil {
		m.failExchange(ctx, s, streamErr)
		return
	}

	if err := s.emit(FragmentDone, ""); err != nil {
		return
	}

	s.mu.Lock()
	if s.state != StateClosed {
		s.history = append(s.history, prompt.Message{Role: prompt.RoleAI, Content: response.String()})
		s.state = StateIdle
	}
	s.mu.Unlock()
}

// failExchange reports a model failure and returns the session to Idle so
// the client can retry. A closed or cancelled session gets no frame.
func (m *Manager) failExchange(ctx context.Context, s *Session, err error) {
	s.mu.Lock()
	s.buffer = ""
	closed := s.state == StateClosed
	if !closed {
		s.state = StateIdle
	}
	s.mu.Unlock()

	if closed || errors.Is(err, context.Canceled) {
		m.logger.Debug(ctx, "exchange cancelled", zap.Error(err))
		return
	}

	m.logger.Error(ctx, "model streaming failed", zap.Error(err))
	_ = s.send(Frame{Error: "The assistant is unavailable right now. Please try again.", Done: true})
}
