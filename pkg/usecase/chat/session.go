package chat

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gapassess/gap/pkg/adapter"
	"github.com/gapassess/gap/pkg/model"
	"github.com/gapassess/gap/pkg/utils/logging"
)

type State int

const (
	StateUninitialized State = iota
	StateReady
	StateSending
	// StateInitFailed is left on the next send, which retries initialization
	StateInitFailed
)

func (x State) String() string {
	switch x {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateSending:
		return "sending"
	case StateInitFailed:
		return "init_failed"
	default:
		return "unknown"
	}
}

// Message is one visible transcript line
type Message struct {
	Role model.ChatRole
	Text string
}

// Update notifies an observer that the transcript slot at Index now holds Message. Delta is
// the streamed fragment that caused the update, empty for whole-message changes.
type Update struct {
	Index   int
	Message Message
	Delta   string
}

// Session is a persona-bound conversation with the generation capability. It keeps the
// transcript in memory only; hosts record turns themselves when they want them persisted.
type Session struct {
	gemini   adapter.Gemini
	persona  *Persona
	observer func(Update)

	// at most one send in flight; a concurrent send is dropped
	busy atomic.Bool

	mu         sync.Mutex
	state      State
	stream     adapter.ChatStream
	transcript []Message
}

type Option func(*Session)

func WithPersona(p *Persona) Option {
	return func(s *Session) {
		s.persona = p
	}
}

// WithObserver registers f to receive every transcript change in order. f runs on the
// sending goroutine.
func WithObserver(f func(Update)) Option {
	return func(s *Session) {
		s.observer = f
	}
}

// New creates a session. A nil gemini means no credential is configured: the session still
// works but answers every send with the persona's unavailable message.
func New(gemini adapter.Gemini, opts ...Option) *Session {
	s := &Session{
		gemini:  gemini,
		persona: DefaultPersona(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.transcript = []Message{{Role: model.ChatRoleModel, Text: s.persona.Greeting}}
	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transcript returns a copy of the visible conversation, greeting first
func (s *Session) Transcript() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// Init binds the persona to a new remote chat. It never fails: without a usable capability
// the session moves to StateInitFailed and is retried on the next send.
func (s *Session) Init(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init(ctx)
}

func (s *Session) init(ctx context.Context) {
	if s.stream != nil {
		return
	}
	if s.gemini == nil {
		s.state = StateInitFailed
		logging.From(ctx).Debug("assistant has no credential, running degraded")
		return
	}

	stream, err := s.gemini.StartChat(ctx, s.persona.Instruction, nil)
	if err != nil {
		s.state = StateInitFailed
		logging.From(ctx).Warn("failed to start assistant chat", "error", err)
		return
	}
	s.stream = stream
	s.state = StateReady
}

// Send delivers text and folds the streamed reply into the transcript. It returns the final
// assistant message and true, or false when the send was dropped because text is blank or
// another send is in flight. Remote failures never surface as errors: they end as partial
// text or a canned in-character message.
func (s *Session) Send(ctx context.Context, text string) (Message, bool) {
	if strings.TrimSpace(text) == "" {
		return Message{}, false
	}
	if !s.busy.CompareAndSwap(false, true) {
		return Message{}, false
	}
	defer s.busy.Store(false)

	s.mu.Lock()
	s.init(ctx)
	stream := s.stream
	if stream == nil {
		msg := Message{Role: model.ChatRoleModel, Text: s.persona.Unavailable}
		idx := s.appendLocked(msg)
		s.mu.Unlock()
		s.notify(Update{Index: idx, Message: msg})
		return msg, true
	}

	userMsg := Message{Role: model.ChatRoleUser, Text: text}
	userIdx := s.appendLocked(userMsg)
	slot := s.appendLocked(Message{Role: model.ChatRoleModel})
	s.state = StateSending
	s.mu.Unlock()

	s.notify(Update{Index: userIdx, Message: userMsg})
	s.notify(Update{Index: slot, Message: Message{Role: model.ChatRoleModel}})

	var (
		buf    strings.Builder
		failed error
	)
	for fragment, err := range stream.SendStream(ctx, text) {
		if err != nil {
			failed = err
			break
		}
		if fragment == "" {
			continue
		}
		buf.WriteString(fragment)
		s.notify(s.setSlot(slot, buf.String(), fragment))
	}

	if failed != nil {
		logging.From(ctx).Warn("assistant stream failed",
			"received", buf.Len(),
			"error", failed)
		if buf.Len() == 0 {
			s.notify(s.setSlot(slot, s.persona.Apology, ""))
		}
	}

	s.mu.Lock()
	s.state = StateReady
	final := s.transcript[slot]
	s.mu.Unlock()

	return final, true
}

func (s *Session) appendLocked(msg Message) int {
	s.transcript = append(s.transcript, msg)
	return len(s.transcript) - 1
}

func (s *Session) setSlot(idx int, text, delta string) Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript[idx].Text = text
	return Update{Index: idx, Message: s.transcript[idx], Delta: delta}
}

func (s *Session) notify(u Update) {
	if s.observer != nil {
		s.observer(u)
	}
}
