// Package session keeps per-conversation state for the chat orchestrator:
// the message history replayed to the model and the confirmation gate that
// stands between a shown job draft and its creation.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/aatumaykin/tradiecrm/internal/draft"
	"github.com/aatumaykin/tradiecrm/internal/llm"
)

var (
	// ErrNotAwaitingConfirmation is returned when no draft is pending.
	ErrNotAwaitingConfirmation = errors.New("no job draft is awaiting confirmation")
	// ErrNotConfirmed is returned when the pending draft was not confirmed yet.
	ErrNotConfirmed = errors.New("job draft has not been confirmed by the user")
	// ErrDraftMismatch is returned when a draft ID does not match the pending draft.
	ErrDraftMismatch = errors.New("draft id does not match the pending draft")
)

const (
	// DefaultMaxHistory bounds the messages kept per conversation.
	DefaultMaxHistory = 60
	// DefaultIdleTTL is how long an untouched conversation is kept.
	DefaultIdleTTL = 2 * time.Hour
)

// Pending is a job draft shown to the user and waiting for a decision.
type Pending struct {
	DraftID     string
	WorkspaceID string
	Draft       draft.Draft
	ToolCallID  string // show_job_draft call that armed the gate, empty for one-liners
	ArmedAt     time.Time
	Confirmed   bool
}

// Session is one conversation. Safe for concurrent use.
type Session struct {
	ID string

	mu         sync.Mutex
	history    []llm.Message
	pending    *Pending
	maxHistory int
	lastActive time.Time
	now        func() time.Time
}

// Append adds messages to the history, trimming the oldest turns past the
// limit. Trimming always restarts the history at a user message so a tool
// result is never kept without the call that produced it.
func (s *Session) Append(msgs ...llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, msgs...)
	s.lastActive = s.now()

	if s.maxHistory <= 0 || len(s.history) <= s.maxHistory {
		return
	}
	start := len(s.history) - s.maxHistory
	for start < len(s.history) && s.history[start].Role != llm.RoleUser {
		start++
	}
	s.history = append([]llm.Message(nil), s.history[start:]...)
}

// History returns a copy of the messages in order.
func (s *Session) History() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Message(nil), s.history...)
}

// Len returns the number of messages held.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// Clear removes the history and any pending draft.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
	s.pending = nil
}

// Arm records p as the draft awaiting confirmation, replacing any earlier
// one. The new draft always starts unconfirmed.
func (s *Session) Arm(p Pending) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Confirmed = false
	if p.ArmedAt.IsZero() {
		p.ArmedAt = s.now()
	}
	s.pending = &p
	s.lastActive = s.now()
}

// Pending returns the draft awaiting confirmation.
func (s *Session) Pending() (Pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return Pending{}, false
	}
	return *s.pending, true
}

// Confirm marks the pending draft as confirmed. An empty draftID confirms
// whatever is pending.
func (s *Session) Confirm(draftID string) (Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return Pending{}, ErrNotAwaitingConfirmation
	}
	if draftID != "" && draftID != s.pending.DraftID {
		return Pending{}, ErrDraftMismatch
	}
	s.pending.Confirmed = true
	return *s.pending, nil
}

// Cancel discards the pending draft and reports whether there was one.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	had := s.pending != nil
	s.pending = nil
	return had
}

// Consume hands out the confirmed draft exactly once. An empty draftID
// accepts whatever is pending.
func (s *Session) Consume(draftID string) (Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return Pending{}, ErrNotAwaitingConfirmation
	}
	if draftID != "" && draftID != s.pending.DraftID {
		return Pending{}, ErrDraftMismatch
	}
	if !s.pending.Confirmed {
		return Pending{}, ErrNotConfirmed
	}
	p := *s.pending
	s.pending = nil
	return p, nil
}

// ApplyUserReply moves the gate according to a user turn: a confirmation
// confirms the pending draft, a refusal cancels it. Other text leaves the
// gate untouched. The returned reply is ReplyOther when nothing is pending.
func (s *Session) ApplyUserReply(text string) Reply {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return ReplyOther
	}
	r := ClassifyReply(text)
	switch r {
	case ReplyConfirm:
		s.pending.Confirmed = true
	case ReplyCancel:
		s.pending = nil
	}
	return r
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Options configures a Store.
type Options struct {
	MaxHistory int
	IdleTTL    time.Duration
	Now        func() time.Time
}

// Store holds all live conversations.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	opts     Options
}

// NewStore creates an empty store.
func NewStore(opts Options) *Store {
	if opts.MaxHistory == 0 {
		opts.MaxHistory = DefaultMaxHistory
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = DefaultIdleTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{sessions: make(map[string]*Session), opts: opts}
}

// Key scopes a conversation ID to its workspace.
func Key(workspaceID, conversationID string) string {
	return workspaceID + "|" + conversationID
}

// Get returns the session for the conversation, creating it when missing.
// Idle sessions are swept on the way.
func (st *Store) Get(workspaceID, conversationID string) *Session {
	key := Key(workspaceID, conversationID)
	now := st.opts.Now()

	st.mu.Lock()
	defer st.mu.Unlock()

	st.sweepLocked(now, key)

	if s, ok := st.sessions[key]; ok {
		return s
	}
	s := &Session{
		ID:         key,
		maxHistory: st.opts.MaxHistory,
		lastActive: now,
		now:        st.opts.Now,
	}
	st.sessions[key] = s
	return s
}

// Lookup returns an existing session without creating one.
func (st *Store) Lookup(workspaceID, conversationID string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[Key(workspaceID, conversationID)]
	return s, ok
}

// Sweep drops sessions idle for longer than the idle TTL and returns how
// many were removed.
func (st *Store) Sweep() int {
	now := st.opts.Now()
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.sweepLocked(now, "")
}

func (st *Store) sweepLocked(now time.Time, keep string) int {
	removed := 0
	for k, s := range st.sessions {
		if k != keep && now.Sub(s.idleSince()) >= st.opts.IdleTTL {
			delete(st.sessions, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}
