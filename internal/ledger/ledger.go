// Package ledger is the append-only session/message log. It guarantees
// that session creation and the first message append are observed as one
// atomic unit, and that repeated turn keys inside the dedupe window are
// no-ops.
package ledger

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/blossomlabs/intent-trader/internal/diag"
	"github.com/blossomlabs/intent-trader/internal/observ"
)

// UntitledTitle is the sentinel title a session carries until its first
// user message rewrites it.
const UntitledTitle = "Untitled"

const titleMaxRunes = 48

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is immutable once appended, except for the single in-place update
// that turns a draft preview into its executed form.
type Message struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Seq         int       `json:"seq"`
	Role        Role      `json:"role"`
	Text        string    `json:"text"`
	DraftID     string    `json:"draft_id,omitempty"`
	RiskWarning bool      `json:"risk_warning,omitempty"`
	Key         string    `json:"key,omitempty"` // idempotency key, user messages only
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists sessions and messages. Implementations: in-memory and
// SQLite.
type Store interface {
	EnsureSession(ctx context.Context, id, title string, at time.Time) (created bool, err error)
	Session(ctx context.Context, id string) (*Session, error)
	Sessions(ctx context.Context) ([]*Session, error)
	SetTitle(ctx context.Context, id, title string) error
	Append(ctx context.Context, msg *Message) error
	Messages(ctx context.Context, sessionID string) ([]*Message, error)
	UpdateMessage(ctx context.Context, msg *Message) error
	HasRecentKey(ctx context.Context, sessionID, key string, cutoff time.Time) (bool, error)
	Close() error
}

// DeriveKey builds a turn idempotency key from the session, text, and a
// coarse (minute) timestamp, so an accidental re-send collapses onto the
// same key.
func DeriveKey(sessionID, text string, ts time.Time) string {
	data := fmt.Sprintf("%s|%s|%d", sessionID, strings.TrimSpace(text), ts.Unix()/60)
	sum := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", sum[:8])
}

// Ledger wraps a Store with the append semantics the engine relies on.
type Ledger struct {
	store  Store
	dedupe time.Duration
	sink   diag.Sink
}

func New(store Store, dedupeWindow time.Duration, sink diag.Sink) *Ledger {
	if sink == nil {
		sink = diag.LogSink{}
	}
	return &Ledger{store: store, dedupe: dedupeWindow, sink: sink}
}

// AppendUser ensures the session exists and appends the user message as one
// unit. It returns dup=true (and no message) when the key was already seen
// inside the dedupe window. The session title is rewritten from the first
// user message.
func (l *Ledger) AppendUser(ctx context.Context, sessionID, text, key string) (msg *Message, dup bool, err error) {
	now := time.Now().UTC()
	created, err := l.store.EnsureSession(ctx, sessionID, UntitledTitle, now)
	if err != nil {
		return nil, false, fmt.Errorf("ensure session: %w", err)
	}

	if key != "" {
		seen, err := l.store.HasRecentKey(ctx, sessionID, key, now.Add(-l.dedupe))
		if err != nil {
			return nil, false, fmt.Errorf("dedupe check: %w", err)
		}
		if seen {
			observ.IncCounter("turns_deduped_total", nil)
			return nil, true, nil
		}
	}

	m := &Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      RoleUser,
		Text:      text,
		Key:       key,
		CreatedAt: now,
	}
	if err := l.store.Append(ctx, m); err != nil {
		return nil, false, fmt.Errorf("append user message: %w", err)
	}

	sess, err := l.store.Session(ctx, sessionID)
	if err == nil && sess != nil && (created || sess.Title == UntitledTitle) {
		if err := l.store.SetTitle(ctx, sessionID, TitleFrom(text)); err != nil {
			observ.LogErr("session_title_rewrite_failed", err, map[string]any{"session": sessionID})
		}
	}
	return m, false, nil
}

// AppendAssistant appends an assistant message, optionally referencing a
// draft and carrying a risk-warning render hint.
func (l *Ledger) AppendAssistant(ctx context.Context, sessionID, text, draftID string, riskWarning bool) (*Message, error) {
	now := time.Now().UTC()
	if _, err := l.store.EnsureSession(ctx, sessionID, UntitledTitle, now); err != nil {
		return nil, fmt.Errorf("ensure session: %w", err)
	}
	m := &Message{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Role:        RoleAssistant,
		Text:        text,
		DraftID:     draftID,
		RiskWarning: riskWarning,
		CreatedAt:   now,
	}
	if err := l.store.Append(ctx, m); err != nil {
		return nil, fmt.Errorf("append assistant message: %w", err)
	}
	return m, nil
}

// MarkExecuted is the single authorized in-place message update: it rewrites
// a draft-preview message into its executed form. A draft id mismatch is a
// contract violation and fails safe.
func (l *Ledger) MarkExecuted(ctx context.Context, messageID, draftID, text string) error {
	msgs, err := l.messageByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msgs.DraftID != draftID {
		l.sink.Violation("executed_message_draft_mismatch", map[string]any{
			"message": messageID, "want": draftID, "have": msgs.DraftID,
		})
		return nil
	}
	msgs.Text = text
	msgs.RiskWarning = false
	if err := l.store.UpdateMessage(ctx, msgs); err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return nil
}

// Messages returns the ordered message log of a session.
func (l *Ledger) Messages(ctx context.Context, sessionID string) ([]*Message, error) {
	return l.store.Messages(ctx, sessionID)
}

// Sessions lists all sessions.
func (l *Ledger) Sessions(ctx context.Context) ([]*Session, error) {
	return l.store.Sessions(ctx)
}

// Session returns one session by id.
func (l *Ledger) Session(ctx context.Context, id string) (*Session, error) {
	return l.store.Session(ctx, id)
}

func (l *Ledger) messageByID(ctx context.Context, id string) (*Message, error) {
	// message ids are unique across sessions; scan is fine at chat scale
	sessions, err := l.store.Sessions(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range sessions {
		msgs, err := l.store.Messages(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		for _, m := range msgs {
			if m.ID == id {
				return m, nil
			}
		}
	}
	return nil, fmt.Errorf("message %s not found", id)
}

// TitleFrom derives a session title from the first user message.
func TitleFrom(text string) string {
	t := strings.Join(strings.Fields(text), " ")
	runes := []rune(t)
	if len(runes) > titleMaxRunes {
		t = string(runes[:titleMaxRunes-1]) + "…"
	}
	if t == "" {
		return UntitledTitle
	}
	return t
}
