package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blossomlabs/intent-trader/internal/diag"
)

func TestAppendUser_FirstMessageCreatesSessionAtomically(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemoryStore(), 90*time.Second, diag.StrictSink{})

	msg, dup, err := l.AppendUser(ctx, "s1", "long BTC 2% risk 10x", "k1")
	require.NoError(t, err)
	require.False(t, dup)
	require.NotNil(t, msg)

	sessions, err := l.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "long BTC 2% risk 10x", sessions[0].Title, "title rewritten from first message")

	msgs, err := l.Messages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, 1, msgs[0].Seq)
}

func TestAppendUser_TitleRewrittenOnlyOnce(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemoryStore(), 90*time.Second, diag.StrictSink{})

	_, _, err := l.AppendUser(ctx, "s1", "first message", "k1")
	require.NoError(t, err)
	_, _, err = l.AppendUser(ctx, "s1", "second message", "k2")
	require.NoError(t, err)

	sess, err := l.Session(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "first message", sess.Title)
}

func TestAppendUser_DedupeWindow(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemoryStore(), 90*time.Second, diag.StrictSink{})

	_, dup, err := l.AppendUser(ctx, "s1", "long BTC", "same-key")
	require.NoError(t, err)
	require.False(t, dup)

	msg, dup, err := l.AppendUser(ctx, "s1", "long BTC", "same-key")
	require.NoError(t, err)
	assert.True(t, dup, "repeated key inside the window is a no-op")
	assert.Nil(t, msg)

	msgs, _ := l.Messages(ctx, "s1")
	assert.Len(t, msgs, 1)
}

func TestDeriveKey_CoarseTimestamp(t *testing.T) {
	base := time.Date(2026, 8, 30, 12, 0, 5, 0, time.UTC)
	k1 := DeriveKey("s1", "long BTC", base)
	k2 := DeriveKey("s1", "long BTC", base.Add(20*time.Second)) // same minute
	k3 := DeriveKey("s1", "long BTC", base.Add(2*time.Minute))
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.NotEqual(t, k1, DeriveKey("s2", "long BTC", base))
}

func TestMarkExecuted_RewritesInPlace(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemoryStore(), 90*time.Second, diag.StrictSink{})

	_, _, err := l.AppendUser(ctx, "s1", "long BTC", "k1")
	require.NoError(t, err)
	preview, err := l.AppendAssistant(ctx, "s1", "Draft ready: long BTC", "d1", false)
	require.NoError(t, err)

	require.NoError(t, l.MarkExecuted(ctx, preview.ID, "d1", "Executed: long BTC"))

	msgs, _ := l.Messages(ctx, "s1")
	require.Len(t, msgs, 2, "update must not duplicate the message")
	assert.Equal(t, "Executed: long BTC", msgs[1].Text)
}

func TestMarkExecuted_MismatchedDraftFailsSafe(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemoryStore(), 90*time.Second, diag.LogSink{})

	_, _, _ = l.AppendUser(ctx, "s1", "long BTC", "k1")
	preview, err := l.AppendAssistant(ctx, "s1", "Draft ready", "d1", false)
	require.NoError(t, err)

	// wrong draft id: must no-op, not corrupt the message
	require.NoError(t, l.MarkExecuted(ctx, preview.ID, "d-other", "Executed"))
	msgs, _ := l.Messages(ctx, "s1")
	assert.Equal(t, "Draft ready", msgs[1].Text)
}

func TestTitleFrom_Truncates(t *testing.T) {
	long := "this is a very long opening message that should be truncated for the session list"
	title := TitleFrom(long)
	assert.LessOrEqual(t, len([]rune(title)), 48)
	assert.Equal(t, UntitledTitle, TitleFrom("   "))
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer store.Close()

	l := New(store, 90*time.Second, diag.StrictSink{})

	_, dup, err := l.AppendUser(ctx, "s1", "short ETH 5x", "k1")
	require.NoError(t, err)
	require.False(t, dup)

	preview, err := l.AppendAssistant(ctx, "s1", "Draft ready", "d1", true)
	require.NoError(t, err)

	msgs, err := l.Messages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "short ETH 5x", msgs[0].Text)
	assert.True(t, msgs[1].RiskWarning)
	assert.Equal(t, []int{1, 2}, []int{msgs[0].Seq, msgs[1].Seq})

	// dedupe persists across the store
	_, dup, err = l.AppendUser(ctx, "s1", "short ETH 5x", "k1")
	require.NoError(t, err)
	assert.True(t, dup)

	require.NoError(t, l.MarkExecuted(ctx, preview.ID, "d1", "Executed"))
	msgs, _ = l.Messages(ctx, "s1")
	assert.Equal(t, "Executed", msgs[1].Text)
	assert.False(t, msgs[1].RiskWarning)

	sess, err := l.Session(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "short ETH 5x", sess.Title)
}
