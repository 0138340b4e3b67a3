package chat

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrew/rag-chat/pkg/models"
	"github.com/andrew/rag-chat/pkg/prompt"
	"github.com/andrew/rag-chat/pkg/session"
)

type stubRetriever struct {
	mu       sync.Mutex
	snippets []string
	err      error
	calls    int
	lastK    int
}

func (s *stubRetriever) Search(_ context.Context, _ string, k int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastK = k
	return s.snippets, s.err
}

// stubCompleter replies with fixed fragments, or echoes the prompt when
// echo is set. failAfter > 0 fails the stream after that many fragments.
type stubCompleter struct {
	mu        sync.Mutex
	fragments []string
	echo      bool
	err       error
	failAfter int
	calls     int
	lastInput []models.Message
}

func (s *stubCompleter) reply(segments []models.Message) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastInput = segments
	if !s.echo {
		return s.fragments
	}
	var out []string
	for _, seg := range segments {
		out = append(out, string(seg.Role)+"|"+seg.Content+"\n")
	}
	return out
}

func (s *stubCompleter) Complete(_ context.Context, segments []models.Message) (string, error) {
	fragments := s.reply(segments)
	if s.err != nil {
		return "", s.err
	}
	return strings.Join(fragments, ""), nil
}

func (s *stubCompleter) CompleteStream(_ context.Context, segments []models.Message) iter.Seq2[string, error] {
	fragments := s.reply(segments)
	return func(yield func(string, error) bool) {
		for i, f := range fragments {
			if s.err != nil && i == s.failAfter {
				yield("", s.err)
				return
			}
			if !yield(f, nil) {
				return
			}
		}
		if s.err != nil && s.failAfter >= len(fragments) {
			yield("", s.err)
		}
	}
}

func (s *stubCompleter) promptText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var b strings.Builder
	for _, seg := range s.lastInput {
		b.WriteString(seg.Content)
		b.WriteByte('\n')
	}
	return b.String()
}

func drain(t *testing.T, seq iter.Seq2[string, error]) ([]string, error) {
	t.Helper()
	var fragments []string
	for fragment, err := range seq {
		if err != nil {
			return fragments, err
		}
		fragments = append(fragments, fragment)
	}
	return fragments, nil
}

func list(t *testing.T, store session.Store, sessionID string) []models.Message {
	t.Helper()
	msgs, err := store.List(context.Background(), sessionID)
	require.NoError(t, err)
	return msgs
}

func roles(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = string(m.Role) + ":" + m.Content
	}
	return out
}

func TestRespondRecordsTurn(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	retriever := &stubRetriever{snippets: []string{"doc about X"}}
	completer := &stubCompleter{fragments: []string{"reply-1"}}
	o := New(store, retriever, completer)

	reply, err := o.Respond(ctx, "s1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "reply-1", reply)

	assert.Equal(t, []string{"user:hello", "assistant:reply-1"}, roles(list(t, store, "s1")))
	assert.Equal(t, DefaultTopK, retriever.lastK)
	assert.Contains(t, completer.promptText(), "doc about X")
	assert.Contains(t, completer.promptText(), prompt.NoHistoryPlaceholder)
}

func TestRespondUsesStoredHistory(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	completer := &stubCompleter{fragments: []string{"second"}}
	o := New(store, &stubRetriever{}, completer)

	require.NoError(t, store.Append(ctx, "s1",
		models.NewMessage(models.RoleUser, "first question"),
		models.NewMessage(models.RoleAssistant, "first answer"),
	))

	_, err := o.Respond(ctx, "s1", "second question")
	require.NoError(t, err)

	require.Len(t, completer.lastInput, 3)
	assert.Equal(t, "Previous conversation:\nuser: first question\nassistant: first answer", completer.lastInput[1].Content)
	assert.Equal(t, "second question", completer.lastInput[2].Content)
	assert.Len(t, list(t, store, "s1"), 4)
}

func TestRespondEmptyOverrideRendersPlaceholder(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	o := New(store, &stubRetriever{}, &stubCompleter{echo: true})

	reply, err := o.Respond(ctx, "s1", "hi", WithHistory([]models.Message{}))
	require.NoError(t, err)
	assert.Contains(t, reply, "no prior conversation")
	assert.Empty(t, list(t, store, "s1"))
}

func TestRespondOverrideSkipsStore(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	require.NoError(t, store.Append(ctx, "s1", models.NewMessage(models.RoleUser, "stored")))
	completer := &stubCompleter{fragments: []string{"ok"}}
	o := New(store, &stubRetriever{}, completer)

	override := []models.Message{{Role: models.RoleUser, Content: "from client"}}
	_, err := o.Respond(ctx, "s1", "hi", WithHistory(override))
	require.NoError(t, err)

	assert.Contains(t, completer.lastInput[1].Content, "user: from client")
	assert.NotContains(t, completer.lastInput[1].Content, "stored")
	assert.Equal(t, []string{"user:stored"}, roles(list(t, store, "s1")))
}

func TestRespondEmptyInput(t *testing.T) {
	retriever := &stubRetriever{}
	completer := &stubCompleter{}
	o := New(session.NewMemoryStore(), retriever, completer)

	for _, input := range []string{"", "   ", "\n\t"} {
		_, err := o.Respond(context.Background(), "s1", input)
		assert.ErrorIs(t, err, ErrEmptyInput)

		_, err = o.RespondStream(context.Background(), "s1", input)
		assert.ErrorIs(t, err, ErrEmptyInput)
	}
	assert.Zero(t, retriever.calls)
	assert.Zero(t, completer.calls)
}

func TestRespondRetrievalFailure(t *testing.T) {
	store := session.NewMemoryStore()
	providerErr := errors.New("qdrant unavailable")
	completer := &stubCompleter{fragments: []string{"never"}}
	o := New(store, &stubRetriever{err: providerErr}, completer)

	_, err := o.Respond(context.Background(), "s1", "hello")
	assert.ErrorIs(t, err, ErrRetrieval)
	assert.ErrorIs(t, err, providerErr)

	_, err = o.RespondStream(context.Background(), "s1", "hello")
	assert.ErrorIs(t, err, ErrRetrieval)

	assert.Zero(t, completer.calls)
	assert.Empty(t, list(t, store, "s1"))
}

func TestRespondEmptyRetrievalIsNotAnError(t *testing.T) {
	completer := &stubCompleter{fragments: []string{"fine"}}
	o := New(session.NewMemoryStore(), &stubRetriever{snippets: nil}, completer)

	reply, err := o.Respond(context.Background(), "s1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "fine", reply)
	assert.True(t, strings.HasSuffix(completer.lastInput[0].Content, "CONTENT:\n"))
}

func TestRespondCompletionFailure(t *testing.T) {
	store := session.NewMemoryStore()
	providerErr := errors.New("model not loaded")
	o := New(store, &stubRetriever{}, &stubCompleter{err: providerErr})

	reply, err := o.Respond(context.Background(), "s1", "hello")
	assert.Empty(t, reply)
	assert.ErrorIs(t, err, ErrCompletion)
	assert.ErrorIs(t, err, providerErr)
	assert.Empty(t, list(t, store, "s1"))
}

func TestRespondEmptyCompletion(t *testing.T) {
	store := session.NewMemoryStore()
	o := New(store, &stubRetriever{}, &stubCompleter{})

	reply, err := o.Respond(context.Background(), "s1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "", reply)
	assert.Equal(t, []string{"user:hello", "assistant:"}, roles(list(t, store, "s1")))
}

func TestRespondStreamRecordsAfterDrain(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	o := New(store, &stubRetriever{}, &stubCompleter{fragments: []string{"Hel", "lo ", "there"}})

	seq, err := o.RespondStream(ctx, "s1", "hi")
	require.NoError(t, err)

	var fragments []string
	for fragment, err := range seq {
		require.NoError(t, err)
		assert.Empty(t, list(t, store, "s1"), "history must not change mid-stream")
		fragments = append(fragments, fragment)
	}

	assert.Equal(t, []string{"Hel", "lo ", "there"}, fragments)
	assert.Equal(t, []string{"user:hi", "assistant:Hello there"}, roles(list(t, store, "s1")))
}

func TestStreamingMatchesBlocking(t *testing.T) {
	ctx := context.Background()
	newOrchestrator := func() *Orchestrator {
		return New(session.NewMemoryStore(), &stubRetriever{snippets: []string{"a", "b"}}, &stubCompleter{echo: true})
	}

	blocking, err := newOrchestrator().Respond(ctx, "s1", "same input")
	require.NoError(t, err)

	seq, err := newOrchestrator().RespondStream(ctx, "s1", "same input")
	require.NoError(t, err)
	fragments, err := drain(t, seq)
	require.NoError(t, err)

	assert.Equal(t, blocking, strings.Join(fragments, ""))
}

func TestRespondStreamAbandoned(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	o := New(store, &stubRetriever{}, &stubCompleter{fragments: []string{"one", "two", "three"}})

	seq, err := o.RespondStream(ctx, "s1", "hi")
	require.NoError(t, err)

	n := 0
	for _, err := range seq {
		require.NoError(t, err)
		n++
		if n == 2 {
			break
		}
	}

	assert.Empty(t, list(t, store, "s1"))
}

func TestRespondStreamFailureMidway(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	providerErr := errors.New("connection reset")
	o := New(store, &stubRetriever{}, &stubCompleter{fragments: []string{"one", "two", "three"}, err: providerErr, failAfter: 2})

	seq, err := o.RespondStream(ctx, "s1", "hi")
	require.NoError(t, err)

	fragments, err := drain(t, seq)
	assert.Equal(t, []string{"one", "two"}, fragments)
	assert.ErrorIs(t, err, ErrCompletion)
	assert.ErrorIs(t, err, providerErr)
	assert.Empty(t, list(t, store, "s1"))
}

func TestRespondStreamOverrideSkipsStore(t *testing.T) {
	store := session.NewMemoryStore()
	o := New(store, &stubRetriever{}, &stubCompleter{fragments: []string{"x"}})

	seq, err := o.RespondStream(context.Background(), "s1", "hi", WithHistory(nil))
	require.NoError(t, err)
	_, err = drain(t, seq)
	require.NoError(t, err)

	assert.Empty(t, list(t, store, "s1"))
}

func TestRespondStreamSingleUse(t *testing.T) {
	store := session.NewMemoryStore()
	o := New(store, &stubRetriever{}, &stubCompleter{fragments: []string{"x"}})

	seq, err := o.RespondStream(context.Background(), "s1", "hi")
	require.NoError(t, err)

	_, err = drain(t, seq)
	require.NoError(t, err)

	fragments, err := drain(t, seq)
	assert.Empty(t, fragments)
	assert.ErrorIs(t, err, ErrStreamConsumed)
	assert.Len(t, list(t, store, "s1"), 2)
}

func TestHistoryWindow(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	for i := 0; i < 10; i++ {
		require.NoError(t, store.Append(ctx, "s1", models.NewMessage(models.RoleUser, fmt.Sprintf("m%d", i))))
	}
	completer := &stubCompleter{fragments: []string{"ok"}}
	o := New(store, &stubRetriever{}, completer, WithHistoryWindow(3), WithTopK(5), WithSystemInstruction("custom"))

	_, err := o.Respond(ctx, "s1", "next")
	require.NoError(t, err)

	assert.Equal(t, "Previous conversation:\nuser: m7\nuser: m8\nuser: m9", completer.lastInput[1].Content)
	assert.True(t, strings.HasPrefix(completer.lastInput[0].Content, "custom"))
	assert.Len(t, list(t, store, "s1"), 12)
}

func TestConcurrentTurnsOnOneSession(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	o := New(store, &stubRetriever{}, &stubCompleter{echo: true})

	const turns = 20
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := o.Respond(ctx, "shared", fmt.Sprintf("q%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	msgs := list(t, store, "shared")
	require.Len(t, msgs, turns*2)
	for i := 0; i < len(msgs); i += 2 {
		assert.Equal(t, models.RoleUser, msgs[i].Role)
		assert.Equal(t, models.RoleAssistant, msgs[i+1].Role)
		assert.True(t, strings.HasSuffix(msgs[i+1].Content, "user|"+msgs[i].Content+"\n"))
	}
}

func TestClearPassthroughs(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	o := New(store, &stubRetriever{}, &stubCompleter{fragments: []string{"r"}})

	for _, id := range []string{"a", "b"} {
		_, err := o.Respond(ctx, id, "hello")
		require.NoError(t, err)
	}

	require.NoError(t, o.ClearSession(ctx, "a"))
	history, err := o.History(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, history)

	history, err = o.History(ctx, "b")
	require.NoError(t, err)
	assert.Len(t, history, 2)

	require.NoError(t, o.ClearAllSessions(ctx))
	assert.Zero(t, store.Len())
}
