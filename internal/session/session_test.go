package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/cchalm/prompt-tutor/internal/ai"
)

// fakeClient records the requests it receives and answers from a script
type fakeClient struct {
	mu       sync.Mutex
	key      string
	requests [][]ai.Message
	reply    func(n int, messages []ai.Message) (string, error)
}

func (fc *fakeClient) Invoke(ctx context.Context, messages []ai.Message) (string, error) {
	fc.mu.Lock()
	fc.requests = append(fc.requests, messages)
	n := len(fc.requests)
	fc.mu.Unlock()

	if fc.reply == nil {
		return fmt.Sprintf("answer %d", n), nil
	}
	return fc.reply(n, messages)
}

func (fc *fakeClient) calls() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return len(fc.requests)
}

// fakeFactory builds fakeClients, rejecting the key "BAD"
type fakeFactory struct {
	mu      sync.Mutex
	built   []*fakeClient
	reply   func(n int, messages []ai.Message) (string, error)
	release chan struct{} // If set, Invoke blocks until it is closed
}

func (ff *fakeFactory) newClient(ctx context.Context, key string) (ai.ModelClient, error) {
	if key == "BAD" {
		return nil, &ai.CredentialError{Provider: "fake", Err: errors.New("API key not valid")}
	}
	client := &fakeClient{key: key, reply: ff.reply}
	if ff.release != nil {
		release := ff.release
		reply := ff.reply
		client.reply = func(n int, messages []ai.Message) (string, error) {
			<-release
			if reply != nil {
				return reply(n, messages)
			}
			return fmt.Sprintf("answer %d", n), nil
		}
	}

	ff.mu.Lock()
	defer ff.mu.Unlock()
	ff.built = append(ff.built, client)
	return client, nil
}

func (ff *fakeFactory) last() *fakeClient {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if len(ff.built) == 0 {
		return nil
	}
	return ff.built[len(ff.built)-1]
}

func newTestSession(t *testing.T, maxHistory int, ff *fakeFactory) *Session {
	s, err := New(Options{
		MaxHistory: maxHistory,
		NewClient:  ff.newClient,
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)
	return s
}

// recordEvents subscribes to the session and returns a function reporting the events seen so far
func recordEvents(s *Session) func() []Event {
	var mu sync.Mutex
	var events []Event
	s.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	})
	return func() []Event {
		mu.Lock()
		defer mu.Unlock()
		return append([]Event(nil), events...)
	}
}

func notices(events []Event) []Notice {
	var result []Notice
	for _, e := range events {
		if e.Kind == EventNotice {
			result = append(result, e.Notice)
		}
	}
	return result
}

func TestNew_RequiresFactory(t *testing.T) {
	_, err := New(Options{MaxHistory: 10})
	assert.Error(t, err)
}

func TestNew_RejectsInvalidMaxHistory(t *testing.T) {
	ff := &fakeFactory{}
	_, err := New(Options{MaxHistory: 0, NewClient: ff.newClient})
	assert.Error(t, err)
}

func TestSubmit_WithoutKeyNeverCallsProvider(t *testing.T) {
	ff := &fakeFactory{}
	s := newTestSession(t, 10, ff)
	events := recordEvents(s)

	_, err := s.Submit(context.Background(), "What is chain-of-thought?")

	require.ErrorIs(t, err, ai.ErrNotConfigured)
	assert.Empty(t, s.Messages())
	assert.Nil(t, ff.last())
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, []Notice{{Level: NoticeWarning, Text: "Please enter your API key first"}}, notices(events()))
}

func TestSubmit_EmptyQuestion(t *testing.T) {
	ff := &fakeFactory{}
	s := newTestSession(t, 10, ff)
	require.NoError(t, s.SetAPIKey(context.Background(), "sk-good"))

	_, err := s.Submit(context.Background(), "   ")

	require.ErrorIs(t, err, ErrEmptyQuestion)
	assert.Empty(t, s.Messages())
	assert.Equal(t, 0, ff.last().calls())
}

func TestSubmit_SendsSystemPromptThenHistory(t *testing.T) {
	ff := &fakeFactory{}
	s := newTestSession(t, 10, ff)
	require.NoError(t, s.SetAPIKey(context.Background(), "sk-good"))

	_, err := s.Submit(context.Background(), "first")
	require.NoError(t, err)
	reply, err := s.Submit(context.Background(), "second")
	require.NoError(t, err)

	assert.Equal(t, "answer 2", reply)
	request := ff.last().requests[1]
	require.Len(t, request, 4)
	assert.Equal(t, ai.NewSystemMessage(s.SystemPrompt()), request[0])
	assert.Equal(t, ai.NewUserMessage("first"), request[1])
	assert.Equal(t, ai.NewAssistantMessage("answer 1"), request[2])
	assert.Equal(t, ai.NewUserMessage("second"), request[3])

	assert.Equal(t, []ai.Message{
		ai.NewUserMessage("first"),
		ai.NewAssistantMessage("answer 1"),
		ai.NewUserMessage("second"),
		ai.NewAssistantMessage("answer 2"),
	}, s.Messages())
	assert.Equal(t, StateIdle, s.State())
}

func TestSubmit_TruncatesToMaxHistory(t *testing.T) {
	ff := &fakeFactory{}
	s := newTestSession(t, 2, ff)
	require.NoError(t, s.SetAPIKey(context.Background(), "sk-good"))

	for i := 1; i <= 3; i++ {
		_, err := s.Submit(context.Background(), fmt.Sprintf("question %d", i))
		require.NoError(t, err)
	}

	assert.Equal(t, []ai.Message{
		ai.NewUserMessage("question 2"),
		ai.NewAssistantMessage("answer 2"),
		ai.NewUserMessage("question 3"),
		ai.NewAssistantMessage("answer 3"),
	}, s.Messages())

	// The third request carried the system prompt and at most four history messages
	third := ff.last().requests[2]
	assert.Len(t, third, 4)
	assert.Equal(t, ai.RoleSystem, third[0].Role)
	assert.Equal(t, ai.NewUserMessage("question 2"), third[1])
}

func TestSubmit_FailurePreservesQuestion(t *testing.T) {
	ff := &fakeFactory{
		reply: func(n int, messages []ai.Message) (string, error) {
			return "", &ai.ProviderError{Provider: "fake", StatusCode: 503, Err: errors.New("model overloaded")}
		},
	}
	s := newTestSession(t, 10, ff)
	require.NoError(t, s.SetAPIKey(context.Background(), "sk-good"))
	events := recordEvents(s)

	_, err := s.Submit(context.Background(), "Explain temperature")

	var providerErr *ai.ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, []ai.Message{ai.NewUserMessage("Explain temperature")}, s.Messages())
	assert.Equal(t, StateIdle, s.State())
	assert.Contains(t, notices(events()), Notice{Level: NoticeError, Text: "Error processing request: model overloaded"})
}

func TestSubmit_WrapsUntypedFailures(t *testing.T) {
	ff := &fakeFactory{
		reply: func(n int, messages []ai.Message) (string, error) {
			return "", errors.New("boom")
		},
	}
	s := newTestSession(t, 10, ff)
	require.NoError(t, s.SetAPIKey(context.Background(), "sk-good"))

	_, err := s.Submit(context.Background(), "hi")

	var providerErr *ai.ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.EqualError(t, err, "boom")
}

func TestSubmit_StateSequence(t *testing.T) {
	ff := &fakeFactory{}
	s := newTestSession(t, 10, ff)
	require.NoError(t, s.SetAPIKey(context.Background(), "sk-good"))
	events := recordEvents(s)

	_, err := s.Submit(context.Background(), "hi")
	require.NoError(t, err)

	var states []State
	for _, e := range events() {
		if e.Kind == EventStateChanged {
			states = append(states, e.State)
		}
	}
	assert.Equal(t, []State{
		StateAwaitingInput,
		StateBuildingRequest,
		StateCallingProvider,
		StateSuccess,
		StateIdle,
	}, states)
}

func TestSubmit_HistoryEventFollowsMutation(t *testing.T) {
	ff := &fakeFactory{}
	s := newTestSession(t, 10, ff)
	require.NoError(t, s.SetAPIKey(context.Background(), "sk-good"))

	var lengths []int
	s.Subscribe(func(e Event) {
		if e.Kind == EventHistoryChanged {
			lengths = append(lengths, len(s.Messages()))
		}
	})

	_, err := s.Submit(context.Background(), "hi")
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, lengths)
}

func TestSetAPIKey_ChangeClearsHistory(t *testing.T) {
	ff := &fakeFactory{}
	s := newTestSession(t, 10, ff)
	require.NoError(t, s.SetAPIKey(context.Background(), "sk-first"))
	_, err := s.Submit(context.Background(), "hi")
	require.NoError(t, err)
	require.NotEmpty(t, s.Messages())
	events := recordEvents(s)

	require.NoError(t, s.SetAPIKey(context.Background(), "sk-second"))

	assert.Empty(t, s.Messages())
	assert.Equal(t, "sk-second", ff.last().key)
	assert.Equal(t, []Notice{{Level: NoticeSuccess, Text: "API key configured successfully"}}, notices(events()))
}

func TestSetAPIKey_SameKeyIsIdempotent(t *testing.T) {
	ff := &fakeFactory{}
	s := newTestSession(t, 10, ff)
	require.NoError(t, s.SetAPIKey(context.Background(), "sk-good"))
	client := ff.last()
	_, err := s.Submit(context.Background(), "hi")
	require.NoError(t, err)

	require.NoError(t, s.SetAPIKey(context.Background(), " sk-good "))

	assert.Same(t, client, ff.last())
	assert.Len(t, ff.built, 1)
	assert.Len(t, s.Messages(), 2)
}

func TestSetAPIKey_BadKey(t *testing.T) {
	ff := &fakeFactory{}
	s := newTestSession(t, 10, ff)
	events := recordEvents(s)

	err := s.SetAPIKey(context.Background(), "BAD")

	var credErr *ai.CredentialError
	require.ErrorAs(t, err, &credErr)
	assert.False(t, s.Configured())
	assert.Equal(t, []Notice{{
		Level: NoticeError,
		Text:  "invalid API key or authentication error: API key not valid",
	}}, notices(events()))

	_, err = s.Submit(context.Background(), "hello?")
	require.ErrorIs(t, err, ai.ErrNotConfigured)
	assert.Empty(t, ff.built)
}

func TestSetAPIKey_BadKeyAfterGoodKeyDropsClientKeepsHistory(t *testing.T) {
	ff := &fakeFactory{}
	s := newTestSession(t, 10, ff)
	require.NoError(t, s.SetAPIKey(context.Background(), "sk-good"))
	_, err := s.Submit(context.Background(), "hi")
	require.NoError(t, err)

	require.Error(t, s.SetAPIKey(context.Background(), "BAD"))

	assert.False(t, s.Configured())
	assert.Len(t, s.Messages(), 2)

	// The failed key is not remembered, so the good key can be configured again
	require.NoError(t, s.SetAPIKey(context.Background(), "sk-good"))
	assert.True(t, s.Configured())
}

func TestSetAPIKey_EmptyKeyRemovesClient(t *testing.T) {
	ff := &fakeFactory{}
	s := newTestSession(t, 10, ff)
	require.NoError(t, s.SetAPIKey(context.Background(), "sk-good"))
	_, err := s.Submit(context.Background(), "hi")
	require.NoError(t, err)

	require.NoError(t, s.SetAPIKey(context.Background(), ""))

	assert.False(t, s.Configured())
	assert.Len(t, s.Messages(), 2)
}

func TestClearHistory(t *testing.T) {
	ff := &fakeFactory{}
	s := newTestSession(t, 10, ff)
	require.NoError(t, s.SetAPIKey(context.Background(), "sk-good"))
	_, err := s.Submit(context.Background(), "hi")
	require.NoError(t, err)
	events := recordEvents(s)

	s.ClearHistory()

	assert.Empty(t, s.Messages())
	assert.True(t, s.Configured())
	assert.Equal(t, []Notice{{Level: NoticeSuccess, Text: "Conversation history cleared successfully"}}, notices(events()))
}

func TestSubmit_ReplyDiscardedAfterReset(t *testing.T) {
	ff := &fakeFactory{release: make(chan struct{})}
	s := newTestSession(t, 10, ff)
	require.NoError(t, s.SetAPIKey(context.Background(), "sk-good"))

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background(), "slow question")
		done <- err
	}()
	require.Eventually(t, func() bool { return s.State() == StateCallingProvider }, time.Second, time.Millisecond)

	s.ClearHistory()
	close(ff.release)
	require.ErrorIs(t, <-done, ErrReplyDiscarded)

	assert.Empty(t, s.Messages())
}

func TestSubmit_ConcurrentSubmissionsAreQueued(t *testing.T) {
	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	ff := &fakeFactory{
		reply: func(n int, messages []ai.Message) (string, error) {
			mu.Lock()
			inFlight++
			maxInFlight = max(maxInFlight, inFlight)
			mu.Unlock()
			time.Sleep(2 * time.Millisecond)
			mu.Lock()
			inFlight--
			mu.Unlock()
			return fmt.Sprintf("answer %d", n), nil
		},
	}
	s := newTestSession(t, 10, ff)
	require.NoError(t, s.SetAPIKey(context.Background(), "sk-good"))

	var wg sync.WaitGroup
	for i := range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Submit(context.Background(), fmt.Sprintf("q%d", i))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInFlight)
	assert.Len(t, s.Messages(), 10)
	for i, msg := range s.Messages() {
		if i%2 == 0 {
			assert.Equal(t, ai.RoleUser, msg.Role)
		} else {
			assert.Equal(t, ai.RoleAssistant, msg.Role)
		}
	}
}

func TestSubmit_RecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	ff := &fakeFactory{
		reply: func(n int, messages []ai.Message) (string, error) {
			if n == 2 {
				return "", errors.New("quota exhausted")
			}
			return "ok", nil
		},
	}
	s, err := New(Options{
		MaxHistory: 10,
		NewClient:  ff.newClient,
		Tracer:     tp.Tracer("test"),
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)
	require.NoError(t, s.SetAPIKey(context.Background(), "sk-good"))

	_, err = s.Submit(context.Background(), "one")
	require.NoError(t, err)
	_, err = s.Submit(context.Background(), "two")
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "session.turn", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)

	var sessionID string
	for _, attr := range spans[0].Attributes() {
		if attr.Key == "tutor.session_id" {
			sessionID = attr.Value.AsString()
		}
	}
	assert.Equal(t, s.ID(), sessionID)
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	ff := &fakeFactory{}
	s := newTestSession(t, 10, ff)
	count := 0
	unsubscribe := s.Subscribe(func(e Event) { count++ })

	s.ClearHistory()
	seen := count
	unsubscribe()
	s.ClearHistory()

	assert.Equal(t, 2, seen)
	assert.Equal(t, seen, count)
}

func TestTranscript(t *testing.T) {
	ff := &fakeFactory{}
	s := newTestSession(t, 10, ff)
	require.NoError(t, s.SetAPIKey(context.Background(), "sk-good"))
	_, err := s.Submit(context.Background(), "hi")
	require.NoError(t, err)

	transcript := s.Transcript()

	assert.Equal(t, s.ID(), transcript.SessionID)
	assert.Equal(t, s.SystemPrompt(), transcript.SystemPrompt)
	assert.Len(t, transcript.Messages, 2)
	assert.False(t, transcript.ExportedAt.IsZero())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "calling_provider", StateCallingProvider.String())
	assert.False(t, StateIdle.Busy())
	assert.True(t, StateCallingProvider.Busy())
}
