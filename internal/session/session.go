// Package session holds the state of a single tutoring session: the API key and the model client built from it, the
// bounded conversation history, and the turn lifecycle that ties them to the model provider.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/cchalm/prompt-tutor/internal/ai"
	"github.com/cchalm/prompt-tutor/internal/telemetry"
)

// ErrEmptyQuestion is returned when a blank question is submitted
var ErrEmptyQuestion = errors.New("question is empty")

// ErrReplyDiscarded is returned when the conversation was cleared or the key changed while the model was answering
var ErrReplyDiscarded = errors.New("conversation was reset while waiting for the reply, reply discarded")

// Options configures a new session
type Options struct {
	Topic      string
	MaxHistory int
	NewClient  ai.ClientFactory
	Tracer     trace.Tracer // Optional; nil disables tracing
	Logger     zerolog.Logger
}

// Session is the single mutable state shared by the tutor's views. Exactly one turn is processed at a time;
// submissions made while a turn is in flight wait for it to finish
type Session struct {
	id           string
	topic        string
	systemPrompt string
	newClient    ai.ClientFactory
	tracer       trace.Tracer
	logger       zerolog.Logger

	turnMu sync.Mutex // Held for the duration of a turn
	keyMu  sync.Mutex // Serializes credential changes

	mu           sync.Mutex
	apiKey       string
	client       ai.ModelClient
	conversation *ai.Conversation
	state        State
	epoch        uint64 // Incremented whenever the conversation is cleared

	subMu       sync.Mutex
	subscribers []subscriber
	nextSubID   int
}

type subscriber struct {
	id int
	fn func(Event)
}

// New creates a session with an empty conversation and no API key
func New(opts Options) (*Session, error) {
	if opts.NewClient == nil {
		return nil, fmt.Errorf("a client factory is required")
	}
	conversation, err := ai.NewConversation(opts.MaxHistory)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	systemPrompt, err := ai.BuildSystemPrompt(opts.Topic)
	if err != nil {
		return nil, fmt.Errorf("failed to build system prompt: %w", err)
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}

	id := telemetry.NewSessionID()
	return &Session{
		id:           id,
		topic:        strings.TrimSpace(opts.Topic),
		systemPrompt: systemPrompt,
		newClient:    opts.NewClient,
		tracer:       tracer,
		logger:       opts.Logger.With().Str("session_id", id).Logger(),
		conversation: conversation,
		state:        StateIdle,
	}, nil
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) SystemPrompt() string {
	return s.systemPrompt
}

// MaxHistory returns the number of exchanges the session keeps
func (s *Session) MaxHistory() int {
	return s.conversation.MaxHistory()
}

// Configured reports whether a model client is available
func (s *Session) Configured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil
}

// State returns the current turn state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Messages returns the conversation history in chronological order
func (s *Session) Messages() []ai.Message {
	return s.conversation.Snapshot()
}

// Transcript returns an exportable snapshot of the session
func (s *Session) Transcript() ai.Transcript {
	return ai.Transcript{
		SessionID:    s.id,
		Topic:        s.topic,
		SystemPrompt: s.systemPrompt,
		Messages:     s.conversation.Snapshot(),
		ExportedAt:   time.Now(),
	}
}

// SetAPIKey configures the credential used for model calls.
//
// An empty key removes the current client. A key equal to the current one is a no-op. Any other key is used to build a
// new client; on success the conversation is cleared so that context never leaks across credentials, and on failure
// the session is left without a client and a *ai.CredentialError is returned.
func (s *Session) SetAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)

	s.keyMu.Lock()
	defer s.keyMu.Unlock()

	s.mu.Lock()
	if key == s.apiKey {
		s.mu.Unlock()
		return nil
	}
	if key == "" {
		s.apiKey = ""
		s.client = nil
		s.mu.Unlock()

		s.logger.Info().Msg("API key removed")
		s.emit(Event{Kind: EventNotice, Notice: NoticeKeyCleared})
		return nil
	}
	s.mu.Unlock()

	// Building the client may contact the provider, so it happens outside the lock
	client, err := s.newClient(ctx, key)
	if err != nil {
		var credErr *ai.CredentialError
		if !errors.As(err, &credErr) {
			err = &ai.CredentialError{Err: err}
		}

		s.mu.Lock()
		s.apiKey = ""
		s.client = nil
		s.mu.Unlock()

		s.logger.Warn().Err(err).Msg("Rejected API key")
		s.emit(Event{Kind: EventNotice, Notice: ErrorNotice(err)})
		return err
	}

	s.mu.Lock()
	s.apiKey = key
	s.client = client
	s.conversation.Clear()
	s.epoch++
	s.mu.Unlock()

	s.logger.Info().Msg("API key configured")
	s.emit(Event{Kind: EventHistoryChanged})
	s.emit(Event{Kind: EventNotice, Notice: NoticeKeyConfigured})
	return nil
}

// ClearHistory empties the conversation
func (s *Session) ClearHistory() {
	s.mu.Lock()
	s.conversation.Clear()
	s.epoch++
	s.mu.Unlock()

	s.logger.Info().Msg("Conversation history cleared")
	s.emit(Event{Kind: EventHistoryChanged})
	s.emit(Event{Kind: EventNotice, Notice: NoticeHistoryCleared})
}

// Submit runs one turn: the question is appended to the history, the history is truncated, and the system prompt plus
// history is sent to the model. The reply is appended and returned.
//
// Without a configured client Submit returns ai.ErrNotConfigured and changes nothing. When the provider call fails the
// question stays in the history and the *ai.ProviderError is returned. If the conversation is reset before the reply
// arrives, the reply is dropped and ErrReplyDiscarded is returned.
func (s *Session) Submit(ctx context.Context, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", ErrEmptyQuestion
	}

	s.turnMu.Lock()
	defer s.turnMu.Unlock()

	s.mu.Lock()
	client := s.client
	if client == nil {
		s.mu.Unlock()
		s.logger.Debug().Msg("Question submitted without an API key")
		s.emit(Event{Kind: EventNotice, Notice: NoticeKeyRequired})
		return "", ai.ErrNotConfigured
	}
	s.state = StateAwaitingInput
	s.mu.Unlock()
	s.emit(Event{Kind: EventStateChanged, State: StateAwaitingInput})

	turnID := telemetry.NewTurnID()
	logger := s.logger.With().Str("turn_id", turnID).Logger()

	s.mu.Lock()
	s.state = StateBuildingRequest
	// Append only rejects roles other than user and assistant, so this cannot fail
	_ = s.conversation.Append(ai.NewUserMessage(question))
	dropped := s.conversation.Truncate()
	request := s.conversation.Request(s.systemPrompt)
	epoch := s.epoch
	s.mu.Unlock()
	s.emit(Event{Kind: EventStateChanged, State: StateBuildingRequest})
	s.emit(Event{Kind: EventHistoryChanged})

	if dropped > 0 {
		logger.Debug().Int("dropped", dropped).Msg("Truncated conversation history")
	}

	ctx, span := s.tracer.Start(ctx, "session.turn", trace.WithAttributes(
		telemetry.AttrSessionID.String(s.id),
		telemetry.AttrTurnID.String(turnID),
		telemetry.AttrHistoryLength.Int(len(request)-1),
	))
	defer span.End()

	s.setState(StateCallingProvider)
	logger.Info().Int("messages", len(request)).Msg("Calling model provider")

	reply, err := client.Invoke(ctx, request)
	if err != nil {
		var providerErr *ai.ProviderError
		if !errors.As(err, &providerErr) {
			err = &ai.ProviderError{Err: err}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).Msg("Model call failed")

		s.setState(StateFailure)
		s.emit(Event{Kind: EventNotice, Notice: ErrorNotice(err)})
		s.setState(StateIdle)
		return "", err
	}
	span.SetAttributes(telemetry.AttrReplyLength.Int(len(reply)))

	s.mu.Lock()
	stale := s.epoch != epoch
	if !stale {
		_ = s.conversation.Append(ai.NewAssistantMessage(reply))
		s.conversation.Truncate()
	}
	s.state = StateSuccess
	s.mu.Unlock()

	if stale {
		logger.Info().Msg("Conversation was reset during the call, discarding reply")
	} else {
		s.emit(Event{Kind: EventHistoryChanged})
	}
	s.emit(Event{Kind: EventStateChanged, State: StateSuccess})
	s.setState(StateIdle)

	if stale {
		return "", ErrReplyDiscarded
	}
	return reply, nil
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.emit(Event{Kind: EventStateChanged, State: state})
}

// Subscribe registers fn to receive session events and returns a function that removes it. Events are delivered
// synchronously, in order, on the goroutine that caused them
func (s *Session) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	s.subscribers = append(s.subscribers, subscriber{id: id, fn: fn})

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		for i, sub := range s.subscribers {
			if sub.id == id {
				s.subscribers = append(s.subscribers[:i:i], s.subscribers[i+1:]...)
				return
			}
		}
	}
}

func (s *Session) emit(event Event) {
	s.subMu.Lock()
	subscribers := make([]subscriber, len(s.subscribers))
	copy(subscribers, s.subscribers)
	s.subMu.Unlock()

	for _, sub := range subscribers {
		sub.fn(event)
	}
}
