package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/cchalm/prompt-tutor/internal/ai"
	"github.com/cchalm/prompt-tutor/internal/session"
)

// ConversationResponse is the body of every conversation endpoint
type ConversationResponse struct {
	Configured bool            `json:"configured"`
	State      string          `json:"state"`
	Topic      string          `json:"topic"`
	MaxHistory int             `json:"maxHistory"`
	Messages   []ai.Message    `json:"messages"`
	Reply      string          `json:"reply,omitempty"`
	Notice     *session.Notice `json:"notice,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// MessageRequest is the body of POST /api/conversation/messages
type MessageRequest struct {
	Content string `json:"content"`
}

// KeyRequest is the body of PUT /api/key. An empty key removes the current one
type KeyRequest struct {
	APIKey string `json:"apiKey"`
}

func (s *Server) handleIndex(c echo.Context) error {
	return c.HTMLBlob(http.StatusOK, s.index)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// handleGetConversation returns the conversation
// GET /api/conversation
func (s *Server) handleGetConversation(c echo.Context) error {
	return c.JSON(http.StatusOK, s.conversation(nil))
}

// handleClearConversation clears the conversation
// DELETE /api/conversation
func (s *Server) handleClearConversation(c echo.Context) error {
	s.session.ClearHistory()
	notice := session.NoticeHistoryCleared
	return c.JSON(http.StatusOK, s.conversation(&notice))
}

// handlePostMessage runs one turn and returns the reply with the updated conversation
// POST /api/conversation/messages
func (s *Server) handlePostMessage(c echo.Context) error {
	var req MessageRequest
	if err := c.Bind(&req); err != nil {
		return s.errorResponse(c, http.StatusBadRequest, "invalid request body", nil)
	}
	if strings.TrimSpace(req.Content) == "" {
		return s.errorResponse(c, http.StatusBadRequest, session.ErrEmptyQuestion.Error(), nil)
	}

	reply, err := s.session.Submit(c.Request().Context(), req.Content)
	if err != nil {
		var providerErr *ai.ProviderError
		switch {
		case errors.Is(err, session.ErrEmptyQuestion):
			return s.errorResponse(c, http.StatusBadRequest, err.Error(), nil)
		case errors.Is(err, session.ErrReplyDiscarded):
			return s.errorResponse(c, http.StatusConflict, err.Error(), nil)
		case errors.Is(err, ai.ErrNotConfigured):
			notice := session.NoticeKeyRequired
			return s.errorResponse(c, http.StatusPreconditionFailed, notice.Text, &notice)
		case errors.As(err, &providerErr):
			notice := session.ErrorNotice(err)
			return s.errorResponse(c, http.StatusBadGateway, err.Error(), &notice)
		default:
			s.logger.Error().Err(err).Msg("Turn failed")
			notice := session.ErrorNotice(err)
			return s.errorResponse(c, http.StatusInternalServerError, err.Error(), &notice)
		}
	}

	resp := s.conversation(nil)
	resp.Reply = reply
	return c.JSON(http.StatusOK, resp)
}

// handlePutKey sets or removes the API key
// PUT /api/key
func (s *Server) handlePutKey(c echo.Context) error {
	var req KeyRequest
	if err := c.Bind(&req); err != nil {
		return s.errorResponse(c, http.StatusBadRequest, "invalid request body", nil)
	}

	err := s.session.SetAPIKey(c.Request().Context(), req.APIKey)
	if err != nil {
		notice := session.ErrorNotice(err)
		var credErr *ai.CredentialError
		if errors.As(err, &credErr) {
			return s.errorResponse(c, http.StatusUnauthorized, err.Error(), &notice)
		}
		s.logger.Error().Err(err).Msg("Failed to set API key")
		return s.errorResponse(c, http.StatusInternalServerError, err.Error(), &notice)
	}

	notice := session.NoticeKeyConfigured
	if strings.TrimSpace(req.APIKey) == "" {
		notice = session.NoticeKeyCleared
	}
	return c.JSON(http.StatusOK, s.conversation(&notice))
}

func (s *Server) errorResponse(c echo.Context, status int, message string, notice *session.Notice) error {
	resp := s.conversation(notice)
	resp.Error = message
	return c.JSON(status, resp)
}

func (s *Server) conversation(notice *session.Notice) ConversationResponse {
	messages := s.session.Messages()
	if messages == nil {
		messages = []ai.Message{}
	}
	return ConversationResponse{
		Configured: s.session.Configured(),
		State:      s.session.State().String(),
		Topic:      topicOrDefault(s.opts.Topic),
		MaxHistory: s.session.MaxHistory(),
		Messages:   messages,
		Notice:     notice,
	}
}

func topicOrDefault(topic string) string {
	if strings.TrimSpace(topic) == "" {
		return ai.DefaultTopic
	}
	return topic
}
