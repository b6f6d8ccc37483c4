package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kpanalytix/kpa-assistant/internal"
	"github.com/kpanalytix/kpa-assistant/internal/chat"
)

type wsIncoming struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Path string `json:"path,omitempty"`
}

type wsResponse struct {
	Type        string             `json:"type"`
	Text        string             `json:"text,omitempty"`
	SessionID   string             `json:"session_id,omitempty"`
	Path        string             `json:"path,omitempty"`
	Action      *internal.Action   `json:"action,omitempty"`
	Messages    []internal.Message `json:"messages,omitempty"`
	Suggestions []string           `json:"suggestions,omitempty"`
}

// serveWS runs one widget connection. Frames are handled one at a time, so
// a connection never has more than one reply in flight.
func (s *Server) serveWS(c *gin.Context) {
	var sess *chat.Session
	if id := c.Query("session_id"); id != "" {
		existing, ok := s.manager.Get(id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		sess = existing
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if sess == nil {
		sess, err = s.manager.Create(requestLang(c, ""))
		if err != nil {
			s.logger.Error("create session", zap.Error(err))
			return
		}
	}
	if err := sess.Open(); err != nil {
		s.logger.Error("open session", zap.String("session", sess.ID()), zap.Error(err))
		return
	}

	log := s.logger.With(zap.String("session", sess.ID()))
	if err := conn.WriteJSON(wsResponse{
		Type:        "connected",
		SessionID:   sess.ID(),
		Messages:    sess.Messages(),
		Suggestions: sess.Suggestions(),
	}); err != nil {
		log.Warn("write connected frame", zap.Error(err))
		return
	}

	ctx := c.Request.Context()
	dispatcher := chat.NewDispatcher(sess, chat.NavigatorFunc(func(path string) error {
		return conn.WriteJSON(wsResponse{Type: "navigate", Path: path})
	}))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket closed unexpectedly", zap.Error(err))
			}
			return
		}

		var in wsIncoming
		if err := json.Unmarshal(data, &in); err != nil {
			if werr := conn.WriteJSON(wsResponse{Type: "error", Text: "Invalid message format. Send JSON with a 'text' field."}); werr != nil {
				return
			}
			continue
		}

		if err := s.handleFrame(ctx, conn, sess, dispatcher, in); err != nil {
			log.Warn("write frame", zap.Error(err))
			return
		}
	}
}

// handleFrame returns only write errors; chat errors are reported to the
// client as error frames.
func (s *Server) handleFrame(ctx context.Context, conn *websocket.Conn, sess *chat.Session, d *chat.Dispatcher, in wsIncoming) error {
	switch in.Type {
	case "", "message":
		if strings.TrimSpace(in.Text) == "" {
			return nil
		}
		if !sess.Allow() {
			return conn.WriteJSON(wsResponse{Type: "error", Text: "too many messages, slow down"})
		}
		if err := conn.WriteJSON(wsResponse{Type: "typing"}); err != nil {
			return err
		}
		reply, err := sess.Submit(ctx, in.Text)
		if err != nil {
			_, msg := submitStatus(err)
			return conn.WriteJSON(wsResponse{Type: "error", Text: msg})
		}
		return conn.WriteJSON(wsResponse{Type: "message", Text: reply.Text, Action: reply.Action})

	case "action":
		err := d.Dispatch(&internal.Action{Type: internal.ActionNavigate, Path: in.Path})
		if errors.Is(err, chat.ErrInvalidPath) {
			return conn.WriteJSON(wsResponse{Type: "error", Text: err.Error()})
		}
		return err

	case "open":
		if err := sess.Open(); err != nil {
			return conn.WriteJSON(wsResponse{Type: "error", Text: "could not open session"})
		}
		return conn.WriteJSON(wsResponse{Type: "opened", Messages: sess.Messages(), Suggestions: sess.Suggestions()})

	case "close":
		sess.Close()
		return conn.WriteJSON(wsResponse{Type: "closed"})
	}
	return conn.WriteJSON(wsResponse{Type: "error", Text: "unknown frame type " + in.Type})
}
