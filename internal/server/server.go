// Package server exposes chat sessions to the site's widget over HTTP and
// websocket.
package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kpanalytix/kpa-assistant/internal"
	"github.com/kpanalytix/kpa-assistant/internal/chat"
	"github.com/kpanalytix/kpa-assistant/internal/i18n"
	"github.com/kpanalytix/kpa-assistant/internal/logging"
)

type Server struct {
	manager  *chat.Manager
	logger   *zap.Logger
	origins  map[string]bool
	anyOrig  bool
	upgrader websocket.Upgrader
}

func New(m *chat.Manager, logger *zap.Logger, allowedOrigins []string) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		manager: m,
		logger:  logger,
		origins: make(map[string]bool, len(allowedOrigins)),
	}
	for _, o := range allowedOrigins {
		if o == "*" {
			s.anyOrig = true
		}
		s.origins[o] = true
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s
}

// Handler builds the gin engine with every route mounted.
func (s *Server) Handler() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logging.GinLogger(s.logger), s.cors)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "time": time.Now().Format(time.RFC3339)})
	})
	r.GET("/ws", s.serveWS)

	api := r.Group("/api")
	api.GET("/model", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"model": s.manager.Model(), "mode": s.manager.Mode()})
	})
	api.GET("/faq", s.lookupFAQ)
	api.GET("/ui", s.uiStrings)

	api.POST("/sessions", s.createSession)
	sess := api.Group("/sessions/:id")
	sess.GET("/messages", s.withSession(s.listMessages))
	sess.POST("/messages", s.withSession(s.sendMessage))
	sess.PUT("/lang", s.withSession(s.setLang))
	sess.POST("/open", s.withSession(s.openSession))
	sess.POST("/close", s.withSession(s.closeSession))
	sess.POST("/reset", s.withSession(s.resetSession))
	sess.POST("/actions", s.withSession(s.dispatchAction))
	sess.DELETE("", s.deleteSession)

	return r
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || s.anyOrig {
		return true
	}
	return s.origins[origin]
}

func (s *Server) cors(c *gin.Context) {
	if origin := c.GetHeader("Origin"); origin != "" && s.checkOrigin(c.Request) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept-Language")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Add("Vary", "Origin")
	}
	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
	c.Next()
}

func (s *Server) withSession(h func(*gin.Context, *chat.Session)) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := s.manager.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		h(c, sess)
	}
}

// bindOptional decodes a JSON body that may be absent.
func bindOptional(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func requestLang(c *gin.Context, explicit string) internal.Lang {
	if explicit != "" {
		return i18n.ParseLang(explicit)
	}
	if q := c.Query("lang"); q != "" {
		return i18n.ParseLang(q)
	}
	return i18n.ParseLang(c.GetHeader("Accept-Language"))
}

func sessionView(sess *chat.Session) gin.H {
	return gin.H{
		"id":          sess.ID(),
		"lang":        sess.Lang(),
		"state":       sess.State().String(),
		"open":        sess.IsOpen(),
		"messages":    sess.Messages(),
		"suggestions": sess.Suggestions(),
	}
}

func (s *Server) createSession(c *gin.Context) {
	var req internal.CreateSessionRequest
	if err := bindOptional(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON"})
		return
	}
	sess, err := s.manager.Create(requestLang(c, req.Lang))
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create session"})
		return
	}
	if err := sess.Open(); err != nil {
		_ = c.Error(err)
		s.manager.Delete(sess.ID())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not open session"})
		return
	}
	c.JSON(http.StatusCreated, internal.CreateSessionResponse{
		ID:          sess.ID(),
		Mode:        string(sess.Mode()),
		Lang:        sess.Lang(),
		Messages:    sess.Messages(),
		Suggestions: sess.Suggestions(),
	})
}

func (s *Server) listMessages(c *gin.Context, sess *chat.Session) {
	c.JSON(http.StatusOK, sessionView(sess))
}

func (s *Server) sendMessage(c *gin.Context, sess *chat.Session) {
	var req internal.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}
	if !sess.Allow() {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many messages, slow down"})
		return
	}

	reply, err := sess.Submit(c.Request.Context(), req.Content)
	if err != nil {
		status, msg := submitStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	msgs := sess.Messages()
	c.JSON(http.StatusOK, internal.SendMessageResponse{
		Reply:   reply,
		Message: msgs[len(msgs)-1],
		Model:   s.manager.Model(),
	})
}

func submitStatus(err error) (int, string) {
	switch {
	case errors.Is(err, chat.ErrEmptyInput):
		return http.StatusBadRequest, "content is required"
	case errors.Is(err, chat.ErrNotOpen):
		return http.StatusConflict, "session is not open"
	case errors.Is(err, chat.ErrBusy):
		return http.StatusConflict, "a reply is still pending"
	}
	return http.StatusInternalServerError, "internal error"
}

func (s *Server) setLang(c *gin.Context, sess *chat.Session) {
	var req internal.SetLangRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Lang == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lang is required"})
		return
	}
	sess.SetLang(i18n.ParseLang(req.Lang))
	c.JSON(http.StatusOK, gin.H{"lang": sess.Lang()})
}

func (s *Server) openSession(c *gin.Context, sess *chat.Session) {
	if err := sess.Open(); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not open session"})
		return
	}
	c.JSON(http.StatusOK, sessionView(sess))
}

func (s *Server) closeSession(c *gin.Context, sess *chat.Session) {
	sess.Close()
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) resetSession(c *gin.Context, sess *chat.Session) {
	if err := sess.Reset(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "a reply is still pending"})
		return
	}
	s.openSession(c, sess)
}

func (s *Server) dispatchAction(c *gin.Context, sess *chat.Session) {
	var req internal.DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON"})
		return
	}
	var target string
	d := chat.NewDispatcher(sess, chat.NavigatorFunc(func(path string) error {
		target = path
		return nil
	}))
	if err := d.Dispatch(&internal.Action{Type: req.Type, Path: req.Path}); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"navigate": target, "open": sess.IsOpen()})
}

func (s *Server) deleteSession(c *gin.Context) {
	if !s.manager.Delete(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) lookupFAQ(c *gin.Context) {
	c.JSON(http.StatusOK, s.manager.Local().Resolve(c.Query("q"), requestLang(c, "")))
}

func (s *Server) uiStrings(c *gin.Context) {
	lang := requestLang(c, "")
	t := s.manager.Translator()
	out := make(map[string]string, len(i18n.Keys))
	for _, k := range i18n.Keys {
		v, err := t.Translate(k, lang)
		if err != nil {
			_ = c.Error(err)
			continue
		}
		out[k] = v
	}
	if v, ok := out["powered_by"]; ok {
		out["powered_by"] = fmt.Sprintf(v, s.manager.Model())
	}
	suggestions, err := i18n.Suggestions(t, lang)
	if err != nil {
		_ = c.Error(err)
	}
	c.JSON(http.StatusOK, gin.H{"lang": lang, "mode": s.manager.Mode(), "strings": out, "suggestions": suggestions})
}
