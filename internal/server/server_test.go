package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpanalytix/kpa-assistant/internal"
	"github.com/kpanalytix/kpa-assistant/internal/chat"
	"github.com/kpanalytix/kpa-assistant/internal/config"
	"github.com/kpanalytix/kpa-assistant/internal/faq"
	"github.com/kpanalytix/kpa-assistant/internal/i18n"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newManager(t *testing.T, opts chat.Options) *chat.Manager {
	t.Helper()
	table, err := faq.Default()
	require.NoError(t, err)
	if opts.Mode == "" {
		opts.Mode = config.ModeLocal
	}
	opts.Local = faq.NewResolver(table)
	opts.Translator = i18n.Default
	m, err := chat.NewManager(opts, time.Minute)
	require.NoError(t, err)
	return m
}

func newTestServer(t *testing.T, opts chat.Options) (*Server, *gin.Engine) {
	t.Helper()
	s := New(newManager(t, opts), nil, []string{"https://kpanalytix.com"})
	return s, s.Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func createSession(t *testing.T, h http.Handler, lang string) internal.CreateSessionResponse {
	t.Helper()
	w := do(t, h, http.MethodPost, "/api/sessions", internal.CreateSessionRequest{Lang: lang})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[internal.CreateSessionResponse](t, w)
}

func TestHealthAndModel(t *testing.T) {
	_, h := newTestServer(t, chat.Options{})

	w := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodGet, "/api/model", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[map[string]string](t, w)
	assert.Equal(t, "faq", got["model"])
	assert.Equal(t, "local", got["mode"])
}

func TestCreateSession_GreetsAndSuggests(t *testing.T) {
	_, h := newTestServer(t, chat.Options{})

	resp := createSession(t, h, "")

	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "local", resp.Mode)
	assert.Equal(t, internal.LangEN, resp.Lang)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, internal.RoleAssistant, resp.Messages[0].Role)
	assert.Len(t, resp.Suggestions, 3)
}

func TestCreateSession_EmptyBodyUsesAcceptLanguage(t *testing.T) {
	_, h := newTestServer(t, chat.Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", nil)
	req.Header.Set("Accept-Language", "ar-SA,ar;q=0.9")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode[internal.CreateSessionResponse](t, w)
	assert.Equal(t, internal.LangAR, resp.Lang)
	assert.Contains(t, resp.Messages[0].Content, "مرحباً")
}

func TestSendMessage(t *testing.T) {
	_, h := newTestServer(t, chat.Options{})
	sess := createSession(t, h, "en")

	w := do(t, h, http.MethodPost, "/api/sessions/"+sess.ID+"/messages", internal.SendMessageRequest{Content: "What services do you offer?"})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[internal.SendMessageResponse](t, w)
	require.NotNil(t, resp.Reply.Action)
	assert.Equal(t, "/services", resp.Reply.Action.Path)
	assert.Equal(t, resp.Reply.Text, resp.Message.Content)
	assert.Equal(t, "faq", resp.Model)

	w = do(t, h, http.MethodGet, "/api/sessions/"+sess.ID+"/messages", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[struct {
		State       string             `json:"state"`
		Messages    []internal.Message `json:"messages"`
		Suggestions []string           `json:"suggestions"`
	}](t, w)
	assert.Equal(t, "ready", view.State)
	assert.Len(t, view.Messages, 3)
	assert.Empty(t, view.Suggestions)
}

func TestSendMessage_Errors(t *testing.T) {
	_, h := newTestServer(t, chat.Options{})
	sess := createSession(t, h, "en")

	w := do(t, h, http.MethodPost, "/api/sessions/"+sess.ID+"/messages", internal.SendMessageRequest{Content: "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/api/sessions/nope/messages", internal.SendMessageRequest{Content: "hi"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+sess.ID+"/messages", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessage_RateLimited(t *testing.T) {
	_, h := newTestServer(t, chat.Options{RateLimit: 0.001, RateBurst: 1})
	sess := createSession(t, h, "en")
	path := "/api/sessions/" + sess.ID + "/messages"

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, path, internal.SendMessageRequest{Content: "hello"}).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodPost, path, internal.SendMessageRequest{Content: "hello"}).Code)
}

type blockingProvider struct {
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (p *blockingProvider) Model() string { return "blocking" }

func (p *blockingProvider) Complete(ctx context.Context, _ []internal.Message) (string, error) {
	p.once.Do(func() { close(p.started) })
	select {
	case <-p.release:
		return "remote answer", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestSendMessage_BusyWhileAwaitingReply(t *testing.T) {
	p := &blockingProvider{started: make(chan struct{}), release: make(chan struct{})}
	_, h := newTestServer(t, chat.Options{
		Mode:   config.ModeRemote,
		Remote: chat.NewRemoteResolver(p, chat.SystemPrompt, 5*time.Second),
	})
	sess := createSession(t, h, "en")
	path := "/api/sessions/" + sess.ID + "/messages"

	first := make(chan *httptest.ResponseRecorder)
	go func() {
		first <- do(t, h, http.MethodPost, path, internal.SendMessageRequest{Content: "first"})
	}()
	<-p.started

	w := do(t, h, http.MethodPost, path, internal.SendMessageRequest{Content: "second"})
	assert.Equal(t, http.StatusConflict, w.Code)

	close(p.release)
	w = <-first
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "remote answer", decode[internal.SendMessageResponse](t, w).Reply.Text)
}

func TestSetLangAndReset(t *testing.T) {
	_, h := newTestServer(t, chat.Options{})
	sess := createSession(t, h, "en")
	base := "/api/sessions/" + sess.ID

	w := do(t, h, http.MethodPut, base+"/lang", internal.SetLangRequest{Lang: "ar"})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodPost, base+"/messages", internal.SendMessageRequest{Content: "ما هي خدماتكم"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode[internal.SendMessageResponse](t, w).Reply.Text, "نقدم")

	w = do(t, h, http.MethodPost, base+"/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[struct {
		Messages []internal.Message `json:"messages"`
	}](t, w)
	require.Len(t, view.Messages, 1)
	assert.Contains(t, view.Messages[0].Content, "مرحباً")

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPut, base+"/lang", internal.SetLangRequest{}).Code)
}

func TestDispatchAction(t *testing.T) {
	_, h := newTestServer(t, chat.Options{})
	sess := createSession(t, h, "en")
	base := "/api/sessions/" + sess.ID

	w := do(t, h, http.MethodPost, base+"/actions", internal.DispatchRequest{Type: internal.ActionNavigate, Path: "/contact"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[map[string]any](t, w)
	assert.Equal(t, "/contact", got["navigate"])
	assert.Equal(t, false, got["open"])

	w = do(t, h, http.MethodPost, base+"/actions", internal.DispatchRequest{Type: "link", Path: "/contact"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, base+"/open", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode[map[string]any](t, w)["open"])

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, base+"/close", nil).Code)
}

func TestDeleteSession(t *testing.T) {
	_, h := newTestServer(t, chat.Options{})
	sess := createSession(t, h, "en")

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodDelete, "/api/sessions/"+sess.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/api/sessions/"+sess.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/sessions/"+sess.ID+"/messages", nil).Code)
}

func TestLookupFAQ(t *testing.T) {
	_, h := newTestServer(t, chat.Options{})

	w := do(t, h, http.MethodGet, "/api/faq?q=hello&lang=en", nil)
	require.Equal(t, http.StatusOK, w.Code)
	reply := decode[internal.BotReply](t, w)
	assert.Contains(t, reply.Text, "Welcome")
	assert.Nil(t, reply.Action)

	w = do(t, h, http.MethodGet, "/api/faq?q=qqq&lang=ar", nil)
	reply = decode[internal.BotReply](t, w)
	require.NotNil(t, reply.Action)
	assert.Equal(t, "/contact", reply.Action.Path)
}

func TestUIStrings(t *testing.T) {
	_, h := newTestServer(t, chat.Options{})

	w := do(t, h, http.MethodGet, "/api/ui?lang=ar", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[struct {
		Lang        string            `json:"lang"`
		Strings     map[string]string `json:"strings"`
		Suggestions []string          `json:"suggestions"`
	}](t, w)
	assert.Equal(t, "ar", got.Lang)
	assert.Equal(t, "اكتب رسالتك...", got.Strings["placeholder"])
	assert.Equal(t, "Powered by faq", got.Strings["powered_by"])
	assert.Len(t, got.Suggestions, 3)
}

func TestCORS(t *testing.T) {
	_, h := newTestServer(t, chat.Options{})

	req := httptest.NewRequest(http.MethodOptions, "/api/sessions", nil)
	req.Header.Set("Origin", "https://kpanalytix.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://kpanalytix.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
