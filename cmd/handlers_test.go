package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siahsang/notes/internal/auth"
	"github.com/siahsang/notes/internal/cache"
	"github.com/siahsang/notes/internal/config"
	"github.com/siahsang/notes/internal/notes/notestest"
	"github.com/siahsang/notes/models"
)

type testApp struct {
	app      *application
	handler  http.Handler
	catalog  *notestest.Catalog
	notifier *notestest.Notifier
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	clk := testclock.NewClock(time.Now())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{
		Env:     config.EnvDevelopment,
		Auth:    config.Auth{JWTSecret: "test-secret", TokenTTL: time.Hour},
		Cache:   config.Cache{TaxonomyTTL: time.Hour, ListingTTL: time.Hour},
		Content: config.Content{PageSize: 5, LatestCount: 5},
	}

	catalog := notestest.NewCatalog(clk)
	catalog.AddCategory("Tech")
	notifier := &notestest.Notifier{}
	app := newApplication(cfg, logger, catalog, cache.New(cache.NewMemoryBackend(clk), logger, time.Second), notifier, clk)

	return &testApp{
		app:      app,
		handler:  app.routes(),
		catalog:  catalog,
		notifier: notifier,
	}
}

// user stores a user with the given rights and returns a token for it.
func (ta *testApp) user(t *testing.T, username string, setup func(u *auth.User)) string {
	t.Helper()

	user := &auth.User{Username: username, Email: username + "@example.com"}
	if setup != nil {
		setup(user)
	}
	require.NoError(t, ta.catalog.CreateUser(context.Background(), user))

	token, err := ta.app.auth.GenerateToken(user, time.Hour)
	require.NoError(t, err)
	return token
}

func (ta *testApp) author(t *testing.T) string {
	return ta.user(t, "writer", func(u *auth.User) { u.Capabilities = []models.Capability{models.CapabilityAuthor} })
}

func (ta *testApp) moderator(t *testing.T) string {
	return ta.user(t, "moderator", func(u *auth.User) { u.IsStaff = true })
}

func (ta *testApp) admin(t *testing.T) string {
	return ta.user(t, "admin", func(u *auth.User) { u.IsSuperuser = true })
}

type response struct {
	*httptest.ResponseRecorder
	body map[string]any
}

func (ta *testApp) do(t *testing.T, method, path, token string, payload any) response {
	t.Helper()

	var body io.Reader
	switch p := payload.(type) {
	case nil:
	case string:
		body = bytes.NewBufferString(p)
	default:
		data, err := json.Marshal(p)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}
	rec := httptest.NewRecorder()
	ta.handler.ServeHTTP(rec, req)

	res := response{ResponseRecorder: rec}
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res.body))
	}
	return res
}

func (r response) object(key string) map[string]any {
	value, _ := r.body[key].(map[string]any)
	return value
}

func (r response) list(key string) []any {
	value, _ := r.body[key].([]any)
	return value
}

func (ta *testApp) createArticle(t *testing.T, token, title string) string {
	t.Helper()
	res := ta.do(t, http.MethodPost, "/api/articles", token, map[string]any{
		"article": map[string]any{"title": title, "shortBody": "<b>Short</b> body", "category": "tech"},
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	return res.object("article")["slug"].(string)
}

func TestHealthcheck(t *testing.T) {
	ta := newTestApp(t)

	res := ta.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "available", res.body["status"])
	assert.NotEmpty(t, res.Header().Get(requestIDHeader))
}

func TestMetricsEndpoint(t *testing.T) {
	ta := newTestApp(t)
	ta.do(t, http.MethodGet, "/healthz", "", nil)

	res := ta.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `notes_http_requests_total{method="GET",path="/healthz",status="200"}`)
}

func TestRegisterLoginAndLogout(t *testing.T) {
	ta := newTestApp(t)
	credentials := map[string]any{"user": map[string]any{"username": "alice", "email": "alice@example.com", "password": "pa55word!"}}

	res := ta.do(t, http.MethodPost, "/api/users", "", credentials)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	assert.NotEmpty(t, res.object("user")["token"])
	require.Len(t, ta.notifier.Events(), 1)

	res = ta.do(t, http.MethodPost, "/api/users", "", credentials)
	assert.Equal(t, http.StatusUnprocessableEntity, res.Code)
	assert.Contains(t, res.object("errorDetails"), "email")

	res = ta.do(t, http.MethodPost, "/api/users/login", "", map[string]any{"user": map[string]any{"email": "alice@example.com", "password": "wrong-password"}})
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = ta.do(t, http.MethodPost, "/api/users/login", "", map[string]any{"user": map[string]any{"email": "alice@example.com", "password": "pa55word!"}})
	require.Equal(t, http.StatusOK, res.Code)
	token := res.object("user")["token"].(string)

	res = ta.do(t, http.MethodGet, "/api/user", token, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "alice", res.object("user")["username"])

	res = ta.do(t, http.MethodPost, "/api/users/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, res.Code)

	res = ta.do(t, http.MethodGet, "/api/user", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = ta.do(t, http.MethodGet, "/api/user", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "Token", res.Header().Get("WWW-Authenticate"))
}

func TestMenu(t *testing.T) {
	ta := newTestApp(t)

	res := ta.do(t, http.MethodGet, "/api/menu", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	items := res.list("menu")
	require.NotEmpty(t, items)
	assert.Equal(t, "Login", items[len(items)-1].(map[string]any)["title"])

	res = ta.do(t, http.MethodGet, "/api/menu", ta.author(t), nil)
	require.Equal(t, http.StatusOK, res.Code)
	items = res.list("menu")
	assert.Equal(t, "Add article", items[2].(map[string]any)["title"])
	assert.Equal(t, "Welcome, writer", items[3].(map[string]any)["title"])
}

func TestArticleLifecycle(t *testing.T) {
	ta := newTestApp(t)
	author := ta.author(t)
	stranger := ta.user(t, "stranger", nil)

	slug := ta.createArticle(t, author, "Hello World")
	assert.Equal(t, "hello-world", slug)

	res := ta.do(t, http.MethodGet, "/api/articles/hello-world", "", nil)
	assert.Equal(t, http.StatusNotFound, res.Code, "drafts are hidden from other readers")

	res = ta.do(t, http.MethodGet, "/api/articles/hello-world", author, nil)
	assert.Equal(t, http.StatusOK, res.Code)

	res = ta.do(t, http.MethodPost, "/api/articles/hello-world/publish", author, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Equal(t, "published", res.object("article")["status"])

	res = ta.do(t, http.MethodPost, "/api/articles/hello-world/publish", author, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, res.Code)

	res = ta.do(t, http.MethodGet, "/api/articles/hello-world", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "Short body", res.body["description"])

	res = ta.do(t, http.MethodGet, "/api/articles?limit=10", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Len(t, res.list("articles"), 1)
	assert.Equal(t, float64(1), res.object("metadata")["totalCount"])

	update := map[string]any{"article": map[string]any{"title": "Hello again"}}
	res = ta.do(t, http.MethodPut, "/api/articles/hello-world", stranger, update)
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, "not owner", res.object("errorDetails")["reason"])

	res = ta.do(t, http.MethodPut, "/api/articles/hello-world", "", update)
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = ta.do(t, http.MethodPut, "/api/articles/hello-world", ta.moderator(t), update)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "Hello again", res.object("article")["title"])

	res = ta.do(t, http.MethodDelete, "/api/articles/hello-world", author, nil)
	assert.Equal(t, http.StatusNoContent, res.Code)
	res = ta.do(t, http.MethodGet, "/api/articles/hello-world", author, nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestCreateArticleErrors(t *testing.T) {
	ta := newTestApp(t)

	res := ta.do(t, http.MethodPost, "/api/articles", ta.user(t, "reader", nil), map[string]any{
		"article": map[string]any{"title": "t", "shortBody": "b", "category": "tech"},
	})
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, "missing can-author grant", res.object("errorDetails")["reason"])

	author := ta.author(t)
	res = ta.do(t, http.MethodPost, "/api/articles", author, map[string]any{
		"article": map[string]any{"title": "", "shortBody": "b", "category": "tech"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, res.Code)
	assert.Contains(t, res.object("errorDetails"), "title")

	res = ta.do(t, http.MethodPost, "/api/articles", author, `{"article": {"title": "t",}}`)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = ta.do(t, http.MethodPost, "/api/articles", author, `{"article": {"unexpected": true}}`)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestBulkStatus(t *testing.T) {
	ta := newTestApp(t)
	author := ta.author(t)
	ta.createArticle(t, author, "One")
	ta.createArticle(t, author, "Two")

	page := ta.do(t, http.MethodGet, "/api/articles/one", author, nil)
	id := page.object("article")["id"]

	payload := map[string]any{"ids": []any{id}, "status": "published"}
	res := ta.do(t, http.MethodPost, "/api/admin/articles/status", author, payload)
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = ta.do(t, http.MethodPost, "/api/admin/articles/status", ta.moderator(t), payload)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Equal(t, float64(1), res.body["updated"])

	res = ta.do(t, http.MethodGet, "/api/latest", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Len(t, res.list("articles"), 1)
}

func TestCommentModerationFlow(t *testing.T) {
	ta := newTestApp(t)
	author := ta.author(t)
	slug := ta.createArticle(t, author, "Thread")
	require.Equal(t, http.StatusOK, ta.do(t, http.MethodPost, "/api/articles/"+slug+"/publish", author, nil).Code)

	res := ta.do(t, http.MethodPost, "/api/articles/"+slug+"/comments", "", map[string]any{
		"comment": map[string]any{"body": "First!", "author": "Guest"},
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	comment := res.object("comment")
	assert.Equal(t, "on_moderate", comment["status"])
	path := "/api/comments/" + jsonNumber(comment["id"])

	res = ta.do(t, http.MethodGet, "/api/articles/"+slug, "", nil)
	assert.Empty(t, res.list("comments"))

	res = ta.do(t, http.MethodPost, path+"/approve", author, nil)
	assert.Equal(t, http.StatusForbidden, res.Code)

	moderator := ta.moderator(t)
	res = ta.do(t, http.MethodPost, path+"/approve", moderator, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "active", res.object("comment")["status"])

	res = ta.do(t, http.MethodGet, "/api/articles/"+slug, "", nil)
	assert.Len(t, res.list("comments"), 1)

	res = ta.do(t, http.MethodPost, path+"/hide", moderator, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "hidden", res.object("comment")["status"])

	res = ta.do(t, http.MethodDelete, path, moderator, nil)
	assert.Equal(t, http.StatusNoContent, res.Code)

	res = ta.do(t, http.MethodPut, "/api/comments/abc", moderator, map[string]any{"comment": map[string]any{"body": "x"}})
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestTaxonomyRoutes(t *testing.T) {
	ta := newTestApp(t)
	admin := ta.admin(t)

	res := ta.do(t, http.MethodPost, "/api/tags", ta.moderator(t), map[string]any{"tag": map[string]any{"name": "Golang"}})
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, "superuser required", res.object("errorDetails")["reason"])

	res = ta.do(t, http.MethodPost, "/api/tags", admin, map[string]any{"tag": map[string]any{"name": "Golang"}})
	require.Equal(t, http.StatusCreated, res.Code)

	res = ta.do(t, http.MethodPut, "/api/tags/golang", admin, map[string]any{"tag": map[string]any{"name": "Go"}})
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "go", res.object("tag")["slug"])

	res = ta.do(t, http.MethodGet, "/api/tags/golang/articles?limit=2", "", nil)
	assert.Equal(t, http.StatusMovedPermanently, res.Code)
	assert.Equal(t, "/api/tags/go/articles?limit=2", res.Header().Get("Location"))

	res = ta.do(t, http.MethodGet, "/api/tags/go/articles", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "go", res.object("tag")["slug"])

	res = ta.do(t, http.MethodGet, "/api/tags/missing/articles", "", nil)
	assert.Equal(t, http.StatusNotFound, res.Code)

	res = ta.do(t, http.MethodPut, "/api/categories/tech", admin, map[string]any{"category": map[string]any{"name": "Technology"}})
	require.Equal(t, http.StatusOK, res.Code)
	res = ta.do(t, http.MethodGet, "/api/categories/tech/articles", "", nil)
	assert.Equal(t, http.StatusMovedPermanently, res.Code)
	assert.Equal(t, "/api/categories/technology/articles", res.Header().Get("Location"))

	ta.createArticle(t, ta.author(t), "Pinned")
	res = ta.do(t, http.MethodDelete, "/api/categories/technology", admin, nil)
	assert.Equal(t, http.StatusConflict, res.Code)

	res = ta.do(t, http.MethodGet, "/api/categories?selected=abc", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, res.Code)

	res = ta.do(t, http.MethodGet, "/api/categories?selected=1", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, float64(1), res.body["selected"])
}

func TestContactSoftFailure(t *testing.T) {
	ta := newTestApp(t)
	payload := map[string]any{"contact": map[string]any{"name": "Visitor", "email": "visitor@example.com", "message": "Hello"}}

	res := ta.do(t, http.MethodPost, "/api/contact", "", payload)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, true, res.object("contact")["delivered"])

	ta.notifier.Err = errors.New("smtp unavailable")
	res = ta.do(t, http.MethodPost, "/api/contact", "", payload)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, false, res.object("contact")["delivered"])
	assert.NotEmpty(t, res.object("contact")["warning"])
}

func TestPaginationValidation(t *testing.T) {
	ta := newTestApp(t)

	res := ta.do(t, http.MethodGet, "/api/articles?limit=1000", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, res.Code)
	assert.Contains(t, res.object("errorDetails"), "limit")
}

func TestRecoverPanic(t *testing.T) {
	ta := newTestApp(t)
	handler := ta.app.recoverPanic(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "close", rec.Header().Get("Connection"))
}

func TestUnknownRoute(t *testing.T) {
	ta := newTestApp(t)

	res := ta.do(t, http.MethodGet, "/api/nothing", "", nil)
	assert.Equal(t, http.StatusNotFound, res.Code)

	res = ta.do(t, http.MethodPatch, "/api/articles", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, res.Code)
}

func jsonNumber(v any) string {
	data, _ := json.Marshal(v)
	return string(data)
}
