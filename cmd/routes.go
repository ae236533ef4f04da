package main

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (app *application) routes() http.Handler {
	router := httprouter.New()

	router.NotFound = http.HandlerFunc(app.notFoundResponse)
	router.MethodNotAllowed = http.HandlerFunc(app.methodNotAllowedResponse)
	router.RedirectTrailingSlash = false

	handle := func(method, path string, handler http.HandlerFunc) {
		router.Handler(method, path, app.instrument(path, handler))
	}

	handle(http.MethodGet, "/healthz", app.healthcheckHandler)
	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())

	handle(http.MethodPost, "/api/users", app.registerUserHandler)
	handle(http.MethodPost, "/api/users/login", app.loginHandler)
	handle(http.MethodPost, "/api/users/logout", app.requireAuthenticatedUser(app.logoutHandler))
	handle(http.MethodGet, "/api/user", app.requireAuthenticatedUser(app.currentUserHandler))
	handle(http.MethodGet, "/api/menu", app.menuHandler)
	handle(http.MethodPost, "/api/contact", app.contactHandler)

	handle(http.MethodGet, "/api/articles", app.listArticlesHandler)
	handle(http.MethodPost, "/api/articles", app.createArticleHandler)
	handle(http.MethodGet, "/api/articles/:slug", app.showArticleHandler)
	handle(http.MethodPut, "/api/articles/:slug", app.updateArticleHandler)
	handle(http.MethodDelete, "/api/articles/:slug", app.deleteArticleHandler)
	handle(http.MethodPost, "/api/articles/:slug/publish", app.publishArticleHandler)
	handle(http.MethodPost, "/api/articles/:slug/unpublish", app.unpublishArticleHandler)
	handle(http.MethodPost, "/api/articles/:slug/comments", app.createCommentHandler)
	handle(http.MethodPost, "/api/admin/articles/status", app.bulkStatusHandler)
	handle(http.MethodGet, "/api/latest", app.latestArticlesHandler)

	handle(http.MethodGet, "/api/categories", app.listCategoriesHandler)
	handle(http.MethodPost, "/api/categories", app.createCategoryHandler)
	handle(http.MethodPut, "/api/categories/:slug", app.renameCategoryHandler)
	handle(http.MethodDelete, "/api/categories/:slug", app.deleteCategoryHandler)
	handle(http.MethodGet, "/api/categories/:slug/articles", app.categoryArticlesHandler)

	handle(http.MethodGet, "/api/tags", app.listTagsHandler)
	handle(http.MethodPost, "/api/tags", app.createTagHandler)
	handle(http.MethodPut, "/api/tags/:slug", app.renameTagHandler)
	handle(http.MethodDelete, "/api/tags/:slug", app.deleteTagHandler)
	handle(http.MethodGet, "/api/tags/:slug/articles", app.tagArticlesHandler)

	handle(http.MethodPut, "/api/comments/:id", app.editCommentHandler)
	handle(http.MethodDelete, "/api/comments/:id", app.deleteCommentHandler)
	handle(http.MethodPost, "/api/comments/:id/approve", app.approveCommentHandler)
	handle(http.MethodPost, "/api/comments/:id/hide", app.hideCommentHandler)

	return app.recoverPanic(app.requestContext(app.authenticate(router)))
}
